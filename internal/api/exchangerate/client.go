package exchangerate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	httpClient "github.com/Alias1177/RateWatcher/internal/platform/http"
)

// ErrNoQuote is returned when the response lacks the requested pair.
var ErrNoQuote = errors.New("quote missing from response")

// Client is the exchangerate.host live quote client
type Client struct {
	apiKey     string
	baseURL    string
	symbol     string
	httpClient *httpClient.Client
	logger     zerolog.Logger
}

// ClientOptions holds options for creating a new exchangerate client
type ClientOptions struct {
	APIKey          string
	BaseURL         string
	Symbol          string
	RequestTimeout  time.Duration
	RequestsPerSec  int
	MaxRetries      int
	MaxRetryTimeout time.Duration
}

type liveResponse struct {
	Success bool               `json:"success"`
	Quotes  map[string]float64 `json:"quotes"`
	Error   *struct {
		Code int    `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
}

// NewClient creates a new exchangerate client
func NewClient(options ClientOptions) *Client {
	if options.BaseURL == "" {
		options.BaseURL = "https://api.exchangerate.host/live"
	}
	if options.Symbol == "" {
		options.Symbol = "USDKRW"
	}
	if options.MaxRetries == 0 {
		options.MaxRetries = 2
	}

	return &Client{
		apiKey:  options.APIKey,
		baseURL: options.BaseURL,
		symbol:  strings.ToUpper(options.Symbol),
		httpClient: httpClient.NewClient(httpClient.ClientOptions{
			Timeout:         options.RequestTimeout,
			RequestsPerSec:  options.RequestsPerSec,
			MaxRetries:      options.MaxRetries,
			MaxRetryTimeout: options.MaxRetryTimeout,
		}),
		logger: log.With().Str("component", "exchangerate_client").Logger(),
	}
}

// GetRate fetches the current quote for the configured pair.
func (c *Client) GetRate(ctx context.Context) (float64, error) {
	q := url.Values{}
	q.Set("access_key", c.apiKey)
	if len(c.symbol) == 6 {
		q.Set("source", c.symbol[:3])
		q.Set("currencies", c.symbol[3:])
	} else {
		q.Set("currencies", c.symbol)
	}

	resp, err := c.httpClient.Get(ctx, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("reading response body: %w", err)
	}

	var data liveResponse
	if err := json.Unmarshal(body, &data); err != nil {
		c.logger.Error().Err(err).Str("response", string(body)).Msg("Error parsing JSON")
		return 0, fmt.Errorf("parsing JSON: %w", err)
	}

	if data.Error != nil {
		return 0, fmt.Errorf("exchangerate API error %d: %s", data.Error.Code, data.Error.Info)
	}

	rate, ok := data.Quotes[c.symbol]
	if !ok || rate <= 0 {
		c.logger.Warn().Str("symbol", c.symbol).Str("response", string(body)).Msg("No quote in response")
		return 0, fmt.Errorf("%s: %w", c.symbol, ErrNoQuote)
	}

	c.logger.Debug().Str("symbol", c.symbol).Float64("rate", rate).Msg("Fetched rate")
	return rate, nil
}
