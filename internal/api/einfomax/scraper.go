// Package einfomax scrapes the dealers' daily expected USD/KRW range from Yonhap Infomax.
package einfomax

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	httpClient "github.com/Alias1177/RateWatcher/internal/platform/http"
	"github.com/Alias1177/RateWatcher/models"
)

var (
	ErrNoArticle    = errors.New("no range article found")
	ErrStaleArticle = errors.New("range article is not from today")
	ErrNoRange      = errors.New("no expected range in article")
)

var rangePattern = regexp.MustCompile(`예상\s*레인지\s*[:：]?\s*([\d,\.]+)\s*[~\-]\s*([\d,\.]+)`)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Scraper finds the latest range article on the search page and parses it.
type Scraper struct {
	searchURL  string
	httpClient *httpClient.Client
	logger     zerolog.Logger
}

func NewScraper(searchURL string, timeout time.Duration) *Scraper {
	return &Scraper{
		searchURL: searchURL,
		httpClient: httpClient.NewClient(httpClient.ClientOptions{
			Timeout:        timeout,
			RequestsPerSec: 2,
			MaxRetries:     2,
		}),
		logger: log.With().Str("component", "einfomax_scraper").Logger(),
	}
}

// FetchExpectedRange returns the widest range quoted in the newest article,
// which must be published on day (KST).
func (s *Scraper) FetchExpectedRange(ctx context.Context, day time.Time) (models.ExpectedRange, error) {
	search, err := s.document(ctx, s.searchURL)
	if err != nil {
		return models.ExpectedRange{}, fmt.Errorf("loading search page: %w", err)
	}

	href, ok := search.Find("ul.type2 li a").First().Attr("href")
	if !ok || href == "" {
		return models.ExpectedRange{}, ErrNoArticle
	}
	articleURL, err := resolve(s.searchURL, href)
	if err != nil {
		return models.ExpectedRange{}, err
	}

	article, err := s.document(ctx, articleURL)
	if err != nil {
		return models.ExpectedRange{}, fmt.Errorf("loading article: %w", err)
	}

	published, ok := article.Find(`meta[property="article:published_time"]`).Attr("content")
	if !ok || published == "" {
		return models.ExpectedRange{}, fmt.Errorf("%s: missing publish time: %w", articleURL, ErrNoArticle)
	}
	published, _, _ = strings.Cut(published, "T")
	today := day.In(models.KST).Format("2006-01-02")
	if published != today {
		return models.ExpectedRange{}, fmt.Errorf("article dated %s, want %s: %w", published, today, ErrStaleArticle)
	}

	low, high, err := widestRange(articleText(article))
	if err != nil {
		return models.ExpectedRange{}, fmt.Errorf("%s: %w", articleURL, err)
	}

	s.logger.Info().
		Str("url", articleURL).
		Float64("low", low).
		Float64("high", high).
		Msg("Scraped expected range")

	y, m, d := day.In(models.KST).Date()
	return models.ExpectedRange{
		Date:   time.Date(y, m, d, 0, 0, 0, 0, models.KST),
		Low:    low,
		High:   high,
		Source: articleURL,
	}, nil
}

func (s *Scraper) document(ctx context.Context, pageURL string) (*goquery.Document, error) {
	resp, err := s.httpClient.Get(ctx, pageURL, http.Header{"User-Agent": {userAgent}})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}
	return doc, nil
}

// articleText joins the page's text nodes with newlines so numbers in
// adjacent elements do not run together.
func articleText(doc *goquery.Document) string {
	var b strings.Builder
	doc.Find("body, body *").Contents().Each(func(_ int, sel *goquery.Selection) {
		if goquery.NodeName(sel) != "#text" {
			return
		}
		if text := strings.TrimSpace(sel.Text()); text != "" {
			b.WriteString(text)
			b.WriteByte('\n')
		}
	})
	return b.String()
}

func widestRange(text string) (float64, float64, error) {
	var low, high float64
	found := false
	for _, m := range rangePattern.FindAllStringSubmatch(text, -1) {
		l, errL := parseNumber(m[1])
		h, errH := parseNumber(m[2])
		if errL != nil || errH != nil {
			continue
		}
		if !found || l < low {
			low = l
		}
		if !found || h > high {
			high = h
		}
		found = true
	}
	if !found {
		return 0, 0, ErrNoRange
	}
	return low, high, nil
}

func parseNumber(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimRight(strings.ReplaceAll(s, ",", ""), "."), 64)
}

func resolve(base, href string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing search URL: %w", err)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parsing article link %q: %w", href, err)
	}
	return b.ResolveReference(ref).String(), nil
}
