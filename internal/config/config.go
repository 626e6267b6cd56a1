package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/RateWatcher/internal/gate"
	"github.com/Alias1177/RateWatcher/internal/stability"
	"github.com/Alias1177/RateWatcher/models"
)

// Config holds all application configuration
type Config struct {
	Environment string `default:"production" validate:"oneof=local production"`
	LogLevel    string `default:"info"`

	Symbol         string        `default:"USDKRW" validate:"len=6"`
	RateAPIKey     string        `validate:"required"`
	RateAPIURL     string        `default:"https://api.exchangerate.host/live" validate:"url"`
	RangeURL       string        `default:"https://news.einfomax.co.kr/news/articleList.html?sc_area=A&view_type=sm&sc_word=%ED%99%98%EC%9C%A8+%EC%98%88%EC%83%81%EB%A0%88%EC%9D%B8%EC%A7%80" validate:"url"`
	RequestTimeout time.Duration `default:"30s"`

	TelegramToken string  `validate:"required"`
	ChatIDs       []int64 `validate:"min=1"`
	AdminChatID   int64

	DB       DBConfig
	Redis    RedisConfig
	HTTPAddr string `default:":8080"`

	CheckInterval    time.Duration `default:"200s" validate:"min=1s"`
	MovingAverage    int           `default:"45" validate:"min=2"`
	ShortPeriod      int           `default:"90" validate:"min=2"`
	LongPeriod       int           `default:"306" validate:"gtfield=ShortPeriod"`
	JumpThreshold    float64       `default:"1.0" validate:"gt=0"`
	ATRPeriod        int           `default:"14" validate:"min=1"`
	MarketEvents     []models.ClockTime
	EventWindow      time.Duration `default:"10m"`
	LearningRate     float64       `default:"0.05" validate:"gt=0,lt=1"`
	OnlineLearning   bool          `default:"true"`
	EstimateLookback time.Duration `default:"2160h"`
	EstimateCacheTTL time.Duration `default:"5m"`
	UseSQLEstimator  bool          `default:"true"`

	Gate      gate.Config
	Stability stability.Config

	MaxRestarts  int           `default:"100" validate:"min=1"`
	RestartDelay time.Duration `default:"30s"`
}

type DBConfig struct {
	Host     string `default:"localhost" validate:"required"`
	Port     string `default:"5432" validate:"required,numeric"`
	User     string `default:"postgres" validate:"required"`
	Password string
	Name     string `default:"ratewatcher" validate:"required"`
	SSLMode  string `default:"disable" validate:"oneof=disable require verify-ca verify-full"`
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Local reports whether the watcher runs on a developer machine.
func (c *Config) Local() bool {
	return c.Environment == "local"
}

// Load initializes configuration from environment variables
func Load() (*Config, error) {
	// Load environment variables from .env file if present
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, relying on actual environment variables")
	}

	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}

	cfg.Environment = getEnvWithDefault("ENVIRONMENT", cfg.Environment)
	cfg.LogLevel = getEnvWithDefault("LOG_LEVEL", cfg.LogLevel)

	cfg.Symbol = strings.ToUpper(getEnvWithDefault("SYMBOL", cfg.Symbol))
	cfg.RateAPIKey = os.Getenv("EXCHANGE_API_KEY")
	cfg.RateAPIURL = getEnvWithDefault("EXCHANGE_API_URL", cfg.RateAPIURL)
	cfg.RangeURL = getEnvWithDefault("EXPECTED_RANGE_URL", cfg.RangeURL)
	cfg.RequestTimeout = getEnvDurationWithDefault("REQUEST_TIMEOUT", cfg.RequestTimeout)

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	chatIDs, err := parseChatIDs(os.Getenv("TELEGRAM_CHAT_IDS"))
	if err != nil {
		return nil, err
	}
	cfg.ChatIDs = chatIDs
	cfg.AdminChatID = int64(getEnvIntWithDefault("TELEGRAM_ADMIN_CHAT_ID", 0))

	cfg.DB.Host = getEnvWithDefault("DB_HOST", cfg.DB.Host)
	cfg.DB.Port = getEnvWithDefault("DB_PORT", cfg.DB.Port)
	cfg.DB.User = getEnvWithDefault("DB_USER", cfg.DB.User)
	cfg.DB.Password = os.Getenv("DB_PASSWORD")
	cfg.DB.Name = getEnvWithDefault("DB_NAME", cfg.DB.Name)
	cfg.DB.SSLMode = getEnvWithDefault("DB_SSLMODE", cfg.DB.SSLMode)

	cfg.Redis.Addr = os.Getenv("REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	cfg.Redis.DB = getEnvIntWithDefault("REDIS_DB", 0)
	cfg.HTTPAddr = getEnvWithDefault("HTTP_ADDR", cfg.HTTPAddr)

	cfg.CheckInterval = getEnvDurationWithDefault("CHECK_INTERVAL", cfg.CheckInterval)
	cfg.MovingAverage = getEnvIntWithDefault("MOVING_AVERAGE_PERIOD", cfg.MovingAverage)
	cfg.ShortPeriod = getEnvIntWithDefault("SHORT_TERM_PERIOD", cfg.ShortPeriod)
	cfg.LongPeriod = getEnvIntWithDefault("LONG_TERM_PERIOD", cfg.LongPeriod)
	cfg.JumpThreshold = getEnvFloatWithDefault("JUMP_THRESHOLD", cfg.JumpThreshold)
	cfg.ATRPeriod = getEnvIntWithDefault("ATR_PERIOD", cfg.ATRPeriod)
	events, err := models.ParseClockTimes(getEnvWithDefault("MARKET_EVENTS", "09:00,15:30"))
	if err != nil {
		return nil, fmt.Errorf("parsing MARKET_EVENTS: %w", err)
	}
	cfg.MarketEvents = events
	cfg.EventWindow = getEnvDurationWithDefault("EVENT_WINDOW", cfg.EventWindow)
	cfg.LearningRate = getEnvFloatWithDefault("LEARNING_RATE", cfg.LearningRate)
	cfg.OnlineLearning = getEnvBoolWithDefault("ONLINE_LEARNING", cfg.OnlineLearning)
	cfg.EstimateLookback = getEnvDurationWithDefault("ESTIMATE_LOOKBACK", cfg.EstimateLookback)
	cfg.EstimateCacheTTL = getEnvDurationWithDefault("ESTIMATE_CACHE_TTL", cfg.EstimateCacheTTL)
	cfg.UseSQLEstimator = getEnvBoolWithDefault("USE_SQL_ESTIMATOR", cfg.UseSQLEstimator)

	cfg.Gate.ProbBase = getEnvFloatWithDefault("GATE_P_BASE", cfg.Gate.ProbBase)
	cfg.Gate.MarginMin = getEnvFloatWithDefault("GATE_MARGIN_MIN", cfg.Gate.MarginMin)
	cfg.Gate.AgreeBase = getEnvIntWithDefault("GATE_AGREE_BASE", cfg.Gate.AgreeBase)
	cfg.Gate.AgreeLowVol = getEnvIntWithDefault("GATE_AGREE_LOW_VOL", cfg.Gate.AgreeLowVol)
	cfg.Gate.ProbLowVol = getEnvFloatWithDefault("GATE_P_LOW_VOL", cfg.Gate.ProbLowVol)
	cfg.Gate.ProbHighVol = getEnvFloatWithDefault("GATE_P_HIGH_VOL", cfg.Gate.ProbHighVol)

	cfg.Stability.Cooldown = getEnvDurationWithDefault("COOLDOWN", cfg.Stability.Cooldown)
	cfg.Stability.DebounceRequired = getEnvIntWithDefault("DEBOUNCE_REQUIRED", cfg.Stability.DebounceRequired)
	cfg.Stability.HysteresisDelta = getEnvFloatWithDefault("HYSTERESIS_P_DELTA", cfg.Stability.HysteresisDelta)

	cfg.MaxRestarts = getEnvIntWithDefault("MAX_RESTARTS", cfg.MaxRestarts)
	cfg.RestartDelay = getEnvDurationWithDefault("RESTART_DELAY", cfg.RestartDelay)

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func parseChatIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chat id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Helper functions for environment variable handling
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatWithDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

// getEnvDurationWithDefault accepts Go durations ("200s") or plain seconds ("200").
func getEnvDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
