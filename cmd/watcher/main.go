package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/RateWatcher/internal/api/einfomax"
	"github.com/Alias1177/RateWatcher/internal/api/exchangerate"
	"github.com/Alias1177/RateWatcher/internal/cache"
	"github.com/Alias1177/RateWatcher/internal/classifier"
	"github.com/Alias1177/RateWatcher/internal/config"
	"github.com/Alias1177/RateWatcher/internal/database"
	"github.com/Alias1177/RateWatcher/internal/engine"
	"github.com/Alias1177/RateWatcher/internal/metrics"
	"github.com/Alias1177/RateWatcher/internal/notifier/telegram"
	"github.com/Alias1177/RateWatcher/internal/outcome"
	"github.com/Alias1177/RateWatcher/internal/probability"
	"github.com/Alias1177/RateWatcher/internal/server"
	"github.com/Alias1177/RateWatcher/internal/watcher"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger()
	log.Logger = logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("Watcher exited")
	}
	logger.Info().Msg("Shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	db, err := connectDB(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return fmt.Errorf("initializing Telegram bot: %w", err)
	}
	logger.Info().Str("username", bot.Self.UserName).Msg("Authorized on Telegram")

	notifier := telegram.NewNotifier(bot, telegram.Options{
		ChatIDs:     cfg.ChatIDs,
		AdminChatID: cfg.AdminChatID,
		Local:       cfg.Local(),
		SendDelay:   50 * time.Millisecond,
		Logger:      logger,
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.New(reg)

	estimator, closeCache := newEstimator(ctx, cfg, db, recorder, logger)
	defer closeCache()

	clf := classifier.New(classifier.WithLearningRate(cfg.LearningRate))
	eng := engine.New(cfg.Symbol,
		engine.WithPredictor(clf),
		engine.WithGateConfig(cfg.Gate),
		engine.WithStabilityConfig(cfg.Stability),
		engine.WithMetrics(recorder),
		engine.WithLogger(logger),
		engine.WithRetention(outcome.Horizon+cfg.CheckInterval),
	)

	deps := watcher.Deps{
		Rates: exchangerate.NewClient(exchangerate.ClientOptions{
			APIKey:         cfg.RateAPIKey,
			BaseURL:        cfg.RateAPIURL,
			Symbol:         cfg.Symbol,
			RequestTimeout: cfg.RequestTimeout,
		}),
		Ranges:    einfomax.NewScraper(cfg.RangeURL, cfg.RequestTimeout),
		Store:     db,
		Tracker:   outcome.NewTracker(db, logger),
		Estimator: estimator,
		Engine:    eng,
		Notifier:  notifier,
		Metrics:   recorder,
		Logger:    logger,
	}
	wcfg := watcher.Config{
		Instrument:     cfg.Symbol,
		Interval:       cfg.CheckInterval,
		MovingAverage:  cfg.MovingAverage,
		ShortPeriod:    cfg.ShortPeriod,
		LongPeriod:     cfg.LongPeriod,
		JumpThreshold:  cfg.JumpThreshold,
		JumpCooldown:   cfg.Stability.Cooldown,
		ATRPeriod:      cfg.ATRPeriod,
		MarketEvents:   cfg.MarketEvents,
		EventWindow:    cfg.EventWindow,
		OnlineLearning: cfg.OnlineLearning,
		Local:          cfg.Local(),
	}

	var current atomic.Pointer[watcher.Watcher]
	srv := server.New(server.Config{
		Addr:     cfg.HTTPAddr,
		DB:       db,
		Gatherer: reg,
		State: func() any {
			st := struct {
				Engine  engine.State       `json:"engine"`
				Weights classifier.Weights `json:"weights"`
				Watcher *watcher.Status    `json:"watcher,omitempty"`
			}{Engine: eng.State(), Weights: clf.Snapshot()}
			if w := current.Load(); w != nil {
				status := w.Status()
				st.Watcher = &status
			}
			return st
		},
		Logger: logger,
	})
	srv.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("HTTP shutdown failed")
		}
	}()

	attempt := 0
	restart := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(cfg.RestartDelay), uint64(cfg.MaxRestarts)),
		ctx,
	)
	return backoff.Retry(func() (err error) {
		attempt++
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("watcher panic: %v", r)
			}
			if err != nil && ctx.Err() == nil {
				recorder.RecordError("restart")
				logger.Error().Err(err).Int("attempt", attempt).Msg("Watcher crashed, restarting")
				_ = notifier.Admin(ctx, fmt.Sprintf("❌ Watcher crashed (attempt %d): %v", attempt, err))
			}
		}()

		_ = notifier.Admin(ctx, fmt.Sprintf("RateWatcher started (attempt %d)", attempt))
		w := watcher.New(wcfg, deps)
		current.Store(w)

		if err := w.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		return nil
	}, restart)
}

func connectDB(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*database.DB, error) {
	params := database.ConnectionParams{
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		User:     cfg.DB.User,
		Password: cfg.DB.Password,
		DBName:   cfg.DB.Name,
		SSLMode:  cfg.DB.SSLMode,
	}

	var db *database.DB
	connect := func() error {
		var err error
		db, err = database.New(ctx, params)
		if err != nil {
			logger.Warn().Err(err).Msg("Database not ready, retrying")
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(connect, backoff.WithContext(policy, ctx)); err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return db, nil
}

// newEstimator builds the reversion estimator with a Redis cache when
// REDIS_ADDR is set and an in-process cache otherwise.
func newEstimator(ctx context.Context, cfg *config.Config, db *database.DB, recorder *metrics.Recorder, logger zerolog.Logger) (probability.Estimator, func()) {
	var base probability.Estimator
	if cfg.UseSQLEstimator {
		base = probability.NewSQLEstimator(db, cfg.EstimateLookback)
	} else {
		base = probability.NewSeriesEstimator(db, cfg.EstimateLookback)
	}
	base = timedEstimator{next: base, recorder: recorder}

	if cfg.Redis.Addr == "" {
		return probability.NewCachedEstimator(base, cache.NewTTLCache(), cfg.EstimateCacheTTL, logger), func() {}
	}

	rc := cache.NewRedisCache(cache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   "ratewatcher:" + cfg.Symbol + ":",
	})
	if err := rc.Ping(ctx); err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable, using in-process cache")
		_ = rc.Close()
		return probability.NewCachedEstimator(base, cache.NewTTLCache(), cfg.EstimateCacheTTL, logger), func() {}
	}
	return probability.NewCachedEstimator(base, rc, cfg.EstimateCacheTTL, logger), func() { _ = rc.Close() }
}

type timedEstimator struct {
	next     probability.Estimator
	recorder *metrics.Recorder
}

func (t timedEstimator) Estimate(ctx context.Context, q probability.Query) (probability.Result, error) {
	defer t.recorder.RecordLatency("estimate", time.Now())
	res, err := t.next.Estimate(ctx, q)
	if err != nil {
		t.recorder.RecordError("estimate")
	}
	return res, err
}
