package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/callwatch/internal/alerting"
	"github.com/good-yellow-bee/callwatch/internal/api/health"
	"github.com/good-yellow-bee/callwatch/internal/ingest"
	"github.com/good-yellow-bee/callwatch/internal/lock"
	"github.com/good-yellow-bee/callwatch/internal/notifier"
	"github.com/good-yellow-bee/callwatch/internal/storage"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg       *Config
	logger    *zap.Logger
	store     *storage.SQLStorage
	redis     *redis.Client
	registry  *notifier.Registry
	engine    *alerting.Engine
	scheduler *alerting.Scheduler
	ingestor  *ingest.Ingestor
	checkers  []health.Checker
}

// newApp opens and migrates the store and builds the pipeline.
func newApp(ctx context.Context, cfg *Config, logger *zap.Logger) (*app, error) {
	dsn := cfg.Database.Path
	if cfg.Database.Driver == string(storage.DialectPostgres) {
		dsn = cfg.Database.DSN
	}
	store, err := storage.Open(ctx, cfg.Database.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		checkers: []health.Checker{health.NewDBChecker(cfg.Database.Driver, store.DB())},
	}

	var locker lock.Locker = lock.NewLocal()
	if cfg.Redis.Address != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		redisLock := lock.NewRedis(a.redis, cfg.Redis.LockKey, cfg.Redis.LockTTL)
		if err := redisLock.Ping(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		locker = redisLock
		a.checkers = append(a.checkers, health.NewPingChecker("redis", redisLock))
		logger.Info("using redis pass lock", zap.String("address", cfg.Redis.Address), zap.String("key", cfg.Redis.LockKey))
	}

	a.registry = notifier.NewRegistry(
		notifier.NewEmailHandler(notifier.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			UseTLS:   cfg.SMTP.UseTLS,
			Timeout:  cfg.SMTP.Timeout,
		}, logger.Named("email")),
		notifier.NewWebhookHandler(notifier.WebhookOptions{
			Timeout:       cfg.Webhook.Timeout,
			RetryAttempts: cfg.Webhook.RetryAttempts,
			RetryDelay:    cfg.Webhook.RetryDelay,
		}, logger.Named("webhook")),
		notifier.NewChatHandler(nil, cfg.Webhook.Timeout, logger.Named("chat")),
	)

	dispatcher := notifier.NewDispatcher(a.registry, store.AlertHistory(), logger.Named("dispatcher"))
	matcher := alerting.NewMatcher(store.Logs(), logger.Named("matcher"))
	a.engine = alerting.NewEngine(store.Logs(), store.Rules(), store.Actions(), matcher, dispatcher, logger.Named("engine"))
	a.scheduler = alerting.NewScheduler(a.engine, locker, cfg.Scheduler.PollInterval, logger.Named("scheduler"))
	a.ingestor = ingest.New(store.Logs(), logger.Named("ingest"))

	return a, nil
}

// Close releases the store and redis client.
func (a *app) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
