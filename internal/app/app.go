// Package app wires the configured components shared by the binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/suPer8Hu/outreach-agent/internal/ai"
	"github.com/suPer8Hu/outreach-agent/internal/classifier"
	"github.com/suPer8Hu/outreach-agent/internal/config"
	"github.com/suPer8Hu/outreach-agent/internal/db"
	"github.com/suPer8Hu/outreach-agent/internal/jobs"
	"github.com/suPer8Hu/outreach-agent/internal/lock"
	"github.com/suPer8Hu/outreach-agent/internal/memory"
	"github.com/suPer8Hu/outreach-agent/internal/outbound"
	"github.com/suPer8Hu/outreach-agent/internal/reply"
	"gorm.io/gorm"
)

type App struct {
	Cfg        config.Config
	Log        *slog.Logger
	DB         *gorm.DB
	Store      *memory.Store
	Jobs       *jobs.Repo
	Providers  *ai.Registry
	Provider   ai.Provider
	Controller *reply.Controller
	Dispatcher outbound.Dispatcher

	redis *redis.Client
}

// New opens the database, runs migrations and builds the reply controller
// with the configured provider and lock backend.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(gdb, &jobs.Job{}); err != nil {
		return nil, err
	}

	a := &App{
		Cfg:   cfg,
		Log:   log,
		DB:    gdb,
		Store: memory.NewStore(gdb),
		Jobs:  jobs.NewRepo(gdb),
	}

	a.Providers = ai.NewDefaultRegistry(ai.Settings{
		OllamaBaseURL:     cfg.OllamaBaseURL,
		OllamaModel:       cfg.OllamaModel,
		OpenRouterBaseURL: cfg.OpenRouterBaseURL,
		OpenRouterAPIKey:  cfg.OpenRouterAPIKey,
		OpenRouterModel:   cfg.OpenRouterModel,
		OpenRouterSiteURL: cfg.OpenRouterSiteURL,
		OpenRouterAppName: cfg.OpenRouterAppName,
		OpenAIBaseURL:     cfg.OpenAIBaseURL,
		OpenAIAPIKey:      cfg.OpenAIAPIKey,
		OpenAIModel:       cfg.OpenAIModel,
		// deterministic decisions
		Sampling: ai.Sampling{Temperature: ai.Temperature(0)},
	})
	a.Provider, err = a.Providers.Get(ctx, cfg.AIProvider, "")
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	locker, err := a.locker(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	cls := classifier.NewLLM(a.Provider, cfg.ClassifierTimeout, log)
	a.Controller = reply.NewController(a.Store, cls, locker, cfg.ClassifierTimeout, log)
	a.Dispatcher = outbound.New(outbound.SMTPConfig{
		Host: cfg.SMTPHost,
		Port: cfg.SMTPPort,
		User: cfg.SMTPUser,
		Pass: cfg.SMTPPass,
		From: cfg.SMTPFrom,
	}, log)

	log.Info("app ready",
		"db", redactDSN(cfg.DBDSN),
		"ai_provider", cfg.AIProvider,
		"lock_backend", cfg.LockBackend,
		"outbound", a.Dispatcher.Channel(),
	)
	return a, nil
}

func (a *App) locker(ctx context.Context) (lock.Locker, error) {
	switch strings.ToLower(a.Cfg.LockBackend) {
	case "", "local":
		return lock.NewLocal(), nil
	case "redis":
		a.redis = redis.NewClient(&redis.Options{
			Addr:     a.Cfg.RedisAddr,
			Password: a.Cfg.RedisPassword,
			DB:       a.Cfg.RedisDB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping %s: %w", a.Cfg.RedisAddr, err)
		}
		return lock.NewRedis(a.redis, a.Cfg.LockTTL, a.Log), nil
	default:
		return nil, fmt.Errorf("unsupported LOCK_BACKEND=%q", a.Cfg.LockBackend)
	}
}

func (a *App) Close() error {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			return sqlDB.Close()
		}
	}
	return nil
}

// redactDSN hides the password part of a mysql DSN.
func redactDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	if at < 0 {
		return dsn
	}
	cred := dsn[:at]
	if i := strings.Index(cred, ":"); i >= 0 {
		return cred[:i] + ":***" + dsn[at:]
	}
	return dsn
}
