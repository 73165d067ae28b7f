package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/suPer8Hu/outreach-agent/internal/app"
	"github.com/suPer8Hu/outreach-agent/internal/config"
	"github.com/suPer8Hu/outreach-agent/internal/jobs"
	"github.com/suPer8Hu/outreach-agent/internal/logging"
	"github.com/suPer8Hu/outreach-agent/internal/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	proc := jobs.NewProcessor(a.Jobs, a.Controller, a.Dispatcher, log)
	consumer := queue.NewConsumer(cfg.RabbitURL, cfg.RabbitQueue, cfg.WorkerConcurrency, log)

	if err := consumer.Run(ctx, proc.Process); err != nil {
		log.Error("worker stopped", "err", err)
		os.Exit(1)
	}
}
