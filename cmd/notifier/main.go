package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/MrJamesThe3rd/medtrain/internal/config"
	"github.com/MrJamesThe3rd/medtrain/internal/notification"
)

// The notifier drains the notification queue. Delivery itself is the log
// sender until an email provider is wired in.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if cfg.AMQP.URL == "" {
		slog.Error("AMQP_URL is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumer, err := notification.NewConsumer(cfg.AMQP.URL, cfg.AMQP.Exchange, cfg.AMQP.Queue, 0)
	if err != nil {
		slog.Error("failed to connect to message broker", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	deliveries, err := consumer.Deliveries(ctx)
	if err != nil {
		slog.Error("failed to start consuming", "queue", cfg.AMQP.Queue, "error", err)
		os.Exit(1)
	}

	worker := notification.NewWorker(notification.NewLogSender(nil), notification.DefaultRetry())

	slog.Info("notifier started", "exchange", cfg.AMQP.Exchange, "queue", cfg.AMQP.Queue)

	if err := worker.Run(ctx, deliveries); err != nil {
		slog.Error("worker stopped", "error", err)
		os.Exit(1)
	}

	slog.Info("notifier stopped")
}
