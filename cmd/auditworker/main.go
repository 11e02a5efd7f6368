// The auditworker process drains the audit outbox into Kafka. It runs beside
// the server so audit publication never blocks request handling.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/twmb/franz-go/pkg/kgo"

	"caregate/internal/platform/config"
	"caregate/internal/platform/logger"
	auditpg "caregate/pkg/platform/audit/store/postgres"
	"caregate/pkg/platform/audit/worker"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("audit worker exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.DSN == "" {
		return errors.New("POSTGRES_DSN is required: the outbox lives in PostgreSQL")
	}
	if len(cfg.Kafka.Brokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}

	db, err := sql.Open("pgx", cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return err
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Kafka.Brokers...),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := worker.EnsureTopic(ctx, client, 3, 1); err != nil {
		return err
	}

	w, err := worker.New(auditpg.New(db), client, worker.WithLogger(log))
	if err != nil {
		return err
	}

	log.Info("audit worker started", "brokers", cfg.Kafka.Brokers)
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("audit worker stopped")
	return nil
}
