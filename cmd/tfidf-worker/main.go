package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/job"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(2)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting tf-idf worker",
		"topic", cfg.Kafka.Topics.JobRequests,
		"group", cfg.Kafka.ConsumerGroup,
		"reducers", cfg.Pipeline.NumReducers,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checker := health.NewChecker()
	checker.Register("kafka", kafka.BrokerProbe(cfg.Kafka), true)
	if cfg.Export.Redis {
		if client, err := redis.NewClient(cfg.Redis); err != nil {
			slog.Warn("redis unavailable at startup", "error", err)
		} else {
			defer client.Close()
			checker.Register("redis", health.PingProbe(client), false)
		}
	}
	if cfg.Export.Postgres {
		if client, err := postgres.New(cfg.Postgres); err != nil {
			slog.Warn("postgres unavailable at startup", "error", err)
		} else {
			defer client.Close()
			checker.Register("postgres", health.PingProbe(client), false)
		}
	}

	m := metrics.New()
	served := make(chan struct{})
	go func() {
		defer close(served)
		if err := m.Serve(ctx, cfg.Worker.HealthPort, checker.Routes); err != nil {
			slog.Error("health server failed", "error", err)
		}
	}()

	completions := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.JobComplete)
	defer completions.Close()

	runner := job.NewRunner(cfg, nil, m)
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.JobRequests, job.Handler(runner, completions))
	defer consumer.Close()

	if err := consumer.Start(ctx); err != nil {
		slog.Error("consumer stopped", "error", err)
	}

	stop()
	<-served
	slog.Info("tf-idf worker stopped")
}
