package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"darna/pkg/config"
	"darna/pkg/kafka"
	kafka_config "darna/pkg/kafka/config"
	kafka_middleware "darna/pkg/kafka/middleware"
	"darna/pkg/realtime/mongofeed"
)

const (
	ServiceName   = "darna-relay"
	statsInterval = time.Minute
)

// The relay tails the Mongo change streams once and writes every change to
// the change topic, so server instances can consume from Kafka instead of
// each holding its own change streams.
func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kafkaCfg.LogConfiguration(cfg.Log)

	producer, err := kafka.NewProducer(kafkaCfg, cfg.ChangeTopic, cfg.ChangeDLQTopic, ServiceName, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create change producer", "error", err)
	}
	defer func() {
		if err := producer.Close(); err != nil {
			cfg.Log.Error("Failed to close change producer", "error", err)
		}
	}()

	metrics := &kafka_middleware.Metrics{}
	producer.Use(metrics.Producer())
	if kafkaCfg.EnableLogging {
		producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go metrics.Report(ctx, statsInterval, cfg.Log)

	watcher := mongofeed.NewWatcher(
		cfg.Client.Mongo.Database(cfg.MongoDatabaseName),
		producer,
		mongofeed.DefaultDecoders(),
		cfg.Log,
	)

	cfg.Log.Info("Relaying Mongo changes", "topic", cfg.ChangeTopic)
	if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		cfg.Log.Error("Change relay stopped", "error", err)
		return
	}
	cfg.Log.Info("Change relay stopped gracefully")
}
