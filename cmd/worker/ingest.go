package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ktwin/mqtt-bridge/internal/bridge"
	"github.com/ktwin/mqtt-bridge/internal/db"
	"github.com/ktwin/mqtt-bridge/internal/kafka"
	"github.com/ktwin/mqtt-bridge/internal/logger"
	"github.com/ktwin/mqtt-bridge/internal/metrics"
	"github.com/ktwin/mqtt-bridge/internal/mqtt"
	"github.com/ktwin/mqtt-bridge/internal/repository"
	"github.com/ktwin/mqtt-bridge/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Feed Kafka records through a bridge route",
	RunE:  runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	// 1) load config
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logger.Log
	defer func() { _ = log.Sync() }()

	if len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.Topic == "" {
		return fmt.Errorf("kafka.brokers and kafka.topic are required")
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)

	// 2) route
	table, err := bridge.RoutesFromConfig(cfg.Bridge)
	if err != nil {
		return fmt.Errorf("route table: %w", err)
	}
	route, ok := table.ByName(cfg.Kafka.Route)
	if !ok {
		return fmt.Errorf("kafka.route: unknown route %q", cfg.Kafka.Route)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3) broker
	client, err := mqtt.Dial(ctx, cfg.MQTT, log.Named("mqtt"))
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	defer client.Disconnect()

	opts := []bridge.Option{
		bridge.WithLogger(log.Named("bridge")),
		bridge.WithBroker(client.Broker()),
		bridge.WithPublishTimeout(cfg.Bridge.PublishTimeout),
	}

	// 4) optional journal
	if cfg.MySQL.Enabled() {
		dbx, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer dbx.Close()
		opts = append(opts, bridge.WithJournal(repository.NewExchangesRepository(dbx)))
	}

	// 5) kafka consumer
	consumer := kafka.NewConsumer(cfg.Kafka)
	defer consumer.Close()

	w := worker.NewIngest(consumer, bridge.New(client, opts...), route, log.Named("ingest"))
	if cfg.Kafka.Workers > 0 {
		w.Workers = cfg.Kafka.Workers
	}

	log.Info("ingest started",
		zap.String("topic", cfg.Kafka.Topic),
		zap.String("group", cfg.Kafka.GroupID),
		zap.String("route", route.Name),
		zap.Int("workers", w.Workers),
	)

	return w.Run(ctx)
}
