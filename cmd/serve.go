package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ktwin/mqtt-bridge/internal/bridge"
	"github.com/ktwin/mqtt-bridge/internal/db"
	httpSrv "github.com/ktwin/mqtt-bridge/internal/http"
	"github.com/ktwin/mqtt-bridge/internal/logger"
	"github.com/ktwin/mqtt-bridge/internal/metrics"
	"github.com/ktwin/mqtt-bridge/internal/mqtt"
	"github.com/ktwin/mqtt-bridge/internal/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP bridge",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := logger.Log
		defer func() { _ = log.Sync() }()

		routes, err := bridge.RoutesFromConfig(cfg.Bridge)
		if err != nil {
			return fmt.Errorf("route table: %w", err)
		}

		metrics.MustRegister(prometheus.DefaultRegisterer)

		client, err := mqtt.Dial(cmd.Context(), cfg.MQTT, log.Named("mqtt"))
		if err != nil {
			return fmt.Errorf("mqtt connect: %w", err)
		}
		defer client.Disconnect()

		opts := []bridge.Option{
			bridge.WithLogger(log.Named("bridge")),
			bridge.WithBroker(client.Broker()),
			bridge.WithPublishTimeout(cfg.Bridge.PublishTimeout),
		}
		deps := httpSrv.Deps{
			Routes: routes,
			Broker: client,
			Logger: log.Named("http"),
		}

		// journal (MySQL writes, ClickHouse reads) and rate limiting are optional
		if cfg.MySQL.Enabled() {
			mysqlDB, err := db.NewMySQLConnection(cfg.MySQL)
			if err != nil {
				return fmt.Errorf("mysql connect: %w", err)
			}
			defer mysqlDB.Close()
			opts = append(opts, bridge.WithJournal(repository.NewExchangesRepository(mysqlDB)))
		}
		if cfg.ClickHouse.Enabled() {
			chDB, err := db.NewClickHouseConnection(cfg.ClickHouse)
			if err != nil {
				return fmt.Errorf("clickhouse connect: %w", err)
			}
			defer func() { _ = chDB.Close() }()
			deps.Exchanges = repository.NewCHExchangesRepository(chDB)
		}
		if cfg.Redis.Enabled() {
			redisClient, err := db.NewRedisClient(cfg.Redis)
			if err != nil {
				return fmt.Errorf("redis connect: %w", err)
			}
			defer func() { _ = redisClient.Close() }()
			deps.Redis = redisClient
		}

		deps.Bridge = bridge.New(client, opts...)
		server := httpSrv.NewServer(cfg, deps)

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start(cfg.HTTP.Addr)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			log.Info("signal received, shutting down", zap.String("signal", sig.String()))
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server exited", zap.Error(err))
			}
		}

		timeout := cfg.HTTP.ShutdownTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_ = server.Shutdown(ctx)

		return nil
	},
}
