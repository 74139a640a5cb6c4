package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ktwin/mqtt-bridge/internal/bridge"
	"github.com/ktwin/mqtt-bridge/internal/config"
	"github.com/ktwin/mqtt-bridge/internal/dispatcher"
	"github.com/ktwin/mqtt-bridge/internal/logger"
	"github.com/ktwin/mqtt-bridge/internal/metrics"
	"github.com/ktwin/mqtt-bridge/internal/mqtt"
	"github.com/ktwin/mqtt-bridge/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRelayCmd() *cobra.Command {
	var twin string
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Forward MQTT messages to event sinks as CloudEvents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelay(cmd, twin)
		},
	}
	cmd.Flags().StringVar(&twin, "twin", "", "twin instance name; derives <name>-to-virtual and ktwin.real.<name>.generated")
	return cmd
}

// relaySettings resolves topic and event type, letting --twin override the config.
func relaySettings(rc config.RelayConfig, twin string) (topic, eventType string, err error) {
	topic, eventType = rc.Topic, rc.EventType
	if twin = strings.TrimSpace(twin); twin != "" {
		ti, err := bridge.TwinRoutes(twin)
		if err != nil {
			return "", "", err
		}
		topic, eventType = ti.RelayTopic, ti.EventType
	}
	if topic == "" || eventType == "" {
		return "", "", fmt.Errorf("relay.topic and relay.event_type are required (or pass --twin)")
	}
	return topic, eventType, nil
}

func buildSinks(cfgs []config.SinkConfig) []dispatcher.Sink {
	var sinks []dispatcher.Sink
	for _, sc := range cfgs {
		if !sc.Enabled || strings.TrimSpace(sc.URL) == "" {
			continue
		}
		sinks = append(sinks, dispatcher.NewHTTPSink(
			sc.Name,
			sc.URL,
			sc.TimeoutMs,
			sc.Breaker.FailThreshold,
			sc.Breaker.OpenForMs,
		))
	}
	return sinks
}

func runRelay(cmd *cobra.Command, twin string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logger.Log
	defer func() { _ = log.Sync() }()

	topic, eventType, err := relaySettings(cfg.Relay, twin)
	if err != nil {
		return err
	}
	verbosity, ok := bridge.ParseVerbosity(cfg.Relay.Log.Verbosity)
	if !ok {
		return fmt.Errorf("relay.log.verbosity: unknown value %q", cfg.Relay.Log.Verbosity)
	}

	sinks := buildSinks(cfg.Relay.Sinks)
	if len(sinks) == 0 {
		return fmt.Errorf("no sinks enabled in config")
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := mqtt.Dial(ctx, cfg.MQTT, log.Named("mqtt"))
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	defer client.Disconnect()

	r := worker.NewRelay(
		client,
		dispatcher.NewDispatcher(sinks, cfg.Relay.MaxAttempts),
		topic,
		eventType,
		cfg.Relay.EventSource,
		log.Named("relay"),
	)
	r.QoS = byte(cfg.Relay.QoS)
	r.Log = bridge.LogOptions{Verbosity: verbosity, Multiline: cfg.Relay.Log.Multiline}
	if cfg.Relay.Workers > 0 {
		r.Workers = cfg.Relay.Workers
	}
	if cfg.Relay.Buffer > 0 {
		r.Buffer = cfg.Relay.Buffer
	}

	log.Info("relay starting",
		zap.String("topic", topic),
		zap.String("event_type", eventType),
		zap.Int("sinks", len(sinks)),
	)

	return r.Run(ctx)
}
