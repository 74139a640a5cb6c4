package worker

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ktwin/mqtt-bridge/internal/bridge"
	"github.com/ktwin/mqtt-bridge/internal/metrics"
	"github.com/ktwin/mqtt-bridge/internal/model"
	"github.com/ktwin/mqtt-bridge/internal/util"
	"go.uber.org/zap"
)

// Subscriber is the part of the mqtt client the relay uses.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	Unsubscribe(topics ...string) error
}

// Deliverer hands one event to an event sink.
type Deliverer interface {
	Deliver(ctx context.Context, ev model.Event) error
}

// Relay forwards messages from an MQTT topic to event sinks as CloudEvents.
// Messages arriving while the buffer is full are dropped.
type Relay struct {
	Subscriber Subscriber
	Dispatch   Deliverer
	Logger     *zap.Logger

	Topic       string
	QoS         byte
	EventType   string
	EventSource string
	Log         bridge.LogOptions

	Workers int
	Buffer  int

	now func() time.Time
}

func NewRelay(sub Subscriber, d Deliverer, topic, eventType, eventSource string, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		Subscriber:  sub,
		Dispatch:    d,
		Logger:      logger,
		Topic:       topic,
		EventType:   eventType,
		EventSource: eventSource,
		Log:         bridge.LogOptions{Verbosity: bridge.VerbosityMinimal},
		Workers:     4,
		Buffer:      256,
		now:         time.Now,
	}
}

// Run subscribes and blocks until ctx is cancelled and the workers are idle.
func (r *Relay) Run(ctx context.Context) error {
	if r.Subscriber == nil || r.Dispatch == nil {
		return errors.New("relay: subscriber and dispatcher are required")
	}
	if r.Topic == "" {
		return errors.New("relay: topic is required")
	}
	if r.EventType == "" {
		return errors.New("relay: event type is required")
	}
	if r.Workers <= 0 {
		r.Workers = 4
	}
	if r.Buffer <= 0 {
		r.Buffer = 256
	}
	if r.now == nil {
		r.now = time.Now
	}

	in := make(chan model.Event, r.Buffer)

	err := r.Subscriber.Subscribe(r.Topic, r.QoS, func(topic string, payload []byte) {
		ev := r.newEvent(topic, payload)
		select {
		case in <- ev:
		default:
			metrics.RelayTotal.WithLabelValues("dropped").Inc()
			r.Logger.Warn("relay buffer full, dropping message",
				zap.String("event_id", ev.ID),
				zap.String("topic", topic),
			)
		}
	})
	if err != nil {
		return err
	}
	r.Logger.Info("relay subscribed",
		zap.String("topic", r.Topic),
		zap.String("event_type", r.EventType),
		zap.Int("workers", r.Workers),
	)

	var wg sync.WaitGroup
	for i := 0; i < r.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case ev := <-in:
					r.deliver(ctx, ev)
				}
			}
		}()
	}

	<-ctx.Done()
	if err := r.Subscriber.Unsubscribe(r.Topic); err != nil {
		r.Logger.Warn("relay unsubscribe failed", zap.Error(err))
	}
	wg.Wait()
	return nil
}

func (r *Relay) newEvent(topic string, payload []byte) model.Event {
	return model.Event{
		ID:         util.NewID(),
		Type:       r.EventType,
		Source:     r.EventSource,
		Topic:      topic,
		Payload:    bytes.Clone(payload),
		ReceivedAt: r.now().UTC(),
	}
}

func (r *Relay) deliver(ctx context.Context, ev model.Event) {
	r.logEvent(ev)

	if err := r.Dispatch.Deliver(ctx, ev); err != nil {
		metrics.RelayTotal.WithLabelValues("failed").Inc()
		r.Logger.Warn("relay delivery failed",
			zap.String("event_id", ev.ID),
			zap.String("topic", ev.Topic),
			zap.Error(err),
		)
		return
	}
	metrics.RelayTotal.WithLabelValues("delivered").Inc()
}

func (r *Relay) logEvent(ev model.Event) {
	switch r.Log.Verbosity {
	case bridge.VerbosityOff:
	case bridge.VerbosityFull:
		if r.Log.Multiline {
			r.Logger.Info("event", zap.String("event_id", ev.ID), zap.String("event", bridge.FormatEvent(ev)))
			return
		}
		r.Logger.Info("event",
			zap.String("event_id", ev.ID),
			zap.String("type", ev.Type),
			zap.String("source", ev.Source),
			zap.String("topic", ev.Topic),
			zap.ByteString("payload", ev.Payload),
		)
	default:
		r.Logger.Info("event",
			zap.String("event_id", ev.ID),
			zap.String("topic", ev.Topic),
			zap.Int("payload_size", len(ev.Payload)),
		)
	}
}
