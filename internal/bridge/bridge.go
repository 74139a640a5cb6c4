package bridge

import (
	"context"
	"time"

	"github.com/ktwin/mqtt-bridge/internal/metrics"
	"github.com/ktwin/mqtt-bridge/internal/model"
	"github.com/ktwin/mqtt-bridge/internal/util"
	"go.uber.org/zap"
)

const defaultPublishTimeout = 5 * time.Second

// Publisher sends one message and returns once the broker acknowledged it.
// Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, msg model.OutboundMessage) error
}

// Journal records the outcome of every exchange.
type Journal interface {
	Record(ctx context.Context, ex model.Exchange) error
}

// Reply is what the trigger hands back to its caller after a successful publish.
type Reply struct {
	Ack  model.Ack
	Body []byte
}

// Bridge forwards inbound requests to the broker. It holds no per-request state.
type Bridge struct {
	publisher Publisher
	journal   Journal
	logger    *zap.Logger
	broker    string
	timeout   time.Duration
	now       func() time.Time
}

type Option func(*Bridge)

func WithJournal(j Journal) Option { return func(b *Bridge) { b.journal = j } }

func WithLogger(l *zap.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithBroker sets the broker URI stamped on outbound messages and journal rows.
func WithBroker(uri string) Option {
	return func(b *Bridge) {
		if uri != "" {
			b.broker = uri
		}
	}
}

func WithPublishTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.timeout = d
		}
	}
}

func New(p Publisher, opts ...Option) *Bridge {
	b := &Bridge{
		publisher: p,
		logger:    zap.NewNop(),
		broker:    DefaultBrokerURL,
		timeout:   defaultPublishTimeout,
		now:       time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// HandlePost logs req according to the route, publishes a copy of its body to
// the route topic and waits for the acknowledgment. Exactly one publish attempt
// is made. On success the reply body is empty when the route clears it,
// otherwise it is the request body.
func (b *Bridge) HandlePost(ctx context.Context, route Route, req model.InboundRequest) (Reply, error) {
	id := util.NewID()
	b.logRequest(id, route, req)

	out := model.NewOutboundMessage(route.Topic, b.broker, route.QoS, route.Retained, req.Body)

	pubCtx, cancel := context.WithTimeout(ctx, b.timeout)
	start := b.now()
	err := b.publisher.Publish(pubCtx, out)
	latency := b.now().Sub(start)
	cancel()

	metrics.PublishDuration.WithLabelValues(route.Name).Observe(latency.Seconds())

	ex := model.Exchange{
		ID:          id,
		Route:       route.Name,
		Method:      req.Method,
		Path:        req.Path,
		Topic:       out.Topic,
		Broker:      out.Broker,
		PayloadSize: len(out.Payload),
		Status:      model.StatusPublished,
		LatencyMs:   latency.Milliseconds(),
		CreatedAt:   start.UTC(),
	}

	if err != nil {
		berr := classify(route, err)
		ex.Status = berr.status()
		ex.Error = err.Error()

		metrics.ExchangesTotal.WithLabelValues(route.Name, ex.Status.String()).Inc()
		b.logger.Warn("publish failed",
			zap.String("exchange_id", id),
			zap.String("route", route.Name),
			zap.String("topic", out.Topic),
			zap.String("kind", berr.Kind.String()),
			zap.Duration("latency", latency),
			zap.Error(err),
		)
		b.record(ctx, ex)

		return Reply{}, berr
	}

	metrics.ExchangesTotal.WithLabelValues(route.Name, ex.Status.String()).Inc()
	b.logger.Debug("published",
		zap.String("exchange_id", id),
		zap.String("topic", out.Topic),
		zap.Int("size", len(out.Payload)),
		zap.Duration("latency", latency),
	)
	b.record(ctx, ex)

	msg := req.Message
	if route.ClearBody {
		msg = ClearBody(msg)
	}

	return Reply{
		Ack: model.Ack{
			ID:          id,
			Topic:       out.Topic,
			PayloadSize: len(out.Payload),
			Latency:     latency,
		},
		Body: msg.Body,
	}, nil
}

func (b *Bridge) record(ctx context.Context, ex model.Exchange) {
	if b.journal == nil {
		return
	}
	// the exchange already happened, a cancelled caller must not lose the row
	if err := b.journal.Record(context.WithoutCancel(ctx), ex); err != nil {
		b.logger.Error("journal record failed", zap.String("exchange_id", ex.ID), zap.Error(err))
	}
}
