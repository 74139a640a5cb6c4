package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ktwin/mqtt-bridge/internal/bridge"
	"github.com/ktwin/mqtt-bridge/internal/kafka"
	"github.com/ktwin/mqtt-bridge/internal/metrics"
	"github.com/ktwin/mqtt-bridge/internal/model"
	"go.uber.org/zap"
)

// Fetcher is the part of the kafka consumer the ingest worker uses.
type Fetcher interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, m kafka.Message) error
}

// Handler forwards one request through a bridge route.
type Handler interface {
	HandlePost(ctx context.Context, route bridge.Route, req model.InboundRequest) (bridge.Reply, error)
}

// Ingest feeds Kafka records through a bridge route:
//   - fetches records,
//   - publishes each value on the route topic,
//   - commits after the publish result (at-least-once); records of one
//     partition are handled by a single goroutine, so a commit never moves
//     past a record that is still in flight.
type Ingest struct {
	Consumer Fetcher
	Bridge   Handler
	Route    bridge.Route
	Logger   *zap.Logger

	Workers    int           // number of goroutines processing records
	FetchPause time.Duration // back-off after a fetch error
}

func NewIngest(consumer Fetcher, b Handler, route bridge.Route, logger *zap.Logger) *Ingest {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingest{
		Consumer:   consumer,
		Bridge:     b,
		Route:      route,
		Logger:     logger,
		Workers:    8,
		FetchPause: 200 * time.Millisecond,
	}
}

// Run starts the worker and blocks until ctx is cancelled and in-flight records are done.
func (w *Ingest) Run(ctx context.Context) error {
	if w.Consumer == nil || w.Bridge == nil {
		return errors.New("ingest: consumer and bridge are required")
	}
	if w.Workers <= 0 {
		w.Workers = 8
	}
	if w.FetchPause <= 0 {
		w.FetchPause = 200 * time.Millisecond
	}

	// One lane per worker; a partition always maps to the same lane so its
	// records are published and committed in offset order.
	lanes := make([]chan kafka.Message, w.Workers)
	for i := range lanes {
		lanes[i] = make(chan kafka.Message, 2)
	}

	// fetcher
	go func() {
		defer func() {
			for _, l := range lanes {
				close(l)
			}
		}()
		for {
			m, err := w.Consumer.Fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.Logger.Warn("kafka fetch failed", zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(w.FetchPause):
				}
				continue
			}
			select {
			case lanes[laneOf(m.Partition, len(lanes))] <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for _, lane := range lanes {
		wg.Add(1)
		go func(in <-chan kafka.Message) {
			defer wg.Done()
			for m := range in {
				w.processOne(ctx, m)
			}
		}(lane)
	}

	wg.Wait()
	return nil
}

func laneOf(partition, lanes int) int {
	if partition < 0 {
		partition = -partition
	}
	return partition % lanes
}

func (w *Ingest) processOne(ctx context.Context, m kafka.Message) {
	// tombstones carry nothing to publish
	if m.Value == nil {
		metrics.IngestTotal.WithLabelValues("poison").Inc()
		w.Logger.Warn("skipping empty record",
			zap.String("topic", m.Topic),
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
		)
		w.commit(ctx, m)
		return
	}

	_, err := w.Bridge.HandlePost(ctx, w.Route, RequestFromRecord(w.Route, m))
	if err != nil {
		metrics.IngestTotal.WithLabelValues("failed").Inc()
	} else {
		metrics.IngestTotal.WithLabelValues("published").Inc()
	}

	// Always commit: the outcome is already in the journal and metrics.
	w.commit(ctx, m)
}

func (w *Ingest) commit(ctx context.Context, m kafka.Message) {
	if err := w.Consumer.Commit(context.WithoutCancel(ctx), m); err != nil {
		w.Logger.Error("kafka commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
	}
}

// RequestFromRecord presents a Kafka record as a request on route.
func RequestFromRecord(route bridge.Route, m kafka.Message) model.InboundRequest {
	return model.InboundRequest{
		Method:     route.Method,
		Path:       route.Path,
		RequestID:  fmt.Sprintf("%s/%d/%d", m.Topic, m.Partition, m.Offset),
		RemoteAddr: "kafka",
		Message: model.Message{
			Headers: kafka.Headers(m),
			Body:    m.Value,
		},
	}
}
