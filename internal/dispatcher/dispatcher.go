package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/ktwin/mqtt-bridge/internal/model"
)

var (
	ErrNoHealthy = errors.New("no healthy sinks")
	ErrNoAcquire = errors.New("sink not acquired")
)

// Dispatcher spreads events round-robin over the sinks whose breaker is ready.
type Dispatcher struct {
	sinks             []Sink
	roundRobinCounter atomic.Uint64
	maxAttempts       int
}

func NewDispatcher(sinks []Sink, maxAttempts int) *Dispatcher {
	if maxAttempts < 1 {
		maxAttempts = 3
	}

	return &Dispatcher{sinks: sinks, maxAttempts: maxAttempts}
}

func (d *Dispatcher) selectSink() (Sink, error) {
	healthy := make([]Sink, 0, len(d.sinks))
	for _, s := range d.sinks {
		if s.Ready() {
			healthy = append(healthy, s)
		}
	}

	if len(healthy) == 0 {
		return nil, ErrNoHealthy
	}

	x := d.roundRobinCounter.Add(1)
	idx := int((x - 1) % uint64(len(healthy)))

	return healthy[idx], nil
}

func (d *Dispatcher) tryOnce(ctx context.Context, ev model.Event) error {
	s, err := d.selectSink()
	if err != nil {
		return err
	}

	if !s.Acquire() {
		return ErrNoAcquire
	}

	return s.Deliver(ctx, ev)
}

// Deliver makes up to maxAttempts attempts and returns the last error.
func (d *Dispatcher) Deliver(ctx context.Context, ev model.Event) error {
	var last error
	for i := 0; i < d.maxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := d.tryOnce(ctx, ev)
		if err == nil {
			return nil
		}
		last = err
	}

	return fmt.Errorf("deliver event %s after %d attempts: %w", ev.ID, d.maxAttempts, last)
}
