package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/ktwin/mqtt-bridge/internal/model"
)

type ErrorKind int

const (
	KindPublishFailed ErrorKind = iota + 1
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindPublishFailed:
		return "publish_failed"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

var (
	// ErrPublishFailed matches any *Error whose broker was unreachable or rejected the message.
	ErrPublishFailed = errors.New("publish failed")
	// ErrTimeout matches any *Error where no acknowledgment arrived in time.
	ErrTimeout = errors.New("publish timed out")
)

// Error is returned by HandlePost when the publish step does not succeed.
// Both kinds are terminal for the request.
type Error struct {
	Kind  ErrorKind
	Route string
	Topic string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: route=%s topic=%s: %v", e.sentinel(), e.Route, e.Topic, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == e.sentinel() }

func (e *Error) sentinel() error {
	if e.Kind == KindTimeout {
		return ErrTimeout
	}
	return ErrPublishFailed
}

func (e *Error) status() model.ExchangeStatus {
	if e.Kind == KindTimeout {
		return model.StatusTimeout
	}
	return model.StatusFailed
}

// timeout is satisfied by net.Error and the mqtt transport's ack timeout.
type timeout interface {
	Timeout() bool
}

func classify(route Route, err error) *Error {
	var be *Error
	if errors.As(err, &be) {
		return be
	}

	kind := KindPublishFailed
	var te timeout
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &te) && te.Timeout()) {
		kind = KindTimeout
	}

	return &Error{Kind: kind, Route: route.Name, Topic: route.Topic, Err: err}
}
