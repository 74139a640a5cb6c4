package dispatcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ktwin/mqtt-bridge/internal/model"
)

// CloudEvents binary content mode headers.
const (
	HeaderSpecVersion = "Ce-Specversion"
	HeaderID          = "Ce-Id"
	HeaderType        = "Ce-Type"
	HeaderSource      = "Ce-Source"
	HeaderSubject     = "Ce-Subject"
	HeaderTime        = "Ce-Time"

	specVersion = "1.0"
)

// Sink is an event destination guarded by a circuit breaker.
type Sink interface {
	Name() string
	Ready() bool
	Acquire() bool
	Deliver(ctx context.Context, ev model.Event) error
}

// HTTPSink posts events in CloudEvents binary mode, the way a broker ingress expects them.
type HTTPSink struct {
	name   string
	url    string
	client *http.Client
	br     *Breaker
}

func NewHTTPSink(name, url string, timeoutMs, failThreshold, openForMs int) *HTTPSink {
	if timeoutMs <= 0 {
		timeoutMs = 3000
	}

	return &HTTPSink{
		name:   name,
		url:    url,
		client: &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
		br:     NewBreaker(failThreshold, time.Duration(openForMs)*time.Millisecond),
	}
}

func (s *HTTPSink) Name() string  { return s.name }
func (s *HTTPSink) Ready() bool   { return s.br.Ready() }
func (s *HTTPSink) Acquire() bool { return s.br.Acquire() }

func (s *HTTPSink) Deliver(ctx context.Context, ev model.Event) error {
	if err := s.post(ctx, ev); err != nil {
		s.br.OnFailure()
		return err
	}

	s.br.OnSuccess()

	return nil
}

func (s *HTTPSink) post(ctx context.Context, ev model.Event) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(ev.Payload))
	if err != nil {
		return err
	}

	req.Header.Set(HeaderSpecVersion, specVersion)
	req.Header.Set(HeaderID, ev.ID)
	req.Header.Set(HeaderType, ev.Type)
	req.Header.Set(HeaderSource, ev.Source)
	req.Header.Set(HeaderSubject, ev.Topic)
	req.Header.Set(HeaderTime, ev.ReceivedAt.UTC().Format(time.RFC3339Nano))
	req.Header.Set("Content-Type", "application/octet-stream")

	res, err := s.client.Do(req)
	if err != nil {
		return err
	}

	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	if res.StatusCode/100 != 2 {
		return fmt.Errorf("sink=%s status=%d", s.name, res.StatusCode)
	}

	return nil
}
