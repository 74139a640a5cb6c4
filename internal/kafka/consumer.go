package kafka

import (
	"context"
	"net/http"
	"time"

	"github.com/ktwin/mqtt-bridge/internal/config"
	"github.com/segmentio/kafka-go"
)

const (
	defaultMinBytes       = 1 << 10  // 1KB
	defaultMaxBytes       = 10 << 20 // 10MB
	defaultCommitInterval = time.Second
	defaultMaxWait        = 50 * time.Millisecond
)

type Message = kafka.Message

// Consumer reads records for the ingest worker through a consumer group.
type Consumer struct {
	r *kafka.Reader
}

func NewConsumer(c config.KafkaConfig) *Consumer {
	return &Consumer{r: kafka.NewReader(readerConfig(c))}
}

func readerConfig(c config.KafkaConfig) kafka.ReaderConfig {
	rc := kafka.ReaderConfig{
		Brokers:        c.Brokers,
		GroupID:        c.GroupID,
		Topic:          c.Topic,
		MinBytes:       c.MinBytes,
		MaxBytes:       c.MaxBytes,
		CommitInterval: time.Duration(c.CommitInterval) * time.Millisecond,
		MaxWait:        defaultMaxWait,
	}
	if rc.MinBytes <= 0 {
		rc.MinBytes = defaultMinBytes
	}
	if rc.MaxBytes <= 0 {
		rc.MaxBytes = defaultMaxBytes
	}
	if rc.CommitInterval <= 0 {
		rc.CommitInterval = defaultCommitInterval
	}
	return rc
}

// Fetch blocks until the next record arrives; it does not commit.
func (c *Consumer) Fetch(ctx context.Context) (Message, error) {
	return c.r.FetchMessage(ctx)
}

func (c *Consumer) Commit(ctx context.Context, m Message) error {
	return c.r.CommitMessages(ctx, m)
}

func (c *Consumer) Close() error { return c.r.Close() }

// Headers converts record headers into an http.Header so records travel the
// same route as HTTP requests. Repeated keys are kept in order.
func Headers(m Message) http.Header {
	h := make(http.Header, len(m.Headers))
	for _, kh := range m.Headers {
		h.Add(kh.Key, string(kh.Value))
	}
	return h
}
