package model

import "time"

type ExchangeStatus string

const (
	StatusPublished ExchangeStatus = "published"
	StatusFailed    ExchangeStatus = "failed"
	StatusTimeout   ExchangeStatus = "timeout"
)

func (s ExchangeStatus) String() string {
	return string(s)
}

func (s ExchangeStatus) Valid() bool {
	return s == StatusPublished || s == StatusFailed || s == StatusTimeout
}

// Ack is returned once the broker confirmed the publish.
type Ack struct {
	ID          string
	Topic       string
	PayloadSize int
	Latency     time.Duration
}

// Exchange is the journal row persisted in the exchanges table.
type Exchange struct {
	ID          string         `db:"id"          json:"id"`
	Route       string         `db:"route"       json:"route"`
	Method      string         `db:"method"      json:"method"`
	Path        string         `db:"path"        json:"path"`
	Topic       string         `db:"topic"       json:"topic"`
	Broker      string         `db:"broker"      json:"broker"`
	PayloadSize int            `db:"payload_size" json:"payload_size"`
	Status      ExchangeStatus `db:"status"      json:"status"`
	Error       string         `db:"error"       json:"error,omitempty"`
	LatencyMs   int64          `db:"latency_ms"  json:"latency_ms"`
	CreatedAt   time.Time      `db:"created_at"  json:"created_at"`
}
