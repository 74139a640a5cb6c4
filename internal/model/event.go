package model

import "time"

// Event is an MQTT message picked up by the relay and forwarded to an event sink.
type Event struct {
	ID         string
	Type       string // CloudEvents ce-type
	Source     string // CloudEvents ce-source
	Topic      string // MQTT topic it arrived on
	Payload    []byte
	ReceivedAt time.Time
}
