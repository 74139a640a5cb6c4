package model

import (
	"bytes"
	"net/http"
)

// Message is the header/body pair carried through a route.
type Message struct {
	Headers http.Header
	Body    []byte
}

// InboundRequest is one call arriving on a route trigger (HTTP or Kafka).
type InboundRequest struct {
	Method     string
	Path       string
	RequestID  string
	RemoteAddr string
	Message
}

// OutboundMessage is what gets published to the broker for a single request.
type OutboundMessage struct {
	Topic    string
	Broker   string
	QoS      byte
	Retained bool
	Payload  []byte
}

// NewOutboundMessage copies the request body so later mutations of the
// inbound message never reach the publisher.
func NewOutboundMessage(topic, broker string, qos byte, retained bool, body []byte) OutboundMessage {
	payload := bytes.Clone(body)
	if payload == nil {
		payload = []byte{}
	}
	return OutboundMessage{
		Topic:    topic,
		Broker:   broker,
		QoS:      qos,
		Retained: retained,
		Payload:  payload,
	}
}
