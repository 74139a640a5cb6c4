package mqtt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/ktwin/mqtt-bridge/internal/config"
	"github.com/ktwin/mqtt-bridge/internal/model"
	"go.uber.org/zap"
)

const disconnectQuiesceMs = 250

var ErrNotConnected = errors.New("mqtt: not connected")

// AckTimeoutError is returned when the broker did not acknowledge a publish in time.
type AckTimeoutError struct {
	Topic string
	Err   error
}

func (e *AckTimeoutError) Error() string {
	return fmt.Sprintf("mqtt: no ack for topic %s: %v", e.Topic, e.Err)
}

func (e *AckTimeoutError) Unwrap() error { return e.Err }
func (e *AckTimeoutError) Timeout() bool { return true }

// Client wraps a single paho connection. paho serializes writes internally,
// so one Client serves every in-flight request.
type Client struct {
	opts    *paho.ClientOptions
	client  paho.Client
	logger  *zap.Logger
	brokers []string

	mu   sync.Mutex
	subs map[string]subscription
}

// subscription is replayed on every (re)connect; clean sessions drop them broker side.
type subscription struct {
	qos     byte
	handler paho.MessageHandler
}

// NewClient builds a client from options; it does not connect.
func NewClient(o Options, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts, err := o.pahoOptions()
	if err != nil {
		return nil, err
	}

	c := &Client{
		opts:    opts,
		logger:  logger,
		brokers: brokerStrings(opts),
	}

	// paho runs this on its own goroutine after every successful connect
	opts.SetOnConnectHandler(func(paho.Client) { c.onConnect() })
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		c.logger.Warn("MQTT connection lost", zap.Error(err))
	})
	opts.SetReconnectingHandler(func(paho.Client, *paho.ClientOptions) {
		c.logger.Info("reconnecting to MQTT broker")
	})

	c.client = paho.NewClient(opts)
	return c, nil
}

func newClientWith(pc paho.Client, logger *zap.Logger, brokers ...string) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{client: pc, logger: logger, brokers: brokers}
}

// Broker returns the first configured broker URI.
func (c *Client) Broker() string {
	if len(c.brokers) == 0 {
		return ""
	}
	return c.brokers[0]
}

// Connect establishes the broker connection. With connect retry enabled paho
// keeps trying in the background; Connect then returns once ctx expires
// without failing so the service can start before the broker does.
func (c *Client) Connect(ctx context.Context) error {
	token := c.client.Connect()

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("broker connection error: %w", err)
		}
		return nil
	case <-ctx.Done():
		if c.opts != nil && c.opts.ConnectRetry {
			c.logger.Warn("MQTT broker not reachable yet, retrying in background",
				zap.Strings("brokers", c.brokers))
			return nil
		}
		return fmt.Errorf("broker connection error: %w", ctx.Err())
	}
}

func (c *Client) IsConnected() bool {
	return c.client != nil && c.client.IsConnectionOpen()
}

// Publish sends msg and blocks until the broker acknowledged it (for QoS 0,
// until it was written) or ctx ends.
func (c *Client) Publish(ctx context.Context, msg model.OutboundMessage) error {
	if !c.IsConnected() {
		return fmt.Errorf("%w: %s", ErrNotConnected, strings.Join(c.brokers, ","))
	}

	token := c.client.Publish(msg.Topic, msg.QoS, msg.Retained, msg.Payload)

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			c.logger.Error("Publish error", zap.String("topic", msg.Topic), zap.Error(err))
			return fmt.Errorf("publish %s: %w", msg.Topic, err)
		}
		c.logger.Debug("Message published", zap.String("topic", msg.Topic), zap.Int("size", len(msg.Payload)))
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &AckTimeoutError{Topic: msg.Topic, Err: ctx.Err()}
		}
		return ctx.Err()
	}
}

func (c *Client) onConnect() {
	c.logger.Info("connected to MQTT broker", zap.Strings("brokers", c.brokers))
	c.resubscribe()
}

// resubscribe re-issues every registered subscription.
func (c *Client) resubscribe() {
	c.mu.Lock()
	subs := make(map[string]subscription, len(c.subs))
	for t, s := range c.subs {
		subs[t] = s
	}
	c.mu.Unlock()

	for topic, s := range subs {
		token := c.client.Subscribe(topic, s.qos, s.handler)
		if !token.WaitTimeout(10 * time.Second) {
			c.logger.Error("Resubscribe timed out", zap.String("topic", topic))
			continue
		}
		if err := token.Error(); err != nil {
			c.logger.Error("Resubscribe error", zap.Error(err), zap.String("topic", topic))
			continue
		}
		c.logger.Info("Resubscribed to topic", zap.String("topic", topic))
	}
}

// Subscribe registers handler for topic and keeps it across reconnects.
// Handlers run on paho's router goroutine. While the client is still
// connecting the subscription is issued once the connection is up.
func (c *Client) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	s := subscription{qos: qos, handler: func(_ paho.Client, m paho.Message) {
		handler(m.Topic(), m.Payload())
	}}

	c.mu.Lock()
	if c.subs == nil {
		c.subs = make(map[string]subscription)
	}
	c.subs[topic] = s
	c.mu.Unlock()

	token := c.client.Subscribe(topic, qos, s.handler)
	token.Wait()
	if err := token.Error(); err != nil {
		if !c.IsConnected() {
			c.logger.Warn("Subscribe deferred until connected", zap.Error(err), zap.String("topic", topic))
			return nil
		}
		c.forget(topic)
		c.logger.Error("Subscribe error", zap.Error(err), zap.String("topic", topic))
		return fmt.Errorf("subscribe error: %w", err)
	}
	c.logger.Debug("Subscribed to topic", zap.String("topic", topic))
	return nil
}

func (c *Client) forget(topics ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		delete(c.subs, t)
	}
}

func (c *Client) Unsubscribe(topics ...string) error {
	c.forget(topics...)
	token := c.client.Unsubscribe(topics...)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("unsubscribe %v: timed out", topics)
	}
	return token.Error()
}

// Disconnect closes the connection to the MQTT broker.
func (c *Client) Disconnect() {
	c.client.Disconnect(disconnectQuiesceMs)
	c.logger.Info("Disconnected from MQTT broker")
}

func brokerStrings(opts *paho.ClientOptions) []string {
	brokers := make([]string, len(opts.Servers))
	for i, server := range opts.Servers {
		brokers[i] = server.String()
	}
	return brokers
}

// Dial builds a client from the mqtt config section and connects it,
// bounded by the configured connect timeout.
func Dial(ctx context.Context, cfg config.MQTTConfig, logger *zap.Logger) (*Client, error) {
	c, err := NewClient(OptionsFromConfig(cfg), logger)
	if err != nil {
		return nil, err
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := c.Connect(cctx); err != nil {
		return nil, err
	}
	return c, nil
}
