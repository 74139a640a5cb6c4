package bridge

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ktwin/mqtt-bridge/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakePublisher struct {
	mu    sync.Mutex
	calls []model.OutboundMessage
	err   error
	block bool
}

func (p *fakePublisher) Publish(ctx context.Context, msg model.OutboundMessage) error {
	p.mu.Lock()
	p.calls = append(p.calls, msg)
	p.mu.Unlock()

	if p.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return p.err
}

func (p *fakePublisher) published() []model.OutboundMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.OutboundMessage(nil), p.calls...)
}

type fakeJournal struct {
	mu   sync.Mutex
	rows []model.Exchange
	err  error
}

func (j *fakeJournal) Record(_ context.Context, ex model.Exchange) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.rows = append(j.rows, ex)
	return j.err
}

type netTimeout struct{}

func (netTimeout) Error() string { return "i/o timeout" }
func (netTimeout) Timeout() bool { return true }

func newTestLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core), logs
}

func postRequest(body string) model.InboundRequest {
	return model.InboundRequest{
		Method: http.MethodPost,
		Path:   "/",
		Message: model.Message{
			Headers: http.Header{"Content-Type": {"text/plain"}},
			Body:    []byte(body),
		},
	}
}

func TestHandlePostClearsBody(t *testing.T) {
	pub := &fakePublisher{}
	b := New(pub)

	reply, err := b.HandlePost(context.Background(), DefaultRoute(), postRequest("hello"))
	require.NoError(t, err)

	assert.Empty(t, reply.Body)
	assert.NotNil(t, reply.Body)

	calls := pub.published()
	require.Len(t, calls, 1)
	assert.Equal(t, "mytopic-response", calls[0].Topic)
	assert.Equal(t, "tcp://mqtt-broker:1883", calls[0].Broker)
	assert.Equal(t, "hello", string(calls[0].Payload))

	assert.NotEmpty(t, reply.Ack.ID)
	assert.Equal(t, "mytopic-response", reply.Ack.Topic)
	assert.Equal(t, 5, reply.Ack.PayloadSize)
}

func TestHandlePostKeepsBodyWithoutClearing(t *testing.T) {
	pub := &fakePublisher{}
	b := New(pub)

	route := DefaultRoute()
	route.ClearBody = false

	reply, err := b.HandlePost(context.Background(), route, postRequest("hello"))
	require.NoError(t, err)

	assert.Equal(t, "hello", string(reply.Body))
	require.Len(t, pub.published(), 1)
	assert.Equal(t, "hello", string(pub.published()[0].Payload))
}

func TestHandlePostClearingIgnoresInput(t *testing.T) {
	bodies := []string{"", "hello", `{"a":1}`, string([]byte{0xff, 0x00, 0xfe})}
	for _, body := range bodies {
		pub := &fakePublisher{}
		reply, err := New(pub).HandlePost(context.Background(), DefaultRoute(), postRequest(body))
		require.NoError(t, err)
		assert.Empty(t, reply.Body, "body %q", body)
		require.Len(t, pub.published(), 1)
		assert.Equal(t, []byte(body), pub.published()[0].Payload)
	}
}

func TestHandlePostPayloadIsCopied(t *testing.T) {
	pub := &fakePublisher{}
	req := postRequest("hello")

	_, err := New(pub).HandlePost(context.Background(), DefaultRoute(), req)
	require.NoError(t, err)

	req.Body[0] = 'j'
	assert.Equal(t, "hello", string(pub.published()[0].Payload))
}

func TestHandlePostPublishFailed(t *testing.T) {
	pub := &fakePublisher{err: errors.New("not connected")}
	journal := &fakeJournal{}
	b := New(pub, WithJournal(journal))

	reply, err := b.HandlePost(context.Background(), DefaultRoute(), postRequest("hello"))
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrPublishFailed)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Empty(t, reply.Ack.ID, "no ack on failure")

	var be *Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, KindPublishFailed, be.Kind)
	assert.Equal(t, "mytopic-response", be.Topic)
	assert.Len(t, pub.published(), 1, "no retry")

	require.Len(t, journal.rows, 1)
	assert.Equal(t, model.StatusFailed, journal.rows[0].Status)
	assert.Contains(t, journal.rows[0].Error, "not connected")
}

func TestHandlePostTimeout(t *testing.T) {
	t.Run("deadline", func(t *testing.T) {
		pub := &fakePublisher{block: true}
		b := New(pub, WithPublishTimeout(20*time.Millisecond))

		_, err := b.HandlePost(context.Background(), DefaultRoute(), postRequest("hello"))
		assert.ErrorIs(t, err, ErrTimeout)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Len(t, pub.published(), 1)
	})

	t.Run("transport timeout", func(t *testing.T) {
		pub := &fakePublisher{err: netTimeout{}}
		journal := &fakeJournal{}

		_, err := New(pub, WithJournal(journal)).HandlePost(context.Background(), DefaultRoute(), postRequest("x"))
		assert.ErrorIs(t, err, ErrTimeout)
		require.Len(t, journal.rows, 1)
		assert.Equal(t, model.StatusTimeout, journal.rows[0].Status)
	})

	t.Run("caller cancelled is not a timeout", func(t *testing.T) {
		pub := &fakePublisher{block: true}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := New(pub).HandlePost(ctx, DefaultRoute(), postRequest("x"))
		assert.ErrorIs(t, err, ErrPublishFailed)
	})
}

func TestHandlePostJournal(t *testing.T) {
	journal := &fakeJournal{}
	b := New(&fakePublisher{}, WithJournal(journal), WithBroker("tcp://other:1883"))

	reply, err := b.HandlePost(context.Background(), DefaultRoute(), postRequest("hello"))
	require.NoError(t, err)

	require.Len(t, journal.rows, 1)
	row := journal.rows[0]
	assert.Equal(t, reply.Ack.ID, row.ID)
	assert.Equal(t, DefaultRouteName, row.Route)
	assert.Equal(t, "POST", row.Method)
	assert.Equal(t, "/", row.Path)
	assert.Equal(t, "tcp://other:1883", row.Broker)
	assert.Equal(t, 5, row.PayloadSize)
	assert.Equal(t, model.StatusPublished, row.Status)
}

func TestHandlePostJournalErrorIsLogged(t *testing.T) {
	logger, logs := newTestLogger()
	journal := &fakeJournal{err: errors.New("db down")}
	b := New(&fakePublisher{}, WithJournal(journal), WithLogger(logger))

	route := DefaultRoute()
	route.Log.Verbosity = VerbosityOff

	_, err := b.HandlePost(context.Background(), route, postRequest("hello"))
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("journal record failed").Len())
}

func TestVerbosityDoesNotAlterPayload(t *testing.T) {
	variants := []LogOptions{
		{Verbosity: VerbosityOff},
		{Verbosity: VerbosityMinimal},
		{Verbosity: VerbosityFull},
		{Verbosity: VerbosityFull, Multiline: true},
	}

	var payloads [][]byte
	for _, v := range variants {
		logger, _ := newTestLogger()
		pub := &fakePublisher{}
		route := DefaultRoute()
		route.Log = v

		_, err := New(pub, WithLogger(logger)).HandlePost(context.Background(), route, postRequest("same payload"))
		require.NoError(t, err)
		require.Len(t, pub.published(), 1)
		payloads = append(payloads, pub.published()[0].Payload)
	}

	for _, p := range payloads[1:] {
		assert.Equal(t, payloads[0], p)
	}
}

func TestLogVerbosity(t *testing.T) {
	tests := []struct {
		name    string
		opts    LogOptions
		records int
		check   func(t *testing.T, fields map[string]interface{})
	}{
		{
			name:    "off",
			opts:    LogOptions{Verbosity: VerbosityOff},
			records: 0,
		},
		{
			name:    "minimal",
			opts:    LogOptions{Verbosity: VerbosityMinimal},
			records: 1,
			check: func(t *testing.T, fields map[string]interface{}) {
				assert.EqualValues(t, 5, fields["body_size"])
				assert.NotContains(t, fields, "body")
			},
		},
		{
			name:    "full",
			opts:    LogOptions{Verbosity: VerbosityFull},
			records: 1,
			check: func(t *testing.T, fields map[string]interface{}) {
				assert.Equal(t, "hello", fields["body"])
				assert.Equal(t, "mytopic-response", fields["topic"])
				assert.Contains(t, fields, "headers")
			},
		},
		{
			name:    "full multiline",
			opts:    LogOptions{Verbosity: VerbosityFull, Multiline: true},
			records: 1,
			check: func(t *testing.T, fields map[string]interface{}) {
				block, ok := fields["exchange"].(string)
				require.True(t, ok)
				assert.Contains(t, block, "\n  Body: hello\n")
				assert.Contains(t, block, "Headers: {Content-Type=text/plain}")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, logs := newTestLogger()
			route := DefaultRoute()
			route.Log = tt.opts

			_, err := New(&fakePublisher{}, WithLogger(logger)).HandlePost(context.Background(), route, postRequest("hello"))
			require.NoError(t, err)

			entries := logs.FilterMessage("exchange").All()
			require.Len(t, entries, tt.records)
			if tt.check != nil {
				tt.check(t, entries[0].ContextMap())
			}
		})
	}
}

func TestHandlePostConcurrent(t *testing.T) {
	pub := &fakePublisher{}
	b := New(pub)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.HandlePost(context.Background(), DefaultRoute(), postRequest("hello"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, pub.published(), n)
}

func TestClearBody(t *testing.T) {
	in := model.Message{
		Headers: http.Header{"X-Test": {"1"}},
		Body:    []byte("hello"),
	}

	out := ClearBody(in)
	assert.Empty(t, out.Body)
	assert.Equal(t, "1", out.Headers.Get("X-Test"))

	out.Headers.Set("X-Test", "2")
	assert.Equal(t, "hello", string(in.Body))
	assert.Equal(t, "1", in.Headers.Get("X-Test"))
}

func TestFormatExchange(t *testing.T) {
	req := postRequest("")
	req.RequestID = "req-1"
	req.Headers = nil

	got := FormatExchange("01ABC", DefaultRoute(), req)
	want := "Exchange[\n" +
		"  Id: 01ABC\n" +
		"  Route: mqtt-response-handler\n" +
		"  Endpoint: POST /\n" +
		"  Topic: mytopic-response\n" +
		"  RequestId: req-1\n" +
		"  Headers: {}\n" +
		"  BodyType: []byte\n" +
		"  Body: [Body is empty]\n" +
		"]"
	assert.Equal(t, want, got)
}

func TestFormatEvent(t *testing.T) {
	out := FormatEvent(model.Event{
		ID:      "01E",
		Type:    "ktwin.real.boiler.generated",
		Source:  "mqtt-bridge",
		Topic:   "boiler-to-virtual",
		Payload: []byte("21.5"),
	})

	assert.True(t, strings.HasPrefix(out, "Event[\n"))
	assert.Contains(t, out, "  Type: ktwin.real.boiler.generated\n")
	assert.Contains(t, out, "  Topic: boiler-to-virtual\n")
	assert.Contains(t, out, "  Body: 21.5\n")
	assert.True(t, strings.HasSuffix(out, "]"))
}
