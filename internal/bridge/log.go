package bridge

import (
	"maps"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/ktwin/mqtt-bridge/internal/model"
	"go.uber.org/zap"
)

func (b *Bridge) logRequest(id string, route Route, req model.InboundRequest) {
	switch route.Log.Verbosity {
	case VerbosityOff:
		return
	case VerbosityFull:
		if route.Log.Multiline {
			b.logger.Info("exchange",
				zap.String("exchange_id", id),
				zap.String("route", route.Name),
				zap.String("exchange", FormatExchange(id, route, req)),
			)
			return
		}
		b.logger.Info("exchange",
			zap.String("exchange_id", id),
			zap.String("route", route.Name),
			zap.String("request_id", req.RequestID),
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.String("remote_addr", req.RemoteAddr),
			zap.String("topic", route.Topic),
			zap.Any("headers", req.Headers),
			zap.String("body", bodyString(req.Body)),
		)
	default:
		b.logger.Info("exchange",
			zap.String("exchange_id", id),
			zap.String("route", route.Name),
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Int("body_size", len(req.Body)),
		)
	}
}

// FormatExchange renders the request as an indented block, one attribute per line.
func FormatExchange(id string, route Route, req model.InboundRequest) string {
	var sb strings.Builder
	line := func(k, v string) {
		sb.WriteString("  ")
		sb.WriteString(k)
		sb.WriteString(": ")
		sb.WriteString(v)
		sb.WriteByte('\n')
	}

	sb.WriteString("Exchange[\n")
	line("Id", id)
	line("Route", route.Name)
	line("Endpoint", req.Method+" "+req.Path)
	line("Topic", route.Topic)
	if req.RequestID != "" {
		line("RequestId", req.RequestID)
	}
	if req.RemoteAddr != "" {
		line("RemoteAddr", req.RemoteAddr)
	}
	line("Headers", formatHeaders(req.Headers))
	line("BodyType", "[]byte")
	line("Body", bodyString(req.Body))
	sb.WriteString("]")

	return sb.String()
}

func formatHeaders(h map[string][]string) string {
	if len(h) == 0 {
		return "{}"
	}
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range slices.Sorted(maps.Keys(h)) {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(strings.Join(h[k], ","))
	}
	sb.WriteByte('}')
	return sb.String()
}

func bodyString(body []byte) string {
	switch {
	case len(body) == 0:
		return "[Body is empty]"
	case !utf8.Valid(body):
		return "[Body is binary]"
	default:
		return string(body)
	}
}

// FormatEvent renders a relayed event the same way FormatExchange renders a request.
func FormatEvent(ev model.Event) string {
	var sb strings.Builder
	sb.WriteString("Event[\n")
	for _, kv := range [][2]string{
		{"Id", ev.ID},
		{"Type", ev.Type},
		{"Source", ev.Source},
		{"Topic", ev.Topic},
		{"BodyType", "[]byte"},
		{"Body", bodyString(ev.Payload)},
	} {
		sb.WriteString("  " + kv[0] + ": " + kv[1] + "\n")
	}
	sb.WriteString("]")
	return sb.String()
}
