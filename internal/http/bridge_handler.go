package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/ktwin/mqtt-bridge/internal/bridge"
	"github.com/ktwin/mqtt-bridge/internal/model"
	"github.com/labstack/echo/v4"
)

// HeaderExchangeID carries the id of the published exchange on success.
const HeaderExchangeID = "X-Exchange-Id"

func bridgeHandler(b *bridge.Bridge, route bridge.Route) echo.HandlerFunc {
	return func(c echo.Context) error {
		r := c.Request()
		body, err := io.ReadAll(r.Body)
		if err != nil {
			var he *echo.HTTPError
			if errors.As(err, &he) {
				return he
			}
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "read body failed"})
		}

		req := model.InboundRequest{
			Method:     r.Method,
			Path:       r.URL.Path,
			RequestID:  c.Response().Header().Get(echo.HeaderXRequestID),
			RemoteAddr: c.RealIP(),
			Message: model.Message{
				Headers: r.Header.Clone(),
				Body:    body,
			},
		}

		reply, err := b.HandlePost(r.Context(), route, req)
		if err != nil {
			status, msg := errorStatus(err)
			return c.JSON(status, map[string]string{"error": msg})
		}

		c.Response().Header().Set(HeaderExchangeID, reply.Ack.ID)
		if len(reply.Body) == 0 {
			return c.NoContent(http.StatusOK)
		}

		ct := req.Headers.Get(echo.HeaderContentType)
		if ct == "" {
			ct = echo.MIMEOctetStream
		}
		return c.Blob(http.StatusOK, ct, reply.Body)
	}
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, bridge.ErrTimeout):
		return http.StatusGatewayTimeout, bridge.ErrTimeout.Error()
	case errors.Is(err, bridge.ErrPublishFailed):
		return http.StatusBadGateway, bridge.ErrPublishFailed.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
