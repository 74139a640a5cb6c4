package http

import (
	"context"
	"net/http"

	"github.com/ktwin/mqtt-bridge/internal/bridge"
	"github.com/ktwin/mqtt-bridge/internal/config"
	"github.com/ktwin/mqtt-bridge/internal/http/middleware"
	"github.com/ktwin/mqtt-bridge/internal/repository"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Readiness reports whether the broker connection is usable.
type Readiness interface {
	IsConnected() bool
}

// Deps are the collaborators the server wires into its routes.
// Exchanges and Redis are optional.
type Deps struct {
	Bridge    *bridge.Bridge
	Routes    *bridge.RouteTable
	Broker    Readiness
	Exchanges repository.CHExchangesRepository
	Redis     *redis.Client
	Logger    *zap.Logger
}

type Server struct {
	e      *echo.Echo
	logger *zap.Logger
}

func NewServer(cfg config.Config, d Deps) *Server {
	lg := d.Logger
	if lg == nil {
		lg = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(log.OFF)
	e.Use(echoMid.Recover(), echoMid.RequestID(), requestLogger(lg))
	if cfg.HTTP.BodyLimit != "" {
		e.Use(echoMid.BodyLimit(cfg.HTTP.BodyLimit))
	}

	e.GET(bridge.PathMetrics, echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET(bridge.PathHealthz, func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET(bridge.PathReadyz, readyHandler(d.Broker))

	e.GET(bridge.PathExchanges, listExchangesHandler(d.Exchanges, lg))

	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          d.Redis,
		RPS:            cfg.RateLimit.RPS,
		KeyPrefix:      "rl:ip:",
		Window:         cfg.RateLimit.Window,
		RetryAfterHint: true,
	})

	// bridged routes
	for _, r := range d.Routes.Routes() {
		e.Add(r.Method, r.Path, bridgeHandler(d.Bridge, r), rlMW)
		lg.Info("route registered",
			zap.String("route", r.Name),
			zap.String("method", r.Method),
			zap.String("path", r.Path),
			zap.String("topic", r.Topic),
		)
	}

	return &Server{e: e, logger: lg}
}

func requestLogger(lg *zap.Logger) echo.MiddlewareFunc {
	return echoMid.RequestLoggerWithConfig(echoMid.RequestLoggerConfig{
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(_ echo.Context, v echoMid.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID),
				zap.String("remote_ip", v.RemoteIP),
			}
			if v.Error != nil {
				lg.Warn("http request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			lg.Info("http request", fields...)
			return nil
		},
	})
}

func readyHandler(broker Readiness) echo.HandlerFunc {
	return func(c echo.Context) error {
		if broker == nil || !broker.IsConnected() {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "broker not connected"})
		}
		return c.String(http.StatusOK, "ok")
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.e.ServeHTTP(w, r) }

func (s *Server) Start(addr string) error {
	s.logger.Info("http: listening", zap.String("addr", addr))
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
