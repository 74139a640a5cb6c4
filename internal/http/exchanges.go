package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ktwin/mqtt-bridge/internal/model"
	"github.com/ktwin/mqtt-bridge/internal/repository"
	echo "github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

func listExchangesHandler(chRepo repository.CHExchangesRepository, lg *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if chRepo == nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "journal disabled"})
		}

		f := repository.ExchangeFilter{Limit: 50}
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				f.Limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				f.Offset = n
			}
		}
		if raw := strings.TrimSpace(c.QueryParam("status")); raw != "" {
			st := model.ExchangeStatus(raw)
			if !st.Valid() {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid status"})
			}
			f.Status = st
		}
		f.Route = strings.TrimSpace(c.QueryParam("route"))

		rows, err := chRepo.List(c.Request().Context(), f)
		if err != nil {
			lg.Error("clickhouse list failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   f.Limit,
			"offset":  f.Offset,
			"count":   len(rows),
			"results": rows,
		})
	}
}
