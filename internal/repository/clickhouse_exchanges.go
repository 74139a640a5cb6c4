package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/ktwin/mqtt-bridge/internal/model"
)

// ExchangeFilter narrows a listing; zero values match everything.
type ExchangeFilter struct {
	Route  string
	Status model.ExchangeStatus
	Limit  int
	Offset int
}

// CHExchangesRepository lists exchanges from ClickHouse (final view).
type CHExchangesRepository interface {
	List(ctx context.Context, f ExchangeFilter) ([]model.Exchange, error)
}

type chExchangesRepository struct {
	ch *sqlx.DB
}

func NewCHExchangesRepository(ch *sqlx.DB) CHExchangesRepository {
	return &chExchangesRepository{ch: ch}
}

func (r *chExchangesRepository) List(ctx context.Context, f ExchangeFilter) ([]model.Exchange, error) {
	q, args := buildListQuery(f)

	var rows []model.Exchange
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func buildListQuery(f ExchangeFilter) (string, []any) {
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	q := `
		SELECT id, route, method, path, topic, broker, payload_size, status, error, latency_ms, created_at
		FROM bridge.exchanges_latest
		WHERE 1 = 1
	`
	var args []any

	if f.Route != "" {
		q += " AND route = ?"
		args = append(args, f.Route)
	}
	if f.Status != "" {
		q += " AND status = ?"
		args = append(args, f.Status.String())
	}

	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	return q, args
}
