package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/ktwin/mqtt-bridge/internal/model"
)

// ExchangesRepository persists one row per bridged request in MySQL.
type ExchangesRepository interface {
	Insert(ctx context.Context, ex model.Exchange) error
}

type ExchangesRepositoryImpl struct {
	db *sqlx.DB
}

func NewExchangesRepository(db *sqlx.DB) *ExchangesRepositoryImpl {
	return &ExchangesRepositoryImpl{db: db}
}

const insertExchangeQuery = `
	INSERT INTO exchanges
	    (id, route, method, path, topic, broker, payload_size, status, error, latency_ms, created_at)
	VALUES
	    (:id, :route, :method, :path, :topic, :broker, :payload_size, :status, :error, :latency_ms, :created_at)
`

// Insert writes ex. Re-inserting an existing id is a no-op.
func (r *ExchangesRepositoryImpl) Insert(ctx context.Context, ex model.Exchange) error {
	_, err := r.db.NamedExecContext(ctx, insertExchangeQuery+` ON DUPLICATE KEY UPDATE id = id`, ex)
	return err
}

// Record satisfies bridge.Journal.
func (r *ExchangesRepositoryImpl) Record(ctx context.Context, ex model.Exchange) error {
	return r.Insert(ctx, ex)
}
