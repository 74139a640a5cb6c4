package db

import (
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jmoiron/sqlx"
	"github.com/ktwin/mqtt-bridge/internal/config"
)

// NewClickHouseConnection opens the exchanges read model,
// e.g. clickhouse://default:@localhost:9000/bridge?dial_timeout=5s&compress=true
func NewClickHouseConnection(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	if !cfg.Enabled() {
		return nil, ErrEmptyDSN
	}
	return openPool("clickhouse", cfg, 3*time.Second)
}
