package db

import (
	"errors"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/ktwin/mqtt-bridge/internal/config"
)

var ErrEmptyDSN = errors.New("empty DSN")

// NewMySQLConnection opens the journal database.
func NewMySQLConnection(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	if !cfg.Enabled() {
		return nil, ErrEmptyDSN
	}
	return openPool("mysql", cfg, 5*time.Second)
}
