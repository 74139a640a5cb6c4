package db

import (
	"testing"

	"github.com/ktwin/mqtt-bridge/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestDisabledStores(t *testing.T) {
	_, err := NewMySQLConnection(config.DatabaseConfig{})
	assert.ErrorIs(t, err, ErrEmptyDSN)

	_, err = NewClickHouseConnection(config.DatabaseConfig{DSN: "  "})
	assert.ErrorIs(t, err, ErrEmptyDSN)

	_, err = NewRedisClient(config.RedisConfig{})
	assert.Error(t, err)
}

func TestSplitStatements(t *testing.T) {
	script := `
-- exchanges journal
DROP TABLE IF EXISTS exchanges;

CREATE TABLE exchanges (
    id CHAR(26) NOT NULL, -- ulid
    PRIMARY KEY (id)
);
;
`
	stmts := SplitStatements(script)

	assert.Len(t, stmts, 2)
	assert.Equal(t, "DROP TABLE IF EXISTS exchanges", stmts[0])
	assert.Contains(t, stmts[1], "CREATE TABLE exchanges (")
	assert.Contains(t, stmts[1], "-- ulid")
	assert.Empty(t, SplitStatements(" \n-- nothing\n"))
}
