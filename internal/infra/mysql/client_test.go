package mysql

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfig_DSN(t *testing.T) {
	cfg := Config{Host: "db", Port: 3307, User: "ledger", Password: "secret", DBName: "ledger"}
	assert.Equal(t, "ledger:secret@tcp(db:3307)/ledger?charset=utf8mb4&parseTime=True&loc=UTC", cfg.DSN())
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, 3306, cfg.Port)
	assert.Equal(t, 25, cfg.MaxOpenConns)
	assert.Equal(t, time.Hour, cfg.ConnMaxLifetime)
	assert.Equal(t, 10, cfg.ConnectRetries)

	kept := Config{Port: 1, ConnectRetries: 2}.withDefaults()
	assert.Equal(t, 1, kept.Port)
	assert.Equal(t, 2, kept.ConnectRetries)
}

func TestNewGormLogger(t *testing.T) {
	for _, level := range []string{"info", "warn", "error", "silent", ""} {
		assert.NotNil(t, newGormLogger(level), level)
	}
}

func TestTableNames(t *testing.T) {
	assert.Equal(t, "accounts", (&sqlAccount{}).TableName())
	assert.Equal(t, "idempotency_keys", (&sqlIdempotencyKey{}).TableName())
	assert.Equal(t, "transaction_logs", (&sqlLogEntry{}).TableName())
}
