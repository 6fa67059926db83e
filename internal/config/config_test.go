package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/diecasthub/internal/trade"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "localhost", cfg.DB.Host)
	assert.Equal(t, 2*time.Second, cfg.Outbox.Interval)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.IsProduction())

	ec, err := cfg.Trade.Engine()
	require.NoError(t, err)
	assert.True(t, ec.MaxCashAmount.Equal(decimal.NewFromInt(1_000_000)))
	assert.Equal(t, 20, ec.MaxItemsPerSide)
	assert.Equal(t, "TRY", ec.Currency)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("APP_ENV", "production")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_NAME", "trades")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("STORE_SEED_FILE", "testdata/seed.yaml")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("OUTBOX_INTERVAL", "500ms")
	t.Setenv("TRADE_MAX_CASH_AMOUNT", "2500.50")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 500*time.Millisecond, cfg.Outbox.Interval)
	assert.Equal(t, "postgres://postgres:@db.internal:5432/trades?sslmode=disable", cfg.DB.DSN())

	ec, err := cfg.Trade.Engine()
	require.NoError(t, err)
	assert.True(t, ec.MaxCashAmount.Equal(decimal.RequireFromString("2500.50")))
}

func TestTradeEngineLimitClamped(t *testing.T) {
	ec, err := TradeConfig{MaxCashAmount: "5000000000000", MaxItemsPerSide: 5, Currency: "EUR"}.Engine()
	require.NoError(t, err)
	assert.True(t, ec.MaxCashAmount.Equal(trade.MaxStorableCash), ec.MaxCashAmount.String())

	ec, err = TradeConfig{MaxCashAmount: "250"}.Engine()
	require.NoError(t, err)
	assert.True(t, ec.MaxCashAmount.Equal(decimal.NewFromInt(250)))
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := Load("")
	require.Error(t, err)

	t.Setenv("JWT_SECRET", "x")
	t.Setenv("STORE_DRIVER", "mongo")
	_, err = Load("")
	require.Error(t, err)

	t.Setenv("STORE_DRIVER", "memory")
	_, err = Load("")
	require.ErrorContains(t, err, "STORE_SEED_FILE")

	t.Setenv("STORE_SEED_FILE", "testdata/seed.yaml")
	t.Setenv("TRADE_MAX_CASH_AMOUNT", "lots")
	_, err = Load("")
	require.Error(t, err)
}

func TestLoadSeed(t *testing.T) {
	products, err := LoadSeed("testdata/seed.yaml")
	require.NoError(t, err)
	require.Len(t, products, 3)

	assert.Equal(t, trade.Product{ID: "p-alice-mustang", OwnerID: "alice", Quantity: 1, Status: "active"}, products[0])
	assert.Equal(t, 2, products[1].Quantity)
	assert.False(t, products[2].Tradable())

	_, err = LoadSeed("testdata/seed_duplicate.yaml")
	require.ErrorContains(t, err, "listed twice")

	_, err = LoadSeed("testdata/missing.yaml")
	require.Error(t, err)
}
