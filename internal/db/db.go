package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/sudo-init-do/diecasthub/internal/config"
)

// Connect opens and pings a pgx pool.
func Connect(ctx context.Context, cfg config.DBConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logger.Info("connected to postgres", zap.String("host", cfg.Host), zap.String("db", cfg.Name))
	return pool, nil
}

// EnsureSchema creates the tables the service owns. Every step is idempotent.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	steps := []struct {
		name string
		fn   func(context.Context, *pgxpool.Pool) error
	}{
		{"users", ensureUsersTable},
		{"products", ensureProductsTable},
		{"addresses", ensureAddressesTable},
		{"trades", ensureTradesTable},
		{"trade_item_locks", ensureItemLocksTable},
		{"trade_outbox", ensureOutboxTable},
		{"notifications", ensureNotificationsTable},
	}
	for _, s := range steps {
		if err := s.fn(ctx, pool); err != nil {
			return fmt.Errorf("failed to ensure %s: %w", s.name, err)
		}
		logger.Debug("schema ensured", zap.String("table", s.name))
	}
	return nil
}

// ensureUsersTable creates a minimal users table when running standalone;
// the directory and role tools only read email and role.
func ensureUsersTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			email TEXT UNIQUE NOT NULL,
			role TEXT NOT NULL DEFAULT 'user',
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
	`)
	return err
}

// ensureProductsTable creates the catalog table when running standalone and
// adds the columns ownership checks rely on to an existing one.
func ensureProductsTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS products (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id UUID NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		ALTER TABLE products ADD COLUMN IF NOT EXISTS quantity INTEGER NOT NULL DEFAULT 1;
		ALTER TABLE products ADD COLUMN IF NOT EXISTS status TEXT DEFAULT 'active';
		CREATE INDEX IF NOT EXISTS idx_products_user ON products(user_id);
	`)
	return err
}

func ensureAddressesTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS addresses (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id UUID NOT NULL,
			label TEXT NOT NULL DEFAULT '',
			line1 TEXT NOT NULL DEFAULT '',
			city TEXT NOT NULL DEFAULT '',
			country TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_addresses_user ON addresses(user_id);
	`)
	return err
}

func ensureTradesTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS trades (
			id UUID PRIMARY KEY,
			initiator_id UUID NOT NULL,
			receiver_id UUID NOT NULL,
			initiator_items JSONB NOT NULL,
			receiver_items JSONB NOT NULL,
			cash_amount NUMERIC(14,2) NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			message TEXT NULL,
			closing_reason TEXT NULL,
			supersedes UUID NULL REFERENCES trades(id),
			superseded_by UUID NULL,
			initiator_shipment JSONB NULL,
			receiver_shipment JSONB NULL,
			initiator_receipt JSONB NULL,
			receiver_receipt JSONB NULL,
			dispute JSONB NULL,
			resolution JSONB NULL,
			version BIGINT NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			responded_at TIMESTAMPTZ NULL,
			shipped_at TIMESTAMPTZ NULL,
			delivered_at TIMESTAMPTZ NULL,
			resolved_at TIMESTAMPTZ NULL,
			CONSTRAINT trades_not_self CHECK (initiator_id <> receiver_id)
		);
		CREATE INDEX IF NOT EXISTS idx_trades_initiator ON trades(initiator_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_trades_receiver ON trades(receiver_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status);
	`)
	if err != nil {
		return err
	}

	// Keep the status constraint in step with the state machine.
	_, _ = pool.Exec(ctx, `ALTER TABLE trades DROP CONSTRAINT IF EXISTS trades_status_check`)
	_, err = pool.Exec(ctx, `
		ALTER TABLE trades
		ADD CONSTRAINT trades_status_check
		CHECK (status IN (
			'pending', 'accepted', 'rejected', 'countered', 'cancelled',
			'initiator_shipped', 'receiver_shipped', 'both_shipped',
			'initiator_delivered', 'receiver_delivered',
			'completed', 'disputed', 'resolved'
		))`)
	return err
}

func ensureItemLocksTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS trade_item_locks (
			product_id UUID PRIMARY KEY,
			trade_id UUID NOT NULL REFERENCES trades(id) ON DELETE CASCADE,
			locked_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_trade_item_locks_trade ON trade_item_locks(trade_id);
	`)
	return err
}

func ensureOutboxTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS trade_outbox (
			seq BIGSERIAL,
			id UUID PRIMARY KEY,
			trade_id UUID NOT NULL,
			topic TEXT NOT NULL,
			event_type TEXT NOT NULL,
			payload JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			dispatched_at TIMESTAMPTZ NULL
		);
		CREATE INDEX IF NOT EXISTS idx_trade_outbox_pending ON trade_outbox(seq) WHERE dispatched_at IS NULL;
	`)
	return err
}

func ensureNotificationsTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS notifications (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id UUID NOT NULL,
			type TEXT NOT NULL,
			title TEXT NOT NULL,
			body TEXT,
			reference UUID NULL,
			metadata JSONB NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			read_at TIMESTAMP WITH TIME ZONE NULL
		);
		CREATE INDEX IF NOT EXISTS idx_notifications_user_created ON notifications(user_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_notifications_user_unread ON notifications(user_id) WHERE read_at IS NULL;
	`)
	return err
}
