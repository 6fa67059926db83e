package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/diecasthub/internal/trade"
)

// TradeStore is the postgres implementation of trade.Store and trade.OutboxStore.
type TradeStore struct {
	pool *pgxpool.Pool
}

func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

var (
	_ trade.Store       = (*TradeStore)(nil)
	_ trade.OutboxStore = (*TradeStore)(nil)
	_ trade.Tx          = (*tradeTx)(nil)
)

const tradeColumns = `
	id::text, initiator_id::text, receiver_id::text,
	initiator_items, receiver_items, cash_amount::text, status,
	COALESCE(message, ''), COALESCE(closing_reason, ''),
	COALESCE(supersedes::text, ''), COALESCE(superseded_by::text, ''),
	initiator_shipment, receiver_shipment, initiator_receipt, receiver_receipt,
	dispute, resolution, version,
	created_at, updated_at, responded_at, shipped_at, delivered_at, resolved_at`

func (s *TradeStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx trade.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("transaction start failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &tradeTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("transaction commit failed: %w", err)
	}
	return nil
}

func (s *TradeStore) Get(ctx context.Context, id string) (*trade.Trade, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, trade.ErrTradeNotFound
	}
	return scanTrade(s.pool.QueryRow(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id = $1`, id))
}

func (s *TradeStore) List(ctx context.Context, f trade.ListFilter) ([]*trade.Trade, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.UserID != "" {
		if _, err := uuid.Parse(f.UserID); err != nil {
			return nil, nil
		}
		p := arg(f.UserID)
		switch f.Role {
		case "incoming":
			where = append(where, "receiver_id = "+p)
		case "outgoing":
			where = append(where, "initiator_id = "+p)
		default:
			where = append(where, "(initiator_id = "+p+" OR receiver_id = "+p+")")
		}
	}
	if f.Status != "" {
		where = append(where, "status = "+arg(string(f.Status)))
	}

	q := `SELECT ` + tradeColumns + ` FROM trades`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		q += ` LIMIT ` + arg(f.Limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	defer rows.Close()

	var out []*trade.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *TradeStore) CountByStatus(ctx context.Context) (map[trade.Status]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM trades GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count trades: %w", err)
	}
	defer rows.Close()

	counts := map[trade.Status]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[trade.Status(status)] = n
	}
	return counts, rows.Err()
}

func (s *TradeStore) PendingOutbox(ctx context.Context, limit int) ([]trade.OutboxMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, trade_id::text, topic, event_type, payload, created_at
		FROM trade_outbox
		WHERE dispatched_at IS NULL
		ORDER BY seq
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read outbox: %w", err)
	}
	defer rows.Close()

	var out []trade.OutboxMessage
	for rows.Next() {
		var m trade.OutboxMessage
		var typ string
		var payload []byte
		if err := rows.Scan(&m.ID, &m.TradeID, &m.Topic, &typ, &payload, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Type = trade.EventType(typ)
		m.Payload = payload
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *TradeStore) MarkDispatched(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE trade_outbox SET dispatched_at = $2 WHERE id = ANY($1::uuid[])`,
		ids, at,
	)
	if err != nil {
		return fmt.Errorf("failed to mark outbox dispatched: %w", err)
	}
	return nil
}

type tradeTx struct {
	tx pgx.Tx
}

func (t *tradeTx) LockTrade(ctx context.Context, id string) (*trade.Trade, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, trade.ErrTradeNotFound
	}
	return scanTrade(t.tx.QueryRow(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id = $1 FOR UPDATE`, id))
}

func (t *tradeTx) InsertTrade(ctx context.Context, tr *trade.Trade) error {
	args, err := tradeArgs(tr)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO trades (
			id, initiator_id, receiver_id, initiator_items, receiver_items, cash_amount, status,
			message, closing_reason, supersedes, superseded_by,
			initiator_shipment, receiver_shipment, initiator_receipt, receiver_receipt,
			dispute, resolution, version,
			created_at, updated_at, responded_at, shipped_at, delivered_at, resolved_at
		) VALUES (
			$1, $2, $3, $4, $5, $6::numeric, $7,
			NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, '')::uuid, NULLIF($11, '')::uuid,
			$12, $13, $14, $15,
			$16, $17, $18,
			$19, $20, $21, $22, $23, $24
		)`, args...)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

func (t *tradeTx) UpdateTrade(ctx context.Context, tr *trade.Trade, prevVersion int64) error {
	args, err := tradeArgs(tr)
	if err != nil {
		return err
	}
	args = append(args, prevVersion)
	tag, err := t.tx.Exec(ctx, `
		UPDATE trades SET
			initiator_id = $2, receiver_id = $3,
			initiator_items = $4, receiver_items = $5, cash_amount = $6::numeric, status = $7,
			message = NULLIF($8, ''), closing_reason = NULLIF($9, ''),
			supersedes = NULLIF($10, '')::uuid, superseded_by = NULLIF($11, '')::uuid,
			initiator_shipment = $12, receiver_shipment = $13,
			initiator_receipt = $14, receiver_receipt = $15,
			dispute = $16, resolution = $17, version = $18,
			created_at = $19, updated_at = $20,
			responded_at = $21, shipped_at = $22, delivered_at = $23, resolved_at = $24
		WHERE id = $1 AND version = $25`, args...)
	if err != nil {
		return fmt.Errorf("failed to update trade: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return trade.ErrConcurrentUpdate
	}
	return nil
}

func (t *tradeTx) Products(ctx context.Context, ids []string) (map[string]trade.Product, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	out := make(map[string]trade.Product, len(valid))
	if len(valid) == 0 {
		return out, nil
	}

	rows, err := t.tx.Query(ctx, `
		SELECT id::text, user_id::text, quantity, COALESCE(status, 'active')
		FROM products
		WHERE id = ANY($1::uuid[])
		FOR SHARE`, valid)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p trade.Product
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Quantity, &p.Status); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// AcquireItems relies on the product_id primary key: a concurrent insert for
// the same product blocks until the other transaction ends, then conflicts.
func (t *tradeTx) AcquireItems(ctx context.Context, tradeID string, productIDs []string) error {
	for _, pid := range productIDs {
		tag, err := t.tx.Exec(ctx, `
			INSERT INTO trade_item_locks (product_id, trade_id)
			VALUES ($1, $2)
			ON CONFLICT (product_id) DO UPDATE SET trade_id = EXCLUDED.trade_id
			WHERE trade_item_locks.trade_id = EXCLUDED.trade_id`,
			pid, tradeID,
		)
		if err != nil {
			return fmt.Errorf("failed to lock product %s: %w", pid, err)
		}
		if tag.RowsAffected() == 0 {
			return trade.ErrItemAlreadyCommitted.With("product %s is committed to another trade", pid)
		}
	}
	return nil
}

func (t *tradeTx) ReleaseItems(ctx context.Context, tradeID string) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM trade_item_locks WHERE trade_id = $1`, tradeID); err != nil {
		return fmt.Errorf("failed to release item locks: %w", err)
	}
	return nil
}

func (t *tradeTx) HeldItems(ctx context.Context, tradeID string) ([]string, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT product_id::text FROM trade_item_locks WHERE trade_id = $1 ORDER BY product_id`,
		tradeID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read item locks: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (t *tradeTx) Enqueue(ctx context.Context, msgs ...trade.OutboxMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range msgs {
		batch.Queue(`
			INSERT INTO trade_outbox (id, trade_id, topic, event_type, payload, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			m.ID, m.TradeID, m.Topic, string(m.Type), []byte(m.Payload), m.CreatedAt,
		)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to enqueue outbox messages: %w", err)
	}
	return nil
}

func scanTrade(row pgx.Row) (*trade.Trade, error) {
	var (
		t                                    trade.Trade
		initItems, recvItems                 []byte
		cash, status                         string
		iShip, rShip, iRcpt, rRcpt, disp, rs []byte
	)
	err := row.Scan(
		&t.ID, &t.InitiatorID, &t.ReceiverID,
		&initItems, &recvItems, &cash, &status,
		&t.Message, &t.ClosingReason, &t.Supersedes, &t.SupersededBy,
		&iShip, &rShip, &iRcpt, &rRcpt,
		&disp, &rs, &t.Version,
		&t.CreatedAt, &t.UpdatedAt, &t.RespondedAt, &t.ShippedAt, &t.DeliveredAt, &t.ResolvedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, trade.ErrTradeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan trade: %w", err)
	}

	t.Status = trade.Status(status)
	if t.CashAmount, err = decimal.NewFromString(cash); err != nil {
		return nil, fmt.Errorf("bad cash_amount %q: %w", cash, err)
	}

	fields := []struct {
		raw []byte
		dst any
	}{
		{initItems, &t.InitiatorItems},
		{recvItems, &t.ReceiverItems},
		{iShip, &t.InitiatorShipment},
		{rShip, &t.ReceiverShipment},
		{iRcpt, &t.InitiatorReceipt},
		{rRcpt, &t.ReceiverReceipt},
		{disp, &t.Dispute},
		{rs, &t.Resolution},
	}
	for _, f := range fields {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("failed to decode trade %s: %w", t.ID, err)
		}
	}
	return &t, nil
}

func tradeArgs(t *trade.Trade) ([]any, error) {
	initItems, err := json.Marshal(t.InitiatorItems)
	if err != nil {
		return nil, err
	}
	recvItems, err := json.Marshal(t.ReceiverItems)
	if err != nil {
		return nil, err
	}

	var nullable [6][]byte
	for i, v := range []any{t.InitiatorShipment, t.ReceiverShipment, t.InitiatorReceipt, t.ReceiverReceipt, t.Dispute, t.Resolution} {
		if nullable[i], err = jsonOrNull(v); err != nil {
			return nil, err
		}
	}

	return []any{
		t.ID, t.InitiatorID, t.ReceiverID,
		initItems, recvItems, t.CashAmount.String(), string(t.Status),
		t.Message, t.ClosingReason, t.Supersedes, t.SupersededBy,
		nullable[0], nullable[1], nullable[2], nullable[3],
		nullable[4], nullable[5], t.Version,
		t.CreatedAt, t.UpdatedAt, t.RespondedAt, t.ShippedAt, t.DeliveredAt, t.ResolvedAt,
	}, nil
}

// jsonOrNull encodes v, mapping typed nil pointers to SQL NULL.
func jsonOrNull(v any) ([]byte, error) {
	switch p := v.(type) {
	case *trade.Shipment:
		if p == nil {
			return nil, nil
		}
	case *trade.Receipt:
		if p == nil {
			return nil, nil
		}
	case *trade.Dispute:
		if p == nil {
			return nil, nil
		}
	case *trade.Resolution:
		if p == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
