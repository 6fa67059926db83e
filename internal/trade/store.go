package trade

import (
	"context"
	"time"
)

// Store persists trades, the item lock table and the outbox.
type Store interface {
	// WithinTx runs fn in a single transaction. Nothing fn wrote is visible
	// unless fn returns nil.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	Get(ctx context.Context, id string) (*Trade, error)
	List(ctx context.Context, f ListFilter) ([]*Trade, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
}

// Tx is the transactional view used by every mutating operation.
type Tx interface {
	// LockTrade loads the trade and holds an exclusive lock on it until the
	// transaction ends. Returns ErrTradeNotFound when missing.
	LockTrade(ctx context.Context, id string) (*Trade, error)
	InsertTrade(ctx context.Context, t *Trade) error
	// UpdateTrade writes t if the stored version still equals prevVersion,
	// otherwise it returns ErrConcurrentUpdate.
	UpdateTrade(ctx context.Context, t *Trade, prevVersion int64) error

	// Products reads the catalog rows for ids. Missing ids are absent from the map.
	Products(ctx context.Context, ids []string) (map[string]Product, error)

	// AcquireItems locks productIDs to tradeID. It fails with
	// ErrItemAlreadyCommitted if any product is locked to another trade.
	AcquireItems(ctx context.Context, tradeID string, productIDs []string) error
	// ReleaseItems drops every lock held by tradeID.
	ReleaseItems(ctx context.Context, tradeID string) error
	// HeldItems lists the products currently locked to tradeID.
	HeldItems(ctx context.Context, tradeID string) ([]string, error)

	Enqueue(ctx context.Context, msgs ...OutboxMessage) error
}

// OutboxStore is the relay's view of the outbox.
type OutboxStore interface {
	PendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkDispatched(ctx context.Context, ids []string, at time.Time) error
}

type ListFilter struct {
	UserID string
	// Role narrows UserID to "incoming" (receiver) or "outgoing" (initiator).
	Role   string
	Status Status
	Limit  int
}

func (f ListFilter) matches(t *Trade) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.UserID == "" {
		return true
	}
	switch f.Role {
	case "incoming":
		return t.ReceiverID == f.UserID
	case "outgoing":
		return t.InitiatorID == f.UserID
	}
	return t.IsParticipant(f.UserID)
}

// AddressBook answers whether an address belongs to a user.
type AddressBook interface {
	Owns(ctx context.Context, userID, addressID string) (bool, error)
}
