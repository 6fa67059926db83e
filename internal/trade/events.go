package trade

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	TopicEvents = "trade.events"
	TopicLedger = "trade.ledger"
)

type EventType string

const (
	EventCreated          EventType = "trade.created"
	EventAccepted         EventType = "trade.accepted"
	EventRejected         EventType = "trade.rejected"
	EventCountered        EventType = "trade.countered"
	EventCancelled        EventType = "trade.cancelled"
	EventShipped          EventType = "trade.shipped"
	EventTrackingUpdated  EventType = "trade.tracking_updated"
	EventReceiptConfirmed EventType = "trade.receipt_confirmed"
	EventCompleted        EventType = "trade.completed"
	EventDisputed         EventType = "trade.disputed"
	EventResolved         EventType = "trade.resolved"

	LedgerCashHold          EventType = "cash.hold"
	LedgerCashRelease       EventType = "cash.release"
	LedgerCashSettle        EventType = "cash.settle"
	LedgerCashRefund        EventType = "cash.refund"
	LedgerOwnershipTransfer EventType = "ownership.transfer"
)

// OutboxMessage is a side effect persisted in the same transaction as the
// trade mutation that produced it.
type OutboxMessage struct {
	ID           string          `json:"id"`
	TradeID      string          `json:"tradeId"`
	Topic        string          `json:"topic"`
	Type         EventType       `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	CreatedAt    time.Time       `json:"createdAt"`
	DispatchedAt *time.Time      `json:"dispatchedAt,omitempty"`
}

// Event is the payload of a trade.events message.
type Event struct {
	TradeID    string    `json:"tradeId"`
	Type       EventType `json:"type"`
	ActorID    string    `json:"actorId"`
	Status     Status    `json:"status"`
	Recipients []string  `json:"recipients"`
	// Moderators is set when the event needs moderator attention.
	Moderators bool      `json:"moderators,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// LedgerEntry is the payload of a trade.ledger message. Cash entries carry
// Amount and Currency; ownership entries carry ProductID and Quantity.
type LedgerEntry struct {
	TradeID   string           `json:"tradeId"`
	Kind      EventType        `json:"kind"`
	FromUser  string           `json:"fromUser"`
	ToUser    string           `json:"toUser"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	Currency  string           `json:"currency,omitempty"`
	ProductID string           `json:"productId,omitempty"`
	Quantity  int              `json:"quantity,omitempty"`
}

// DecodeEvent unmarshals a trade.events payload.
func DecodeEvent(m OutboxMessage) (Event, error) {
	var ev Event
	err := json.Unmarshal(m.Payload, &ev)
	return ev, err
}

// DecodeLedgerEntry unmarshals a trade.ledger payload.
func DecodeLedgerEntry(m OutboxMessage) (LedgerEntry, error) {
	var le LedgerEntry
	err := json.Unmarshal(m.Payload, &le)
	return le, err
}
