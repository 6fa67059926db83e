package trade

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MaxStorableCash is the largest amount the trades.cash_amount column
// (NUMERIC(14,2)) holds.
var MaxStorableCash = decimal.RequireFromString("999999999999.99")

// Config bounds what a trade may contain.
type Config struct {
	MaxCashAmount   decimal.Decimal
	MaxItemsPerSide int
	Currency        string
}

func DefaultConfig() Config {
	return Config{
		MaxCashAmount:   decimal.NewFromInt(1_000_000),
		MaxItemsPerSide: 20,
		Currency:        "TRY",
	}
}

// Observer receives the outcome of every engine operation.
type Observer interface {
	Transition(op string, from, to Status)
	Failed(op string, err error)
}

type nopObserver struct{}

func (nopObserver) Transition(string, Status, Status) {}
func (nopObserver) Failed(string, error)              {}

// Engine owns the trade state machine. It is safe for concurrent use; all
// coordination happens inside Store transactions.
type Engine struct {
	store     Store
	addresses AddressBook
	cfg       Config
	logger    *zap.Logger
	obs       Observer
	now       func() time.Time
	newID     func() string
	newMsgID  func() string
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithIDGenerator sets the trade id source. Outbox message ids are drawn
// separately so trade ids stay consecutive.
func WithIDGenerator(fn func() string) Option { return func(e *Engine) { e.newID = fn } }

func WithMessageIDGenerator(fn func() string) Option { return func(e *Engine) { e.newMsgID = fn } }

func WithObserver(o Observer) Option { return func(e *Engine) { e.obs = o } }

// WithAddressBook enables ownership checks on shipment origin addresses.
func WithAddressBook(ab AddressBook) Option { return func(e *Engine) { e.addresses = ab } }

func NewEngine(store Store, cfg Config, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxItemsPerSide <= 0 {
		cfg.MaxItemsPerSide = DefaultConfig().MaxItemsPerSide
	}
	if cfg.Currency == "" {
		cfg.Currency = DefaultConfig().Currency
	}
	if !cfg.MaxCashAmount.IsPositive() || cfg.MaxCashAmount.GreaterThan(MaxStorableCash) {
		cfg.MaxCashAmount = MaxStorableCash
	}
	e := &Engine{
		store:    store,
		cfg:      cfg,
		logger:   logger.Named("trade"),
		obs:      nopObserver{},
		now:      time.Now,
		newID:    uuid.NewString,
		newMsgID: uuid.NewString,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

type CreateRequest struct {
	ReceiverID     string
	InitiatorItems []Item
	ReceiverItems  []Item
	CashAmount     decimal.Decimal
	Message        string
}

// =========================
// Create
// =========================

// Create proposes a new trade from actor to req.ReceiverID and locks every
// referenced product to it.
func (e *Engine) Create(ctx context.Context, actor Actor, req CreateRequest) (*Trade, error) {
	t, err := e.create(ctx, actor, req)
	if err != nil {
		e.fail("create", "", err)
		return nil, err
	}
	e.transitioned("create", t.ID, actor.ID, "", t.Status)
	return t, nil
}

func (e *Engine) create(ctx context.Context, actor Actor, req CreateRequest) (*Trade, error) {
	if actor.ID == "" {
		return nil, ErrInvalidActor.With("missing actor")
	}
	receiverID := strings.TrimSpace(req.ReceiverID)
	if receiverID == "" {
		return nil, ErrValidation.With("receiverId is required")
	}
	if receiverID == actor.ID {
		return nil, ErrSelfTradeNotAllowed
	}
	initiatorItems := normalizeItems(req.InitiatorItems)
	receiverItems := normalizeItems(req.ReceiverItems)
	if err := e.validateTerms(initiatorItems, receiverItems, req.CashAmount); err != nil {
		return nil, err
	}

	now := e.now().UTC()
	t := &Trade{
		ID:             e.newID(),
		InitiatorID:    actor.ID,
		ReceiverID:     receiverID,
		InitiatorItems: initiatorItems,
		ReceiverItems:  receiverItems,
		CashAmount:     req.CashAmount,
		Status:         StatusPending,
		Message:        strings.TrimSpace(req.Message),
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := e.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		c := e.newChange(tx, now)
		if err := c.checkOwnership(ctx, t); err != nil {
			return err
		}
		if err := tx.InsertTrade(ctx, t); err != nil {
			return err
		}
		if err := tx.AcquireItems(ctx, t.ID, t.ProductIDs()); err != nil {
			return err
		}
		c.emit(t, Event{Type: EventCreated, ActorID: actor.ID, Recipients: []string{t.ReceiverID}, Detail: t.Message})
		return c.flush(ctx)
	})
	if err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

func normalizeItems(items []Item) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		out = append(out, Item{ProductID: strings.TrimSpace(it.ProductID), Quantity: it.Quantity})
	}
	return out
}

// validateTerms checks item lists and the cash amount before any state is touched.
func (e *Engine) validateTerms(initiatorItems, receiverItems []Item, cash decimal.Decimal) error {
	if len(initiatorItems) == 0 {
		return ErrValidation.With("initiatorItems must contain at least one item")
	}
	if len(receiverItems) == 0 {
		return ErrValidation.With("receiverItems must contain at least one item")
	}
	if len(initiatorItems) > e.cfg.MaxItemsPerSide || len(receiverItems) > e.cfg.MaxItemsPerSide {
		return ErrValidation.With("at most %d items per side", e.cfg.MaxItemsPerSide)
	}
	seen := make(map[string]struct{}, len(initiatorItems)+len(receiverItems))
	for _, list := range [][]Item{initiatorItems, receiverItems} {
		for _, it := range list {
			if it.ProductID == "" {
				return ErrValidation.With("productId is required")
			}
			if it.Quantity < 1 {
				return ErrValidation.With("quantity for product %s must be at least 1", it.ProductID)
			}
			if _, dup := seen[it.ProductID]; dup {
				return ErrValidation.With("product %s appears more than once", it.ProductID)
			}
			seen[it.ProductID] = struct{}{}
		}
	}
	return e.validateCash(cash)
}

func (e *Engine) validateCash(cash decimal.Decimal) error {
	if !cash.Equal(cash.Round(2)) {
		return ErrCashOutOfBounds.With("cash amount supports at most 2 decimal places")
	}
	if cash.Abs().GreaterThan(e.cfg.MaxCashAmount) {
		return ErrCashOutOfBounds.With("cash amount must not exceed %s", e.cfg.MaxCashAmount.String())
	}
	return nil
}

// =========================
// Mutation plumbing
// =========================

// change collects the outbox writes of one transaction.
type change struct {
	e    *Engine
	tx   Tx
	now  time.Time
	msgs []OutboxMessage
	err  error
}

func (e *Engine) newChange(tx Tx, now time.Time) *change {
	return &change{e: e, tx: tx, now: now}
}

func (c *change) enqueue(t *Trade, topic string, typ EventType, payload any) {
	if c.err != nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		c.err = fmt.Errorf("failed to encode %s: %w", typ, err)
		return
	}
	c.msgs = append(c.msgs, OutboxMessage{
		ID:        c.e.newMsgID(),
		TradeID:   t.ID,
		Topic:     topic,
		Type:      typ,
		Payload:   b,
		CreatedAt: c.now,
	})
}

func (c *change) emit(t *Trade, ev Event) {
	ev.TradeID = t.ID
	ev.Status = t.Status
	ev.OccurredAt = c.now
	c.enqueue(t, TopicEvents, ev.Type, ev)
}

func (c *change) post(t *Trade, le LedgerEntry) {
	le.TradeID = t.ID
	if le.Amount != nil {
		le.Currency = c.e.cfg.Currency
	}
	c.enqueue(t, TopicLedger, le.Kind, le)
}

func (c *change) flush(ctx context.Context) error {
	if c.err != nil {
		return c.err
	}
	if len(c.msgs) == 0 {
		return nil
	}
	return c.tx.Enqueue(ctx, c.msgs...)
}

// checkOwnership verifies each side's items belong to that side and are tradable.
func (c *change) checkOwnership(ctx context.Context, t *Trade) error {
	products, err := c.tx.Products(ctx, t.ProductIDs())
	if err != nil {
		return err
	}
	for _, p := range []Party{PartyInitiator, PartyReceiver} {
		owner := t.UserOf(p)
		for _, it := range t.ItemsOf(p) {
			prod, ok := products[it.ProductID]
			if !ok {
				return ErrProductNotFound.With("product %s not found", it.ProductID)
			}
			if prod.OwnerID != owner {
				return ErrInvalidItemOwnership.With("product %s is not owned by the %s", it.ProductID, p)
			}
			if !prod.Tradable() || (prod.Quantity > 0 && it.Quantity > prod.Quantity) {
				return ErrItemNotTradable.With("product %s is not available in the requested quantity", it.ProductID)
			}
		}
	}
	return nil
}

// verifyAvailable re-checks, inside the accepting transaction, that every item
// is still locked to t and still owned by the party offering it.
func (c *change) verifyAvailable(ctx context.Context, t *Trade) error {
	held, err := c.tx.HeldItems(ctx, t.ID)
	if err != nil {
		return err
	}
	locked := make(map[string]bool, len(held))
	for _, id := range held {
		locked[id] = true
	}
	products, err := c.tx.Products(ctx, t.ProductIDs())
	if err != nil {
		return err
	}
	for _, p := range []Party{PartyInitiator, PartyReceiver} {
		for _, it := range t.ItemsOf(p) {
			prod, ok := products[it.ProductID]
			if !locked[it.ProductID] || !ok || prod.OwnerID != t.UserOf(p) || !prod.Tradable() ||
				(prod.Quantity > 0 && it.Quantity > prod.Quantity) {
				return ErrItemNoLongerAvailable.With("product %s is no longer available", it.ProductID)
			}
		}
	}
	return nil
}

// mutate loads trade id under an exclusive lock, lets fn change it and
// persists the result with a compare-and-set on its version. fn returns the
// trade the caller should see, which differs from t for counter-offers.
func (e *Engine) mutate(ctx context.Context, op, id string, actor Actor, fn func(ctx context.Context, c *change, t *Trade) (*Trade, error)) (*Trade, error) {
	var (
		out      *Trade
		from, to Status
	)
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		t, err := tx.LockTrade(ctx, id)
		if err != nil {
			return err
		}
		from = t.Status
		prev := t.Version
		c := e.newChange(tx, e.now().UTC())

		res, err := fn(ctx, c, t)
		if err != nil {
			return err
		}
		if !CanTransition(from, t.Status) {
			return invalidState(op, from)
		}
		t.Version = prev + 1
		t.UpdatedAt = c.now
		if err := tx.UpdateTrade(ctx, t, prev); err != nil {
			return err
		}
		if err := c.flush(ctx); err != nil {
			return err
		}
		to = t.Status
		out = res.Clone()
		return nil
	})
	if err != nil {
		e.fail(op, id, err)
		return nil, err
	}
	e.transitioned(op, id, actor.ID, from, to)
	return out, nil
}

// participant resolves actor's side of t.
func participant(t *Trade, actor Actor) (Party, error) {
	p, ok := t.PartyOf(actor.ID)
	if !ok || actor.ID == "" {
		return "", ErrInvalidActor.With("user is not a party to this trade")
	}
	return p, nil
}

func (e *Engine) transitioned(op, id, actorID string, from, to Status) {
	e.obs.Transition(op, from, to)
	e.logger.Info("trade updated",
		zap.String("op", op),
		zap.String("trade_id", id),
		zap.String("actor_id", actorID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
}

func (e *Engine) fail(op, id string, err error) {
	e.obs.Failed(op, err)
	if te, ok := AsError(err); ok {
		e.logger.Debug("trade operation refused",
			zap.String("op", op),
			zap.String("trade_id", id),
			zap.String("code", te.Code),
			zap.String("reason", te.Message),
		)
		return
	}
	e.logger.Error("trade operation failed", zap.String("op", op), zap.String("trade_id", id), zap.Error(err))
}
