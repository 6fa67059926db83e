package trade

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

type Action string

const (
	ActionAccept  Action = "accept"
	ActionReject  Action = "reject"
	ActionCounter Action = "counter"
	ActionCancel  Action = "cancel"
)

// Command is a response to a pending (or, for Cancel, accepted) trade.
// Each implementation validates its own input and guards its own transition.
type Command interface {
	Action() Action
	validate(e *Engine) error
	apply(ctx context.Context, c *change, t *Trade, actor Actor) (*Trade, error)
}

// Respond applies cmd to trade id on behalf of actor.
func (e *Engine) Respond(ctx context.Context, id string, actor Actor, cmd Command) (*Trade, error) {
	if cmd == nil {
		return nil, ErrValidation.With("missing action")
	}
	op := string(cmd.Action())
	if err := cmd.validate(e); err != nil {
		e.fail(op, id, err)
		return nil, err
	}
	return e.mutate(ctx, op, id, actor, func(ctx context.Context, c *change, t *Trade) (*Trade, error) {
		return cmd.apply(ctx, c, t, actor)
	})
}

// =========================
// Accept
// =========================

type Accept struct {
	Message string
}

func (Accept) Action() Action { return ActionAccept }

func (Accept) validate(*Engine) error { return nil }

func (a Accept) apply(ctx context.Context, c *change, t *Trade, actor Actor) (*Trade, error) {
	p, err := participant(t, actor)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusPending {
		return nil, invalidState("accept", t.Status)
	}
	if p != PartyReceiver {
		return nil, ErrInvalidActor.With("only the receiver may accept")
	}
	if err := c.verifyAvailable(ctx, t); err != nil {
		return nil, err
	}

	now := c.now
	t.Status = StatusAccepted
	t.RespondedAt = &now
	if payer, payee, amount, ok := t.CashLeg(); ok {
		c.post(t, LedgerEntry{Kind: LedgerCashHold, FromUser: payer, ToUser: payee, Amount: &amount})
	}
	c.emit(t, Event{Type: EventAccepted, ActorID: actor.ID, Recipients: []string{t.InitiatorID}, Detail: strings.TrimSpace(a.Message)})
	return t, nil
}

// =========================
// Reject
// =========================

type Reject struct {
	Reason string
}

func (Reject) Action() Action { return ActionReject }

func (Reject) validate(*Engine) error { return nil }

func (r Reject) apply(ctx context.Context, c *change, t *Trade, actor Actor) (*Trade, error) {
	p, err := participant(t, actor)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusPending {
		return nil, invalidState("reject", t.Status)
	}
	if p != PartyReceiver {
		return nil, ErrInvalidActor.With("only the receiver may reject")
	}
	if err := c.tx.ReleaseItems(ctx, t.ID); err != nil {
		return nil, err
	}

	now := c.now
	t.Status = StatusRejected
	t.RespondedAt = &now
	t.ClosingReason = strings.TrimSpace(r.Reason)
	c.emit(t, Event{Type: EventRejected, ActorID: actor.ID, Recipients: []string{t.InitiatorID}, Detail: t.ClosingReason})
	return t, nil
}

// =========================
// Counter
// =========================

// Counter replaces the terms of a pending trade with a new offer in the
// opposite direction. Items and cash are expressed in the original trade's
// orientation: InitiatorItems belong to the original initiator and a positive
// CashAmount is paid by the original initiator. A nil CashAmount keeps the
// original amount.
type Counter struct {
	InitiatorItems []Item
	ReceiverItems  []Item
	CashAmount     *decimal.Decimal
	Message        string
}

func (Counter) Action() Action { return ActionCounter }

func (co Counter) validate(e *Engine) error {
	cash := decimal.Zero
	if co.CashAmount != nil {
		cash = *co.CashAmount
	}
	return e.validateTerms(normalizeItems(co.InitiatorItems), normalizeItems(co.ReceiverItems), cash)
}

func (co Counter) apply(ctx context.Context, c *change, t *Trade, actor Actor) (*Trade, error) {
	p, err := participant(t, actor)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusPending {
		return nil, invalidState("counter", t.Status)
	}
	if p != PartyReceiver {
		return nil, ErrInvalidActor.With("only the receiver may counter")
	}

	cash := t.CashAmount
	if co.CashAmount != nil {
		cash = *co.CashAmount
	}
	next := &Trade{
		ID:             c.e.newID(),
		InitiatorID:    t.ReceiverID,
		ReceiverID:     t.InitiatorID,
		InitiatorItems: normalizeItems(co.ReceiverItems),
		ReceiverItems:  normalizeItems(co.InitiatorItems),
		CashAmount:     cash.Neg(),
		Status:         StatusPending,
		Message:        strings.TrimSpace(co.Message),
		Supersedes:     t.ID,
		Version:        1,
		CreatedAt:      c.now,
		UpdatedAt:      c.now,
	}
	if err := c.checkOwnership(ctx, next); err != nil {
		return nil, err
	}

	// Locks move from t to next in this transaction, so products offered in
	// both are never observable as free.
	if err := c.tx.ReleaseItems(ctx, t.ID); err != nil {
		return nil, err
	}
	if err := c.tx.InsertTrade(ctx, next); err != nil {
		return nil, err
	}
	if err := c.tx.AcquireItems(ctx, next.ID, next.ProductIDs()); err != nil {
		return nil, err
	}

	now := c.now
	t.Status = StatusCountered
	t.SupersededBy = next.ID
	t.RespondedAt = &now
	c.emit(next, Event{Type: EventCountered, ActorID: actor.ID, Recipients: []string{next.ReceiverID}, Detail: next.Message})
	return next, nil
}

// =========================
// Cancel
// =========================

// Cancel withdraws a trade. The initiator may cancel a pending trade; either
// party may cancel an accepted trade before anything ships.
type Cancel struct {
	Reason string
}

func (Cancel) Action() Action { return ActionCancel }

func (Cancel) validate(*Engine) error { return nil }

func (cl Cancel) apply(ctx context.Context, c *change, t *Trade, actor Actor) (*Trade, error) {
	p, err := participant(t, actor)
	if err != nil {
		return nil, err
	}
	wasAccepted := false
	switch t.Status {
	case StatusPending:
		if p != PartyInitiator {
			return nil, ErrInvalidActor.With("the receiver must reject rather than cancel")
		}
	case StatusAccepted:
		wasAccepted = true
	default:
		return nil, invalidState("cancel", t.Status)
	}
	// Only an accepted trade has a cash hold to give back.
	if wasAccepted {
		err = c.unwind(ctx, t)
	} else {
		err = c.tx.ReleaseItems(ctx, t.ID)
	}
	if err != nil {
		return nil, err
	}

	t.Status = StatusCancelled
	t.ClosingReason = strings.TrimSpace(cl.Reason)
	c.emit(t, Event{Type: EventCancelled, ActorID: actor.ID, Recipients: []string{t.UserOf(p.Other())}, Detail: t.ClosingReason})
	return t, nil
}
