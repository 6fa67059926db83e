package trade

import (
	"context"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

const maxEvidenceURLs = 10

type DisputeRequest struct {
	Reason       DisputeReason
	Description  string
	EvidenceURLs []string
}

func (r DisputeRequest) validate() error {
	if !r.Reason.Valid() {
		return ErrValidation.With("unknown dispute reason %q", r.Reason)
	}
	if strings.TrimSpace(r.Description) == "" {
		return ErrValidation.With("description is required")
	}
	if len(r.EvidenceURLs) > maxEvidenceURLs {
		return ErrValidation.With("at most %d evidence urls", maxEvidenceURLs)
	}
	for _, raw := range r.EvidenceURLs {
		u, err := url.ParseRequestURI(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return ErrValidation.With("invalid evidence url %q", raw)
		}
	}
	return nil
}

// RaiseDispute halts a shipped trade until a moderator resolves it.
func (e *Engine) RaiseDispute(ctx context.Context, id string, actor Actor, req DisputeRequest) (*Trade, error) {
	if err := req.validate(); err != nil {
		e.fail("dispute", id, err)
		return nil, err
	}
	return e.mutate(ctx, "dispute", id, actor, func(ctx context.Context, c *change, t *Trade) (*Trade, error) {
		p, err := participant(t, actor)
		if err != nil {
			return nil, err
		}
		if t.Status == StatusDisputed {
			return nil, ErrDisputeAlreadyOpen
		}
		if !t.Status.Disputable() {
			return nil, invalidState("dispute", t.Status)
		}

		t.Status = StatusDisputed
		t.Dispute = &Dispute{
			Reason:       req.Reason,
			Description:  strings.TrimSpace(req.Description),
			EvidenceURLs: append([]string(nil), req.EvidenceURLs...),
			RaisedBy:     actor.ID,
			RaisedAt:     c.now,
		}
		c.emit(t, Event{
			Type:       EventDisputed,
			ActorID:    actor.ID,
			Recipients: []string{t.UserOf(p.Other())},
			Moderators: true,
			Detail:     string(req.Reason),
		})
		return t, nil
	})
}

type ResolveRequest struct {
	Resolution   ResolutionKind
	Notes        string
	RefundAmount *decimal.Decimal
}

func (r ResolveRequest) validate() error {
	if !r.Resolution.Valid() {
		return ErrValidation.With("unknown resolution %q", r.Resolution)
	}
	if strings.TrimSpace(r.Notes) == "" {
		return ErrValidation.With("notes are required")
	}
	if r.Resolution == ResolutionPartialRefund && r.RefundAmount == nil {
		return ErrValidation.With("refundAmount is required for partial_refund")
	}
	if r.Resolution != ResolutionPartialRefund && r.RefundAmount != nil {
		return ErrValidation.With("refundAmount only applies to partial_refund")
	}
	return nil
}

// ResolveDispute closes an open dispute with a moderator's decision.
func (e *Engine) ResolveDispute(ctx context.Context, id string, actor Actor, req ResolveRequest) (*Trade, error) {
	if !actor.IsModerator() {
		e.fail("resolve", id, ErrUnauthorizedResolver)
		return nil, ErrUnauthorizedResolver
	}
	if err := req.validate(); err != nil {
		e.fail("resolve", id, err)
		return nil, err
	}
	return e.mutate(ctx, "resolve", id, actor, func(ctx context.Context, c *change, t *Trade) (*Trade, error) {
		if t.Status != StatusDisputed {
			return nil, ErrDisputeNotOpen
		}

		var err error
		switch req.Resolution {
		case ResolutionCompleteTrade:
			err = c.settle(ctx, t, decimal.Zero)
		case ResolutionCancelTrade:
			err = c.unwind(ctx, t)
		case ResolutionPartialRefund:
			_, _, amount, ok := t.CashLeg()
			refund := *req.RefundAmount
			if !ok || !refund.IsPositive() || refund.GreaterThan(amount) {
				return nil, ErrInvalidRefundAmount.With("refund must be greater than 0 and at most %s", amount.String())
			}
			if !refund.Equal(refund.Round(2)) {
				return nil, ErrInvalidRefundAmount.With("refund supports at most 2 decimal places")
			}
			err = c.settle(ctx, t, refund)
		}
		if err != nil {
			return nil, err
		}

		now := c.now
		t.Status = StatusResolved
		t.ResolvedAt = &now
		res := &Resolution{
			Resolution: req.Resolution,
			Notes:      strings.TrimSpace(req.Notes),
			ResolvedBy: actor.ID,
		}
		if req.RefundAmount != nil {
			amt := *req.RefundAmount
			res.RefundAmount = &amt
		}
		t.Resolution = res
		c.emit(t, Event{
			Type:       EventResolved,
			ActorID:    actor.ID,
			Recipients: []string{t.InitiatorID, t.ReceiverID},
			Detail:     string(req.Resolution),
		})
		return t, nil
	})
}
