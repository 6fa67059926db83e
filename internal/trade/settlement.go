package trade

import (
	"context"

	"github.com/shopspring/decimal"
)

// complete moves t to completed and posts the ownership and cash entries.
func (c *change) complete(ctx context.Context, t *Trade) error {
	now := c.now
	t.Status = StatusCompleted
	t.DeliveredAt = &now
	t.ResolvedAt = &now
	return c.settle(ctx, t, decimal.Zero)
}

// settle releases the item locks, transfers every item to its new owner and
// pays the cash leg less refund back to the payer.
func (c *change) settle(ctx context.Context, t *Trade, refund decimal.Decimal) error {
	if err := c.tx.ReleaseItems(ctx, t.ID); err != nil {
		return err
	}
	for _, p := range []Party{PartyInitiator, PartyReceiver} {
		for _, it := range t.ItemsOf(p) {
			c.post(t, LedgerEntry{
				Kind:      LedgerOwnershipTransfer,
				FromUser:  t.UserOf(p),
				ToUser:    t.UserOf(p.Other()),
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
			})
		}
	}

	payer, payee, amount, ok := t.CashLeg()
	if !ok {
		return nil
	}
	if refund.IsPositive() {
		r := refund
		c.post(t, LedgerEntry{Kind: LedgerCashRefund, FromUser: payee, ToUser: payer, Amount: &r})
	}
	if rest := amount.Sub(refund); rest.IsPositive() {
		c.post(t, LedgerEntry{Kind: LedgerCashSettle, FromUser: payer, ToUser: payee, Amount: &rest})
	}
	return nil
}

// unwind releases the item locks and any cash hold without moving ownership.
func (c *change) unwind(ctx context.Context, t *Trade) error {
	if err := c.tx.ReleaseItems(ctx, t.ID); err != nil {
		return err
	}
	if payer, payee, amount, ok := t.CashLeg(); ok {
		c.post(t, LedgerEntry{Kind: LedgerCashRelease, FromUser: payee, ToUser: payer, Amount: &amount})
	}
	return nil
}
