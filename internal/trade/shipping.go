package trade

import (
	"context"
	"fmt"
	"strings"
)

type ShipRequest struct {
	Carrier        string
	FromAddressID  string
	TrackingNumber string
}

// MarkShipped records actor's outbound leg.
func (e *Engine) MarkShipped(ctx context.Context, id string, actor Actor, req ShipRequest) (*Trade, error) {
	req.Carrier = strings.TrimSpace(req.Carrier)
	req.FromAddressID = strings.TrimSpace(req.FromAddressID)
	req.TrackingNumber = strings.TrimSpace(req.TrackingNumber)
	if req.Carrier == "" || req.FromAddressID == "" {
		err := ErrValidation.With("carrier and fromAddressId are required")
		e.fail("ship", id, err)
		return nil, err
	}
	if e.addresses != nil {
		ok, err := e.addresses.Owns(ctx, actor.ID, req.FromAddressID)
		if err != nil {
			err = fmt.Errorf("failed to check address: %w", err)
			e.fail("ship", id, err)
			return nil, err
		}
		if !ok {
			e.fail("ship", id, ErrInvalidAddress)
			return nil, ErrInvalidAddress
		}
	}

	return e.mutate(ctx, "ship", id, actor, func(ctx context.Context, c *change, t *Trade) (*Trade, error) {
		p, err := participant(t, actor)
		if err != nil {
			return nil, err
		}
		if !t.Status.shippable() && t.Status != StatusBothShipped {
			return nil, invalidState("ship", t.Status)
		}
		if t.ShipmentOf(p) != nil {
			return nil, ErrAlreadyShipped
		}

		t.setShipment(p, &Shipment{
			Carrier:        req.Carrier,
			FromAddressID:  req.FromAddressID,
			TrackingNumber: req.TrackingNumber,
			ShippedAt:      c.now,
		})
		t.Status = afterShipment(t, p)
		if t.Status == StatusBothShipped {
			now := c.now
			t.ShippedAt = &now
		}
		c.emit(t, Event{Type: EventShipped, ActorID: actor.ID, Recipients: []string{t.UserOf(p.Other())}, Detail: req.Carrier})
		return t, nil
	})
}

// UpdateTracking sets the tracking number of actor's already shipped leg.
func (e *Engine) UpdateTracking(ctx context.Context, id string, actor Actor, trackingNumber string) (*Trade, error) {
	trackingNumber = strings.TrimSpace(trackingNumber)
	if trackingNumber == "" {
		err := ErrValidation.With("trackingNumber is required")
		e.fail("tracking", id, err)
		return nil, err
	}
	return e.mutate(ctx, "tracking", id, actor, func(ctx context.Context, c *change, t *Trade) (*Trade, error) {
		p, err := participant(t, actor)
		if err != nil {
			return nil, err
		}
		if !t.Status.IsActive() {
			return nil, invalidState("update tracking on", t.Status)
		}
		s := t.ShipmentOf(p)
		if s == nil {
			return nil, ErrInvalidStateForAction.With("leg has not been shipped")
		}
		s.TrackingNumber = trackingNumber
		c.emit(t, Event{Type: EventTrackingUpdated, ActorID: actor.ID, Recipients: []string{t.UserOf(p.Other())}, Detail: trackingNumber})
		return t, nil
	})
}

// ConfirmReceipt records that actor received the counterparty's leg. The
// second confirmation completes the trade.
func (e *Engine) ConfirmReceipt(ctx context.Context, id string, actor Actor, notes string) (*Trade, error) {
	notes = strings.TrimSpace(notes)
	return e.mutate(ctx, "confirm", id, actor, func(ctx context.Context, c *change, t *Trade) (*Trade, error) {
		p, err := participant(t, actor)
		if err != nil {
			return nil, err
		}
		if !t.Status.inTransit() {
			if t.Status == StatusCompleted && t.ReceiptOf(p) != nil {
				return nil, ErrAlreadyConfirmed
			}
			return nil, invalidState("confirm receipt for", t.Status)
		}
		if t.ReceiptOf(p) != nil {
			return nil, ErrAlreadyConfirmed
		}
		if t.ShipmentOf(p.Other()) == nil {
			return nil, ErrNothingToConfirm
		}

		t.setReceipt(p, &Receipt{Notes: notes, ConfirmedAt: c.now})
		next := afterReceipt(t, p)
		if next == StatusCompleted {
			if err := c.complete(ctx, t); err != nil {
				return nil, err
			}
		} else {
			t.Status = next
		}

		c.emit(t, Event{Type: EventReceiptConfirmed, ActorID: actor.ID, Recipients: []string{t.UserOf(p.Other())}, Detail: notes})
		if t.Status == StatusCompleted {
			c.emit(t, Event{Type: EventCompleted, ActorID: actor.ID, Recipients: []string{t.InitiatorID, t.ReceiverID}})
		}
		return t, nil
	})
}
