package trade

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending            Status = "pending"
	StatusAccepted           Status = "accepted"
	StatusRejected           Status = "rejected"
	StatusCountered          Status = "countered"
	StatusCancelled          Status = "cancelled"
	StatusInitiatorShipped   Status = "initiator_shipped"
	StatusReceiverShipped    Status = "receiver_shipped"
	StatusBothShipped        Status = "both_shipped"
	StatusInitiatorDelivered Status = "initiator_delivered"
	StatusReceiverDelivered  Status = "receiver_delivered"
	StatusCompleted          Status = "completed"
	StatusDisputed           Status = "disputed"
	StatusResolved           Status = "resolved"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusPending, StatusAccepted, StatusRejected, StatusCountered, StatusCancelled,
	StatusInitiatorShipped, StatusReceiverShipped, StatusBothShipped,
	StatusInitiatorDelivered, StatusReceiverDelivered,
	StatusCompleted, StatusDisputed, StatusResolved,
}

type DisputeReason string

const (
	ReasonNotAsDescribed DisputeReason = "not_as_described"
	ReasonDamaged        DisputeReason = "damaged"
	ReasonWrongItem      DisputeReason = "wrong_item"
	ReasonNotReceived    DisputeReason = "not_received"
)

func (r DisputeReason) Valid() bool {
	switch r {
	case ReasonNotAsDescribed, ReasonDamaged, ReasonWrongItem, ReasonNotReceived:
		return true
	}
	return false
}

type ResolutionKind string

const (
	ResolutionCompleteTrade ResolutionKind = "complete_trade"
	ResolutionCancelTrade   ResolutionKind = "cancel_trade"
	ResolutionPartialRefund ResolutionKind = "partial_refund"
)

func (r ResolutionKind) Valid() bool {
	switch r {
	case ResolutionCompleteTrade, ResolutionCancelTrade, ResolutionPartialRefund:
		return true
	}
	return false
}

// Party identifies one side of a trade.
type Party string

const (
	PartyInitiator Party = "initiator"
	PartyReceiver  Party = "receiver"
)

func (p Party) Other() Party {
	if p == PartyInitiator {
		return PartyReceiver
	}
	return PartyInitiator
}

type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Actor is the authenticated caller of an engine operation.
type Actor struct {
	ID   string
	Role Role
}

func (a Actor) IsModerator() bool {
	return a.Role == RoleModerator || a.Role == RoleAdmin
}

type Item struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Shipment is one party's outbound leg.
type Shipment struct {
	Carrier        string    `json:"carrier"`
	FromAddressID  string    `json:"fromAddressId"`
	TrackingNumber string    `json:"trackingNumber,omitempty"`
	ShippedAt      time.Time `json:"shippedAt"`
}

// Receipt is one party's confirmation of what they received.
type Receipt struct {
	Notes       string    `json:"notes,omitempty"`
	ConfirmedAt time.Time `json:"confirmedAt"`
}

type Dispute struct {
	Reason       DisputeReason `json:"reason"`
	Description  string        `json:"description"`
	EvidenceURLs []string      `json:"evidenceUrls,omitempty"`
	RaisedBy     string        `json:"raisedBy"`
	RaisedAt     time.Time     `json:"raisedAt"`
}

type Resolution struct {
	Resolution   ResolutionKind   `json:"resolution"`
	Notes        string           `json:"notes"`
	RefundAmount *decimal.Decimal `json:"refundAmount,omitempty"`
	ResolvedBy   string           `json:"resolvedBy"`
}

type Trade struct {
	ID             string          `json:"id"`
	InitiatorID    string          `json:"initiatorId"`
	ReceiverID     string          `json:"receiverId"`
	InitiatorItems []Item          `json:"initiatorItems"`
	ReceiverItems  []Item          `json:"receiverItems"`
	CashAmount     decimal.Decimal `json:"cashAmount"`
	Status         Status          `json:"status"`
	Message        string          `json:"message,omitempty"`
	ClosingReason  string          `json:"closingReason,omitempty"`

	Supersedes   string `json:"supersedes,omitempty"`
	SupersededBy string `json:"supersededBy,omitempty"`

	InitiatorShipment *Shipment `json:"initiatorShipment,omitempty"`
	ReceiverShipment  *Shipment `json:"receiverShipment,omitempty"`
	InitiatorReceipt  *Receipt  `json:"initiatorReceipt,omitempty"`
	ReceiverReceipt   *Receipt  `json:"receiverReceipt,omitempty"`

	Dispute    *Dispute    `json:"dispute,omitempty"`
	Resolution *Resolution `json:"resolution,omitempty"`

	Version     int64      `json:"version"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	RespondedAt *time.Time `json:"respondedAt,omitempty"`
	ShippedAt   *time.Time `json:"shippedAt,omitempty"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
}

// PartyOf reports which side userID is on.
func (t *Trade) PartyOf(userID string) (Party, bool) {
	switch userID {
	case t.InitiatorID:
		return PartyInitiator, true
	case t.ReceiverID:
		return PartyReceiver, true
	}
	return "", false
}

func (t *Trade) UserOf(p Party) string {
	if p == PartyInitiator {
		return t.InitiatorID
	}
	return t.ReceiverID
}

func (t *Trade) IsParticipant(userID string) bool {
	_, ok := t.PartyOf(userID)
	return ok
}

func (t *Trade) ItemsOf(p Party) []Item {
	if p == PartyInitiator {
		return t.InitiatorItems
	}
	return t.ReceiverItems
}

func (t *Trade) ShipmentOf(p Party) *Shipment {
	if p == PartyInitiator {
		return t.InitiatorShipment
	}
	return t.ReceiverShipment
}

func (t *Trade) setShipment(p Party, s *Shipment) {
	if p == PartyInitiator {
		t.InitiatorShipment = s
	} else {
		t.ReceiverShipment = s
	}
}

func (t *Trade) ReceiptOf(p Party) *Receipt {
	if p == PartyInitiator {
		return t.InitiatorReceipt
	}
	return t.ReceiverReceipt
}

func (t *Trade) setReceipt(p Party, r *Receipt) {
	if p == PartyInitiator {
		t.InitiatorReceipt = r
	} else {
		t.ReceiverReceipt = r
	}
}

// ProductIDs returns every product referenced by the trade, initiator side first.
func (t *Trade) ProductIDs() []string {
	ids := make([]string, 0, len(t.InitiatorItems)+len(t.ReceiverItems))
	for _, it := range t.InitiatorItems {
		ids = append(ids, it.ProductID)
	}
	for _, it := range t.ReceiverItems {
		ids = append(ids, it.ProductID)
	}
	return ids
}

// CashLeg resolves the signed cash amount into payer, payee and absolute amount.
// ok is false when the trade has no cash leg.
func (t *Trade) CashLeg() (payer, payee string, amount decimal.Decimal, ok bool) {
	switch t.CashAmount.Sign() {
	case 1:
		return t.InitiatorID, t.ReceiverID, t.CashAmount, true
	case -1:
		return t.ReceiverID, t.InitiatorID, t.CashAmount.Neg(), true
	}
	return "", "", decimal.Zero, false
}

// Clone returns a deep copy so callers never share mutable state with a store.
func (t *Trade) Clone() *Trade {
	if t == nil {
		return nil
	}
	c := *t
	c.InitiatorItems = append([]Item(nil), t.InitiatorItems...)
	c.ReceiverItems = append([]Item(nil), t.ReceiverItems...)
	if t.InitiatorShipment != nil {
		s := *t.InitiatorShipment
		c.InitiatorShipment = &s
	}
	if t.ReceiverShipment != nil {
		s := *t.ReceiverShipment
		c.ReceiverShipment = &s
	}
	if t.InitiatorReceipt != nil {
		r := *t.InitiatorReceipt
		c.InitiatorReceipt = &r
	}
	if t.ReceiverReceipt != nil {
		r := *t.ReceiverReceipt
		c.ReceiverReceipt = &r
	}
	if t.Dispute != nil {
		d := *t.Dispute
		d.EvidenceURLs = append([]string(nil), t.Dispute.EvidenceURLs...)
		c.Dispute = &d
	}
	if t.Resolution != nil {
		r := *t.Resolution
		if t.Resolution.RefundAmount != nil {
			amt := *t.Resolution.RefundAmount
			r.RefundAmount = &amt
		}
		c.Resolution = &r
	}
	c.RespondedAt = cloneTime(t.RespondedAt)
	c.ShippedAt = cloneTime(t.ShippedAt)
	c.DeliveredAt = cloneTime(t.DeliveredAt)
	c.ResolvedAt = cloneTime(t.ResolvedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Product is the catalog view the engine needs for ownership checks.
type Product struct {
	ID       string
	OwnerID  string
	Quantity int
	Status   string
}

func (p Product) Tradable() bool {
	return p.Status == "" || p.Status == "active"
}
