package marketplace

import (
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/diecasthub/internal/trade"
)

type ItemDto struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"min=1"`
}

// CreateTradeDto is the body of POST /trades.
type CreateTradeDto struct {
	ReceiverID     string           `json:"receiverId" validate:"required"`
	InitiatorItems []ItemDto        `json:"initiatorItems" validate:"required,min=1,dive"`
	ReceiverItems  []ItemDto        `json:"receiverItems" validate:"required,min=1,dive"`
	CashAmount     *decimal.Decimal `json:"cashAmount"`
	Message        string           `json:"message" validate:"max=1000"`
}

type AcceptTradeDto struct {
	Message string `json:"message" validate:"max=1000"`
}

type RejectTradeDto struct {
	Reason string `json:"reason" validate:"max=1000"`
}

type CounterTradeDto struct {
	InitiatorItems []ItemDto        `json:"initiatorItems" validate:"required,min=1,dive"`
	ReceiverItems  []ItemDto        `json:"receiverItems" validate:"required,min=1,dive"`
	CashAmount     *decimal.Decimal `json:"cashAmount"`
	Message        string           `json:"message" validate:"max=1000"`
}

type CancelTradeDto struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

type ShipTradeDto struct {
	Carrier        string `json:"carrier" validate:"required,max=100"`
	FromAddressID  string `json:"fromAddressId" validate:"required"`
	TrackingNumber string `json:"trackingNumber" validate:"max=100"`
}

type UpdateTrackingDto struct {
	TrackingNumber string `json:"trackingNumber" validate:"required,max=100"`
}

type ConfirmTradeReceiptDto struct {
	Notes string `json:"notes" validate:"max=1000"`
}

type RaiseTradeDisputeDto struct {
	Reason       string   `json:"reason" validate:"required,oneof=not_as_described damaged wrong_item not_received"`
	Description  string   `json:"description" validate:"required,max=2000"`
	EvidenceURLs []string `json:"evidenceUrls" validate:"max=10,dive,url"`
}

type ResolveTradeDisputeDto struct {
	Resolution   string           `json:"resolution" validate:"required,oneof=complete_trade cancel_trade partial_refund"`
	Notes        string           `json:"notes" validate:"required,max=2000"`
	RefundAmount *decimal.Decimal `json:"refundAmount"`
}

func toItems(in []ItemDto) []trade.Item {
	out := make([]trade.Item, len(in))
	for i, it := range in {
		out[i] = trade.Item{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	return out
}

func (d CreateTradeDto) request() trade.CreateRequest {
	req := trade.CreateRequest{
		ReceiverID:     d.ReceiverID,
		InitiatorItems: toItems(d.InitiatorItems),
		ReceiverItems:  toItems(d.ReceiverItems),
		Message:        d.Message,
	}
	if d.CashAmount != nil {
		req.CashAmount = *d.CashAmount
	}
	return req
}

func (d CounterTradeDto) command() trade.Counter {
	return trade.Counter{
		InitiatorItems: toItems(d.InitiatorItems),
		ReceiverItems:  toItems(d.ReceiverItems),
		CashAmount:     d.CashAmount,
		Message:        d.Message,
	}
}

// TradeListResponse wraps list endpoints so the payload can grow fields.
type TradeListResponse struct {
	Trades []*trade.Trade `json:"trades"`
	Count  int            `json:"count"`
}
