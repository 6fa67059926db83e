package marketplace

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/diecasthub/internal/trade"
)

// MarkShipped records the caller's outbound leg.
// POST /trades/:id/ship
func (h *Handler) MarkShipped(c echo.Context) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	var req ShipTradeDto
	if err := bind(c, &req); err != nil {
		return h.fail(c, err)
	}

	t, err := h.engine.MarkShipped(c.Request().Context(), c.Param("id"), actor, trade.ShipRequest{
		Carrier:        req.Carrier,
		FromAddressID:  req.FromAddressID,
		TrackingNumber: req.TrackingNumber,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

// POST /trades/:id/tracking
func (h *Handler) UpdateTracking(c echo.Context) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	var req UpdateTrackingDto
	if err := bind(c, &req); err != nil {
		return h.fail(c, err)
	}

	t, err := h.engine.UpdateTracking(c.Request().Context(), c.Param("id"), actor, req.TrackingNumber)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

// ConfirmReceipt records that the caller received the counterparty's items.
// POST /trades/:id/confirm
func (h *Handler) ConfirmReceipt(c echo.Context) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	var req ConfirmTradeReceiptDto
	if err := bind(c, &req); err != nil {
		return h.fail(c, err)
	}

	t, err := h.engine.ConfirmReceipt(c.Request().Context(), c.Param("id"), actor, req.Notes)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, t)
}
