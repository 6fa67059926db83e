package marketplace

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/diecasthub/internal/trade"
)

// RaiseDispute allows either party to halt a shipped trade.
// POST /trades/:id/dispute
func (h *Handler) RaiseDispute(c echo.Context) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	var req RaiseTradeDisputeDto
	if err := bind(c, &req); err != nil {
		return h.fail(c, err)
	}

	t, err := h.engine.RaiseDispute(c.Request().Context(), c.Param("id"), actor, trade.DisputeRequest{
		Reason:       trade.DisputeReason(req.Reason),
		Description:  req.Description,
		EvidenceURLs: req.EvidenceURLs,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

// ResolveDispute closes a dispute. Role checks happen in the engine.
// POST /trades/:id/resolve
func (h *Handler) ResolveDispute(c echo.Context) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	var req ResolveTradeDisputeDto
	if err := bind(c, &req); err != nil {
		return h.fail(c, err)
	}

	t, err := h.engine.ResolveDispute(c.Request().Context(), c.Param("id"), actor, trade.ResolveRequest{
		Resolution:   trade.ResolutionKind(req.Resolution),
		Notes:        req.Notes,
		RefundAmount: req.RefundAmount,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

// =========================
// Moderator views
// =========================

// GET /admin/disputes
func (h *Handler) DisputeQueue(c echo.Context) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	trades, err := h.engine.DisputeQueue(c.Request().Context(), actor)
	if err != nil {
		return h.fail(c, err)
	}
	if trades == nil {
		trades = []*trade.Trade{}
	}
	return c.JSON(http.StatusOK, TradeListResponse{Trades: trades, Count: len(trades)})
}

// GET /admin/stats
func (h *Handler) Stats(c echo.Context) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	counts, err := h.engine.Stats(c.Request().Context(), actor)
	if err != nil {
		return h.fail(c, err)
	}

	byStatus := make(map[string]int, len(trade.Statuses))
	total, active := 0, 0
	for _, s := range trade.Statuses {
		n := counts[s]
		byStatus[string(s)] = n
		total += n
		if s.IsActive() {
			active += n
		}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"by_status": byStatus,
		"total":     total,
		"active":    active,
		"disputed":  counts[trade.StatusDisputed],
	})
}
