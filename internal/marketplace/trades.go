package marketplace

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/diecasthub/internal/trade"
)

// =========================
// CreateTrade - initiator proposes a swap
// POST /trades
// =========================
func (h *Handler) CreateTrade(c echo.Context) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	var req CreateTradeDto
	if err := bind(c, &req); err != nil {
		return h.fail(c, err)
	}

	t, err := h.engine.Create(c.Request().Context(), actor, req.request())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, t)
}

// ListTrades returns the caller's trades.
// GET /trades?role=incoming|outgoing&status=...&limit=...
func (h *Handler) ListTrades(c echo.Context) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}

	f := trade.ListFilter{
		UserID: c.QueryParam("userId"),
		Role:   c.QueryParam("role"),
		Status: trade.Status(c.QueryParam("status")),
	}
	switch f.Role {
	case "", "incoming", "outgoing":
	default:
		return h.fail(c, trade.ErrValidation.With("role must be incoming or outgoing"))
	}
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return h.fail(c, trade.ErrValidation.With("limit must be a number"))
		}
		f.Limit = n
	}

	trades, err := h.engine.List(c.Request().Context(), actor, f)
	if err != nil {
		return h.fail(c, err)
	}
	if trades == nil {
		trades = []*trade.Trade{}
	}
	return c.JSON(http.StatusOK, TradeListResponse{Trades: trades, Count: len(trades)})
}

// GET /trades/:id
func (h *Handler) GetTrade(c echo.Context) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	t, err := h.engine.Get(c.Request().Context(), c.Param("id"), actor)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

// TradeHistory returns the counter-offer chain, oldest first.
// GET /trades/:id/history
func (h *Handler) TradeHistory(c echo.Context) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	chain, err := h.engine.History(c.Request().Context(), c.Param("id"), actor)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, TradeListResponse{Trades: chain, Count: len(chain)})
}

// =========================
// Responses to a pending trade
// =========================

// POST /trades/:id/accept
func (h *Handler) AcceptTrade(c echo.Context) error {
	var req AcceptTradeDto
	return h.respond(c, &req, func() trade.Command { return trade.Accept{Message: req.Message} })
}

// POST /trades/:id/reject
func (h *Handler) RejectTrade(c echo.Context) error {
	var req RejectTradeDto
	return h.respond(c, &req, func() trade.Command { return trade.Reject{Reason: req.Reason} })
}

// CounterTrade answers with a new offer; the response is the new trade.
// POST /trades/:id/counter
func (h *Handler) CounterTrade(c echo.Context) error {
	var req CounterTradeDto
	return h.respond(c, &req, func() trade.Command { return req.command() })
}

// POST /trades/:id/cancel
func (h *Handler) CancelTrade(c echo.Context) error {
	var req CancelTradeDto
	return h.respond(c, &req, func() trade.Command { return trade.Cancel{Reason: req.Reason} })
}

// respond binds req and then hands the command built from it to the engine.
func (h *Handler) respond(c echo.Context, req any, cmd func() trade.Command) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	if err := bind(c, req); err != nil {
		return h.fail(c, err)
	}

	t, err := h.engine.Respond(c.Request().Context(), c.Param("id"), actor, cmd())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, t)
}
