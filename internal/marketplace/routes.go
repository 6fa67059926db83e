package marketplace

import (
	"github.com/labstack/echo/v4"
)

// Register mounts the trade routes on an authenticated group.
func (h *Handler) Register(api *echo.Group) {
	g := api.Group("/trades")
	g.POST("", h.CreateTrade)
	g.GET("", h.ListTrades)
	g.GET("/:id", h.GetTrade)
	g.GET("/:id/history", h.TradeHistory)

	g.POST("/:id/accept", h.AcceptTrade)
	g.POST("/:id/reject", h.RejectTrade)
	g.POST("/:id/counter", h.CounterTrade)
	g.POST("/:id/cancel", h.CancelTrade)

	g.POST("/:id/ship", h.MarkShipped)
	g.POST("/:id/tracking", h.UpdateTracking)
	g.POST("/:id/confirm", h.ConfirmReceipt)

	g.POST("/:id/dispute", h.RaiseDispute)
	g.POST("/:id/resolve", h.ResolveDispute)
}

// RegisterAdmin mounts the moderator views on a group already behind the
// moderator guard.
func (h *Handler) RegisterAdmin(admin *echo.Group) {
	admin.GET("/disputes", h.DisputeQueue)
	admin.GET("/stats", h.Stats)
}
