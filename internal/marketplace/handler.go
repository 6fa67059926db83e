package marketplace

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sudo-init-do/diecasthub/internal/trade"
)

// Handler exposes the trade engine over HTTP.
type Handler struct {
	engine *trade.Engine
	logger *zap.Logger
}

func NewHandler(engine *trade.Engine, logger *zap.Logger) *Handler {
	return &Handler{engine: engine, logger: logger.Named("http.trades")}
}

func actorFrom(c echo.Context) (trade.Actor, bool) {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return trade.Actor{}, false
	}
	role, _ := c.Get("role").(string)
	return trade.Actor{ID: uid, Role: trade.Role(role)}, true
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

// bind decodes the body into dst and runs its validate tags.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return err
	}
	return c.Validate(dst)
}
