package marketplace

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sudo-init-do/diecasthub/internal/trade"
)

var kindStatus = map[trade.Kind]int{
	trade.KindValidation:    http.StatusBadRequest,
	trade.KindAuthorization: http.StatusForbidden,
	trade.KindState:         http.StatusConflict,
	trade.KindConflict:      http.StatusConflict,
	trade.KindBusiness:      http.StatusUnprocessableEntity,
	trade.KindNotFound:      http.StatusNotFound,
}

// StatusFor maps an engine error kind to its HTTP status.
func StatusFor(k trade.Kind) int {
	if s, ok := kindStatus[k]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func (h *Handler) fail(c echo.Context, err error) error {
	if te, ok := trade.AsError(err); ok {
		return c.JSON(StatusFor(te.Kind), echo.Map{
			"error":     te.Message,
			"code":      te.Code,
			"kind":      te.Kind,
			"retryable": te.Retryable(),
		})
	}
	var he *echo.HTTPError
	if errors.As(err, &he) && he.Code == http.StatusBadRequest {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error":     he.Message,
			"code":      trade.ErrValidation.Code,
			"kind":      trade.KindValidation,
			"retryable": false,
		})
	}
	h.logger.Error("request failed",
		zap.String("path", c.Path()),
		zap.String("trade_id", c.Param("id")),
		zap.Error(err),
	)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
