package handler

import (
	"net/http"

	"mediabib-service/internal/middleware"
	"mediabib-service/internal/service"
	"mediabib-service/pkg/logger"
	"mediabib-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// GetAccount returns the authenticated identity
func (h *Handler) GetAccount(c echo.Context) error {
	user, err := h.svc.GetAccount(c.Request().Context(), middleware.ActorFrom(c))
	if err != nil {
		return h.fail(c, "account", err)
	}
	return c.JSON(http.StatusOK, newUserView(user))
}

// UpdateAccount changes the name and email of the authenticated identity
func (h *Handler) UpdateAccount(c echo.Context) error {
	var patch service.AccountPatch
	if err := c.Bind(&patch); err != nil {
		return badRequest(c, err)
	}
	user, err := h.svc.UpdateAccount(c.Request().Context(), middleware.ActorFrom(c), patch)
	if err != nil {
		return h.fail(c, "account_update", err)
	}
	return c.JSON(http.StatusOK, newUserView(user))
}

// SelectLibrary sets or clears the superadmin's library selection and
// returns a token pair carrying it
func (h *Handler) SelectLibrary(c echo.Context) error {
	log := logger.FromEcho(c)
	var req struct {
		LibraryID *uint `json:"library_id"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}

	pair, err := h.svc.SelectLibrary(c.Request().Context(), middleware.ActorFrom(c), req.LibraryID)
	if err != nil {
		prometheus.RecordAuthError("library_selection_failed")
		return h.fail(c, "library_selection", err)
	}

	log.Info("Library selection issued", zap.Bool("cleared", req.LibraryID == nil))
	return c.JSON(http.StatusOK, echo.Map{
		"access":              pair.Access,
		"refresh":             pair.Refresh,
		"selected_library_id": req.LibraryID,
	})
}

// Health reports liveness
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "healthy", "service": h.serviceName})
}
