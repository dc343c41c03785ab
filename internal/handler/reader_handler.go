package handler

import (
	"context"
	"net/http"

	"mediabib-service/internal/middleware"
	"mediabib-service/internal/policy"
	"mediabib-service/internal/service"

	"github.com/labstack/echo/v4"
)

// GetMe returns the authenticated reader's profile
func (h *Handler) GetMe(c echo.Context) error {
	profile, err := h.svc.GetOwnProfile(c.Request().Context(), middleware.ActorFrom(c))
	if err != nil {
		return h.fail(c, "reader_me", err)
	}
	return c.JSON(http.StatusOK, newProfileView(profile))
}

// UpdateMe applies a partial update and returns the full profile
func (h *Handler) UpdateMe(c echo.Context) error {
	actor := middleware.ActorFrom(c)
	// authorize before looking at the body
	if _, err := h.svc.GetOwnProfile(c.Request().Context(), actor); err != nil {
		return h.fail(c, "reader_me_update", err)
	}

	var patch service.OwnProfilePatch
	if err := c.Bind(&patch); err != nil {
		return badRequest(c, err)
	}
	profile, err := h.svc.UpdateOwnProfile(c.Request().Context(), actor, patch)
	if err != nil {
		return h.fail(c, "reader_me_update", err)
	}
	return c.JSON(http.StatusOK, newProfileView(profile))
}

// GetMyLoans is a placeholder until loans exist
func (h *Handler) GetMyLoans(c echo.Context) error {
	return h.collection(c, "reader_loans", h.svc.OwnLoans)
}

// GetMyReservations is a placeholder until reservations exist
func (h *Handler) GetMyReservations(c echo.Context) error {
	return h.collection(c, "reader_reservations", h.svc.OwnReservations)
}

// GetMyHistory is a placeholder until loan history exists
func (h *Handler) GetMyHistory(c echo.Context) error {
	return h.collection(c, "reader_history", h.svc.OwnHistory)
}

func (h *Handler) collection(c echo.Context, operation string, fetch func(context.Context, policy.Actor) (*service.Collection, error)) error {
	result, err := fetch(c.Request().Context(), middleware.ActorFrom(c))
	if err != nil {
		return h.fail(c, operation, err)
	}
	return c.JSON(http.StatusOK, result)
}
