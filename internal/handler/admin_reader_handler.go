package handler

import (
	"net/http"
	"strconv"

	"mediabib-service/internal/middleware"
	"mediabib-service/internal/service"

	"github.com/labstack/echo/v4"
)

type readerPageResponse struct {
	Count    int64             `json:"count"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	Results  []adminReaderView `json:"results"`
}

// AdminListReaders lists readers in the actor's library scope
func (h *Handler) AdminListReaders(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	result, err := h.svc.ListReaders(c.Request().Context(), middleware.ActorFrom(c), service.ReaderQuery{
		Search: c.QueryParam("search"),
		Page:   page,
	})
	if err != nil {
		return h.fail(c, "admin_reader_list", err)
	}

	views := make([]adminReaderView, 0, len(result.Results))
	for i := range result.Results {
		views = append(views, newAdminReaderView(&result.Results[i]))
	}
	return c.JSON(http.StatusOK, readerPageResponse{
		Count:    result.Count,
		Page:     result.Page,
		PageSize: result.PageSize,
		Results:  views,
	})
}

// AdminCreateReader creates a reader with a generated credential, returned
// once in the response
func (h *Handler) AdminCreateReader(c echo.Context) error {
	var req service.StaffReaderInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	res, err := h.svc.CreateReaderByStaff(c.Request().Context(), middleware.ActorFrom(c), req)
	if err != nil {
		return h.fail(c, "admin_reader_create", err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"reader":   newAdminReaderView(res.Profile),
		"password": res.Password,
	})
}

// AdminGetReader returns one reader in scope
func (h *Handler) AdminGetReader(c echo.Context) error {
	id, ok := idParam(c)
	if !ok {
		return notFoundResponse(c)
	}
	profile, err := h.svc.GetReader(c.Request().Context(), middleware.ActorFrom(c), id)
	if err != nil {
		return h.fail(c, "admin_reader_detail", err)
	}
	return c.JSON(http.StatusOK, newAdminReaderView(profile))
}

// AdminUpdateReader applies a staff edit
func (h *Handler) AdminUpdateReader(c echo.Context) error {
	id, ok := idParam(c)
	if !ok {
		return notFoundResponse(c)
	}
	var patch service.ReaderPatch
	if err := c.Bind(&patch); err != nil {
		return badRequest(c, err)
	}
	profile, err := h.svc.UpdateReader(c.Request().Context(), middleware.ActorFrom(c), id, patch)
	if err != nil {
		return h.fail(c, "admin_reader_update", err)
	}
	return c.JSON(http.StatusOK, newAdminReaderView(profile))
}

// AdminDeleteReader deletes a reader and their identity
func (h *Handler) AdminDeleteReader(c echo.Context) error {
	id, ok := idParam(c)
	if !ok {
		return notFoundResponse(c)
	}
	if err := h.svc.DeleteReader(c.Request().Context(), middleware.ActorFrom(c), id); err != nil {
		return h.fail(c, "admin_reader_delete", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// AdminResetReaderPassword generates a new credential, returned once
func (h *Handler) AdminResetReaderPassword(c echo.Context) error {
	id, ok := idParam(c)
	if !ok {
		return notFoundResponse(c)
	}
	var req struct {
		SendEmail bool `json:"send_email"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	res, err := h.svc.ResetReaderPassword(c.Request().Context(), middleware.ActorFrom(c), id, req.SendEmail)
	if err != nil {
		return h.fail(c, "admin_reader_password_reset", err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"reader_id": res.Profile.ID,
		"username":  res.Profile.User.Username,
		"password":  res.Password,
	})
}
