package handler

import (
	"net/http"

	"mediabib-service/internal/middleware"
	"mediabib-service/internal/service"

	"github.com/labstack/echo/v4"
)

// AdminListLibraries lists every library
func (h *Handler) AdminListLibraries(c echo.Context) error {
	libraries, err := h.svc.ListLibraries(c.Request().Context(), middleware.ActorFrom(c))
	if err != nil {
		return h.fail(c, "admin_library_list", err)
	}
	views := make([]adminLibraryView, 0, len(libraries))
	for i := range libraries {
		views = append(views, newAdminLibraryView(&libraries[i]))
	}
	return c.JSON(http.StatusOK, views)
}

// AdminCreateLibrary creates a library and its optional staff account
func (h *Handler) AdminCreateLibrary(c echo.Context) error {
	actor := middleware.ActorFrom(c)
	var req service.LibraryInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}

	res, err := h.svc.CreateLibrary(c.Request().Context(), actor, req)
	if err != nil {
		return h.fail(c, "admin_library_create", err)
	}

	resp := echo.Map{"library": newAdminLibraryView(res.Library)}
	if res.Staff != nil {
		res.Staff.Library = res.Library
		resp["staff"] = newUserView(res.Staff)
	}
	return c.JSON(http.StatusCreated, resp)
}

// AdminGetLibrary returns a library with staff and reader count
func (h *Handler) AdminGetLibrary(c echo.Context) error {
	id, ok := idParam(c)
	if !ok {
		return notFoundResponse(c)
	}
	detail, err := h.svc.GetLibrary(c.Request().Context(), middleware.ActorFrom(c), id)
	if err != nil {
		return h.fail(c, "admin_library_detail", err)
	}

	staff := make([]userView, 0, len(detail.Staff))
	for i := range detail.Staff {
		detail.Staff[i].Library = &detail.Library
		staff = append(staff, newUserView(&detail.Staff[i]))
	}
	return c.JSON(http.StatusOK, libraryDetailView{
		adminLibraryView: newAdminLibraryView(&detail.Library),
		Staff:            staff,
		ReaderCount:      detail.ReaderCount,
	})
}

// AdminUpdateLibrary applies a partial update
func (h *Handler) AdminUpdateLibrary(c echo.Context) error {
	id, ok := idParam(c)
	if !ok {
		return notFoundResponse(c)
	}
	var patch service.LibraryPatch
	if err := c.Bind(&patch); err != nil {
		return badRequest(c, err)
	}
	library, err := h.svc.UpdateLibrary(c.Request().Context(), middleware.ActorFrom(c), id, patch)
	if err != nil {
		return h.fail(c, "admin_library_update", err)
	}
	return c.JSON(http.StatusOK, newAdminLibraryView(library))
}

// AdminDeleteLibrary deletes a library, keeping its identities
func (h *Handler) AdminDeleteLibrary(c echo.Context) error {
	id, ok := idParam(c)
	if !ok {
		return notFoundResponse(c)
	}
	if err := h.svc.DeleteLibrary(c.Request().Context(), middleware.ActorFrom(c), id); err != nil {
		return h.fail(c, "admin_library_delete", err)
	}
	return c.NoContent(http.StatusNoContent)
}
