package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ListLibraries lists the active libraries, public fields only
func (h *Handler) ListLibraries(c echo.Context) error {
	libraries, err := h.svc.ListActiveLibraries(c.Request().Context())
	if err != nil {
		return h.fail(c, "library_list", err)
	}

	views := make([]*libraryView, 0, len(libraries))
	for i := range libraries {
		views = append(views, newLibraryView(&libraries[i]))
	}
	return c.JSON(http.StatusOK, views)
}

// GetLibrary returns one active library
func (h *Handler) GetLibrary(c echo.Context) error {
	id, ok := idParam(c)
	if !ok {
		return notFoundResponse(c)
	}
	library, err := h.svc.GetActiveLibrary(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, "library_detail", err)
	}
	return c.JSON(http.StatusOK, newLibraryView(library))
}
