package handler

import (
	"mediabib-service/prometheus"

	"github.com/labstack/echo/v4"
)

// Routes registers every endpoint; auth guards the authenticated groups
func (h *Handler) Routes(e *echo.Echo, auth echo.MiddlewareFunc) {
	e.GET("/health", h.Health)
	e.GET("/metrics", echo.WrapHandler(prometheus.GetPrometheusHandler()))

	// Public routes
	e.POST("/auth/token", h.ObtainToken)
	e.POST("/auth/token/refresh", h.RefreshToken)
	e.POST("/auth/token/verify", h.VerifyToken)
	e.POST("/auth/register", h.Register)
	e.GET("/libraries", h.ListLibraries)
	e.GET("/libraries/:id", h.GetLibrary)

	// Reader self-service
	readers := e.Group("/readers/me", auth)
	readers.GET("", h.GetMe)
	readers.PATCH("", h.UpdateMe)
	readers.GET("/loans", h.GetMyLoans)
	readers.GET("/reservations", h.GetMyReservations)
	readers.GET("/history", h.GetMyHistory)

	// Any authenticated identity
	account := e.Group("/account", auth)
	account.GET("/profile", h.GetAccount)
	account.PATCH("/profile", h.UpdateAccount)

	// Administration
	admin := e.Group("/admin", auth)
	admin.POST("/context/library", h.SelectLibrary)

	admin.GET("/libraries", h.AdminListLibraries)
	admin.POST("/libraries", h.AdminCreateLibrary)
	admin.GET("/libraries/:id", h.AdminGetLibrary)
	admin.PATCH("/libraries/:id", h.AdminUpdateLibrary)
	admin.DELETE("/libraries/:id", h.AdminDeleteLibrary)

	admin.GET("/readers", h.AdminListReaders)
	admin.POST("/readers", h.AdminCreateReader)
	admin.GET("/readers/:id", h.AdminGetReader)
	admin.PATCH("/readers/:id", h.AdminUpdateReader)
	admin.DELETE("/readers/:id", h.AdminDeleteReader)
	admin.POST("/readers/:id/password-reset", h.AdminResetReaderPassword)
}
