package handler

import (
	"errors"
	"net/http"
	"strconv"

	"mediabib-service/internal/service"
	"mediabib-service/pkg/logger"
	"mediabib-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const notAReaderMessage = "no reader profile is associated with this account"

// Handler serves the MediaBib HTTP API
type Handler struct {
	svc         *service.Service
	serviceName string
}

// New creates a Handler
func New(svc *service.Service, serviceName string) *Handler {
	return &Handler{svc: svc, serviceName: serviceName}
}

// fail turns a service error into the JSON response for it
func (h *Handler) fail(c echo.Context, operation string, err error) error {
	log := logger.FromEcho(c)

	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		log.Info("Validation failed", zap.String("operation", operation), zap.Any("fields", ve.Fields))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation failed", "fields": ve.Fields})
	case errors.Is(err, service.ErrNotAReader):
		prometheus.RecordPolicyDenial(operation, "forbidden")
		return c.JSON(http.StatusForbidden, echo.Map{"error": notAReaderMessage})
	case errors.Is(err, service.ErrUnauthenticated):
		prometheus.RecordPolicyDenial(operation, "unauthenticated")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication credentials were not provided"})
	case errors.Is(err, service.ErrForbidden):
		prometheus.RecordPolicyDenial(operation, "forbidden")
		log.Warn("Permission denied", zap.String("operation", operation))
		return c.JSON(http.StatusForbidden, echo.Map{"error": "you do not have permission to perform this action"})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, service.ErrInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": service.ErrInvalidCredentials.Error()})
	case errors.Is(err, service.ErrInvalidToken):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": service.ErrInvalidToken.Error()})
	case errors.Is(err, service.ErrCardIssuanceExhausted):
		log.Error("Card issuance exhausted", zap.String("operation", operation))
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "could not issue a card number, please retry"})
	default:
		log.Error("Request failed", zap.String("operation", operation), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
}

func badRequest(c echo.Context, err error) error {
	logger.FromEcho(c).Info("Failed to parse request", zap.Error(err))
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
}

// idParam parses the :id path parameter; malformed ids are simply not found
func idParam(c echo.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func notFoundResponse(c echo.Context) error {
	return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
}
