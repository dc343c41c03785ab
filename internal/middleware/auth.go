package middleware

import (
	"context"
	"net/http"
	"strings"

	"mediabib-service/internal/model"
	"mediabib-service/internal/policy"
	"mediabib-service/pkg/logger"
	"mediabib-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	actorKey = "actor"
	userKey  = "user"
)

// Authenticator resolves a bearer token into the acting identity
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (policy.Actor, *model.User, error)
}

// Auth validates the bearer token and stores the resolved actor in the
// echo context. Requests without a usable token get 401.
func Auth(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromEcho(c)

			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				prometheus.RecordAuthError("missing_token")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication credentials were not provided"})
			}

			parts := strings.Fields(authHeader)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				log.Warn("Invalid Authorization header format")
				prometheus.RecordAuthError("invalid_auth_format")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid authorization format, expected Bearer token"})
			}

			actor, user, err := auth.Authenticate(c.Request().Context(), parts[1])
			if err != nil {
				log.Warn("Bearer token rejected", zap.Error(err))
				prometheus.RecordAuthError("invalid_token")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "token is invalid or expired"})
			}

			c.Set(actorKey, actor)
			c.Set(userKey, user)

			ctxLogger := log.With(zap.Uint("user_id", user.ID), zap.String("role", string(user.Role)))
			logger.SetEcho(c, ctxLogger)
			c.SetRequest(c.Request().WithContext(logger.WithContext(c.Request().Context(), ctxLogger)))

			return next(c)
		}
	}
}

// ActorFrom returns the authenticated actor, or nil for anonymous requests
func ActorFrom(c echo.Context) policy.Actor {
	actor, _ := c.Get(actorKey).(policy.Actor)
	return actor
}

// UserFrom returns the authenticated identity, or nil
func UserFrom(c echo.Context) *model.User {
	user, _ := c.Get(userKey).(*model.User)
	return user
}
