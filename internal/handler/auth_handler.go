package handler

import (
	"net/http"

	"mediabib-service/internal/service"
	"mediabib-service/pkg/logger"
	"mediabib-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type tokenObtainResponse struct {
	Access   string          `json:"access"`
	Refresh  string          `json:"refresh"`
	Role     string          `json:"role"`
	Username string          `json:"username"`
	FullName string          `json:"full_name"`
	Library  *librarySummary `json:"library,omitempty"`
}

type tokenPairResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// ObtainToken exchanges credentials for an access and refresh token
func (h *Handler) ObtainToken(c echo.Context) error {
	prometheus.LoginCounter.Inc()

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		prometheus.RecordAuthError("invalid_request")
		return badRequest(c, err)
	}
	if req.Username == "" || req.Password == "" {
		return h.fail(c, "token_obtain", missingCredentials(req.Username, req.Password))
	}

	login, err := h.svc.ObtainToken(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return h.fail(c, "token_obtain", err)
	}

	return c.JSON(http.StatusOK, tokenObtainResponse{
		Access:   login.Tokens.Access,
		Refresh:  login.Tokens.Refresh,
		Role:     string(login.User.Role),
		Username: login.User.Username,
		FullName: login.User.FullName(),
		Library:  newLibrarySummary(login.User.Library),
	})
}

// RefreshToken rotates a refresh token
func (h *Handler) RefreshToken(c echo.Context) error {
	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	if req.Refresh == "" {
		return h.fail(c, "token_refresh", fieldRequired("refresh"))
	}

	pair, err := h.svc.RefreshTokens(c.Request().Context(), req.Refresh)
	if err != nil {
		return h.fail(c, "token_refresh", err)
	}
	return c.JSON(http.StatusOK, tokenPairResponse{Access: pair.Access, Refresh: pair.Refresh})
}

// VerifyToken answers 200 with an empty object for a valid token
func (h *Handler) VerifyToken(c echo.Context) error {
	var req struct {
		Token string `json:"token"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	if req.Token == "" {
		return h.fail(c, "token_verify", fieldRequired("token"))
	}
	if err := h.svc.VerifyToken(c.Request().Context(), req.Token); err != nil {
		return h.fail(c, "token_verify", err)
	}
	return c.JSON(http.StatusOK, echo.Map{})
}

// Register is the public reader self-registration
func (h *Handler) Register(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RegisterCounter.Inc()

	var req service.RegistrationInput
	if err := c.Bind(&req); err != nil {
		prometheus.RecordAuthError("invalid_request")
		return badRequest(c, err)
	}

	profile, err := h.svc.RegisterReader(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, "register", err)
	}

	log.Info("Registration completed", zap.Uint("user_id", profile.UserID))
	return c.JSON(http.StatusCreated, newProfileView(profile))
}

func fieldRequired(field string) error {
	ve := &service.ValidationError{}
	ve.Add(field, "This field is required.")
	return ve
}

func missingCredentials(username, password string) error {
	ve := &service.ValidationError{}
	if username == "" {
		ve.Add("username", "This field is required.")
	}
	if password == "" {
		ve.Add("password", "This field is required.")
	}
	return ve
}
