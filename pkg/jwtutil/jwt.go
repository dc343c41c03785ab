package jwtutil

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token types carried in the token_type claim
const (
	AccessToken  = "access"
	RefreshToken = "refresh"
)

// ErrWrongTokenType is returned when a refresh token is presented as access token or vice versa
var ErrWrongTokenType = errors.New("wrong token type")

// JWTConfig holds JWT configuration
type JWTConfig struct {
	SigningKey      string
	AccessLifetime  time.Duration
	RefreshLifetime time.Duration
}

// Identity is the identity information embedded in every token
type Identity struct {
	UserID            uint   `json:"user_id"`
	Username          string `json:"username"`
	Role              string `json:"role"`
	LibraryID         *uint  `json:"library_id,omitempty"`
	LibraryCode       string `json:"library_code,omitempty"`
	SelectedLibraryID *uint  `json:"selected_library_id,omitempty"` // superadmin library selection
}

// UserClaims represents the JWT claims for user authentication
type UserClaims struct {
	Identity
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// JWTUtil is a utility for JWT token operations
type JWTUtil struct {
	config *JWTConfig
}

// NewJWTUtil creates a new JWT utility with the given configuration
func NewJWTUtil(config *JWTConfig) *JWTUtil {
	return &JWTUtil{
		config: config,
	}
}

// AccessLifetime exposes the configured access token lifetime
func (j *JWTUtil) AccessLifetime() time.Duration {
	return j.config.AccessLifetime
}

// GenerateAccessToken creates a short-lived access token
func (j *JWTUtil) GenerateAccessToken(subject Identity) (string, *UserClaims, error) {
	return j.generate(subject, AccessToken, j.config.AccessLifetime)
}

// GenerateRefreshToken creates a refresh token; its jti is what the store tracks
func (j *JWTUtil) GenerateRefreshToken(subject Identity) (string, *UserClaims, error) {
	return j.generate(subject, RefreshToken, j.config.RefreshLifetime)
}

func (j *JWTUtil) generate(subject Identity, tokenType string, lifetime time.Duration) (string, *UserClaims, error) {
	if j.config == nil {
		return "", nil, errors.New("JWT configuration not provided")
	}

	now := time.Now()
	claims := &UserClaims{
		Identity:  subject,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   fmt.Sprintf("%d", subject.UserID),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(j.config.SigningKey))
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// ValidateToken validates and parses a token of the expected type
func (j *JWTUtil) ValidateToken(tokenString, expectedType string) (*UserClaims, error) {
	if j.config == nil {
		return nil, errors.New("JWT configuration not provided")
	}

	token, err := jwt.ParseWithClaims(
		tokenString,
		&UserClaims{},
		func(token *jwt.Token) (interface{}, error) {
			// Validate the signing method
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(j.config.SigningKey), nil
		},
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.TokenType != expectedType {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}
