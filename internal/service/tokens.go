package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mediabib-service/internal/model"
	"mediabib-service/internal/policy"
	"mediabib-service/pkg/jwtutil"
	"mediabib-service/prometheus"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var errTokensNotConfigured = errors.New("token issuance is not configured")

// TokenPair is an access token with the refresh token that renews it
type TokenPair struct {
	Access  string
	Refresh string
}

// Login is the result of a credential exchange
type Login struct {
	Tokens TokenPair
	User   *model.User
}

// ObtainToken exchanges a username and password for a token pair
func (s *Service) ObtainToken(ctx context.Context, username, password string) (*Login, error) {
	if s.jwt == nil {
		return nil, errTokensNotConfigured
	}
	log := s.log(ctx)
	db := s.db.WithContext(ctx)

	var user model.User
	err := func() error {
		defer prometheus.TrackDBOperation("query")(time.Now())
		return db.Preload("Library").Where("username = ?", username).First(&user).Error
	}()
	if err != nil {
		if notFound(err) != ErrNotFound {
			return nil, err
		}
		log.Warn("Login for unknown user", zap.String("username", username))
		prometheus.RecordAuthError("user_not_found")
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		log.Warn("Login for inactive user", zap.Uint("user_id", user.ID))
		prometheus.RecordAuthError("inactive_user")
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		log.Warn("Invalid password", zap.Uint("user_id", user.ID))
		prometheus.RecordAuthError("invalid_password")
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	user.LastLogin = &now

	var pair *TokenPair
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.User{}).Where("id = ?", user.ID).Update("last_login", now).Error; err != nil {
			return err
		}
		pair, err = s.issuePair(tx, &user, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("obtain token: %w", err)
	}

	log.Info("User logged in",
		zap.Uint("user_id", user.ID),
		zap.String("role", string(user.Role)))
	return &Login{Tokens: *pair, User: &user}, nil
}

// RefreshTokens rotates a refresh token: the presented token is revoked and
// a new pair is issued. A superadmin keeps their library selection.
func (s *Service) RefreshTokens(ctx context.Context, refresh string) (*TokenPair, error) {
	if s.jwt == nil {
		return nil, errTokensNotConfigured
	}
	log := s.log(ctx)

	claims, err := s.jwt.ValidateToken(refresh, jwtutil.RefreshToken)
	if err != nil {
		log.Warn("Invalid refresh token", zap.Error(err))
		prometheus.RecordAuthError("invalid_token")
		return nil, ErrInvalidToken
	}

	var pair *TokenPair
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stored model.RefreshToken
		if err := tx.Where("jti = ?", claims.ID).First(&stored).Error; err != nil {
			if notFound(err) == ErrNotFound {
				return ErrInvalidToken
			}
			return err
		}
		if !stored.IsValid() {
			return ErrInvalidToken
		}

		res := tx.Model(&model.RefreshToken{}).
			Where("id = ? AND revoked = ?", stored.ID, false).
			Update("revoked", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidToken
		}

		var user model.User
		if err := tx.Preload("Library").First(&user, stored.UserID).Error; err != nil {
			if notFound(err) == ErrNotFound {
				return ErrInvalidToken
			}
			return err
		}
		if !user.IsActive {
			return ErrInvalidToken
		}

		pair, err = s.issuePair(tx, &user, claims.SelectedLibraryID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			log.Warn("Refresh token rejected", zap.String("jti", claims.ID))
			prometheus.RecordAuthError("revoked_token")
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("refresh token: %w", err)
	}

	log.Info("Token refreshed", zap.Uint("user_id", claims.UserID))
	return pair, nil
}

// VerifyToken checks an access or refresh token. Refresh tokens must also
// still be valid in the store.
func (s *Service) VerifyToken(ctx context.Context, token string) error {
	if s.jwt == nil {
		return errTokensNotConfigured
	}
	if _, err := s.jwt.ValidateToken(token, jwtutil.AccessToken); err == nil {
		return nil
	}

	claims, err := s.jwt.ValidateToken(token, jwtutil.RefreshToken)
	if err != nil {
		prometheus.RecordAuthError("invalid_token")
		return ErrInvalidToken
	}
	var stored model.RefreshToken
	if err := s.db.WithContext(ctx).Where("jti = ?", claims.ID).First(&stored).Error; err != nil || !stored.IsValid() {
		prometheus.RecordAuthError("revoked_token")
		return ErrInvalidToken
	}
	return nil
}

// Authenticate resolves an access token into the acting identity. The
// identity is reloaded so deactivated accounts lose access immediately.
func (s *Service) Authenticate(ctx context.Context, access string) (policy.Actor, *model.User, error) {
	if s.jwt == nil {
		return nil, nil, errTokensNotConfigured
	}
	claims, err := s.jwt.ValidateToken(access, jwtutil.AccessToken)
	if err != nil {
		return nil, nil, ErrInvalidToken
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, claims.UserID).Error; err != nil {
		if notFound(err) == ErrNotFound {
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, err
	}
	if !user.IsActive {
		return nil, nil, ErrInvalidToken
	}

	actor, err := policy.FromUser(&user, claims.SelectedLibraryID)
	if err != nil {
		return nil, nil, err
	}
	return actor, &user, nil
}

// SelectLibrary narrows a superadmin's administrative scope to one library,
// or clears the selection when libraryID is nil. The selection travels in a
// freshly issued token pair.
func (s *Service) SelectLibrary(ctx context.Context, actor policy.Actor, libraryID *uint) (*TokenPair, error) {
	if err := policy.RequireSuperadmin(actor).Err(); err != nil {
		return nil, err
	}
	if s.jwt == nil {
		return nil, errTokensNotConfigured
	}
	db := s.db.WithContext(ctx)

	if libraryID != nil {
		var library model.Library
		if err := db.First(&library, *libraryID).Error; err != nil {
			if notFound(err) == ErrNotFound {
				return nil, newValidationError("library_id", "Select a valid choice. That library does not exist.")
			}
			return nil, err
		}
	}

	var user model.User
	if err := db.Preload("Library").First(&user, actor.UserID()).Error; err != nil {
		return nil, notFound(err)
	}

	var pair *TokenPair
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		pair, err = s.issuePair(tx, &user, libraryID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("select library: %w", err)
	}

	prometheus.LibrarySelectionCounter.Inc()
	fields := []zap.Field{zap.Uint("user_id", user.ID)}
	if libraryID != nil {
		fields = append(fields, zap.Uint("library_id", *libraryID))
	}
	s.log(ctx).Info("Library selection changed", fields...)
	return pair, nil
}

// issuePair signs an access and a refresh token and records the refresh jti
func (s *Service) issuePair(tx *gorm.DB, user *model.User, selected *uint) (*TokenPair, error) {
	identity := jwtutil.Identity{
		UserID:    user.ID,
		Username:  user.Username,
		Role:      string(user.Role),
		LibraryID: user.LibraryID,
	}
	if user.Library != nil {
		identity.LibraryCode = user.Library.Code
	}
	if user.Role == model.RoleSuperadmin {
		identity.SelectedLibraryID = selected
	}

	access, _, err := s.jwt.GenerateAccessToken(identity)
	if err != nil {
		return nil, err
	}
	refresh, refreshClaims, err := s.jwt.GenerateRefreshToken(identity)
	if err != nil {
		return nil, err
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	stored := model.RefreshToken{
		JTI:       refreshClaims.ID,
		UserID:    user.ID,
		ExpiresAt: refreshClaims.ExpiresAt.Time,
	}
	if err := tx.Omit("User").Create(&stored).Error; err != nil {
		return nil, err
	}
	return &TokenPair{Access: access, Refresh: refresh}, nil
}
