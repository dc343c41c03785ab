package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mediabib-service/internal/model"
	"mediabib-service/internal/policy"
	"mediabib-service/prometheus"

	"go.uber.org/zap"
)

// AccountPatch edits the identity of any authenticated user
type AccountPatch struct {
	FirstName *string `json:"first_name" validate:"omitempty,max=150"`
	LastName  *string `json:"last_name" validate:"omitempty,max=150"`
	Email     *string `json:"email" validate:"omitempty,email,max=254"`
}

// GetAccount returns the acting identity
func (s *Service) GetAccount(ctx context.Context, actor policy.Actor) (*model.User, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}
	defer prometheus.TrackDBOperation("query")(time.Now())
	var user model.User
	if err := s.db.WithContext(ctx).Preload("Library").First(&user, actor.UserID()).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// UpdateAccount changes the name and email of the acting identity
func (s *Service) UpdateAccount(ctx context.Context, actor policy.Actor, patch AccountPatch) (*model.User, error) {
	user, err := s.GetAccount(ctx, actor)
	if err != nil {
		return nil, err
	}
	patch.Email = trimmed(patch.Email)
	if err := validateStruct(patch); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if patch.FirstName != nil {
		updates["first_name"] = strings.TrimSpace(*patch.FirstName)
	}
	if patch.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*patch.LastName)
	}
	if patch.Email != nil {
		updates["email"] = *patch.Email
	}
	if len(updates) == 0 {
		return user, nil
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update account: %w", err)
	}
	s.log(ctx).Info("Account updated", zap.Uint("user_id", user.ID))
	return s.GetAccount(ctx, actor)
}

// SuperadminInput creates an operator account from the command line
type SuperadminInput struct {
	Username string `json:"username" validate:"required,min=3,max=150,username"`
	Email    string `json:"email" validate:"omitempty,email,max=254"`
	Password string `json:"password" validate:"required,min=8"`
}

// CreateSuperadmin creates a superadmin identity. It is an operator action
// with no acting identity.
func (s *Service) CreateSuperadmin(ctx context.Context, in SuperadminInput) (*model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	if taken, err := s.usernameTaken(db, in.Username); err != nil {
		return nil, err
	} else if taken {
		return nil, newValidationError("username", "A user with that username already exists.")
	}

	hashed, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &model.User{
		Username: in.Username,
		Email:    in.Email,
		Password: hashed,
		Role:     model.RoleSuperadmin,
		IsActive: true,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := db.Create(user).Error; err != nil {
		if taken, cerr := s.usernameTaken(db, in.Username); cerr == nil && taken {
			return nil, newValidationError("username", "A user with that username already exists.")
		}
		return nil, fmt.Errorf("create superadmin: %w", err)
	}
	s.log(ctx).Info("Superadmin created", zap.Uint("user_id", user.ID), zap.String("username", user.Username))
	return user, nil
}
