package service

import (
	"context"
	"fmt"
	"time"

	"mediabib-service/internal/model"
	"mediabib-service/internal/policy"
	"mediabib-service/prometheus"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OwnProfilePatch is the subset of fields a reader may change on their own
// profile. Anything else in the request body is ignored.
type OwnProfilePatch struct {
	Email             *string `json:"email" validate:"omitempty,email,max=254"`
	Address           *string `json:"address"`
	PostalCode        *string `json:"postal_code" validate:"omitempty,max=10"`
	City              *string `json:"city" validate:"omitempty,max=100"`
	Phone             *string `json:"phone" validate:"omitempty,max=20"`
	NewsletterConsent *bool   `json:"newsletter_consent"`
}

// Collection is the paginated shape reserved for loans, reservations and
// history
type Collection struct {
	Count   int           `json:"count"`
	Results []interface{} `json:"results"`
}

// GetOwnProfile returns the acting reader's profile. Non-readers and
// readers without a profile both get ErrNotAReader.
func (s *Service) GetOwnProfile(ctx context.Context, actor policy.Actor) (*model.ReaderProfile, error) {
	switch policy.RequireReader(actor) {
	case policy.Allow:
	case policy.DenyUnauthenticated:
		return nil, ErrUnauthenticated
	default:
		return nil, ErrNotAReader
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var profile model.ReaderProfile
	err := s.db.WithContext(ctx).
		Preload("User.Library").
		Where("user_id = ?", actor.UserID()).
		First(&profile).Error
	if err != nil {
		if notFound(err) == ErrNotFound {
			return nil, ErrNotAReader
		}
		return nil, err
	}
	return &profile, nil
}

// UpdateOwnProfile applies a reader's own edit and returns the full profile
func (s *Service) UpdateOwnProfile(ctx context.Context, actor policy.Actor, patch OwnProfilePatch) (*model.ReaderProfile, error) {
	profile, err := s.GetOwnProfile(ctx, actor)
	if err != nil {
		return nil, err
	}
	patch.Email = trimmed(patch.Email)
	if err := validateStruct(patch); err != nil {
		return nil, err
	}

	newsletterChanged := patch.NewsletterConsent != nil && *patch.NewsletterConsent != profile.NewsletterConsent
	assign(&profile.User.Email, patch.Email)
	assign(&profile.Address, patch.Address)
	assign(&profile.PostalCode, patch.PostalCode)
	assign(&profile.City, patch.City)
	assign(&profile.Phone, patch.Phone)
	assign(&profile.NewsletterConsent, patch.NewsletterConsent)

	actorID := actor.UserID()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		defer prometheus.TrackDBOperation("update")(time.Now())
		if patch.Email != nil {
			if err := tx.Model(&model.User{}).Where("id = ?", actorID).Update("email", *patch.Email).Error; err != nil {
				return err
			}
		}
		if err := tx.Omit(clause.Associations).Save(profile).Error; err != nil {
			return err
		}
		if newsletterChanged {
			return recordConsent(tx, profile.ID, model.ConsentNewsletter, profile.NewsletterConsent, &actorID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update own profile: %w", err)
	}

	prometheus.RecordReaderOperation("self_update")
	s.log(ctx).Info("Reader updated own profile",
		zap.Uint("user_id", actorID),
		zap.Bool("newsletter_changed", newsletterChanged))

	return s.GetOwnProfile(ctx, actor)
}

// OwnLoans is reserved for the loans subsystem and is always empty
func (s *Service) OwnLoans(ctx context.Context, actor policy.Actor) (*Collection, error) {
	return s.emptyOwnCollection(ctx, actor)
}

// OwnReservations is reserved for the loans subsystem and is always empty
func (s *Service) OwnReservations(ctx context.Context, actor policy.Actor) (*Collection, error) {
	return s.emptyOwnCollection(ctx, actor)
}

// OwnHistory is reserved for the loans subsystem and is always empty
func (s *Service) OwnHistory(ctx context.Context, actor policy.Actor) (*Collection, error) {
	return s.emptyOwnCollection(ctx, actor)
}

func (s *Service) emptyOwnCollection(ctx context.Context, actor policy.Actor) (*Collection, error) {
	if _, err := s.GetOwnProfile(ctx, actor); err != nil {
		return nil, err
	}
	return &Collection{Count: 0, Results: []interface{}{}}, nil
}
