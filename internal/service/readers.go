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
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReaderPageSize is the number of readers per listing page
const ReaderPageSize = 20

// ReaderQuery filters the administrative reader listing
type ReaderQuery struct {
	Search string
	Page   int
}

// ReaderPage is one page of the reader listing
type ReaderPage struct {
	Count    int64
	Page     int
	PageSize int
	Results  []model.ReaderProfile
}

// ReaderPatch is the staff edit form. Card number and issue date are not
// editable.
type ReaderPatch struct {
	Email             *string `json:"email" validate:"omitempty,email,max=254"`
	FirstName         *string `json:"first_name" validate:"omitempty,max=150"`
	LastName          *string `json:"last_name" validate:"omitempty,max=150"`
	CardExpiryDate    *string `json:"card_expiry_date" validate:"omitempty,datetime=2006-01-02"`
	BirthDate         *string `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	Address           *string `json:"address"`
	PostalCode        *string `json:"postal_code" validate:"omitempty,max=10"`
	City              *string `json:"city" validate:"omitempty,max=100"`
	Phone             *string `json:"phone" validate:"omitempty,max=20"`
	Category          *string `json:"category" validate:"omitempty,oneof=child teen adult student senior professional"`
	GDPRConsent       *bool   `json:"gdpr_consent"`
	NewsletterConsent *bool   `json:"newsletter_consent"`
	IsActive          *bool   `json:"is_active"`
	IsBlocked         *bool   `json:"is_blocked"`
	BlockedReason     *string `json:"blocked_reason"`
	InternalNotes     *string `json:"internal_notes"`
}

// scopedReader loads a reader profile the actor may administer. Profiles
// outside the actor's library are reported as not found.
func (s *Service) scopedReader(ctx context.Context, actor policy.Actor, id uint) (*model.ReaderProfile, error) {
	if err := policy.CanManageReaders(actor).Err(); err != nil {
		return nil, err
	}
	scope, err := policy.ScopeReaderQuery(actor)
	if err != nil {
		return nil, err
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var profile model.ReaderProfile
	err = s.db.WithContext(ctx).
		Scopes(scope).
		Preload("User.Library").
		Where("reader_profiles.id = ?", id).
		First(&profile).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &profile, nil
}

// ListReaders returns the readers of the actor's library scope, newest first
func (s *Service) ListReaders(ctx context.Context, actor policy.Actor, q ReaderQuery) (*ReaderPage, error) {
	if err := policy.CanManageReaders(actor).Err(); err != nil {
		return nil, err
	}
	scope, err := policy.ScopeReaderQuery(actor)
	if err != nil {
		return nil, err
	}
	if q.Page < 1 {
		q.Page = 1
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	base := s.db.WithContext(ctx).Model(&model.ReaderProfile{}).Scopes(scope)
	if search := strings.ToLower(strings.TrimSpace(q.Search)); search != "" {
		like := "%" + search + "%"
		base = base.Where(
			"LOWER(reader_profiles.card_number) LIKE ? OR reader_profiles.user_id IN "+
				"(SELECT id FROM users WHERE LOWER(username) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?)",
			like, like, like, like)
	}
	base = base.Session(&gorm.Session{})

	page := &ReaderPage{Page: q.Page, PageSize: ReaderPageSize}
	if err := base.Count(&page.Count).Error; err != nil {
		return nil, err
	}
	err = base.Preload("User.Library").
		Order("reader_profiles.created_at DESC").
		Order("reader_profiles.id DESC").
		Limit(ReaderPageSize).
		Offset((q.Page - 1) * ReaderPageSize).
		Find(&page.Results).Error
	if err != nil {
		return nil, err
	}
	return page, nil
}

// GetReader returns one reader profile in the actor's scope
func (s *Service) GetReader(ctx context.Context, actor policy.Actor, id uint) (*model.ReaderProfile, error) {
	return s.scopedReader(ctx, actor, id)
}

// UpdateReader applies a staff edit. Consent transitions are appended to
// the consent log.
func (s *Service) UpdateReader(ctx context.Context, actor policy.Actor, id uint, patch ReaderPatch) (*model.ReaderProfile, error) {
	profile, err := s.scopedReader(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	patch.Email = trimmed(patch.Email)
	if err := validateStruct(patch); err != nil {
		return nil, err
	}

	now := s.now()
	user := &profile.User
	assign(&user.Email, patch.Email)
	assign(&user.FirstName, trimmed(patch.FirstName))
	assign(&user.LastName, trimmed(patch.LastName))

	if patch.CardExpiryDate != nil {
		profile.CardExpiryDate, _ = parseDate(patch.CardExpiryDate)
	}
	if patch.BirthDate != nil {
		profile.BirthDate, _ = parseDate(patch.BirthDate)
	}
	assign(&profile.Address, patch.Address)
	assign(&profile.PostalCode, patch.PostalCode)
	assign(&profile.City, patch.City)
	assign(&profile.Phone, patch.Phone)
	if patch.Category != nil && *patch.Category != "" {
		profile.Category = model.Category(*patch.Category)
	}
	assign(&profile.IsActive, patch.IsActive)
	assign(&profile.IsBlocked, patch.IsBlocked)
	assign(&profile.BlockedReason, patch.BlockedReason)
	assign(&profile.InternalNotes, patch.InternalNotes)

	gdprChanged := patch.GDPRConsent != nil && profile.SetGDPRConsent(*patch.GDPRConsent, now)
	newsletterChanged := patch.NewsletterConsent != nil && *patch.NewsletterConsent != profile.NewsletterConsent
	assign(&profile.NewsletterConsent, patch.NewsletterConsent)

	actorID := actor.UserID()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		defer prometheus.TrackDBOperation("update")(time.Now())
		if err := tx.Model(&model.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
			"email":      user.Email,
			"first_name": user.FirstName,
			"last_name":  user.LastName,
		}).Error; err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Save(profile).Error; err != nil {
			return err
		}
		if gdprChanged {
			if err := recordConsent(tx, profile.ID, model.ConsentGDPR, profile.GDPRConsent, &actorID); err != nil {
				return err
			}
		}
		if newsletterChanged {
			return recordConsent(tx, profile.ID, model.ConsentNewsletter, profile.NewsletterConsent, &actorID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update reader: %w", err)
	}

	prometheus.RecordReaderOperation("update")
	s.log(ctx).Info("Reader updated",
		zap.Uint("actor_id", actorID),
		zap.Uint("profile_id", profile.ID),
		zap.Bool("gdpr_changed", gdprChanged),
		zap.Bool("newsletter_changed", newsletterChanged))

	return s.scopedReader(ctx, actor, id)
}

// DeleteReader removes a reader profile together with its identity
func (s *Service) DeleteReader(ctx context.Context, actor policy.Actor, id uint) error {
	profile, err := s.scopedReader(ctx, actor, id)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		defer prometheus.TrackDBOperation("delete")(time.Now())
		if err := tx.Where("profile_id = ?", profile.ID).Delete(&model.ConsentEvent{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&model.ReaderProfile{}, profile.ID).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", profile.UserID).Delete(&model.RefreshToken{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.User{}, profile.UserID).Error
	})
	if err != nil {
		return fmt.Errorf("delete reader: %w", err)
	}

	prometheus.RecordReaderOperation("delete")
	s.log(ctx).Info("Reader deleted",
		zap.Uint("actor_id", actor.UserID()),
		zap.Uint("profile_id", profile.ID),
		zap.Uint("user_id", profile.UserID))
	return nil
}
