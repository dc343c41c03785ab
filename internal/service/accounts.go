package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mediabib-service/internal/model"
	"mediabib-service/internal/notify"
	"mediabib-service/internal/policy"
	"mediabib-service/prometheus"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RegistrationInput is the public self-registration form
type RegistrationInput struct {
	Username          string  `json:"username" validate:"required,min=3,max=150,username"`
	Email             string  `json:"email" validate:"required,email,max=254"`
	FirstName         string  `json:"first_name" validate:"required,max=150"`
	LastName          string  `json:"last_name" validate:"required,max=150"`
	Password1         string  `json:"password1" validate:"required,min=8"`
	Password2         string  `json:"password2" validate:"required,eqfield=Password1"`
	LibraryID         uint    `json:"library_id" validate:"required"`
	BirthDate         *string `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	Address           string  `json:"address"`
	PostalCode        string  `json:"postal_code" validate:"max=10"`
	City              string  `json:"city" validate:"max=100"`
	Phone             string  `json:"phone" validate:"max=20"`
	Category          string  `json:"category" validate:"omitempty,oneof=child teen adult student senior professional"`
	GDPRConsent       bool    `json:"gdpr_consent"`
	NewsletterConsent bool    `json:"newsletter_consent"`
}

// StaffReaderInput is the form staff fill in to create a reader. The
// credential is always generated.
type StaffReaderInput struct {
	Username          string  `json:"username" validate:"required,min=3,max=150,username"`
	Email             string  `json:"email" validate:"required,email,max=254"`
	FirstName         string  `json:"first_name" validate:"required,max=150"`
	LastName          string  `json:"last_name" validate:"required,max=150"`
	LibraryID         *uint   `json:"library_id"` // honoured for superadmins only
	CardNumber        string  `json:"card_number" validate:"max=50"`
	CardExpiryDate    *string `json:"card_expiry_date" validate:"omitempty,datetime=2006-01-02"`
	BirthDate         *string `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	Address           string  `json:"address"`
	PostalCode        string  `json:"postal_code" validate:"max=10"`
	City              string  `json:"city" validate:"max=100"`
	Phone             string  `json:"phone" validate:"max=20"`
	Category          string  `json:"category" validate:"omitempty,oneof=child teen adult student senior professional"`
	GDPRConsent       bool    `json:"gdpr_consent"`
	NewsletterConsent bool    `json:"newsletter_consent"`
	InternalNotes     string  `json:"internal_notes"`
	SendEmail         bool    `json:"send_email"`
}

// StaffCreation is the result of a staff-initiated creation. Password is
// the only copy of the plaintext credential.
type StaffCreation struct {
	Profile  *model.ReaderProfile
	Password string
}

// CredentialReset is the result of a password reset. Password is the only
// copy of the plaintext credential.
type CredentialReset struct {
	Profile  *model.ReaderProfile
	Password string
}

// readerDraft is a reader identity and profile ready to be inserted together
type readerDraft struct {
	user      model.User
	profile   model.ReaderProfile
	library   model.Library
	cardFixed bool
	actorID   *uint // nil when the reader registers themself
}

// RegisterReader creates a reader identity and profile from the public form
func (s *Service) RegisterReader(ctx context.Context, in RegistrationInput) (*model.ReaderProfile, error) {
	log := s.log(ctx)
	db := s.db.WithContext(ctx)

	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	ve := &ValidationError{}
	if err := ve.merge(validateStruct(in)); err != nil {
		return nil, err
	}
	if !in.GDPRConsent {
		ve.Add("gdpr_consent", "You must accept the data protection policy to register.")
	}

	var library model.Library
	if in.LibraryID != 0 {
		err := db.Where("id = ? AND is_active = ?", in.LibraryID, true).First(&library).Error
		if err != nil {
			if notFound(err) != ErrNotFound {
				return nil, err
			}
			ve.Add("library_id", "Select a valid choice. That library is not available.")
		}
	}
	if taken, err := s.usernameTaken(db, in.Username); err != nil {
		return nil, err
	} else if taken {
		ve.Add("username", "A user with that username already exists.")
	}
	if taken, err := s.emailTaken(db, in.Email); err != nil {
		return nil, err
	} else if taken {
		ve.Add("email", "A user with that email already exists.")
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	hashed, err := s.hashPassword(in.Password1)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	birthDate, _ := parseDate(in.BirthDate)

	draft := &readerDraft{
		user: model.User{
			Username:  in.Username,
			Email:     in.Email,
			FirstName: strings.TrimSpace(in.FirstName),
			LastName:  strings.TrimSpace(in.LastName),
			Password:  hashed,
			Role:      model.RoleReader,
			LibraryID: &library.ID,
			IsActive:  true,
		},
		profile: model.ReaderProfile{
			BirthDate:         birthDate,
			Address:           in.Address,
			PostalCode:        in.PostalCode,
			City:              in.City,
			Phone:             in.Phone,
			Category:          categoryOrDefault(in.Category),
			NewsletterConsent: in.NewsletterConsent,
			IsActive:          true,
		},
		library: library,
	}

	profile, err := s.provisionReader(ctx, draft)
	if err != nil {
		return nil, err
	}

	prometheus.RecordReaderOperation("register")
	log.Info("Reader registered",
		zap.Uint("user_id", profile.UserID),
		zap.String("card_number", profile.CardNumber),
		zap.Uint("library_id", library.ID))

	s.notifier.Notify(ctx, notify.Welcome(profile.User.Email, profile.User.DisplayName(), profile.CardNumber, library.Name))
	return profile, nil
}

// CreateReaderByStaff creates a reader in the actor's library with a
// generated credential
func (s *Service) CreateReaderByStaff(ctx context.Context, actor policy.Actor, in StaffReaderInput) (*StaffCreation, error) {
	if err := policy.CanManageReaders(actor).Err(); err != nil {
		return nil, err
	}
	log := s.log(ctx)
	db := s.db.WithContext(ctx)

	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.CardNumber = strings.ToUpper(strings.TrimSpace(in.CardNumber))

	ve := &ValidationError{}
	if err := ve.merge(validateStruct(in)); err != nil {
		return nil, err
	}
	if !in.GDPRConsent {
		ve.Add("gdpr_consent", "GDPR consent is required to create a reader account.")
	}
	if in.CardNumber != "" {
		if !model.ValidCardNumber(in.CardNumber) {
			ve.Add("card_number", "Card number may only contain uppercase letters, digits and hyphens.")
		} else if taken, err := s.cardNumberTaken(db, in.CardNumber); err != nil {
			return nil, err
		} else if taken {
			ve.Add("card_number", "Reader profile with this card number already exists.")
		}
	}
	if taken, err := s.usernameTaken(db, in.Username); err != nil {
		return nil, err
	} else if taken {
		ve.Add("username", "A user with that username already exists.")
	}

	library, err := s.targetLibrary(db, actor, in.LibraryID)
	if err != nil {
		if ve.merge(err) != nil {
			return nil, err
		}
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	password, err := model.GeneratePassword(s.accounts.PasswordLength)
	if err != nil {
		return nil, err
	}
	hashed, err := s.hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	birthDate, _ := parseDate(in.BirthDate)
	expiry, _ := parseDate(in.CardExpiryDate)
	actorID := actor.UserID()

	draft := &readerDraft{
		user: model.User{
			Username:  in.Username,
			Email:     in.Email,
			FirstName: strings.TrimSpace(in.FirstName),
			LastName:  strings.TrimSpace(in.LastName),
			Password:  hashed,
			Role:      model.RoleReader,
			LibraryID: &library.ID,
			IsActive:  true,
		},
		profile: model.ReaderProfile{
			CardNumber:        in.CardNumber,
			CardExpiryDate:    expiry,
			BirthDate:         birthDate,
			Address:           in.Address,
			PostalCode:        in.PostalCode,
			City:              in.City,
			Phone:             in.Phone,
			Category:          categoryOrDefault(in.Category),
			NewsletterConsent: in.NewsletterConsent,
			InternalNotes:     in.InternalNotes,
			IsActive:          true,
		},
		library:   *library,
		cardFixed: in.CardNumber != "",
		actorID:   &actorID,
	}

	profile, err := s.provisionReader(ctx, draft)
	if err != nil {
		return nil, err
	}

	prometheus.RecordReaderOperation("create")
	log.Info("Reader created by staff",
		zap.Uint("actor_id", actorID),
		zap.Uint("user_id", profile.UserID),
		zap.String("card_number", profile.CardNumber),
		zap.Uint("library_id", library.ID),
		zap.Bool("credential_emailed", in.SendEmail))

	if in.SendEmail {
		s.notifier.Notify(ctx, notify.AccountCreated(profile.User.Email, profile.User.DisplayName(), profile.User.Username, password))
	}
	return &StaffCreation{Profile: profile, Password: password}, nil
}

// ResetReaderPassword replaces the credential of a reader in the actor's
// scope with a generated one. Outstanding refresh tokens of the reader are
// revoked.
func (s *Service) ResetReaderPassword(ctx context.Context, actor policy.Actor, profileID uint, sendEmail bool) (*CredentialReset, error) {
	profile, err := s.scopedReader(ctx, actor, profileID)
	if err != nil {
		return nil, err
	}

	password, err := model.GeneratePassword(s.accounts.PasswordLength)
	if err != nil {
		return nil, err
	}
	hashed, err := s.hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		defer prometheus.TrackDBOperation("update")(time.Now())
		if err := tx.Model(&model.User{}).Where("id = ?", profile.UserID).Update("password", hashed).Error; err != nil {
			return err
		}
		return tx.Model(&model.RefreshToken{}).
			Where("user_id = ? AND revoked = ?", profile.UserID, false).
			Update("revoked", true).Error
	})
	if err != nil {
		return nil, fmt.Errorf("reset password: %w", err)
	}
	profile.User.Password = hashed

	prometheus.RecordReaderOperation("password_reset")
	s.log(ctx).Info("Reader password reset",
		zap.Uint("actor_id", actor.UserID()),
		zap.Uint("user_id", profile.UserID),
		zap.Bool("credential_emailed", sendEmail))

	if sendEmail {
		s.notifier.Notify(ctx, notify.PasswordReset(profile.User.Email, profile.User.DisplayName(), password))
	}
	return &CredentialReset{Profile: profile, Password: password}, nil
}

// provisionReader inserts the identity and its profile in one transaction.
// Generated card numbers are checked against the store first and regenerated
// on collision, up to the configured number of attempts. A uniqueness
// violation raised by a concurrent writer is re-examined and reported as a
// validation failure or, for a generated card number, retried.
func (s *Service) provisionReader(ctx context.Context, d *readerDraft) (*model.ReaderProfile, error) {
	db := s.db.WithContext(ctx)
	now := s.now()

	for attempt := 0; attempt < s.accounts.CardIssueAttempts; attempt++ {
		user := d.user
		profile := d.profile
		profile.CardIssuedDate = now
		profile.SetGDPRConsent(true, now)

		if !d.cardFixed {
			candidate, err := s.cardNumber(d.library.Code)
			if err != nil {
				return nil, err
			}
			taken, err := s.cardNumberTaken(db, candidate)
			if err != nil {
				return nil, err
			}
			if taken {
				prometheus.CardCollisionCounter.Inc()
				continue
			}
			profile.CardNumber = candidate
		}

		err := db.Transaction(func(tx *gorm.DB) error {
			defer prometheus.TrackDBOperation("insert")(time.Now())
			if err := tx.Omit(clause.Associations).Create(&user).Error; err != nil {
				return err
			}
			profile.UserID = user.ID
			if err := tx.Omit(clause.Associations).Create(&profile).Error; err != nil {
				return err
			}

			actorID := d.actorID
			if actorID == nil {
				actorID = &user.ID
			}
			if err := recordConsent(tx, profile.ID, model.ConsentGDPR, true, actorID); err != nil {
				return err
			}
			if profile.NewsletterConsent {
				return recordConsent(tx, profile.ID, model.ConsentNewsletter, true, actorID)
			}
			return nil
		})
		if err == nil {
			library := d.library
			user.Library = &library
			profile.User = user
			return &profile, nil
		}

		if taken, cerr := s.usernameTaken(db, user.Username); cerr == nil && taken {
			return nil, newValidationError("username", "A user with that username already exists.")
		}
		if taken, cerr := s.cardNumberTaken(db, profile.CardNumber); cerr == nil && taken {
			if d.cardFixed {
				return nil, newValidationError("card_number", "Reader profile with this card number already exists.")
			}
			prometheus.CardCollisionCounter.Inc()
			continue
		}
		return nil, fmt.Errorf("create reader: %w", err)
	}

	s.log(ctx).Error("Card number issuance exhausted",
		zap.String("library_code", d.library.Code),
		zap.Int("attempts", s.accounts.CardIssueAttempts))
	return nil, ErrCardIssuanceExhausted
}

// targetLibrary resolves the library a staff-created reader joins. Staff
// always use their own library; a superadmin names one explicitly or falls
// back to the selected library.
func (s *Service) targetLibrary(db *gorm.DB, actor policy.Actor, requested *uint) (*model.Library, error) {
	var id uint
	switch a := actor.(type) {
	case policy.LibraryStaff:
		if a.LibraryID == 0 {
			return nil, newValidationError("library_id", "Your account is not attached to a library.")
		}
		id = a.LibraryID
	case policy.Superadmin:
		switch {
		case requested != nil:
			id = *requested
		case a.SelectedLibraryID != nil:
			id = *a.SelectedLibraryID
		default:
			return nil, newValidationError("library_id", "This field is required.")
		}
	default:
		return nil, ErrForbidden
	}

	var library model.Library
	if err := db.First(&library, id).Error; err != nil {
		if notFound(err) == ErrNotFound {
			return nil, newValidationError("library_id", "Select a valid choice. That library does not exist.")
		}
		return nil, err
	}
	return &library, nil
}

func (s *Service) usernameTaken(db *gorm.DB, username string) (bool, error) {
	var n int64
	err := db.Model(&model.User{}).Where("username = ?", username).Count(&n).Error
	return n > 0, err
}

func (s *Service) emailTaken(db *gorm.DB, email string) (bool, error) {
	var n int64
	err := db.Model(&model.User{}).Where("LOWER(email) = LOWER(?)", email).Count(&n).Error
	return n > 0, err
}

func (s *Service) cardNumberTaken(db *gorm.DB, cardNumber string) (bool, error) {
	var n int64
	err := db.Model(&model.ReaderProfile{}).Where("card_number = ?", cardNumber).Count(&n).Error
	return n > 0, err
}

func recordConsent(tx *gorm.DB, profileID uint, kind model.ConsentKind, granted bool, actorID *uint) error {
	return tx.Omit(clause.Associations).Create(&model.ConsentEvent{
		ProfileID: profileID,
		Kind:      kind,
		Granted:   granted,
		ActorID:   actorID,
	}).Error
}

func categoryOrDefault(c string) model.Category {
	if c == "" {
		return model.CategoryAdult
	}
	return model.Category(c)
}
