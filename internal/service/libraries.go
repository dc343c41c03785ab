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

// LibraryInput creates a library, optionally with its first staff account
type LibraryInput struct {
	Name       string             `json:"name" validate:"required,max=200"`
	Code       string             `json:"code" validate:"required,max=20,librarycode"`
	Address    string             `json:"address"`
	PostalCode string             `json:"postal_code" validate:"max=10"`
	City       string             `json:"city" validate:"max=100"`
	Phone      string             `json:"phone" validate:"max=20"`
	Email      string             `json:"email" validate:"omitempty,email,max=254"`
	Website    string             `json:"website" validate:"omitempty,url,max=200"`
	IsActive   *bool              `json:"is_active"`
	Staff      *StaffAccountInput `json:"staff" validate:"-"`
}

// StaffAccountInput is the initial staff identity created with a library
type StaffAccountInput struct {
	Username  string `json:"username" validate:"required,min=3,max=150,username"`
	Email     string `json:"email" validate:"required,email,max=254"`
	FirstName string `json:"first_name" validate:"max=150"`
	LastName  string `json:"last_name" validate:"max=150"`
	Password1 string `json:"password1" validate:"required,min=8"`
	Password2 string `json:"password2" validate:"required,eqfield=Password1"`
}

// LibraryPatch updates the fields that are present
type LibraryPatch struct {
	Name       *string `json:"name" validate:"omitempty,max=200"`
	Code       *string `json:"code" validate:"omitempty,max=20,librarycode"`
	Address    *string `json:"address"`
	PostalCode *string `json:"postal_code" validate:"omitempty,max=10"`
	City       *string `json:"city" validate:"omitempty,max=100"`
	Phone      *string `json:"phone" validate:"omitempty,max=20"`
	Email      *string `json:"email" validate:"omitempty,email,max=254"`
	Website    *string `json:"website" validate:"omitempty,url,max=200"`
	IsActive   *bool   `json:"is_active"`
}

// LibraryCreation is the result of CreateLibrary
type LibraryCreation struct {
	Library *model.Library
	Staff   *model.User
}

// LibraryDetail is a library with its staff and reader count
type LibraryDetail struct {
	Library     model.Library
	Staff       []model.User
	ReaderCount int64
}

// ListActiveLibraries returns the libraries offered publicly, by name
func (s *Service) ListActiveLibraries(ctx context.Context) ([]model.Library, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())
	var libraries []model.Library
	err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("name").Find(&libraries).Error
	return libraries, err
}

// GetActiveLibrary returns one active library; inactive ones are not found
func (s *Service) GetActiveLibrary(ctx context.Context, id uint) (*model.Library, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())
	var library model.Library
	if err := s.db.WithContext(ctx).Where("id = ? AND is_active = ?", id, true).First(&library).Error; err != nil {
		return nil, notFound(err)
	}
	return &library, nil
}

// ListLibraries returns every library for a superadmin
func (s *Service) ListLibraries(ctx context.Context, actor policy.Actor) ([]model.Library, error) {
	if err := policy.CanManageLibraries(actor).Err(); err != nil {
		return nil, err
	}
	defer prometheus.TrackDBOperation("query")(time.Now())
	var libraries []model.Library
	err := s.db.WithContext(ctx).Order("name").Find(&libraries).Error
	return libraries, err
}

// CreateLibrary creates a library and, when requested, its first staff
// account in the same transaction
func (s *Service) CreateLibrary(ctx context.Context, actor policy.Actor, in LibraryInput) (*LibraryCreation, error) {
	if err := policy.CanManageLibraries(actor).Err(); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)

	ve := &ValidationError{}
	if err := ve.merge(validateStruct(in)); err != nil {
		return nil, err
	}
	if in.Code != "" {
		if taken, err := s.libraryCodeTaken(db, in.Code, 0); err != nil {
			return nil, err
		} else if taken {
			ve.Add("code", "Library with this code already exists.")
		}
	}

	var staff *model.User
	if in.Staff != nil {
		if err := validateStruct(*in.Staff); err != nil {
			vs, ok := err.(*ValidationError)
			if !ok {
				return nil, err
			}
			for field, msgs := range vs.Fields {
				for _, m := range msgs {
					ve.Add("staff."+field, m)
				}
			}
		}
		username := strings.TrimSpace(in.Staff.Username)
		if taken, err := s.usernameTaken(db, username); err != nil {
			return nil, err
		} else if taken {
			ve.Add("staff.username", "A user with that username already exists.")
		}
		if err := ve.OrNil(); err != nil {
			return nil, err
		}

		hashed, err := s.hashPassword(in.Staff.Password1)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		staff = &model.User{
			Username:  username,
			Email:     strings.TrimSpace(in.Staff.Email),
			FirstName: strings.TrimSpace(in.Staff.FirstName),
			LastName:  strings.TrimSpace(in.Staff.LastName),
			Password:  hashed,
			Role:      model.RoleLibrary,
			IsStaff:   true,
			IsActive:  true,
		}
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	library := &model.Library{
		Name:       in.Name,
		Code:       in.Code,
		Address:    in.Address,
		PostalCode: in.PostalCode,
		City:       in.City,
		Phone:      in.Phone,
		Email:      in.Email,
		Website:    in.Website,
		IsActive:   in.IsActive == nil || *in.IsActive,
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		defer prometheus.TrackDBOperation("insert")(time.Now())
		if err := tx.Create(library).Error; err != nil {
			return err
		}
		if staff == nil {
			return nil
		}
		staff.LibraryID = &library.ID
		return tx.Omit(clause.Associations).Create(staff).Error
	})
	if err != nil {
		if taken, cerr := s.libraryCodeTaken(db, in.Code, 0); cerr == nil && taken {
			return nil, newValidationError("code", "Library with this code already exists.")
		}
		if staff != nil {
			if taken, cerr := s.usernameTaken(db, staff.Username); cerr == nil && taken {
				return nil, newValidationError("staff.username", "A user with that username already exists.")
			}
		}
		return nil, fmt.Errorf("create library: %w", err)
	}

	prometheus.RecordLibraryOperation("create")
	fields := []zap.Field{
		zap.Uint("actor_id", actor.UserID()),
		zap.Uint("library_id", library.ID),
		zap.String("code", library.Code),
	}
	if staff != nil {
		fields = append(fields, zap.Uint("staff_id", staff.ID))
	}
	s.log(ctx).Info("Library created", fields...)

	return &LibraryCreation{Library: library, Staff: staff}, nil
}

// GetLibrary returns a library with its staff accounts and reader count
func (s *Service) GetLibrary(ctx context.Context, actor policy.Actor, id uint) (*LibraryDetail, error) {
	if err := policy.CanManageLibraries(actor).Err(); err != nil {
		return nil, err
	}
	defer prometheus.TrackDBOperation("query")(time.Now())
	db := s.db.WithContext(ctx)

	detail := &LibraryDetail{}
	if err := db.First(&detail.Library, id).Error; err != nil {
		return nil, notFound(err)
	}
	if err := db.Where("library_id = ? AND role = ?", id, model.RoleLibrary).
		Order("username").Find(&detail.Staff).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.User{}).
		Where("library_id = ? AND role = ?", id, model.RoleReader).
		Count(&detail.ReaderCount).Error; err != nil {
		return nil, err
	}
	return detail, nil
}

// UpdateLibrary applies the fields present in patch
func (s *Service) UpdateLibrary(ctx context.Context, actor policy.Actor, id uint, patch LibraryPatch) (*model.Library, error) {
	if err := policy.CanManageLibraries(actor).Err(); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	patch.Name = trimmed(patch.Name)
	patch.Code = trimmed(patch.Code)
	if err := validateStruct(patch); err != nil {
		return nil, err
	}

	var library model.Library
	if err := db.First(&library, id).Error; err != nil {
		return nil, notFound(err)
	}

	ve := &ValidationError{}
	if patch.Name != nil {
		if *patch.Name == "" {
			ve.Add("name", "This field may not be blank.")
		}
		library.Name = *patch.Name
	}
	if patch.Code != nil {
		if *patch.Code == "" {
			ve.Add("code", "This field may not be blank.")
		} else if taken, err := s.libraryCodeTaken(db, *patch.Code, id); err != nil {
			return nil, err
		} else if taken {
			ve.Add("code", "Library with this code already exists.")
		}
		library.Code = *patch.Code
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}
	assign(&library.Address, patch.Address)
	assign(&library.PostalCode, patch.PostalCode)
	assign(&library.City, patch.City)
	assign(&library.Phone, patch.Phone)
	assign(&library.Email, patch.Email)
	assign(&library.Website, patch.Website)
	assign(&library.IsActive, patch.IsActive)

	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := db.Save(&library).Error; err != nil {
		if taken, cerr := s.libraryCodeTaken(db, library.Code, id); cerr == nil && taken {
			return nil, newValidationError("code", "Library with this code already exists.")
		}
		return nil, fmt.Errorf("update library: %w", err)
	}

	prometheus.RecordLibraryOperation("update")
	s.log(ctx).Info("Library updated", zap.Uint("actor_id", actor.UserID()), zap.Uint("library_id", id))
	return &library, nil
}

// DeleteLibrary removes a library. Its staff and readers are kept and lose
// their library reference.
func (s *Service) DeleteLibrary(ctx context.Context, actor policy.Actor, id uint) error {
	if err := policy.CanManageLibraries(actor).Err(); err != nil {
		return err
	}
	db := s.db.WithContext(ctx)

	var library model.Library
	if err := db.First(&library, id).Error; err != nil {
		return notFound(err)
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		defer prometheus.TrackDBOperation("delete")(time.Now())
		if err := tx.Model(&model.User{}).Where("library_id = ?", id).Update("library_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&library).Error
	})
	if err != nil {
		return fmt.Errorf("delete library: %w", err)
	}

	prometheus.RecordLibraryOperation("delete")
	s.log(ctx).Info("Library deleted",
		zap.Uint("actor_id", actor.UserID()),
		zap.Uint("library_id", id),
		zap.String("code", library.Code))
	return nil
}

func (s *Service) libraryCodeTaken(db *gorm.DB, code string, exceptID uint) (bool, error) {
	var n int64
	err := db.Model(&model.Library{}).Where("code = ? AND id <> ?", code, exceptID).Count(&n).Error
	return n > 0, err
}

func assign[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
