package handler

import (
	"time"

	"mediabib-service/internal/model"
)

const dateLayout = "2006-01-02"

type libraryView struct {
	ID         uint   `json:"id"`
	Name       string `json:"name"`
	Code       string `json:"code"`
	Address    string `json:"address"`
	PostalCode string `json:"postal_code"`
	City       string `json:"city"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	Website    string `json:"website"`
	IsActive   bool   `json:"is_active"`
}

type librarySummary struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

type adminLibraryView struct {
	libraryView
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type libraryDetailView struct {
	adminLibraryView
	Staff       []userView `json:"staff"`
	ReaderCount int64      `json:"reader_count"`
}

type userView struct {
	ID        uint            `json:"id"`
	Username  string          `json:"username"`
	Email     string          `json:"email"`
	FirstName string          `json:"first_name"`
	LastName  string          `json:"last_name"`
	FullName  string          `json:"full_name"`
	Role      model.Role      `json:"role"`
	Library   *librarySummary `json:"library"`
	IsActive  bool            `json:"is_active"`
	LastLogin *time.Time      `json:"last_login"`
}

// profileView is the reader's own view of their profile
type profileView struct {
	ID                uint         `json:"id"`
	Username          string       `json:"username"`
	Email             string       `json:"email"`
	FirstName         string       `json:"first_name"`
	LastName          string       `json:"last_name"`
	FullName          string       `json:"full_name"`
	CardNumber        string       `json:"card_number"`
	CardIssuedDate    string       `json:"card_issued_date"`
	CardExpiryDate    *string      `json:"card_expiry_date"`
	Category          string       `json:"category"`
	BirthDate         *string      `json:"birth_date"`
	Address           string       `json:"address"`
	PostalCode        string       `json:"postal_code"`
	City              string       `json:"city"`
	Phone             string       `json:"phone"`
	GDPRConsent       bool         `json:"gdpr_consent"`
	NewsletterConsent bool         `json:"newsletter_consent"`
	IsActive          bool         `json:"is_active"`
	IsBlocked         bool         `json:"is_blocked"`
	Library           *libraryView `json:"library"`
}

// adminReaderView adds the staff-only fields
type adminReaderView struct {
	profileView
	UserID          uint       `json:"user_id"`
	GDPRConsentDate *time.Time `json:"gdpr_consent_date"`
	BlockedReason   string     `json:"blocked_reason"`
	InternalNotes   string     `json:"internal_notes"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func newLibraryView(l *model.Library) *libraryView {
	if l == nil {
		return nil
	}
	return &libraryView{
		ID:         l.ID,
		Name:       l.Name,
		Code:       l.Code,
		Address:    l.Address,
		PostalCode: l.PostalCode,
		City:       l.City,
		Phone:      l.Phone,
		Email:      l.Email,
		Website:    l.Website,
		IsActive:   l.IsActive,
	}
}

func newLibrarySummary(l *model.Library) *librarySummary {
	if l == nil {
		return nil
	}
	return &librarySummary{ID: l.ID, Name: l.Name, Code: l.Code}
}

func newAdminLibraryView(l *model.Library) adminLibraryView {
	return adminLibraryView{libraryView: *newLibraryView(l), CreatedAt: l.CreatedAt, UpdatedAt: l.UpdatedAt}
}

func newUserView(u *model.User) userView {
	return userView{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		FullName:  u.FullName(),
		Role:      u.Role,
		Library:   newLibrarySummary(u.Library),
		IsActive:  u.IsActive,
		LastLogin: u.LastLogin,
	}
}

func newProfileView(p *model.ReaderProfile) profileView {
	return profileView{
		ID:                p.ID,
		Username:          p.User.Username,
		Email:             p.User.Email,
		FirstName:         p.User.FirstName,
		LastName:          p.User.LastName,
		FullName:          p.User.FullName(),
		CardNumber:        p.CardNumber,
		CardIssuedDate:    p.CardIssuedDate.Format(dateLayout),
		CardExpiryDate:    formatDate(p.CardExpiryDate),
		Category:          string(p.Category),
		BirthDate:         formatDate(p.BirthDate),
		Address:           p.Address,
		PostalCode:        p.PostalCode,
		City:              p.City,
		Phone:             p.Phone,
		GDPRConsent:       p.GDPRConsent,
		NewsletterConsent: p.NewsletterConsent,
		IsActive:          p.IsActive,
		IsBlocked:         p.IsBlocked,
		Library:           newLibraryView(p.User.Library),
	}
}

func newAdminReaderView(p *model.ReaderProfile) adminReaderView {
	return adminReaderView{
		profileView:     newProfileView(p),
		UserID:          p.UserID,
		GDPRConsentDate: p.GDPRConsentDate,
		BlockedReason:   p.BlockedReason,
		InternalNotes:   p.InternalNotes,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}
