package model

import (
	"regexp"
	"strings"
	"time"
)

// Category classifies a reader for loan rules and statistics
type Category string

const (
	CategoryChild        Category = "child"
	CategoryTeen         Category = "teen"
	CategoryAdult        Category = "adult"
	CategoryStudent      Category = "student"
	CategorySenior       Category = "senior"
	CategoryProfessional Category = "professional"
)

// Categories lists the accepted reader categories in display order
var Categories = []Category{
	CategoryChild, CategoryTeen, CategoryAdult, CategoryStudent, CategorySenior, CategoryProfessional,
}

// Valid reports whether c is a known category
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

var cardNumberPattern = regexp.MustCompile(`^[A-Z0-9-]+$`)

// ValidCardNumber reports whether s only holds uppercase letters, digits and hyphens
func ValidCardNumber(s string) bool {
	return len(s) <= 50 && cardNumberPattern.MatchString(s)
}

// ReaderProfile is the GDPR-governed record attached one-to-one to a reader identity
type ReaderProfile struct {
	ID     uint `json:"id" gorm:"primaryKey"`
	UserID uint `json:"user_id" gorm:"uniqueIndex;not null"`

	CardNumber     string     `json:"card_number" gorm:"type:varchar(50);uniqueIndex;not null"`
	CardIssuedDate time.Time  `json:"card_issued_date" gorm:"<-:create;type:date;not null"`
	CardExpiryDate *time.Time `json:"card_expiry_date" gorm:"type:date"`

	BirthDate  *time.Time `json:"birth_date" gorm:"type:date"`
	Address    string     `json:"address" gorm:"type:text"`
	PostalCode string     `json:"postal_code" gorm:"type:varchar(10)"`
	City       string     `json:"city" gorm:"type:varchar(100)"`
	Phone      string     `json:"phone" gorm:"type:varchar(20)"`
	Category   Category   `json:"category" gorm:"type:varchar(20);not null;default:'adult'"`

	GDPRConsent       bool       `json:"gdpr_consent" gorm:"column:gdpr_consent;not null;default:false"`
	GDPRConsentDate   *time.Time `json:"gdpr_consent_date" gorm:"column:gdpr_consent_date"`
	NewsletterConsent bool       `json:"newsletter_consent" gorm:"not null;default:false"`

	InternalNotes string `json:"-" gorm:"type:text"`

	IsActive      bool   `json:"is_active" gorm:"not null"`
	IsBlocked     bool   `json:"is_blocked" gorm:"not null;default:false"`
	BlockedReason string `json:"blocked_reason" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	User User `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// FullAddress joins the street address with postal code and city
func (p *ReaderProfile) FullAddress() string {
	var parts []string
	if p.Address != "" {
		parts = append(parts, p.Address)
	}
	if town := strings.TrimSpace(p.PostalCode + " " + p.City); town != "" {
		parts = append(parts, town)
	}
	return strings.Join(parts, ", ")
}

// SetGDPRConsent records a consent value; the timestamp is set exactly when
// consent becomes true and cleared on withdrawal. It reports whether the value changed.
func (p *ReaderProfile) SetGDPRConsent(granted bool, now time.Time) bool {
	if p.GDPRConsent == granted {
		return false
	}
	p.GDPRConsent = granted
	if granted {
		p.GDPRConsentDate = &now
	} else {
		p.GDPRConsentDate = nil
	}
	return true
}
