package model

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Role is the single role an identity holds
type Role string

const (
	RoleSuperadmin Role = "superadmin"
	RoleLibrary    Role = "library"
	RoleReader     Role = "reader"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleSuperadmin, RoleLibrary, RoleReader:
		return true
	}
	return false
}

// User represents an authenticated identity
type User struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	Username    string     `json:"username" gorm:"type:varchar(150);uniqueIndex;not null"`
	Email       string     `json:"email" gorm:"type:varchar(254);index"`
	FirstName   string     `json:"first_name" gorm:"type:varchar(150)"`
	LastName    string     `json:"last_name" gorm:"type:varchar(150)"`
	Password    string     `json:"-" gorm:"type:varchar(255);not null"`
	Role        Role       `json:"role" gorm:"type:varchar(20);not null;default:'reader';index"`
	LibraryID   *uint      `json:"library_id,omitempty" gorm:"index"`
	IsStaff     bool       `json:"is_staff" gorm:"not null;default:false"`
	IsSuperuser bool       `json:"is_superuser" gorm:"not null;default:false"`
	IsActive    bool       `json:"is_active" gorm:"not null"`
	LastLogin   *time.Time `json:"last_login,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Relations
	Library *Library `json:"library,omitempty" gorm:"foreignKey:LibraryID;constraint:OnDelete:SET NULL"`
}

// BeforeSave keeps superadmins fully privileged on every write, not only at creation
func (u *User) BeforeSave(tx *gorm.DB) error {
	if u.Role == RoleSuperadmin {
		u.IsStaff = true
		u.IsSuperuser = true
	}
	return nil
}

// FullName mirrors the display name used in notifications and API views
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// DisplayName falls back to the username when no name is recorded
func (u *User) DisplayName() string {
	if name := u.FullName(); name != "" {
		return name
	}
	return u.Username
}
