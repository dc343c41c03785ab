package model

import (
	"time"
)

// Library represents a médiathèque, the tenant that owns staff and readers
type Library struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	Name       string    `json:"name" gorm:"type:varchar(200);not null"`
	Code       string    `json:"code" gorm:"type:varchar(20);uniqueIndex;not null"`
	Address    string    `json:"address" gorm:"type:text"`
	PostalCode string    `json:"postal_code" gorm:"type:varchar(10)"`
	City       string    `json:"city" gorm:"type:varchar(100)"`
	Phone      string    `json:"phone" gorm:"type:varchar(20)"`
	Email      string    `json:"email" gorm:"type:varchar(254)"`
	Website    string    `json:"website" gorm:"type:varchar(200)"`
	IsActive   bool      `json:"is_active" gorm:"not null"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (l Library) String() string {
	return l.Name + " (" + l.Code + ")"
}
