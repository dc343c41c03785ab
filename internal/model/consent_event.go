package model

import "time"

// ConsentKind identifies which consent a ConsentEvent records
type ConsentKind string

const (
	ConsentGDPR       ConsentKind = "gdpr"
	ConsentNewsletter ConsentKind = "newsletter"
)

// ConsentEvent is an append-only record of a consent transition
type ConsentEvent struct {
	ID        uint        `json:"id" gorm:"primaryKey"`
	ProfileID uint        `json:"profile_id" gorm:"index;not null"`
	Kind      ConsentKind `json:"kind" gorm:"type:varchar(20);not null"`
	Granted   bool        `json:"granted" gorm:"not null"`
	ActorID   *uint       `json:"actor_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"`

	Profile ReaderProfile `json:"-" gorm:"foreignKey:ProfileID;constraint:OnDelete:CASCADE"`
}
