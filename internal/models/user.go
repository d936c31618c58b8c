package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultImage is the placeholder picture shipped in the image-assets directory.
const DefaultImage = "default.png"

type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Username     string    `gorm:"uniqueIndex;size:20;not null"`
	Email        string    `gorm:"uniqueIndex;size:120;not null"`
	PasswordHash string    `gorm:"size:60;not null"`
	ImageFile    string    `gorm:"size:40;not null;default:'default.png'"`
	CreatedAt    time.Time

	// Связи
	Sells []Sell `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.ImageFile == "" {
		u.ImageFile = DefaultImage
	}
	return nil
}
