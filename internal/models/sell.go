package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Sell is a priced listing owned by exactly one user.
type Sell struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Title       string    `gorm:"size:100;not null"`
	Content     string    `gorm:"type:text;not null"`
	Price       float64   `gorm:"not null"`
	PictureFile string    `gorm:"size:40;not null;default:'default.png'"`
	UserID      uuid.UUID `gorm:"type:uuid;not null;index"`
	DatePosted  time.Time `gorm:"not null;index"`

	Author User `gorm:"foreignKey:UserID"`
}

func (s *Sell) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.DatePosted.IsZero() {
		s.DatePosted = time.Now().UTC()
	}
	if s.PictureFile == "" {
		s.PictureFile = DefaultImage
	}
	return nil
}
