package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Game struct {
	Code         string        `gorm:"primaryKey;size:12"`
	CreatorID    int64         `gorm:"index;not null"`
	DrawnAt      *time.Time
	CreatedAt    time.Time     `gorm:"not null"`
	UpdatedAt    time.Time     `gorm:"not null"`
	Participants []Participant `gorm:"foreignKey:GameCode;references:Code"`
	Events       []Event       `gorm:"foreignKey:GameCode;references:Code"`
}

// Participant.SantaOf is the ward this user gives to, WardOf the santa giving
// to this user.
type Participant struct {
	UserID     int64     `gorm:"primaryKey;autoIncrement:false"`
	Username   string    `gorm:"size:64"`
	FullName   string    `gorm:"size:128"`
	GameCode   string    `gorm:"size:12;index;not null"`
	Wish       string    `gorm:"type:text;not null;default:''"`
	SantaOf    *int64    `gorm:"index"`
	WardOf     *int64    `gorm:"index"`
	GiftBought bool      `gorm:"not null;default:false"`
	JoinedAt   time.Time `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

type Event struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey"`
	GameCode  string         `gorm:"size:12;index;not null"`
	UserID    *int64         `gorm:"index"`
	Type      string         `gorm:"size:64;not null"`
	Payload   datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt time.Time      `gorm:"not null"`
}
