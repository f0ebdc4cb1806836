package models

import (
	"time"

	"gorm.io/gorm"
)

type Store struct {
	ID        uint     `gorm:"primaryKey"`
	Name      string   `gorm:"size:255;not null;index"`
	Address   string   `gorm:"type:text"`
	Phone     string   `gorm:"size:20"`
	OwnerName string   `gorm:"size:255"`
	Latitude  *float64 `gorm:"type:decimal(10,8)"`
	Longitude *float64 `gorm:"type:decimal(11,8)"`
	PhotoPath string   `gorm:"size:255"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}
