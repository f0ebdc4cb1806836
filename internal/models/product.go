package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Product struct {
	ID          uint            `gorm:"primaryKey"`
	Name        string          `gorm:"size:255;not null"`
	Code        string          `gorm:"size:50;not null;index"` // unique among live products, checked in the service
	Price       decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Description string          `gorm:"type:text"`
	PhotoPath   string          `gorm:"size:255"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}
