package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ConsignmentStatus string

// Two-state model: a consignment is done once everything consigned is sold.
const (
	ConsignmentActive ConsignmentStatus = "active"
	ConsignmentDone   ConsignmentStatus = "done"
)

// MaxLineQty bounds a line's qty and any single sold or returned amount, so
// counter arithmetic stays far from int overflow.
const MaxLineQty = 1_000_000

func (s ConsignmentStatus) Valid() bool {
	return s == ConsignmentActive || s == ConsignmentDone
}

// Consignment: goods placed at a store, pending sale or return.
type Consignment struct {
	ID              uint              `gorm:"primaryKey"`
	Code            string            `gorm:"size:20;not null;uniqueIndex"` // CONS-00001, unique across soft-deleted rows too
	StoreID         uint              `gorm:"index;not null"`
	Store           *Store            `gorm:"foreignKey:StoreID"`
	ConsignmentDate time.Time         `gorm:"index;not null"`
	PickupDate      time.Time         `gorm:"not null"`
	Status          ConsignmentStatus `gorm:"size:20;not null;default:active;index"`
	Notes           string            `gorm:"type:text"`
	PhotoPath       string            `gorm:"size:255"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       gorm.DeletedAt `gorm:"index"`

	Items        []ProductItem `gorm:"foreignKey:ConsignmentID"`
	Transactions []Transaction `gorm:"foreignKey:ConsignmentID"`
}

// ProductItem: one product line inside a consignment with running counters.
// Sales and Returned are written only by reconciliation.
type ProductItem struct {
	ID            uint            `gorm:"primaryKey"`
	ConsignmentID uint            `gorm:"index;not null"`
	ProductID     uint            `gorm:"index;not null"`
	Product       *Product        `gorm:"foreignKey:ProductID"`
	TransactionID *uint           `gorm:"index"` // last live transaction that touched the line
	Name          string          `gorm:"size:255;not null"`
	Code          string          `gorm:"size:50;not null"`
	Price         decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Description   string          `gorm:"type:text"`
	Qty           int             `gorm:"not null;default:0"`
	Sales         int             `gorm:"not null;default:0"`
	Returned      int             `gorm:"column:returned;not null;default:0"` // "return" is reserved in SQL
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     gorm.DeletedAt `gorm:"index"`
}

func (p ProductItem) Remaining() int {
	return p.Qty - p.Sales - p.Returned
}

type ConsignmentTotals struct {
	TotalQuantity int
	TotalSold     int
	TotalReturned int
}

func (t ConsignmentTotals) Remaining() int {
	return t.TotalQuantity - t.TotalSold - t.TotalReturned
}

// FullyResolved: nothing left at the store, whether sold or returned.
func (t ConsignmentTotals) FullyResolved() bool {
	return t.TotalQuantity > 0 && t.Remaining() <= 0
}

// Totals needs Items loaded.
func (c Consignment) Totals() ConsignmentTotals {
	var t ConsignmentTotals
	for _, it := range c.Items {
		t.TotalQuantity += it.Qty
		t.TotalSold += it.Sales
		t.TotalReturned += it.Returned
	}
	return t
}
