package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Transaction: a sale/return event recorded against consignment lines.
type Transaction struct {
	ID                     uint         `gorm:"primaryKey"`
	ConsignmentID          uint         `gorm:"index;not null"`
	Consignment            *Consignment `gorm:"foreignKey:ConsignmentID"`
	TransactionDate        time.Time    `gorm:"index;not null"`
	Notes                  string       `gorm:"type:text"`
	SoldItemsPhotoPath     string       `gorm:"size:255"`
	ReturnedItemsPhotoPath string       `gorm:"size:255"`
	CreatedAt              time.Time
	UpdatedAt              time.Time
	DeletedAt              gorm.DeletedAt `gorm:"index"`

	Items []TransactionItem `gorm:"foreignKey:TransactionID;constraint:OnDelete:CASCADE"`
}

// TransactionItem is one line's contribution. Rows of soft-deleted
// transactions stay in place and are ignored by reconciliation.
type TransactionItem struct {
	ID            uint            `gorm:"primaryKey"`
	TransactionID uint            `gorm:"index;not null"`
	ProductItemID uint            `gorm:"index;not null"`
	ProductItem   *ProductItem    `gorm:"foreignKey:ProductItemID"`
	Sold          int             `gorm:"not null;default:0"`
	Returned      int             `gorm:"not null;default:0"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (i TransactionItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Sold)))
}

type TransactionTotals struct {
	TotalSold     int
	TotalReturned int
	TotalAmount   decimal.Decimal
}

// Totals needs Items loaded.
func (t Transaction) Totals() TransactionTotals {
	out := TransactionTotals{TotalAmount: decimal.Zero}
	for _, it := range t.Items {
		out.TotalSold += it.Sold
		out.TotalReturned += it.Returned
		out.TotalAmount = out.TotalAmount.Add(it.Subtotal())
	}
	return out
}
