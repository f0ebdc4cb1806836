// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"konsinyasi-backend/internal/database"
	"konsinyasi-backend/internal/models"
)

// NewDB returns a migrated in-memory SQLite database private to t.
// A single connection keeps the memory database alive and serializes access.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func SeedStore(t *testing.T, db *gorm.DB, name string) models.Store {
	t.Helper()
	s := models.Store{Name: name, Address: "Jl. Contoh No. 1", Phone: "0811", OwnerName: "Owner"}
	require.NoError(t, db.Create(&s).Error)
	return s
}

func SeedProduct(t *testing.T, db *gorm.DB, code string, price int64) models.Product {
	t.Helper()
	p := models.Product{Name: "Product " + code, Code: code, Price: decimal.NewFromInt(price)}
	require.NoError(t, db.Create(&p).Error)
	return p
}

// SeedConsignment creates an active consignment with one line per qty, all for product.
func SeedConsignment(t *testing.T, db *gorm.DB, code string, storeID uint, product models.Product, qtys ...int) models.Consignment {
	t.Helper()
	c := models.Consignment{
		Code:            code,
		StoreID:         storeID,
		ConsignmentDate: Day(2025, time.July, 1),
		PickupDate:      Day(2025, time.August, 1),
		Status:          models.ConsignmentActive,
	}
	for _, q := range qtys {
		c.Items = append(c.Items, models.ProductItem{
			ProductID: product.ID,
			Name:      product.Name,
			Code:      product.Code,
			Price:     product.Price,
			Qty:       q,
		})
	}
	require.NoError(t, db.Create(&c).Error)
	return c
}

// ReloadItem reads a line back with fresh counters.
func ReloadItem(t *testing.T, db *gorm.DB, id uint) models.ProductItem {
	t.Helper()
	var it models.ProductItem
	require.NoError(t, db.First(&it, id).Error)
	return it
}

func ReloadConsignment(t *testing.T, db *gorm.DB, id uint) models.Consignment {
	t.Helper()
	var c models.Consignment
	require.NoError(t, db.Preload("Items").First(&c, id).Error)
	return c
}
