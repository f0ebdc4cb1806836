package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"konsinyasi-backend/internal/apperror"
	"konsinyasi-backend/internal/models"
	"konsinyasi-backend/internal/response"
	"konsinyasi-backend/internal/testutil"
)

func TestCreateUpdateGet(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db)
	ctx := context.Background()

	_, err := svc.Create(ctx, Input{Name: "   "})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	lat := -6.2
	st, err := svc.Create(ctx, Input{Name: " Toko Maju ", Phone: "0812", OwnerName: "Budi", Latitude: &lat})
	require.NoError(t, err)
	assert.Equal(t, "Toko Maju", st.Name)

	owner := "Siti"
	updated, err := svc.Update(ctx, st.ID, UpdateInput{OwnerName: &owner})
	require.NoError(t, err)
	assert.Equal(t, "Siti", updated.OwnerName)
	assert.Equal(t, "Toko Maju", updated.Name, "untouched fields stay")
	require.NotNil(t, updated.Latitude)
	assert.InDelta(t, -6.2, *updated.Latitude, 1e-9)

	_, err = svc.Get(ctx, 404)
	assert.True(t, apperror.HasCode(err, apperror.CodeNotFound))

	var logs []models.AuditLog
	require.NoError(t, db.Where("entity_type = ? AND entity_id = ?", "store", st.ID).Order("id").Find(&logs).Error)
	require.Len(t, logs, 2)
	assert.Equal(t, models.AuditActionCreate, logs[0].Action)
	assert.Equal(t, models.AuditActionUpdate, logs[1].Action)
}

func TestListSearch(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db)
	ctx := context.Background()

	for _, in := range []Input{
		{Name: "Toko Maju", OwnerName: "Budi"},
		{Name: "Warung Sari", OwnerName: "Siti", Phone: "0813"},
		{Name: "Kios Budiman"},
	} {
		_, err := svc.Create(ctx, in)
		require.NoError(t, err)
	}

	list, total, err := svc.List(ctx, "BUDI", response.Page{Page: 1, PerPage: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, "Kios Budiman", list[0].Name)

	_, total, err = svc.List(ctx, "0813", response.Page{Page: 1, PerPage: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	list, total, err = svc.List(ctx, "", response.Page{Page: 2, PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, list, 1)
	assert.Equal(t, "Warung Sari", list[0].Name)
}

func TestDeleteGuard(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db)
	ctx := context.Background()
	product := testutil.SeedProduct(t, db, "P-001", 10000)

	t.Run("store with a live consignment", func(t *testing.T) {
		st := testutil.SeedStore(t, db, "Toko Maju")
		testutil.SeedConsignment(t, db, "CONS-00001", st.ID, product, 5)

		_, err := svc.Delete(ctx, st.ID)
		assert.True(t, apperror.HasCode(err, apperror.CodeReferentialIntegrity), "got %v", err)
	})

	t.Run("store whose deleted consignment has transactions", func(t *testing.T) {
		st := testutil.SeedStore(t, db, "Warung Sari")
		c := testutil.SeedConsignment(t, db, "CONS-00002", st.ID, product, 5)
		require.NoError(t, db.Create(&models.Transaction{
			ConsignmentID:   c.ID,
			TransactionDate: testutil.Day(2025, time.July, 5),
			Items:           []models.TransactionItem{{ProductItemID: c.Items[0].ID, Sold: 1, UnitPrice: decimal.NewFromInt(10000)}},
		}).Error)
		require.NoError(t, db.Delete(&c).Error)

		_, err := svc.Delete(ctx, st.ID)
		assert.True(t, apperror.HasCode(err, apperror.CodeReferentialIntegrity), "got %v", err)
	})

	t.Run("unused store", func(t *testing.T) {
		st := testutil.SeedStore(t, db, "Kios Baru")
		deleted, err := svc.Delete(ctx, st.ID)
		require.NoError(t, err)
		assert.Equal(t, "Kios Baru", deleted.Name)

		_, err = svc.Get(ctx, st.ID)
		assert.True(t, apperror.HasCode(err, apperror.CodeNotFound))
	})
}
