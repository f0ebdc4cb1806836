package transaction

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"konsinyasi-backend/internal/apperror"
	"konsinyasi-backend/internal/locking"
	"konsinyasi-backend/internal/models"
	"konsinyasi-backend/internal/reconcile"
	"konsinyasi-backend/internal/response"
	"konsinyasi-backend/internal/testutil"
)

type fixture struct {
	db    *gorm.DB
	svc   *Service
	store models.Store
	cons  models.Consignment
	line  models.ProductItem
}

func setup(t *testing.T, qtys ...int) fixture {
	t.Helper()
	db := testutil.NewDB(t)
	store := testutil.SeedStore(t, db, "Toko Maju")
	product := testutil.SeedProduct(t, db, "P-001", 15000)
	cons := testutil.SeedConsignment(t, db, "CONS-00001", store.ID, product, qtys...)

	svc := NewService(db, reconcile.NewService(db, locking.NewLocalLocker()))
	svc.now = func() time.Time { return time.Date(2025, time.July, 20, 10, 0, 0, 0, time.UTC) }
	return fixture{db: db, svc: svc, store: store, cons: cons, line: cons.Items[0]}
}

func (f fixture) sell(t *testing.T, sold, returned int) (*models.Transaction, error) {
	t.Helper()
	return f.svc.Create(context.Background(), CreateInput{
		ConsignmentID: f.cons.ID,
		Items:         []ItemInput{{ProductItemID: f.line.ID, Sold: sold, Returned: returned}},
	})
}

func (f fixture) status(t *testing.T) models.ConsignmentStatus {
	return testutil.ReloadConsignment(t, f.db, f.cons.ID).Status
}

func TestTransactionScenarios(t *testing.T) {
	f := setup(t, 10)

	// Scenario 1
	a, err := f.sell(t, 4, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, testutil.ReloadItem(t, f.db, f.line.ID).Sales)
	assert.Equal(t, models.ConsignmentActive, f.status(t))
	assert.Equal(t, models.ConsignmentActive, a.Consignment.Status)
	assert.True(t, decimal.NewFromInt(60000).Equal(a.Totals().TotalAmount), "unit price defaults to the line price")

	// Scenario 2
	b, err := f.sell(t, 6, 0)
	require.NoError(t, err)
	assert.Equal(t, 10, testutil.ReloadItem(t, f.db, f.line.ID).Sales)
	assert.Equal(t, models.ConsignmentDone, f.status(t))
	assert.Equal(t, models.ConsignmentDone, b.Consignment.Status)

	// Scenario 3
	_, err = f.sell(t, 1, 0)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeQuantityExceeded), "got %v", err)
	appErr, _ := apperror.As(err)
	assert.Equal(t, "0", appErr.Details["available"])

	// Scenario 4
	_, err = f.svc.Delete(context.Background(), a.ID)
	require.NoError(t, err)
	line := testutil.ReloadItem(t, f.db, f.line.ID)
	assert.Equal(t, 6, line.Sales)
	require.NotNil(t, line.TransactionID)
	assert.Equal(t, b.ID, *line.TransactionID)
	assert.Equal(t, models.ConsignmentActive, f.status(t))

	_, err = f.svc.Get(context.Background(), a.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeNotFound))
	var kept int64
	require.NoError(t, f.db.Unscoped().Model(&models.Transaction{}).Where("id = ?", a.ID).Count(&kept).Error)
	assert.Equal(t, int64(1), kept, "deleted transactions stay as tombstones")
}

func TestBoundaryExactlyAtQuantity(t *testing.T) {
	f := setup(t, 10)
	_, err := f.sell(t, 7, 3)
	require.NoError(t, err)
	line := testutil.ReloadItem(t, f.db, f.line.ID)
	assert.Equal(t, 0, line.Remaining())
	assert.Equal(t, models.ConsignmentActive, f.status(t), "returns do not complete a consignment")

	_, err = f.sell(t, 0, 1)
	assert.True(t, apperror.HasCode(err, apperror.CodeQuantityExceeded))
}

func TestCreateOnDoneConsignmentIsNotActive(t *testing.T) {
	f := setup(t, 2)
	_, err := f.sell(t, 2, 0)
	require.NoError(t, err)
	require.Equal(t, models.ConsignmentDone, f.status(t))

	_, err = f.sell(t, 0, 0)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeConsignmentNotActive), "got %v", err)

	var count int64
	require.NoError(t, f.db.Model(&models.Transaction{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCreateValidation(t *testing.T) {
	f := setup(t, 10, 5)
	other := testutil.SeedConsignment(t, f.db, "CONS-00002", f.store.ID,
		testutil.SeedProduct(t, f.db, "P-002", 1000), 3)
	future := time.Date(2025, time.July, 21, 0, 0, 0, 0, time.UTC)
	negative := decimal.NewFromInt(-1)

	tests := []struct {
		name     string
		in       CreateInput
		wantCode string
	}{
		{"no items", CreateInput{ConsignmentID: f.cons.ID}, apperror.CodeValidation},
		{"foreign line", CreateInput{ConsignmentID: f.cons.ID, Items: []ItemInput{
			{ProductItemID: other.Items[0].ID, Sold: 1},
		}}, apperror.CodeValidation},
		{"duplicate line", CreateInput{ConsignmentID: f.cons.ID, Items: []ItemInput{
			{ProductItemID: f.line.ID, Sold: 1},
			{ProductItemID: f.line.ID, Sold: 1},
		}}, apperror.CodeValidation},
		{"negative sold", CreateInput{ConsignmentID: f.cons.ID, Items: []ItemInput{
			{ProductItemID: f.line.ID, Sold: -2},
		}}, apperror.CodeValidation},
		{"negative price", CreateInput{ConsignmentID: f.cons.ID, Items: []ItemInput{
			{ProductItemID: f.line.ID, Sold: 1, Price: &negative},
		}}, apperror.CodeValidation},
		{"future date", CreateInput{ConsignmentID: f.cons.ID, TransactionDate: &future, Items: []ItemInput{
			{ProductItemID: f.line.ID, Sold: 1},
		}}, apperror.CodeValidation},
		{"unknown consignment", CreateInput{ConsignmentID: 999, Items: []ItemInput{
			{ProductItemID: f.line.ID, Sold: 1},
		}}, apperror.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), tt.in)
			require.Error(t, err)
			assert.True(t, apperror.HasCode(err, tt.wantCode), "got %v", err)
		})
	}

	var count int64
	require.NoError(t, f.db.Model(&models.Transaction{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestUpdateReplacesItemsAndReconciles(t *testing.T) {
	f := setup(t, 10)
	a, err := f.sell(t, 4, 0)
	require.NoError(t, err)
	_, err = f.sell(t, 6, 0)
	require.NoError(t, err)
	require.Equal(t, models.ConsignmentDone, f.status(t))

	notes := "miscounted"
	price := decimal.NewFromInt(14000)
	updated, err := f.svc.Update(context.Background(), a.ID, UpdateInput{
		Notes: &notes,
		Items: []ItemInput{{ProductItemID: f.line.ID, Sold: 2, Returned: 1, Price: &price}},
	})
	require.NoError(t, err)
	assert.Equal(t, "miscounted", updated.Notes)
	require.Len(t, updated.Items, 1)
	assert.True(t, price.Equal(updated.Items[0].UnitPrice))

	line := testutil.ReloadItem(t, f.db, f.line.ID)
	assert.Equal(t, 8, line.Sales)
	assert.Equal(t, 1, line.Returned)
	assert.Equal(t, models.ConsignmentActive, f.status(t))

	_, err = f.svc.Update(context.Background(), a.ID, UpdateInput{
		Items: []ItemInput{{ProductItemID: f.line.ID, Sold: 5}},
	})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeQuantityExceeded))
	appErr, _ := apperror.As(err)
	assert.Equal(t, "4", appErr.Details["available"])

	line = testutil.ReloadItem(t, f.db, f.line.ID)
	assert.Equal(t, 8, line.Sales, "failed update leaves counters alone")
}

func TestListAndSummary(t *testing.T) {
	f := setup(t, 10)
	_, err := f.sell(t, 4, 1)
	require.NoError(t, err)
	_, err = f.sell(t, 2, 0)
	require.NoError(t, err)

	otherStore := testutil.SeedStore(t, f.db, "Warung Sari")
	product := testutil.SeedProduct(t, f.db, "P-002", 1000)
	other := testutil.SeedConsignment(t, f.db, "CONS-00002", otherStore.ID, product, 5)
	_, err = f.svc.Create(context.Background(), CreateInput{
		ConsignmentID: other.ID,
		Items:         []ItemInput{{ProductItemID: other.Items[0].ID, Sold: 5}},
	})
	require.NoError(t, err)

	list, total, err := f.svc.List(context.Background(), ListFilter{StoreID: &f.store.ID}, response.Page{Page: 1, PerPage: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, list, 2)

	list, total, err = f.svc.List(context.Background(), ListFilter{ProductID: &product.ID}, response.Page{Page: 1, PerPage: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, other.ID, list[0].ConsignmentID)

	sum, err := f.svc.Summary(context.Background(), ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), sum.Transactions)
	assert.Equal(t, 11, sum.TotalSold)
	assert.Equal(t, 1, sum.TotalReturned)
	assert.True(t, decimal.NewFromInt(95000).Equal(sum.TotalAmount), sum.TotalAmount.String())
	require.Len(t, sum.Stores, 2)
	assert.Equal(t, 2, sum.Stores[0].Transactions)
	assert.Equal(t, "Warung Sari", sum.Stores[1].StoreName)
}

func TestSetPhoto(t *testing.T) {
	f := setup(t, 10)
	a, err := f.sell(t, 1, 0)
	require.NoError(t, err)

	old, err := f.svc.SetPhoto(context.Background(), a.ID, PhotoSold, "transactions/1/a.jpg")
	require.NoError(t, err)
	assert.Empty(t, old)
	old, err = f.svc.SetPhoto(context.Background(), a.ID, PhotoSold, "transactions/1/b.jpg")
	require.NoError(t, err)
	assert.Equal(t, "transactions/1/a.jpg", old)

	_, err = f.svc.SetPhoto(context.Background(), a.ID, "other", "x.jpg")
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestHugeAmountsAreRejected(t *testing.T) {
	f := setup(t, 10)
	_, err := f.sell(t, 5, 0)
	require.NoError(t, err)

	tests := []struct {
		name     string
		sold     int
		returned int
		wantCode string
	}{
		{"sold at int max", math.MaxInt, 0, apperror.CodeValidation},
		{"returned at int max", 0, math.MaxInt, apperror.CodeValidation},
		{"sale that would wrap the line counter", math.MaxInt - 2, 0, apperror.CodeValidation},
		{"sold and returned that would wrap together", math.MaxInt, 1, apperror.CodeValidation},
		{"largest accepted amount still over the line", models.MaxLineQty, 0, apperror.CodeQuantityExceeded},
		{"largest accepted amounts together", models.MaxLineQty, models.MaxLineQty, apperror.CodeQuantityExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.sell(t, tt.sold, tt.returned)
			require.Error(t, err)
			assert.True(t, apperror.HasCode(err, tt.wantCode), "got %v", err)
		})
	}

	line := testutil.ReloadItem(t, f.db, f.line.ID)
	assert.Equal(t, 5, line.Sales)
	assert.Equal(t, 0, line.Returned)
	assert.Equal(t, models.ConsignmentActive, f.status(t))

	var count int64
	require.NoError(t, f.db.Model(&models.Transaction{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
