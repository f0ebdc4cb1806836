package reconcile

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"konsinyasi-backend/internal/apperror"
	"konsinyasi-backend/internal/models"
)

func TestCompute(t *testing.T) {
	lines := []Line{{ID: 1, Qty: 10}, {ID: 2, Qty: 5}}

	tests := []struct {
		name          string
		contributions []Contribution
		wantCode      string
		wantStatus    models.ConsignmentStatus
		wantSales     []int
		wantReturned  []int
	}{
		{
			name:         "no transactions",
			wantStatus:   models.ConsignmentActive,
			wantSales:    []int{0, 0},
			wantReturned: []int{0, 0},
		},
		{
			name: "partial sale",
			contributions: []Contribution{
				{TransactionID: 1, ProductItemID: 1, Sold: 4},
			},
			wantStatus:   models.ConsignmentActive,
			wantSales:    []int{4, 0},
			wantReturned: []int{0, 0},
		},
		{
			name: "sold out across transactions",
			contributions: []Contribution{
				{TransactionID: 1, ProductItemID: 1, Sold: 4},
				{TransactionID: 2, ProductItemID: 1, Sold: 6},
				{TransactionID: 2, ProductItemID: 2, Sold: 5},
			},
			wantStatus:   models.ConsignmentDone,
			wantSales:    []int{10, 5},
			wantReturned: []int{0, 0},
		},
		{
			name: "exactly at quantity with returns stays active",
			contributions: []Contribution{
				{TransactionID: 1, ProductItemID: 1, Sold: 7, Returned: 3},
				{TransactionID: 1, ProductItemID: 2, Returned: 5},
			},
			wantStatus:   models.ConsignmentActive,
			wantSales:    []int{7, 0},
			wantReturned: []int{3, 5},
		},
		{
			name: "one over quantity",
			contributions: []Contribution{
				{TransactionID: 1, ProductItemID: 1, Sold: 10},
				{TransactionID: 2, ProductItemID: 1, Returned: 1},
			},
			wantCode: apperror.CodeQuantityExceeded,
		},
		{
			name: "sold at int max",
			contributions: []Contribution{
				{TransactionID: 1, ProductItemID: 1, Sold: math.MaxInt},
			},
			wantCode: apperror.CodeQuantityExceeded,
		},
		{
			name: "sold and returned that wrap around when added",
			contributions: []Contribution{
				{TransactionID: 1, ProductItemID: 1, Sold: math.MaxInt, Returned: 1},
			},
			wantCode: apperror.CodeQuantityExceeded,
		},
		{
			name: "second sale that would wrap the running total",
			contributions: []Contribution{
				{TransactionID: 1, ProductItemID: 1, Sold: 5},
				{TransactionID: 2, ProductItemID: 1, Sold: math.MaxInt - 2},
			},
			wantCode: apperror.CodeQuantityExceeded,
		},
		{
			name: "returned at int max after a sale",
			contributions: []Contribution{
				{TransactionID: 1, ProductItemID: 2, Sold: 1},
				{TransactionID: 2, ProductItemID: 2, Returned: math.MaxInt},
			},
			wantCode: apperror.CodeQuantityExceeded,
		},
		{
			name: "negative sold",
			contributions: []Contribution{
				{TransactionID: 1, ProductItemID: 1, Sold: -1},
			},
			wantCode: apperror.CodeValidation,
		},
		{
			name: "foreign line",
			contributions: []Contribution{
				{TransactionID: 1, ProductItemID: 99, Sold: 1},
			},
			wantCode: apperror.CodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Compute(lines, tt.contributions)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.True(t, apperror.HasCode(err, tt.wantCode), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, res.Status)
			assert.Equal(t, 15, res.TotalQuantity)
			for i, l := range res.Lines {
				assert.Equal(t, tt.wantSales[i], l.Sales, "sales of line %d", l.ProductItemID)
				assert.Equal(t, tt.wantReturned[i], l.Returned, "returned of line %d", l.ProductItemID)
			}
		})
	}
}

func TestComputeQuantityExceededDetails(t *testing.T) {
	_, err := Compute([]Line{{ID: 7, Qty: 3}}, []Contribution{{TransactionID: 1, ProductItemID: 7, Sold: 4}})
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, "7", appErr.Details["product_item_id"])
	assert.Equal(t, "3", appErr.Details["qty"])
	assert.Equal(t, "4", appErr.Details["requested"])
}

func TestComputeQuantityExceededDetailsDoNotWrap(t *testing.T) {
	_, err := Compute(
		[]Line{{ID: 7, Qty: 10}},
		[]Contribution{
			{TransactionID: 1, ProductItemID: 7, Sold: 5},
			{TransactionID: 2, ProductItemID: 7, Sold: math.MaxInt, Returned: math.MaxInt},
		},
	)
	appErr, ok := apperror.As(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, apperror.CodeQuantityExceeded, appErr.Code)

	want := new(big.Int).Mul(big.NewInt(math.MaxInt), big.NewInt(2))
	want.Add(want, big.NewInt(5))
	assert.Equal(t, want.String(), appErr.Details["requested"])
}

func TestComputeLastTransaction(t *testing.T) {
	res, err := Compute(
		[]Line{{ID: 1, Qty: 10}, {ID: 2, Qty: 10}},
		[]Contribution{
			{TransactionID: 4, ProductItemID: 1, Sold: 1},
			{TransactionID: 9, ProductItemID: 1, Sold: 1},
			{TransactionID: 6, ProductItemID: 1, Returned: 1},
		},
	)
	require.NoError(t, err)

	l1, ok := res.Line(1)
	require.True(t, ok)
	require.NotNil(t, l1.LastTransactionID)
	assert.Equal(t, uint(9), *l1.LastTransactionID)
	assert.Equal(t, 7, l1.Remaining())

	l2, ok := res.Line(2)
	require.True(t, ok)
	assert.Nil(t, l2.LastTransactionID)

	_, ok = res.Line(3)
	assert.False(t, ok)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, models.ConsignmentActive, StatusFor(0, 0))
	assert.Equal(t, models.ConsignmentActive, StatusFor(9, 10))
	assert.Equal(t, models.ConsignmentDone, StatusFor(10, 10))
}
