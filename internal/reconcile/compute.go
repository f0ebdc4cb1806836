// Package reconcile keeps consignment line counters and consignment status
// consistent with the live transactions recorded against them.
package reconcile

import (
	"fmt"
	"math/big"
	"strconv"

	"konsinyasi-backend/internal/apperror"
	"konsinyasi-backend/internal/models"
)

// Line is a consignment line as far as reconciliation cares.
type Line struct {
	ID  uint
	Qty int
}

// Contribution is one transaction item: what a transaction sold and took back
// from one line.
type Contribution struct {
	TransactionID uint
	ProductItemID uint
	Sold          int
	Returned      int
}

type LineResult struct {
	ProductItemID     uint
	Qty               int
	Sales             int
	Returned          int
	LastTransactionID *uint
}

func (l LineResult) Remaining() int {
	return l.Qty - l.Sales - l.Returned
}

type Result struct {
	Lines         []LineResult
	TotalQuantity int
	TotalSold     int
	TotalReturned int
	Status        models.ConsignmentStatus
}

// Line returns the result for a product item, or false if it is not part of the consignment.
func (r Result) Line(productItemID uint) (LineResult, bool) {
	for _, l := range r.Lines {
		if l.ProductItemID == productItemID {
			return l, true
		}
	}
	return LineResult{}, false
}

// StatusFor is the consignment status rule: done once everything consigned is sold.
func StatusFor(totalSold, totalQty int) models.ConsignmentStatus {
	if totalQty > 0 && totalSold >= totalQty {
		return models.ConsignmentDone
	}
	return models.ConsignmentActive
}

// Compute sums contributions per line and validates the result. It never
// touches storage, so callers can run it before writing anything.
func Compute(lines []Line, contributions []Contribution) (Result, error) {
	index := make(map[uint]int, len(lines))
	res := Result{Lines: make([]LineResult, len(lines))}
	for i, l := range lines {
		index[l.ID] = i
		res.Lines[i] = LineResult{ProductItemID: l.ID, Qty: l.Qty}
		res.TotalQuantity += l.Qty
	}

	for _, c := range contributions {
		if c.Sold < 0 || c.Returned < 0 {
			return Result{}, apperror.Validation("sold and returned must not be negative").
				WithDetail("product_item_id", strconv.FormatUint(uint64(c.ProductItemID), 10))
		}
		i, ok := index[c.ProductItemID]
		if !ok {
			return Result{}, apperror.Validationf("product item %d does not belong to this consignment", c.ProductItemID).
				WithDetail("product_item_id", strconv.FormatUint(uint64(c.ProductItemID), 10))
		}
		line := &res.Lines[i]
		// Compare against what is left instead of adding first; the sum of
		// untrusted amounts could wrap around.
		left := line.Remaining()
		if c.Sold > left || c.Returned > left-c.Sold {
			return Result{}, apperror.QuantityExceeded(
				fmt.Sprintf("sold and returned for product item %d exceed its quantity", line.ProductItemID),
			).WithDetails(map[string]string{
				"product_item_id": strconv.FormatUint(uint64(line.ProductItemID), 10),
				"qty":             strconv.Itoa(line.Qty),
				"requested":       requested(line.Sales+line.Returned, c.Sold, c.Returned),
			})
		}
		line.Sales += c.Sold
		line.Returned += c.Returned
		if line.LastTransactionID == nil || c.TransactionID > *line.LastTransactionID {
			tid := c.TransactionID
			line.LastTransactionID = &tid
		}
	}

	for _, l := range res.Lines {
		res.TotalSold += l.Sales
		res.TotalReturned += l.Returned
	}

	if res.TotalSold+res.TotalReturned > res.TotalQuantity {
		return Result{}, apperror.QuantityExceeded("sold and returned exceed the consignment quantity").
			WithDetails(map[string]string{
				"qty":       strconv.Itoa(res.TotalQuantity),
				"requested": strconv.Itoa(res.TotalSold + res.TotalReturned),
			})
	}

	res.Status = StatusFor(res.TotalSold, res.TotalQuantity)
	return res, nil
}

// requested renders used+sold+returned without overflowing.
func requested(used, sold, returned int) string {
	n := big.NewInt(int64(used))
	n.Add(n, big.NewInt(int64(sold)))
	n.Add(n, big.NewInt(int64(returned)))
	return n.String()
}
