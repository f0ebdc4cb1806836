package reconcile

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"konsinyasi-backend/internal/apperror"
	"konsinyasi-backend/internal/locking"
	"konsinyasi-backend/internal/models"
)

// Service applies Compute to stored consignments. All writes to line
// counters and consignment status go through it.
type Service struct {
	db     *gorm.DB
	locker locking.Locker
}

func NewService(db *gorm.DB, locker locking.Locker) *Service {
	return &Service{db: db, locker: locker}
}

// Locked runs fn in one database transaction while holding the
// consignment's lock and its row lock. It does not reconcile.
func (s *Service) Locked(ctx context.Context, consignmentID uint, fn func(tx *gorm.DB, c *models.Consignment) error) error {
	release, err := s.locker.Acquire(ctx, locking.ConsignmentKey(consignmentID))
	if err != nil {
		return fmt.Errorf("lock consignment %d: %w", consignmentID, err)
	}
	defer release()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := LockConsignment(tx, consignmentID)
		if err != nil {
			return err
		}
		return fn(tx, c)
	})
}

// WithConsignment is Locked followed by a reconciliation in the same
// transaction. If fn or the reconciliation fails nothing is persisted.
func (s *Service) WithConsignment(ctx context.Context, consignmentID uint, fn func(tx *gorm.DB, c *models.Consignment) error) (*Result, error) {
	var res *Result
	err := s.Locked(ctx, consignmentID, func(tx *gorm.DB, c *models.Consignment) error {
		if fn != nil {
			if err := fn(tx, c); err != nil {
				return err
			}
		}
		var err error
		res, err = Apply(tx, c)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Reconcile recomputes one consignment from its live transactions. Running
// it twice on the same data gives the same counters and status.
func (s *Service) Reconcile(ctx context.Context, consignmentID uint) (*Result, error) {
	return s.WithConsignment(ctx, consignmentID, nil)
}

// LockConsignment loads a live consignment with SELECT ... FOR UPDATE.
func LockConsignment(tx *gorm.DB, id uint) (*models.Consignment, error) {
	var c models.Consignment
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFoundWithID("consignment", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load consignment %d: %w", id, err)
	}
	return &c, nil
}

// Evaluate computes the state the consignment would reach from what tx
// currently sees, without writing it.
func Evaluate(tx *gorm.DB, consignmentID uint) (*Result, error) {
	var items []models.ProductItem
	if err := tx.Select("id", "qty").
		Where("consignment_id = ?", consignmentID).
		Order("id").
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("load product items: %w", err)
	}
	lines := make([]Line, len(items))
	for i, it := range items {
		lines[i] = Line{ID: it.ID, Qty: it.Qty}
	}

	var contributions []Contribution
	if err := tx.Table("transaction_items AS ti").
		Select("ti.transaction_id, ti.product_item_id, ti.sold, ti.returned").
		Joins("JOIN transactions t ON t.id = ti.transaction_id").
		Where("t.consignment_id = ? AND t.deleted_at IS NULL", consignmentID).
		Order("ti.transaction_id, ti.id").
		Scan(&contributions).Error; err != nil {
		return nil, fmt.Errorf("load contributions: %w", err)
	}

	res, err := Compute(lines, contributions)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Apply evaluates the consignment and writes line counters and status.
func Apply(tx *gorm.DB, c *models.Consignment) (*Result, error) {
	res, err := Evaluate(tx, c.ID)
	if err != nil {
		return nil, err
	}

	for _, l := range res.Lines {
		var last any
		if l.LastTransactionID != nil {
			last = *l.LastTransactionID
		}
		if err := tx.Model(&models.ProductItem{}).
			Where("id = ?", l.ProductItemID).
			Updates(map[string]any{
				"sales":          l.Sales,
				"returned":       l.Returned,
				"transaction_id": last,
			}).Error; err != nil {
			return nil, fmt.Errorf("update product item %d: %w", l.ProductItemID, err)
		}
	}

	if c.Status != res.Status {
		if err := tx.Model(&models.Consignment{}).
			Where("id = ?", c.ID).
			Update("status", res.Status).Error; err != nil {
			return nil, fmt.Errorf("update consignment %d status: %w", c.ID, err)
		}
		c.Status = res.Status
	}
	return res, nil
}
