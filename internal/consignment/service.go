package consignment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"konsinyasi-backend/internal/apperror"
	"konsinyasi-backend/internal/audit"
	"konsinyasi-backend/internal/locking"
	"konsinyasi-backend/internal/models"
	"konsinyasi-backend/internal/reconcile"
	"konsinyasi-backend/internal/request"
	"konsinyasi-backend/internal/response"
)

type Service struct {
	db         *gorm.DB
	locker     locking.Locker
	reconciler *reconcile.Service
	now        func() time.Time
}

func NewService(db *gorm.DB, locker locking.Locker, reconciler *reconcile.Service) *Service {
	return &Service{db: db, locker: locker, reconciler: reconciler, now: time.Now}
}

// ItemInput describes one consignment line. ID is set when an update keeps
// an existing line. Price defaults to the product's price.
type ItemInput struct {
	ID          *uint
	ProductID   uint
	Qty         int
	Price       *decimal.Decimal
	Description string
}

type CreateInput struct {
	StoreID         uint
	ConsignmentDate time.Time
	PickupDate      time.Time
	Notes           string
	Items           []ItemInput
}

// UpdateInput leaves nil fields untouched. A non-nil Items is the full new
// set of lines: lines not listed are removed.
type UpdateInput struct {
	StoreID         *uint
	ConsignmentDate *time.Time
	PickupDate      *time.Time
	Notes           *string
	Items           []ItemInput
}

type ListFilter struct {
	StoreID   *uint
	ProductID *uint
	Status    models.ConsignmentStatus
	FromDate  *time.Time
	ToDate    *time.Time
	Search    string
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Consignment, error) {
	if err := s.checkDates(in.ConsignmentDate, in.PickupDate); err != nil {
		return nil, err
	}
	if len(in.Items) == 0 {
		return nil, apperror.Validation("a consignment needs at least one item").WithDetail("items", "required")
	}

	release, err := s.locker.Acquire(ctx, locking.CodeKey)
	if err != nil {
		return nil, err
	}
	defer release()

	var c models.Consignment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireStore(tx, in.StoreID); err != nil {
			return err
		}
		products, err := loadProducts(tx, in.Items)
		if err != nil {
			return err
		}

		code, err := NextCode(tx)
		if err != nil {
			return err
		}

		c = models.Consignment{
			Code:            code,
			StoreID:         in.StoreID,
			ConsignmentDate: in.ConsignmentDate,
			PickupDate:      in.PickupDate,
			Status:          models.ConsignmentActive,
			Notes:           in.Notes,
		}
		for i, it := range in.Items {
			line, err := newLine(i, it, products[it.ProductID])
			if err != nil {
				return err
			}
			c.Items = append(c.Items, line)
		}

		if err := tx.Create(&c).Error; err != nil {
			return fmt.Errorf("create consignment: %w", err)
		}

		return audit.WriteLog(ctx, tx, audit.LogOptions{
			EntityType:  audit.EntityConsignment,
			EntityID:    c.ID,
			Action:      models.AuditActionCreate,
			Description: "consignment " + c.Code + " created",
			After:       ToResponse(c, nil),
		})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, c.ID)
}

func (s *Service) Update(ctx context.Context, id uint, in UpdateInput) (*models.Consignment, error) {
	_, err := s.reconciler.WithConsignment(ctx, id, func(tx *gorm.DB, c *models.Consignment) error {
		if err := tx.Where("consignment_id = ?", c.ID).Order("id").Find(&c.Items).Error; err != nil {
			return err
		}
		before := ToResponse(*c, nil)

		updates := map[string]any{}
		if in.StoreID != nil && *in.StoreID != c.StoreID {
			if err := requireStore(tx, *in.StoreID); err != nil {
				return err
			}
			updates["store_id"] = *in.StoreID
			c.StoreID = *in.StoreID
		}
		consignmentDate, pickupDate := c.ConsignmentDate, c.PickupDate
		if in.ConsignmentDate != nil {
			consignmentDate = *in.ConsignmentDate
		}
		if in.PickupDate != nil {
			pickupDate = *in.PickupDate
		}
		if in.ConsignmentDate != nil || in.PickupDate != nil {
			if err := s.checkDates(consignmentDate, pickupDate); err != nil {
				return err
			}
			updates["consignment_date"] = consignmentDate
			updates["pickup_date"] = pickupDate
			c.ConsignmentDate, c.PickupDate = consignmentDate, pickupDate
		}
		if in.Notes != nil {
			updates["notes"] = *in.Notes
			c.Notes = *in.Notes
		}
		if len(updates) > 0 {
			if err := tx.Model(&models.Consignment{}).Where("id = ?", c.ID).Updates(updates).Error; err != nil {
				return fmt.Errorf("update consignment: %w", err)
			}
		}

		if in.Items != nil {
			if err := syncLines(tx, c, in.Items); err != nil {
				return err
			}
		}

		return audit.WriteLog(ctx, tx, audit.LogOptions{
			EntityType:  audit.EntityConsignment,
			EntityID:    c.ID,
			Action:      models.AuditActionUpdate,
			Description: "consignment " + c.Code + " updated",
			Before:      before,
			After:       ToResponse(*c, nil),
		})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// syncLines applies the full new line set. A line keeps its sold and
// returned counters; its qty may not drop below them, and a line with
// recorded activity cannot be removed.
func syncLines(tx *gorm.DB, c *models.Consignment, inputs []ItemInput) error {
	if len(inputs) == 0 {
		return apperror.Validation("a consignment needs at least one item").WithDetail("items", "required")
	}
	products, err := loadProducts(tx, inputs)
	if err != nil {
		return err
	}

	existing := make(map[uint]*models.ProductItem, len(c.Items))
	for i := range c.Items {
		existing[c.Items[i].ID] = &c.Items[i]
	}
	active, err := linesWithLiveContributions(tx, c.ID)
	if err != nil {
		return err
	}

	kept := make(map[uint]bool, len(inputs))
	var result []models.ProductItem
	for i, in := range inputs {
		field := "items[" + strconv.Itoa(i) + "]"

		if in.ID == nil {
			line, err := newLine(i, in, products[in.ProductID])
			if err != nil {
				return err
			}
			line.ConsignmentID = c.ID
			if err := tx.Create(&line).Error; err != nil {
				return fmt.Errorf("create product item: %w", err)
			}
			result = append(result, line)
			continue
		}

		line, ok := existing[*in.ID]
		if !ok {
			return apperror.Validationf("product item %d does not belong to consignment %s", *in.ID, c.Code).
				WithDetail(field+".id", "exists")
		}
		if kept[line.ID] {
			return apperror.Validationf("product item %d is listed twice", line.ID).WithDetail(field+".id", "distinct")
		}
		kept[line.ID] = true

		used := line.Sales + line.Returned
		if in.Qty < used {
			return apperror.QuantityExceeded(
				fmt.Sprintf("qty of product item %d cannot drop below the %d already sold or returned", line.ID, used),
			).WithDetails(map[string]string{
				"product_item_id": strconv.FormatUint(uint64(line.ID), 10),
				"qty":             strconv.Itoa(in.Qty),
				"requested":       strconv.Itoa(used),
			})
		}
		if in.ProductID != line.ProductID && (used > 0 || active[line.ID]) {
			return apperror.ReferentialIntegrity(
				fmt.Sprintf("product item %d has transactions; its product cannot change", line.ID),
			).WithDetail(field+".product_id", "locked")
		}

		if in.Price == nil && in.ProductID == line.ProductID {
			price := line.Price
			in.Price = &price
		}
		updated, err := newLine(i, in, products[in.ProductID])
		if err != nil {
			return err
		}
		if err := tx.Model(&models.ProductItem{}).Where("id = ?", line.ID).Updates(map[string]any{
			"product_id":  updated.ProductID,
			"name":        updated.Name,
			"code":        updated.Code,
			"price":       updated.Price,
			"description": updated.Description,
			"qty":         updated.Qty,
		}).Error; err != nil {
			return fmt.Errorf("update product item %d: %w", line.ID, err)
		}
		updated.ID = line.ID
		updated.ConsignmentID = c.ID
		updated.Sales, updated.Returned, updated.TransactionID = line.Sales, line.Returned, line.TransactionID
		result = append(result, updated)
	}

	for id, line := range existing {
		if kept[id] {
			continue
		}
		if line.Sales+line.Returned > 0 || active[id] {
			return apperror.ReferentialIntegrity(
				fmt.Sprintf("product item %d has transactions and cannot be removed", id),
			).WithDetail("product_item_id", strconv.FormatUint(uint64(id), 10))
		}
		if err := tx.Delete(&models.ProductItem{}, id).Error; err != nil {
			return fmt.Errorf("remove product item %d: %w", id, err)
		}
	}

	c.Items = result
	return nil
}

// Delete soft-deletes a consignment without transactions, together with its
// lines. The returned consignment carries the photo path for cleanup.
func (s *Service) Delete(ctx context.Context, id uint) (*models.Consignment, error) {
	var deleted models.Consignment
	err := s.reconciler.Locked(ctx, id, func(tx *gorm.DB, c *models.Consignment) error {
		var txCount int64
		if err := tx.Model(&models.Transaction{}).Where("consignment_id = ?", c.ID).Count(&txCount).Error; err != nil {
			return err
		}
		if txCount > 0 {
			return apperror.ReferentialIntegrity(
				fmt.Sprintf("consignment %s has %d transaction(s) and cannot be deleted", c.Code, txCount),
			).WithDetail("transactions", strconv.FormatInt(txCount, 10))
		}

		if err := tx.Where("consignment_id = ?", c.ID).Order("id").Find(&c.Items).Error; err != nil {
			return err
		}
		if err := tx.Where("consignment_id = ?", c.ID).Delete(&models.ProductItem{}).Error; err != nil {
			return fmt.Errorf("delete product items: %w", err)
		}
		if err := tx.Delete(c).Error; err != nil {
			return fmt.Errorf("delete consignment: %w", err)
		}

		deleted = *c
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			EntityType:  audit.EntityConsignment,
			EntityID:    c.ID,
			Action:      models.AuditActionDelete,
			Description: "consignment " + c.Code + " deleted",
			Before:      ToResponse(*c, nil),
		})
	})
	if err != nil {
		return nil, err
	}
	return &deleted, nil
}

func (s *Service) Get(ctx context.Context, id uint) (*models.Consignment, error) {
	var c models.Consignment
	err := s.db.WithContext(ctx).
		Preload("Store").
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFoundWithID("consignment", id)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Service) filtered(ctx context.Context, f ListFilter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&models.Consignment{})
	if f.StoreID != nil {
		q = q.Where("store_id = ?", *f.StoreID)
	}
	if f.ProductID != nil {
		q = q.Where("id IN (?)", s.db.Model(&models.ProductItem{}).
			Select("consignment_id").
			Where("product_id = ?", *f.ProductID))
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.FromDate != nil {
		q = q.Where("consignment_date >= ?", *f.FromDate)
	}
	if f.ToDate != nil {
		q = q.Where("consignment_date < ?", f.ToDate.AddDate(0, 0, 1))
	}
	if f.Search != "" {
		q = q.Where("LOWER(code) LIKE ?", "%"+strings.ToLower(f.Search)+"%")
	}
	return q
}

func (s *Service) List(ctx context.Context, f ListFilter, page response.Page) ([]models.Consignment, int64, error) {
	q := s.filtered(ctx, f)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var list []models.Consignment
	err := q.Preload("Store").
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Order("consignment_date DESC, id DESC").
		Offset(page.Offset()).Limit(page.PerPage).
		Find(&list).Error
	return list, total, err
}

// Export returns every consignment matching f, for spreadsheets.
func (s *Service) Export(ctx context.Context, f ListFilter) ([]models.Consignment, error) {
	var list []models.Consignment
	err := s.filtered(ctx, f).
		Preload("Store").
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Order("consignment_date DESC, id DESC").
		Find(&list).Error
	return list, err
}

// ListActive returns consignments that can still take transactions.
func (s *Service) ListActive(ctx context.Context) ([]models.Consignment, error) {
	return s.Export(ctx, ListFilter{Status: models.ConsignmentActive})
}

// ListAll feeds dropdowns.
func (s *Service) ListAll(ctx context.Context) ([]models.Consignment, error) {
	return s.Export(ctx, ListFilter{})
}

// AvailableItems returns the lines that still have goods at the store.
func (s *Service) AvailableItems(ctx context.Context, id uint) ([]models.ProductItem, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	var items []models.ProductItem
	err := s.db.WithContext(ctx).
		Where("consignment_id = ? AND qty - sales - returned > 0", id).
		Order("id").
		Find(&items).Error
	return items, err
}

func (s *Service) Transactions(ctx context.Context, id uint, page response.Page) ([]models.Transaction, int64, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, 0, err
	}
	q := s.db.WithContext(ctx).Model(&models.Transaction{}).Where("consignment_id = ?", id)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.Transaction
	err := q.Preload("Items.ProductItem").
		Order("transaction_date DESC, id DESC").
		Offset(page.Offset()).Limit(page.PerPage).
		Find(&list).Error
	return list, total, err
}

// SetPhoto stores a new photo key and returns the one it replaced.
func (s *Service) SetPhoto(ctx context.Context, id uint, key string) (string, error) {
	var old string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := reconcile.LockConsignment(tx, id)
		if err != nil {
			return err
		}
		old = c.PhotoPath
		if err := tx.Model(&models.Consignment{}).Where("id = ?", id).Update("photo_path", key).Error; err != nil {
			return err
		}
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			EntityType:  audit.EntityConsignment,
			EntityID:    id,
			Action:      models.AuditActionUpdate,
			Description: "consignment " + c.Code + " photo replaced",
			Before:      map[string]string{"photo_path": old},
			After:       map[string]string{"photo_path": key},
		})
	})
	return old, err
}

func (s *Service) checkDates(consignmentDate, pickupDate time.Time) error {
	if consignmentDate.IsZero() {
		return apperror.Validation("consignment_date is required").WithDetail("consignment_date", "required")
	}
	if pickupDate.IsZero() {
		return apperror.Validation("pickup_date is required").WithDetail("pickup_date", "required")
	}
	if request.InFuture(consignmentDate, s.now()) {
		return apperror.Validation("consignment_date cannot be in the future").WithDetail("consignment_date", "before_or_equal:today")
	}
	if !pickupDate.After(consignmentDate) {
		return apperror.Validation("pickup_date must be after consignment_date").WithDetail("pickup_date", "after:consignment_date")
	}
	return nil
}

func requireStore(tx *gorm.DB, id uint) error {
	var n int64
	if err := tx.Model(&models.Store{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return apperror.NotFoundWithID("store", id).WithDetail("store_id", "exists")
	}
	return nil
}

func loadProducts(tx *gorm.DB, items []ItemInput) (map[uint]models.Product, error) {
	ids := make([]uint, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	var products []models.Product
	if err := tx.Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	for i, it := range items {
		if _, ok := byID[it.ProductID]; !ok {
			return nil, apperror.NotFoundWithID("product", it.ProductID).
				WithDetail("items["+strconv.Itoa(i)+"].product_id", "exists")
		}
	}
	return byID, nil
}

// newLine snapshots product data onto a line so later product edits do not
// rewrite consigned history.
func newLine(i int, in ItemInput, p models.Product) (models.ProductItem, error) {
	field := "items[" + strconv.Itoa(i) + "]"
	if in.Qty < 1 {
		return models.ProductItem{}, apperror.Validation("qty must be at least 1").WithDetail(field+".qty", "min")
	}
	if in.Qty > models.MaxLineQty {
		return models.ProductItem{}, apperror.Validationf("qty must not exceed %d", models.MaxLineQty).WithDetail(field+".qty", "max")
	}
	price := p.Price
	if in.Price != nil {
		if in.Price.IsNegative() {
			return models.ProductItem{}, apperror.Validation("price must not be negative").WithDetail(field+".price", "min")
		}
		price = *in.Price
	}
	desc := in.Description
	if desc == "" {
		desc = p.Description
	}
	return models.ProductItem{
		ProductID:   p.ID,
		Name:        p.Name,
		Code:        p.Code,
		Price:       price,
		Description: desc,
		Qty:         in.Qty,
	}, nil
}

// linesWithLiveContributions marks lines referenced by live transactions,
// including entries that recorded zero sold and zero returned.
func linesWithLiveContributions(tx *gorm.DB, consignmentID uint) (map[uint]bool, error) {
	var ids []uint
	err := tx.Table("transaction_items AS ti").
		Joins("JOIN transactions t ON t.id = ti.transaction_id").
		Where("t.consignment_id = ? AND t.deleted_at IS NULL", consignmentID).
		Distinct().
		Pluck("ti.product_item_id", &ids).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uint]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}
