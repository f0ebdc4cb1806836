package transaction

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"konsinyasi-backend/internal/apperror"
	"konsinyasi-backend/internal/audit"
	"konsinyasi-backend/internal/models"
	"konsinyasi-backend/internal/reconcile"
	"konsinyasi-backend/internal/request"
	"konsinyasi-backend/internal/response"
)

const (
	PhotoSold     = "sold"
	PhotoReturned = "returned"
)

type Service struct {
	db         *gorm.DB
	reconciler *reconcile.Service
	now        func() time.Time
}

func NewService(db *gorm.DB, reconciler *reconcile.Service) *Service {
	return &Service{db: db, reconciler: reconciler, now: time.Now}
}

// ItemInput is one line's contribution. Price defaults to the line's price.
type ItemInput struct {
	ProductItemID uint
	Sold          int
	Returned      int
	Price         *decimal.Decimal
}

type CreateInput struct {
	ConsignmentID   uint
	TransactionDate *time.Time
	Notes           string
	Items           []ItemInput
}

// UpdateInput leaves nil fields untouched; a non-nil Items replaces all items.
type UpdateInput struct {
	TransactionDate *time.Time
	Notes           *string
	Items           []ItemInput
}

type ListFilter struct {
	ConsignmentID *uint
	StoreID       *uint
	ProductID     *uint
	FromDate      *time.Time
	ToDate        *time.Time
}

type StoreSummary struct {
	StoreID       uint            `json:"store_id"`
	StoreName     string          `json:"store_name"`
	Transactions  int             `json:"transactions"`
	TotalSold     int             `json:"total_sold"`
	TotalReturned int             `json:"total_returned"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
}

type Summary struct {
	Transactions  int64           `json:"transactions"`
	TotalSold     int             `json:"total_sold"`
	TotalReturned int             `json:"total_returned"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Stores        []StoreSummary  `json:"stores"`
}

func (s *Service) resolveDate(d *time.Time) (time.Time, error) {
	now := s.now()
	if d == nil {
		return now, nil
	}
	if request.InFuture(*d, now) {
		return time.Time{}, apperror.Validation("transaction_date cannot be in the future").
			WithDetail("transaction_date", "before_or_equal:today")
	}
	return *d, nil
}

// checkItems validates what can be checked without the database.
func checkItems(items []ItemInput) error {
	if len(items) == 0 {
		return apperror.Validation("a transaction needs at least one item").WithDetail("items", "required")
	}
	seen := make(map[uint]bool, len(items))
	for i, it := range items {
		field := "items[" + strconv.Itoa(i) + "]"
		if it.ProductItemID == 0 {
			return apperror.Validation("product_item_id is required").WithDetail(field+".product_item_id", "required")
		}
		if seen[it.ProductItemID] {
			return apperror.Validationf("product item %d is listed twice", it.ProductItemID).
				WithDetail(field+".product_item_id", "distinct")
		}
		seen[it.ProductItemID] = true
		if it.Sold < 0 {
			return apperror.Validation("sold must not be negative").WithDetail(field+".sold", "min")
		}
		if it.Returned < 0 {
			return apperror.Validation("returned must not be negative").WithDetail(field+".returned", "min")
		}
		if it.Sold > models.MaxLineQty {
			return apperror.Validationf("sold must not exceed %d", models.MaxLineQty).WithDetail(field+".sold", "max")
		}
		if it.Returned > models.MaxLineQty {
			return apperror.Validationf("returned must not exceed %d", models.MaxLineQty).WithDetail(field+".returned", "max")
		}
		if it.Price != nil && it.Price.IsNegative() {
			return apperror.Validation("price must not be negative").WithDetail(field+".price", "min")
		}
	}
	return nil
}

func linesOf(tx *gorm.DB, consignmentID uint) (map[uint]models.ProductItem, error) {
	var items []models.ProductItem
	if err := tx.Where("consignment_id = ?", consignmentID).Find(&items).Error; err != nil {
		return nil, err
	}
	out := make(map[uint]models.ProductItem, len(items))
	for _, it := range items {
		out[it.ID] = it
	}
	return out, nil
}

func buildItems(c *models.Consignment, lines map[uint]models.ProductItem, in []ItemInput) ([]models.TransactionItem, error) {
	out := make([]models.TransactionItem, 0, len(in))
	for i, it := range in {
		line, ok := lines[it.ProductItemID]
		if !ok {
			return nil, apperror.Validationf("product item %d does not belong to consignment %s", it.ProductItemID, c.Code).
				WithDetail("items["+strconv.Itoa(i)+"].product_item_id", "exists")
		}
		price := line.Price
		if it.Price != nil {
			price = *it.Price
		}
		out = append(out, models.TransactionItem{
			ProductItemID: it.ProductItemID,
			Sold:          it.Sold,
			Returned:      it.Returned,
			UnitPrice:     price,
		})
	}
	return out, nil
}

// withAvailable adds what the line had left before this write to a
// quantity error, so the client can correct the request.
func withAvailable(err error, lines map[uint]models.ProductItem) error {
	appErr, ok := apperror.As(err)
	if !ok || appErr.Code != apperror.CodeQuantityExceeded {
		return err
	}
	id, perr := strconv.ParseUint(appErr.Details["product_item_id"], 10, 64)
	if perr != nil {
		return err
	}
	if line, ok := lines[uint(id)]; ok {
		appErr.WithDetail("available", strconv.Itoa(max(line.Remaining(), 0)))
	}
	return appErr
}

// Create records a transaction and reconciles its consignment. A quantity
// error wins over the not-active check, so selling into a sold-out
// consignment reports QUANTITY_EXCEEDED.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Transaction, error) {
	date, err := s.resolveDate(in.TransactionDate)
	if err != nil {
		return nil, err
	}
	if err := checkItems(in.Items); err != nil {
		return nil, err
	}

	var trx models.Transaction
	_, err = s.reconciler.WithConsignment(ctx, in.ConsignmentID, func(tx *gorm.DB, c *models.Consignment) error {
		wasDone := c.Status == models.ConsignmentDone

		lines, err := linesOf(tx, c.ID)
		if err != nil {
			return err
		}
		items, err := buildItems(c, lines, in.Items)
		if err != nil {
			return err
		}

		trx = models.Transaction{
			ConsignmentID:   c.ID,
			TransactionDate: date,
			Notes:           in.Notes,
			Items:           items,
		}
		if err := tx.Create(&trx).Error; err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}

		if _, err := reconcile.Evaluate(tx, c.ID); err != nil {
			return withAvailable(err, lines)
		}
		if wasDone {
			return apperror.ConsignmentNotActive(c.Code)
		}

		return audit.WriteLog(ctx, tx, audit.LogOptions{
			EntityType:  audit.EntityTransaction,
			EntityID:    trx.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("transaction #%d on %s created", trx.ID, c.Code),
			After:       ToResponse(trx, nil),
		})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, trx.ID)
}

func (s *Service) consignmentOf(ctx context.Context, id uint) (uint, error) {
	var trx models.Transaction
	err := s.db.WithContext(ctx).Select("id", "consignment_id").First(&trx, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, apperror.NotFoundWithID("transaction", id)
	}
	if err != nil {
		return 0, err
	}
	return trx.ConsignmentID, nil
}

// loadLocked re-reads the transaction once its consignment is locked.
func loadLocked(tx *gorm.DB, id uint) (*models.Transaction, error) {
	var trx models.Transaction
	err := tx.Preload("Items").First(&trx, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFoundWithID("transaction", id)
	}
	if err != nil {
		return nil, err
	}
	return &trx, nil
}

// Update edits a transaction and reconciles. Done consignments accept
// corrections, which may move them back to active.
func (s *Service) Update(ctx context.Context, id uint, in UpdateInput) (*models.Transaction, error) {
	if in.Items != nil {
		if err := checkItems(in.Items); err != nil {
			return nil, err
		}
	}
	var date *time.Time
	if in.TransactionDate != nil {
		d, err := s.resolveDate(in.TransactionDate)
		if err != nil {
			return nil, err
		}
		date = &d
	}

	consignmentID, err := s.consignmentOf(ctx, id)
	if err != nil {
		return nil, err
	}

	_, err = s.reconciler.WithConsignment(ctx, consignmentID, func(tx *gorm.DB, c *models.Consignment) error {
		trx, err := loadLocked(tx, id)
		if err != nil {
			return err
		}
		before := ToResponse(*trx, nil)

		updates := map[string]any{}
		if date != nil {
			updates["transaction_date"] = *date
			trx.TransactionDate = *date
		}
		if in.Notes != nil {
			updates["notes"] = *in.Notes
			trx.Notes = *in.Notes
		}
		if len(updates) > 0 {
			if err := tx.Model(&models.Transaction{}).Where("id = ?", id).Updates(updates).Error; err != nil {
				return fmt.Errorf("update transaction: %w", err)
			}
		}

		if in.Items != nil {
			lines, err := linesOf(tx, c.ID)
			if err != nil {
				return err
			}
			items, err := buildItems(c, lines, in.Items)
			if err != nil {
				return err
			}
			if err := tx.Where("transaction_id = ?", id).Delete(&models.TransactionItem{}).Error; err != nil {
				return fmt.Errorf("replace transaction items: %w", err)
			}
			for i := range items {
				items[i].TransactionID = id
			}
			if err := tx.Create(&items).Error; err != nil {
				return fmt.Errorf("replace transaction items: %w", err)
			}
			trx.Items = items

			if _, err := reconcile.Evaluate(tx, c.ID); err != nil {
				return withAvailable(err, withoutTransaction(lines, before))
			}
		}

		return audit.WriteLog(ctx, tx, audit.LogOptions{
			EntityType:  audit.EntityTransaction,
			EntityID:    id,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("transaction #%d on %s updated", id, c.Code),
			Before:      before,
			After:       ToResponse(*trx, nil),
		})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// withoutTransaction gives line counters as they would be without the
// transaction being replaced.
func withoutTransaction(lines map[uint]models.ProductItem, old Response) map[uint]models.ProductItem {
	out := make(map[uint]models.ProductItem, len(lines))
	for id, l := range lines {
		out[id] = l
	}
	for _, it := range old.Items {
		if l, ok := out[it.ProductItemID]; ok {
			l.Sales -= it.Sold
			l.Returned -= it.Returned
			out[it.ProductItemID] = l
		}
	}
	return out
}

// Delete soft-deletes a transaction and reverses its contribution. The
// returned transaction carries the photo paths for cleanup.
func (s *Service) Delete(ctx context.Context, id uint) (*models.Transaction, error) {
	consignmentID, err := s.consignmentOf(ctx, id)
	if err != nil {
		return nil, err
	}

	var deleted models.Transaction
	_, err = s.reconciler.WithConsignment(ctx, consignmentID, func(tx *gorm.DB, c *models.Consignment) error {
		trx, err := loadLocked(tx, id)
		if err != nil {
			return err
		}
		if err := tx.Delete(&models.Transaction{}, id).Error; err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		deleted = *trx
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			EntityType:  audit.EntityTransaction,
			EntityID:    id,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("transaction #%d on %s deleted", id, c.Code),
			Before:      ToResponse(*trx, nil),
		})
	})
	if err != nil {
		return nil, err
	}
	return &deleted, nil
}

func (s *Service) Get(ctx context.Context, id uint) (*models.Transaction, error) {
	var trx models.Transaction
	err := s.db.WithContext(ctx).
		Preload("Consignment.Store").
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Items.ProductItem", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		First(&trx, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFoundWithID("transaction", id)
	}
	if err != nil {
		return nil, err
	}
	return &trx, nil
}

func (s *Service) filtered(ctx context.Context, f ListFilter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&models.Transaction{})
	if f.ConsignmentID != nil {
		q = q.Where("consignment_id = ?", *f.ConsignmentID)
	}
	if f.StoreID != nil {
		q = q.Where("consignment_id IN (?)", s.db.Unscoped().Model(&models.Consignment{}).
			Select("id").
			Where("store_id = ?", *f.StoreID))
	}
	if f.ProductID != nil {
		q = q.Where("id IN (?)", s.db.Table("transaction_items AS ti").
			Select("ti.transaction_id").
			Joins("JOIN product_items pi ON pi.id = ti.product_item_id").
			Where("pi.product_id = ?", *f.ProductID))
	}
	if f.FromDate != nil {
		q = q.Where("transaction_date >= ?", *f.FromDate)
	}
	if f.ToDate != nil {
		q = q.Where("transaction_date < ?", f.ToDate.AddDate(0, 0, 1))
	}
	return q
}

func (s *Service) List(ctx context.Context, f ListFilter, page response.Page) ([]models.Transaction, int64, error) {
	q := s.filtered(ctx, f)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var list []models.Transaction
	err := q.Preload("Consignment.Store").
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Items.ProductItem", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Order("transaction_date DESC, id DESC").
		Offset(page.Offset()).Limit(page.PerPage).
		Find(&list).Error
	return list, total, err
}

// Summary totals the transactions matching f, overall and per store.
func (s *Service) Summary(ctx context.Context, f ListFilter) (*Summary, error) {
	ids := s.filtered(ctx, f).Select("id")

	out := &Summary{TotalAmount: decimal.Zero, Stores: []StoreSummary{}}
	if err := s.filtered(ctx, f).Count(&out.Transactions).Error; err != nil {
		return nil, err
	}

	var rows []struct {
		TransactionID uint
		StoreID       uint
		StoreName     string
		Sold          int
		Returned      int
		UnitPrice     decimal.Decimal
	}
	err := s.db.WithContext(ctx).Table("transaction_items AS ti").
		Select("ti.transaction_id, c.store_id, st.name AS store_name, ti.sold, ti.returned, ti.unit_price").
		Joins("JOIN transactions t ON t.id = ti.transaction_id").
		Joins("JOIN consignments c ON c.id = t.consignment_id").
		Joins("JOIN stores st ON st.id = c.store_id").
		Where("ti.transaction_id IN (?)", ids).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("summarize transactions: %w", err)
	}

	byStore := map[uint]*StoreSummary{}
	seen := map[uint]map[uint]bool{}
	for _, r := range rows {
		amount := r.UnitPrice.Mul(decimal.NewFromInt(int64(r.Sold)))
		out.TotalSold += r.Sold
		out.TotalReturned += r.Returned
		out.TotalAmount = out.TotalAmount.Add(amount)

		st, ok := byStore[r.StoreID]
		if !ok {
			st = &StoreSummary{StoreID: r.StoreID, StoreName: r.StoreName, TotalAmount: decimal.Zero}
			byStore[r.StoreID] = st
			seen[r.StoreID] = map[uint]bool{}
		}
		if !seen[r.StoreID][r.TransactionID] {
			seen[r.StoreID][r.TransactionID] = true
			st.Transactions++
		}
		st.TotalSold += r.Sold
		st.TotalReturned += r.Returned
		st.TotalAmount = st.TotalAmount.Add(amount)
	}
	for _, st := range byStore {
		out.Stores = append(out.Stores, *st)
	}
	sort.Slice(out.Stores, func(i, j int) bool { return out.Stores[i].StoreID < out.Stores[j].StoreID })
	return out, nil
}

// SetPhoto stores the sold or returned photo key and returns the one it replaced.
func (s *Service) SetPhoto(ctx context.Context, id uint, kind, key string) (string, error) {
	column := ""
	switch kind {
	case PhotoSold:
		column = "sold_items_photo_path"
	case PhotoReturned:
		column = "returned_items_photo_path"
	default:
		return "", apperror.Validation("photo kind must be sold or returned").WithDetail("kind", "in:sold,returned")
	}

	var old string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var trx models.Transaction
		if err := tx.First(&trx, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.NotFoundWithID("transaction", id)
			}
			return err
		}
		if kind == PhotoSold {
			old = trx.SoldItemsPhotoPath
		} else {
			old = trx.ReturnedItemsPhotoPath
		}
		if err := tx.Model(&models.Transaction{}).Where("id = ?", id).Update(column, key).Error; err != nil {
			return err
		}
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			EntityType:  audit.EntityTransaction,
			EntityID:    id,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("transaction #%d %s photo replaced", id, kind),
			Before:      map[string]string{column: old},
			After:       map[string]string{column: key},
		})
	})
	return old, err
}
