package product

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"konsinyasi-backend/internal/apperror"
	"konsinyasi-backend/internal/audit"
	"konsinyasi-backend/internal/models"
	"konsinyasi-backend/internal/response"
)

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

type Input struct {
	Name        string
	Code        string
	Price       decimal.Decimal
	Description string
}

type UpdateInput struct {
	Name        *string
	Code        *string
	Price       *decimal.Decimal
	Description *string
}

func (s *Service) Create(ctx context.Context, in Input) (*models.Product, error) {
	p := models.Product{
		Name:        strings.TrimSpace(in.Name),
		Code:        strings.TrimSpace(in.Code),
		Price:       in.Price,
		Description: strings.TrimSpace(in.Description),
	}
	if err := check(p); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := uniqueCode(tx, p.Code, 0); err != nil {
			return err
		}
		if err := tx.Create(&p).Error; err != nil {
			return fmt.Errorf("create product: %w", err)
		}
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			EntityType:  audit.EntityProduct,
			EntityID:    p.ID,
			Action:      models.AuditActionCreate,
			Description: "product " + p.Code + " created",
			After:       ToResponse(p, nil),
		})
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Update changes the catalog entry only. Consignment lines keep the name,
// code and price they were created with.
func (s *Service) Update(ctx context.Context, id uint, in UpdateInput) (*models.Product, error) {
	var p models.Product
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := first(tx, id, &p); err != nil {
			return err
		}
		before := ToResponse(p, nil)

		if in.Name != nil {
			p.Name = strings.TrimSpace(*in.Name)
		}
		if in.Code != nil {
			p.Code = strings.TrimSpace(*in.Code)
		}
		if in.Price != nil {
			p.Price = *in.Price
		}
		if in.Description != nil {
			p.Description = strings.TrimSpace(*in.Description)
		}
		if err := check(p); err != nil {
			return err
		}
		if in.Code != nil {
			if err := uniqueCode(tx, p.Code, p.ID); err != nil {
				return err
			}
		}

		if err := tx.Save(&p).Error; err != nil {
			return fmt.Errorf("update product: %w", err)
		}
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			EntityType:  audit.EntityProduct,
			EntityID:    p.ID,
			Action:      models.AuditActionUpdate,
			Description: "product " + p.Code + " updated",
			Before:      before,
			After:       ToResponse(p, nil),
		})
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Delete soft-deletes a product unless a consignment line still depends on
// it: a line with recorded sales or returns, a line a transaction points at,
// or any line of a live consignment.
func (s *Service) Delete(ctx context.Context, id uint) (*models.Product, error) {
	var p models.Product
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := first(tx, id, &p); err != nil {
			return err
		}

		var lines int64
		err := tx.Model(&models.ProductItem{}).
			Where("product_id = ?", id).
			Where(tx.Where("transaction_id IS NOT NULL").
				Or("sales + returned > 0").
				Or("consignment_id IN (?)", tx.Model(&models.Consignment{}).Select("id"))).
			Count(&lines).Error
		if err != nil {
			return err
		}
		if lines > 0 {
			return apperror.ReferentialIntegrity(
				fmt.Sprintf("product %s is used by %d consignment line(s) and cannot be deleted", p.Code, lines),
			).WithDetail("product_items", strconv.FormatInt(lines, 10))
		}

		if err := tx.Delete(&p).Error; err != nil {
			return fmt.Errorf("delete product: %w", err)
		}
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			EntityType:  audit.EntityProduct,
			EntityID:    p.ID,
			Action:      models.AuditActionDelete,
			Description: "product " + p.Code + " deleted",
			Before:      ToResponse(p, nil),
		})
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Service) Get(ctx context.Context, id uint) (*models.Product, error) {
	var p models.Product
	if err := first(s.db.WithContext(ctx), id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// List searches name and code case-insensitively.
func (s *Service) List(ctx context.Context, search string, page response.Page) ([]models.Product, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Product{})
	if search = strings.TrimSpace(search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(code) LIKE ?", like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.Product
	err := q.Order("name asc, id asc").Offset(page.Offset()).Limit(page.PerPage).Find(&list).Error
	return list, total, err
}

func (s *Service) ListAll(ctx context.Context) ([]models.Product, error) {
	var list []models.Product
	err := s.db.WithContext(ctx).Order("name asc, id asc").Find(&list).Error
	return list, err
}

func (s *Service) SetPhoto(ctx context.Context, id uint, key string) (string, error) {
	var old string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Product
		if err := first(tx, id, &p); err != nil {
			return err
		}
		old = p.PhotoPath
		if err := tx.Model(&p).Update("photo_path", key).Error; err != nil {
			return err
		}
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			EntityType:  audit.EntityProduct,
			EntityID:    id,
			Action:      models.AuditActionUpdate,
			Description: "product " + p.Code + " photo replaced",
			Before:      map[string]string{"photo_path": old},
			After:       map[string]string{"photo_path": key},
		})
	})
	return old, err
}

func check(p models.Product) error {
	if p.Name == "" {
		return apperror.Validation("product name cannot be empty").WithDetail("name", "required")
	}
	if p.Code == "" {
		return apperror.Validation("product code cannot be empty").WithDetail("code", "required")
	}
	if p.Price.IsNegative() {
		return apperror.Validation("price must not be negative").WithDetail("price", "min")
	}
	return nil
}

// uniqueCode checks code against live products other than self.
func uniqueCode(tx *gorm.DB, code string, self uint) error {
	var n int64
	q := tx.Model(&models.Product{}).Where("code = ?", code)
	if self != 0 {
		q = q.Where("id <> ?", self)
	}
	if err := q.Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return apperror.Validationf("product code %s is already in use", code).WithDetail("code", "unique")
	}
	return nil
}

func first(tx *gorm.DB, id uint, p *models.Product) error {
	err := tx.First(p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NotFoundWithID("product", id)
	}
	return err
}
