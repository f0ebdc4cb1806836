package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

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
	Name      string
	Address   string
	Phone     string
	OwnerName string
	Latitude  *float64
	Longitude *float64
}

// UpdateInput leaves nil fields untouched.
type UpdateInput struct {
	Name      *string
	Address   *string
	Phone     *string
	OwnerName *string
	Latitude  *float64
	Longitude *float64
}

func (s *Service) Create(ctx context.Context, in Input) (*models.Store, error) {
	st := models.Store{
		Name:      strings.TrimSpace(in.Name),
		Address:   strings.TrimSpace(in.Address),
		Phone:     strings.TrimSpace(in.Phone),
		OwnerName: strings.TrimSpace(in.OwnerName),
		Latitude:  in.Latitude,
		Longitude: in.Longitude,
	}
	if st.Name == "" {
		return nil, apperror.Validation("store name cannot be empty").WithDetail("name", "required")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&st).Error; err != nil {
			return fmt.Errorf("create store: %w", err)
		}
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			EntityType:  audit.EntityStore,
			EntityID:    st.ID,
			Action:      models.AuditActionCreate,
			Description: "store " + st.Name + " created",
			After:       ToResponse(st, nil),
		})
	})
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Service) Update(ctx context.Context, id uint, in UpdateInput) (*models.Store, error) {
	var st models.Store
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := first(tx, id, &st); err != nil {
			return err
		}
		before := ToResponse(st, nil)

		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if name == "" {
				return apperror.Validation("store name cannot be empty").WithDetail("name", "required")
			}
			st.Name = name
		}
		if in.Address != nil {
			st.Address = strings.TrimSpace(*in.Address)
		}
		if in.Phone != nil {
			st.Phone = strings.TrimSpace(*in.Phone)
		}
		if in.OwnerName != nil {
			st.OwnerName = strings.TrimSpace(*in.OwnerName)
		}
		if in.Latitude != nil {
			st.Latitude = in.Latitude
		}
		if in.Longitude != nil {
			st.Longitude = in.Longitude
		}

		if err := tx.Save(&st).Error; err != nil {
			return fmt.Errorf("update store: %w", err)
		}
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			EntityType:  audit.EntityStore,
			EntityID:    st.ID,
			Action:      models.AuditActionUpdate,
			Description: "store " + st.Name + " updated",
			Before:      before,
			After:       ToResponse(st, nil),
		})
	})
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// Delete soft-deletes a store that never received goods. Consignments that
// still exist, or transactions recorded against any of its consignments
// (deleted ones included), keep the store in place.
func (s *Service) Delete(ctx context.Context, id uint) (*models.Store, error) {
	var st models.Store
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := first(tx, id, &st); err != nil {
			return err
		}

		var consignments int64
		if err := tx.Model(&models.Consignment{}).Where("store_id = ?", id).Count(&consignments).Error; err != nil {
			return err
		}
		if consignments > 0 {
			return apperror.ReferentialIntegrity(
				fmt.Sprintf("store %s has %d consignment(s) and cannot be deleted", st.Name, consignments),
			).WithDetail("consignments", strconv.FormatInt(consignments, 10))
		}

		var transactions int64
		err := tx.Model(&models.Transaction{}).
			Where("consignment_id IN (?)", tx.Unscoped().Model(&models.Consignment{}).Select("id").Where("store_id = ?", id)).
			Count(&transactions).Error
		if err != nil {
			return err
		}
		if transactions > 0 {
			return apperror.ReferentialIntegrity(
				fmt.Sprintf("store %s has %d transaction(s) and cannot be deleted", st.Name, transactions),
			).WithDetail("transactions", strconv.FormatInt(transactions, 10))
		}

		if err := tx.Delete(&st).Error; err != nil {
			return fmt.Errorf("delete store: %w", err)
		}
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			EntityType:  audit.EntityStore,
			EntityID:    st.ID,
			Action:      models.AuditActionDelete,
			Description: "store " + st.Name + " deleted",
			Before:      ToResponse(st, nil),
		})
	})
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Service) Get(ctx context.Context, id uint) (*models.Store, error) {
	var st models.Store
	if err := first(s.db.WithContext(ctx), id, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// List searches name, owner and phone case-insensitively.
func (s *Service) List(ctx context.Context, search string, page response.Page) ([]models.Store, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Store{})
	if search = strings.TrimSpace(search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(owner_name) LIKE ? OR LOWER(phone) LIKE ?", like, like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.Store
	err := q.Order("name asc, id asc").Offset(page.Offset()).Limit(page.PerPage).Find(&list).Error
	return list, total, err
}

func (s *Service) ListAll(ctx context.Context) ([]models.Store, error) {
	var list []models.Store
	err := s.db.WithContext(ctx).Order("name asc, id asc").Find(&list).Error
	return list, err
}

// SetPhoto stores a new photo key and returns the one it replaced.
func (s *Service) SetPhoto(ctx context.Context, id uint, key string) (string, error) {
	var old string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var st models.Store
		if err := first(tx, id, &st); err != nil {
			return err
		}
		old = st.PhotoPath
		if err := tx.Model(&st).Update("photo_path", key).Error; err != nil {
			return err
		}
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			EntityType:  audit.EntityStore,
			EntityID:    id,
			Action:      models.AuditActionUpdate,
			Description: "store " + st.Name + " photo replaced",
			Before:      map[string]string{"photo_path": old},
			After:       map[string]string{"photo_path": key},
		})
	})
	return old, err
}

func first(tx *gorm.DB, id uint, st *models.Store) error {
	err := tx.First(st, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NotFoundWithID("store", id)
	}
	return err
}
