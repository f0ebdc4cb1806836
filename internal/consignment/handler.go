package consignment

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"konsinyasi-backend/internal/apperror"
	"konsinyasi-backend/internal/logging"
	"konsinyasi-backend/internal/models"
	"konsinyasi-backend/internal/report"
	"konsinyasi-backend/internal/request"
	"konsinyasi-backend/internal/response"
	"konsinyasi-backend/internal/storage"
)

type ItemRequest struct {
	ID          *uint            `json:"id"`
	ProductID   uint             `json:"product_id" validate:"required"`
	Qty         int              `json:"qty" validate:"required,min=1,max=1000000"`
	Price       *decimal.Decimal `json:"price"`
	Description string           `json:"description" validate:"max=1000"`
}

type CreateConsignmentRequest struct {
	StoreID         uint          `json:"store_id" validate:"required"`
	ConsignmentDate string        `json:"consignment_date" validate:"required"`
	PickupDate      string        `json:"pickup_date" validate:"required"`
	Notes           string        `json:"notes" validate:"max=2000"`
	Items           []ItemRequest `json:"items" validate:"required,min=1,dive"`
}

type UpdateConsignmentRequest struct {
	StoreID         *uint         `json:"store_id" validate:"omitempty,min=1"`
	ConsignmentDate *string       `json:"consignment_date"`
	PickupDate      *string       `json:"pickup_date"`
	Notes           *string       `json:"notes" validate:"omitempty,max=2000"`
	Items           []ItemRequest `json:"items" validate:"omitempty,dive"`
}

type ItemResponse struct {
	ID            uint            `json:"id"`
	ConsignmentID uint            `json:"consignment_id"`
	ProductID     uint            `json:"product_id"`
	TransactionID *uint           `json:"transaction_id"`
	Name          string          `json:"name"`
	Code          string          `json:"code"`
	Price         decimal.Decimal `json:"price"`
	Description   string          `json:"description"`
	Qty           int             `json:"qty"`
	Sales         int             `json:"sales"`
	Return        int             `json:"return"`
	Remaining     int             `json:"remaining"`
}

type Response struct {
	ID                uint                     `json:"id"`
	Code              string                   `json:"code"`
	StoreID           uint                     `json:"store_id"`
	StoreName         string                   `json:"store_name"`
	ConsignmentDate   string                   `json:"consignment_date"`
	PickupDate        string                   `json:"pickup_date"`
	Status            models.ConsignmentStatus `json:"status"`
	Notes             string                   `json:"notes"`
	PhotoPath         string                   `json:"photo_path"`
	PhotoURL          string                   `json:"photo_url"`
	ThumbURL          string                   `json:"thumb_url"`
	TotalQuantity     int                      `json:"total_quantity"`
	TotalSold         int                      `json:"total_sold"`
	TotalReturned     int                      `json:"total_returned"`
	RemainingQuantity int                      `json:"remaining_quantity"`
	FullyResolved     bool                     `json:"fully_resolved"`
	Items             []ItemResponse           `json:"items"`
	CreatedAt         string                   `json:"created_at"`
	UpdatedAt         string                   `json:"updated_at"`
}

// OptionResponse is the dropdown shape.
type OptionResponse struct {
	ID        uint     `json:"id"`
	Code      string   `json:"code"`
	StoreName string   `json:"store_name"`
	Status    string   `json:"status"`
	Products  []string `json:"products"`
}

func ToItemResponse(it models.ProductItem) ItemResponse {
	return ItemResponse{
		ID:            it.ID,
		ConsignmentID: it.ConsignmentID,
		ProductID:     it.ProductID,
		TransactionID: it.TransactionID,
		Name:          it.Name,
		Code:          it.Code,
		Price:         it.Price,
		Description:   it.Description,
		Qty:           it.Qty,
		Sales:         it.Sales,
		Return:        it.Returned,
		Remaining:     it.Remaining(),
	}
}

// ToResponse tolerates a nil photos for contexts without URLs (audit snapshots).
func ToResponse(c models.Consignment, photos *storage.PhotoUploader) Response {
	totals := c.Totals()
	r := Response{
		ID:                c.ID,
		Code:              c.Code,
		StoreID:           c.StoreID,
		ConsignmentDate:   c.ConsignmentDate.Format(request.DateLayout),
		PickupDate:        c.PickupDate.Format(request.DateLayout),
		Status:            c.Status,
		Notes:             c.Notes,
		PhotoPath:         c.PhotoPath,
		TotalQuantity:     totals.TotalQuantity,
		TotalSold:         totals.TotalSold,
		TotalReturned:     totals.TotalReturned,
		RemainingQuantity: totals.Remaining(),
		FullyResolved:     totals.FullyResolved(),
		Items:             make([]ItemResponse, 0, len(c.Items)),
		CreatedAt:         c.CreatedAt.Format("2006-01-02 15:04:05"),
		UpdatedAt:         c.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
	if c.Store != nil {
		r.StoreName = c.Store.Name
	}
	if photos != nil {
		r.PhotoURL = photos.URL(c.PhotoPath)
		r.ThumbURL = photos.ThumbURL(c.PhotoPath)
	}
	for _, it := range c.Items {
		r.Items = append(r.Items, ToItemResponse(it))
	}
	return r
}

func toItemInputs(items []ItemRequest) []ItemInput {
	if items == nil {
		return nil
	}
	out := make([]ItemInput, 0, len(items))
	for _, it := range items {
		out = append(out, ItemInput{
			ID:          it.ID,
			ProductID:   it.ProductID,
			Qty:         it.Qty,
			Price:       it.Price,
			Description: strings.TrimSpace(it.Description),
		})
	}
	return out
}

func parseDateField(field, raw string) (time.Time, error) {
	t, err := request.ParseDate(strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, apperror.Validationf("%s must be YYYY-MM-DD", field).WithDetail(field, "date")
	}
	return t, nil
}

type Handler struct {
	svc     *Service
	photos  *storage.PhotoUploader
	logger  *logrus.Logger
	perPage int
}

func NewHandler(svc *Service, photos *storage.PhotoUploader, logger *logrus.Logger, perPage int) *Handler {
	return &Handler{svc: svc, photos: photos, logger: logger, perPage: perPage}
}

func (h *Handler) responses(list []models.Consignment) []Response {
	out := make([]Response, 0, len(list))
	for _, c := range list {
		out = append(out, ToResponse(c, h.photos))
	}
	return out
}

func (h *Handler) filter(c *fiber.Ctx) (ListFilter, error) {
	f := ListFilter{
		StoreID:   request.QueryUint(c, "store_id"),
		ProductID: request.QueryUint(c, "product_id"),
		Search:    strings.TrimSpace(c.Query("search")),
	}
	if status := models.ConsignmentStatus(c.Query("status")); status != "" {
		if !status.Valid() {
			return f, apperror.Validation("status must be active or done").WithDetail("status", "in:active,done")
		}
		f.Status = status
	}
	var err error
	if f.FromDate, err = request.QueryDate(c, "from_date"); err != nil {
		return f, err
	}
	if f.ToDate, err = request.QueryDate(c, "to_date"); err != nil {
		return f, err
	}
	return f, nil
}

// POST /api/consignments
func (h *Handler) Create() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateConsignmentRequest
		if err := request.Body(c, &body); err != nil {
			return err
		}
		consignmentDate, err := parseDateField("consignment_date", body.ConsignmentDate)
		if err != nil {
			return err
		}
		pickupDate, err := parseDateField("pickup_date", body.PickupDate)
		if err != nil {
			return err
		}

		created, err := h.svc.Create(c.UserContext(), CreateInput{
			StoreID:         body.StoreID,
			ConsignmentDate: consignmentDate,
			PickupDate:      pickupDate,
			Notes:           strings.TrimSpace(body.Notes),
			Items:           toItemInputs(body.Items),
		})
		if err != nil {
			return err
		}
		return response.OK(c, fiber.StatusCreated, "consignment created", ToResponse(*created, h.photos))
	}
}

// GET /api/consignments?store_id=&product_id=&status=&from_date=&to_date=&search=
func (h *Handler) List() fiber.Handler {
	return func(c *fiber.Ctx) error {
		f, err := h.filter(c)
		if err != nil {
			return err
		}
		page := response.PageParams(c, h.perPage)
		list, total, err := h.svc.List(c.UserContext(), f, page)
		if err != nil {
			return err
		}
		return response.Paged(c, "consignments", h.responses(list), response.NewMeta(page, total, len(list)))
	}
}

// GET /api/consignments/list
func (h *Handler) Options() fiber.Handler {
	return func(c *fiber.Ctx) error {
		list, err := h.svc.ListAll(c.UserContext())
		if err != nil {
			return err
		}
		out := make([]OptionResponse, 0, len(list))
		for _, cons := range list {
			o := OptionResponse{ID: cons.ID, Code: cons.Code, Status: string(cons.Status), Products: []string{}}
			if cons.Store != nil {
				o.StoreName = cons.Store.Name
			}
			for _, it := range cons.Items {
				o.Products = append(o.Products, it.Name)
			}
			out = append(out, o)
		}
		return response.OK(c, fiber.StatusOK, "consignment options", out)
	}
}

// GET /api/consignments/active
func (h *Handler) Active() fiber.Handler {
	return func(c *fiber.Ctx) error {
		list, err := h.svc.ListActive(c.UserContext())
		if err != nil {
			return err
		}
		return response.OK(c, fiber.StatusOK, "active consignments", h.responses(list))
	}
}

// GET /api/consignments/:id
func (h *Handler) Get() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := request.ParamID(c, "id")
		if err != nil {
			return err
		}
		cons, err := h.svc.Get(c.UserContext(), id)
		if err != nil {
			return err
		}
		return response.OK(c, fiber.StatusOK, "consignment", ToResponse(*cons, h.photos))
	}
}

// PUT /api/consignments/:id
func (h *Handler) Update() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := request.ParamID(c, "id")
		if err != nil {
			return err
		}
		var body UpdateConsignmentRequest
		if err := request.Body(c, &body); err != nil {
			return err
		}

		in := UpdateInput{StoreID: body.StoreID, Items: toItemInputs(body.Items)}
		if body.ConsignmentDate != nil {
			d, err := parseDateField("consignment_date", *body.ConsignmentDate)
			if err != nil {
				return err
			}
			in.ConsignmentDate = &d
		}
		if body.PickupDate != nil {
			d, err := parseDateField("pickup_date", *body.PickupDate)
			if err != nil {
				return err
			}
			in.PickupDate = &d
		}
		if body.Notes != nil {
			notes := strings.TrimSpace(*body.Notes)
			in.Notes = &notes
		}

		updated, err := h.svc.Update(c.UserContext(), id, in)
		if err != nil {
			return err
		}
		return response.OK(c, fiber.StatusOK, "consignment updated", ToResponse(*updated, h.photos))
	}
}

// DELETE /api/consignments/:id
func (h *Handler) Delete() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := request.ParamID(c, "id")
		if err != nil {
			return err
		}
		deleted, err := h.svc.Delete(c.UserContext(), id)
		if err != nil {
			return err
		}
		h.photos.Remove(c.UserContext(), deleted.PhotoPath)
		return response.OK(c, fiber.StatusOK, "consignment "+deleted.Code+" deleted", nil)
	}
}

// GET /api/consignments/:id/product-items
func (h *Handler) AvailableItems() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := request.ParamID(c, "id")
		if err != nil {
			return err
		}
		items, err := h.svc.AvailableItems(c.UserContext(), id)
		if err != nil {
			return err
		}
		out := make([]ItemResponse, 0, len(items))
		for _, it := range items {
			out = append(out, ToItemResponse(it))
		}
		return response.OK(c, fiber.StatusOK, "available product items", out)
	}
}

// TransactionSummary is the per-transaction row shown on a consignment.
type TransactionSummary struct {
	ID              uint            `json:"id"`
	TransactionDate string          `json:"transaction_date"`
	Notes           string          `json:"notes"`
	TotalSold       int             `json:"total_sold"`
	TotalReturned   int             `json:"total_returned"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Items           []ItemActivity  `json:"items"`
}

type ItemActivity struct {
	ProductItemID uint            `json:"product_item_id"`
	Name          string          `json:"name"`
	Sold          int             `json:"sold"`
	Returned      int             `json:"returned"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Subtotal      decimal.Decimal `json:"subtotal"`
}

// GET /api/consignments/:id/transactions
func (h *Handler) Transactions() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := request.ParamID(c, "id")
		if err != nil {
			return err
		}
		page := response.PageParams(c, h.perPage)
		list, total, err := h.svc.Transactions(c.UserContext(), id, page)
		if err != nil {
			return err
		}

		out := make([]TransactionSummary, 0, len(list))
		for _, t := range list {
			totals := t.Totals()
			row := TransactionSummary{
				ID:              t.ID,
				TransactionDate: t.TransactionDate.Format(request.DateLayout),
				Notes:           t.Notes,
				TotalSold:       totals.TotalSold,
				TotalReturned:   totals.TotalReturned,
				TotalAmount:     totals.TotalAmount,
				Items:           make([]ItemActivity, 0, len(t.Items)),
			}
			for _, it := range t.Items {
				a := ItemActivity{
					ProductItemID: it.ProductItemID,
					Sold:          it.Sold,
					Returned:      it.Returned,
					UnitPrice:     it.UnitPrice,
					Subtotal:      it.Subtotal(),
				}
				if it.ProductItem != nil {
					a.Name = it.ProductItem.Name
				}
				row.Items = append(row.Items, a)
			}
			out = append(out, row)
		}
		return response.Paged(c, "consignment transactions", out, response.NewMeta(page, total, len(out)))
	}
}

// POST /api/consignments/:id/photo (multipart field "photo")
func (h *Handler) UploadPhoto() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := request.ParamID(c, "id")
		if err != nil {
			return err
		}
		if _, err := h.svc.Get(c.UserContext(), id); err != nil {
			return err
		}
		fh, err := c.FormFile("photo")
		if err != nil {
			return apperror.Validation("photo is required").WithDetail("photo", "required")
		}

		key, err := h.photos.Upload(c.UserContext(), fmt.Sprintf("consignments/%d", id), fh)
		if err != nil {
			return err
		}
		old, err := h.svc.SetPhoto(c.UserContext(), id, key)
		if err != nil {
			h.photos.Remove(c.UserContext(), key)
			return err
		}
		h.photos.Remove(c.UserContext(), old)

		return response.OK(c, fiber.StatusOK, "photo uploaded", fiber.Map{
			"photo_path": key,
			"photo_url":  h.photos.URL(key),
			"thumb_url":  h.photos.ThumbURL(key),
		})
	}
}

// GET /api/consignments/export (same filters as the list)
func (h *Handler) Export() fiber.Handler {
	return func(c *fiber.Ctx) error {
		f, err := h.filter(c)
		if err != nil {
			return err
		}
		list, err := h.svc.Export(c.UserContext(), f)
		if err != nil {
			return err
		}

		book, err := report.ConsignmentsWorkbook(list)
		if err != nil {
			logging.LogError(h.logger, "consignment", "Export", "Could not build workbook", len(list), err)
			return err
		}
		defer book.Close()

		buf, err := book.WriteToBuffer()
		if err != nil {
			return err
		}
		c.Set(fiber.HeaderContentType, report.ContentTypeXLSX)
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="consignments.xlsx"`)
		return c.Send(buf.Bytes())
	}
}
