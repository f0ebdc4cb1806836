package transaction

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
	ProductItemID uint             `json:"product_item_id" validate:"required"`
	Sold          int              `json:"sold" validate:"min=0,max=1000000"`
	Returned      int              `json:"returned" validate:"min=0,max=1000000"`
	Price         *decimal.Decimal `json:"price"`
}

type CreateTransactionRequest struct {
	ConsignmentID   uint          `json:"consignment_id" validate:"required"`
	TransactionDate string        `json:"transaction_date"`
	Notes           string        `json:"notes" validate:"max=2000"`
	Items           []ItemRequest `json:"items" validate:"required,min=1,dive"`
}

type UpdateTransactionRequest struct {
	TransactionDate *string       `json:"transaction_date"`
	Notes           *string       `json:"notes" validate:"omitempty,max=2000"`
	Items           []ItemRequest `json:"items" validate:"omitempty,dive"`
}

type ItemResponse struct {
	ID            uint            `json:"id"`
	ProductItemID uint            `json:"product_item_id"`
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	Qty           int             `json:"qty"`
	Sold          int             `json:"sold"`
	Returned      int             `json:"returned"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Subtotal      decimal.Decimal `json:"subtotal"`
}

type Response struct {
	ID                     uint                     `json:"id"`
	ConsignmentID          uint                     `json:"consignment_id"`
	ConsignmentCode        string                   `json:"consignment_code"`
	ConsignmentStatus      models.ConsignmentStatus `json:"consignment_status,omitempty"`
	StoreID                uint                     `json:"store_id"`
	StoreName              string                   `json:"store_name"`
	TransactionDate        string                   `json:"transaction_date"`
	Notes                  string                   `json:"notes"`
	SoldItemsPhotoPath     string                   `json:"sold_items_photo_path"`
	SoldItemsPhotoURL      string                   `json:"sold_items_photo_url"`
	ReturnedItemsPhotoPath string                   `json:"returned_items_photo_path"`
	ReturnedItemsPhotoURL  string                   `json:"returned_items_photo_url"`
	TotalSold              int                      `json:"total_sold"`
	TotalReturned          int                      `json:"total_returned"`
	TotalAmount            decimal.Decimal          `json:"total_amount"`
	Items                  []ItemResponse           `json:"items"`
	CreatedAt              string                   `json:"created_at"`
}

// ToResponse tolerates a nil photos for contexts without URLs (audit snapshots).
func ToResponse(t models.Transaction, photos *storage.PhotoUploader) Response {
	totals := t.Totals()
	r := Response{
		ID:                     t.ID,
		ConsignmentID:          t.ConsignmentID,
		TransactionDate:        t.TransactionDate.Format(request.DateLayout),
		Notes:                  t.Notes,
		SoldItemsPhotoPath:     t.SoldItemsPhotoPath,
		ReturnedItemsPhotoPath: t.ReturnedItemsPhotoPath,
		TotalSold:              totals.TotalSold,
		TotalReturned:          totals.TotalReturned,
		TotalAmount:            totals.TotalAmount,
		Items:                  make([]ItemResponse, 0, len(t.Items)),
		CreatedAt:              t.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	if t.Consignment != nil {
		r.ConsignmentCode = t.Consignment.Code
		r.ConsignmentStatus = t.Consignment.Status
		r.StoreID = t.Consignment.StoreID
		if t.Consignment.Store != nil {
			r.StoreName = t.Consignment.Store.Name
		}
	}
	if photos != nil {
		r.SoldItemsPhotoURL = photos.URL(t.SoldItemsPhotoPath)
		r.ReturnedItemsPhotoURL = photos.URL(t.ReturnedItemsPhotoPath)
	}
	for _, it := range t.Items {
		ir := ItemResponse{
			ID:            it.ID,
			ProductItemID: it.ProductItemID,
			Sold:          it.Sold,
			Returned:      it.Returned,
			UnitPrice:     it.UnitPrice,
			Subtotal:      it.Subtotal(),
		}
		if it.ProductItem != nil {
			ir.Code = it.ProductItem.Code
			ir.Name = it.ProductItem.Name
			ir.Qty = it.ProductItem.Qty
		}
		r.Items = append(r.Items, ir)
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
			ProductItemID: it.ProductItemID,
			Sold:          it.Sold,
			Returned:      it.Returned,
			Price:         it.Price,
		})
	}
	return out
}

func parseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := request.ParseDate(raw)
	if err != nil {
		return nil, apperror.Validation("transaction_date must be YYYY-MM-DD").WithDetail("transaction_date", "date")
	}
	return &t, nil
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

func (h *Handler) filter(c *fiber.Ctx) (ListFilter, error) {
	f := ListFilter{
		ConsignmentID: request.QueryUint(c, "consignment_id"),
		StoreID:       request.QueryUint(c, "store_id"),
		ProductID:     request.QueryUint(c, "product_id"),
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

// POST /api/transactions
func (h *Handler) Create() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateTransactionRequest
		if err := request.Body(c, &body); err != nil {
			return err
		}
		date, err := parseDate(body.TransactionDate)
		if err != nil {
			return err
		}

		trx, err := h.svc.Create(c.UserContext(), CreateInput{
			ConsignmentID:   body.ConsignmentID,
			TransactionDate: date,
			Notes:           strings.TrimSpace(body.Notes),
			Items:           toItemInputs(body.Items),
		})
		if err != nil {
			return err
		}
		return response.OK(c, fiber.StatusCreated, "transaction created", ToResponse(*trx, h.photos))
	}
}

// GET /api/transactions?consignment_id=&store_id=&product_id=&from_date=&to_date=
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
		out := make([]Response, 0, len(list))
		for _, t := range list {
			out = append(out, ToResponse(t, h.photos))
		}
		return response.Paged(c, "transactions", out, response.NewMeta(page, total, len(out)))
	}
}

// GET /api/transactions/summary (same filters as the list)
func (h *Handler) Summary() fiber.Handler {
	return func(c *fiber.Ctx) error {
		f, err := h.filter(c)
		if err != nil {
			return err
		}
		sum, err := h.svc.Summary(c.UserContext(), f)
		if err != nil {
			return err
		}
		return response.OK(c, fiber.StatusOK, "transaction summary", sum)
	}
}

// GET /api/transactions/:id
func (h *Handler) Get() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := request.ParamID(c, "id")
		if err != nil {
			return err
		}
		trx, err := h.svc.Get(c.UserContext(), id)
		if err != nil {
			return err
		}
		return response.OK(c, fiber.StatusOK, "transaction", ToResponse(*trx, h.photos))
	}
}

// PUT /api/transactions/:id
func (h *Handler) Update() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := request.ParamID(c, "id")
		if err != nil {
			return err
		}
		var body UpdateTransactionRequest
		if err := request.Body(c, &body); err != nil {
			return err
		}

		in := UpdateInput{Items: toItemInputs(body.Items)}
		if body.TransactionDate != nil {
			if in.TransactionDate, err = parseDate(*body.TransactionDate); err != nil {
				return err
			}
		}
		if body.Notes != nil {
			notes := strings.TrimSpace(*body.Notes)
			in.Notes = &notes
		}

		trx, err := h.svc.Update(c.UserContext(), id, in)
		if err != nil {
			return err
		}
		return response.OK(c, fiber.StatusOK, "transaction updated", ToResponse(*trx, h.photos))
	}
}

// DELETE /api/transactions/:id
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
		h.photos.Remove(c.UserContext(), deleted.SoldItemsPhotoPath, deleted.ReturnedItemsPhotoPath)
		return response.OK(c, fiber.StatusOK, fmt.Sprintf("transaction #%d deleted", id), nil)
	}
}

// POST /api/transactions/:id/photos/:kind (kind = sold | returned, multipart field "photo")
func (h *Handler) UploadPhoto() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := request.ParamID(c, "id")
		if err != nil {
			return err
		}
		kind := c.Params("kind")
		if kind != PhotoSold && kind != PhotoReturned {
			return apperror.Validation("photo kind must be sold or returned").WithDetail("kind", "in:sold,returned")
		}
		if _, err := h.svc.Get(c.UserContext(), id); err != nil {
			return err
		}
		fh, err := c.FormFile("photo")
		if err != nil {
			return apperror.Validation("photo is required").WithDetail("photo", "required")
		}

		key, err := h.photos.Upload(c.UserContext(), fmt.Sprintf("transactions/%d", id), fh)
		if err != nil {
			return err
		}
		old, err := h.svc.SetPhoto(c.UserContext(), id, kind, key)
		if err != nil {
			h.photos.Remove(c.UserContext(), key)
			return err
		}
		h.photos.Remove(c.UserContext(), old)

		return response.OK(c, fiber.StatusOK, "photo uploaded", fiber.Map{
			"kind":       kind,
			"photo_path": key,
			"photo_url":  h.photos.URL(key),
			"thumb_url":  h.photos.ThumbURL(key),
		})
	}
}

// GET /api/transactions/:id/export
func (h *Handler) Export() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := request.ParamID(c, "id")
		if err != nil {
			return err
		}
		trx, err := h.svc.Get(c.UserContext(), id)
		if err != nil {
			return err
		}

		book, err := report.TransactionWorkbook(*trx)
		if err != nil {
			logging.LogError(h.logger, "transaction", "Export", "Could not build workbook", id, err)
			return err
		}
		defer book.Close()

		buf, err := book.WriteToBuffer()
		if err != nil {
			return err
		}
		c.Set(fiber.HeaderContentType, report.ContentTypeXLSX)
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="transaction-%d.xlsx"`, id))
		return c.Send(buf.Bytes())
	}
}
