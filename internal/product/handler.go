package product

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"konsinyasi-backend/internal/apperror"
	"konsinyasi-backend/internal/models"
	"konsinyasi-backend/internal/request"
	"konsinyasi-backend/internal/response"
	"konsinyasi-backend/internal/storage"
)

type CreateProductRequest struct {
	Name        string          `json:"name" validate:"required,max=255"`
	Code        string          `json:"code" validate:"required,max=50"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description" validate:"max=2000"`
}

type UpdateProductRequest struct {
	Name        *string          `json:"name" validate:"omitempty,max=255"`
	Code        *string          `json:"code" validate:"omitempty,max=50"`
	Price       *decimal.Decimal `json:"price"`
	Description *string          `json:"description" validate:"omitempty,max=2000"`
}

type Response struct {
	ID          uint            `json:"id"`
	Name        string          `json:"name"`
	Code        string          `json:"code"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	PhotoPath   string          `json:"photo_path"`
	PhotoURL    string          `json:"photo_url"`
	ThumbURL    string          `json:"thumb_url"`
	CreatedAt   string          `json:"created_at"`
}

type OptionResponse struct {
	ID    uint            `json:"id"`
	Name  string          `json:"name"`
	Code  string          `json:"code"`
	Price decimal.Decimal `json:"price"`
}

func ToResponse(p models.Product, photos *storage.PhotoUploader) Response {
	r := Response{
		ID:          p.ID,
		Name:        p.Name,
		Code:        p.Code,
		Price:       p.Price,
		Description: p.Description,
		PhotoPath:   p.PhotoPath,
		CreatedAt:   p.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	if photos != nil {
		r.PhotoURL = photos.URL(p.PhotoPath)
		r.ThumbURL = photos.ThumbURL(p.PhotoPath)
	}
	return r
}

type Handler struct {
	svc     *Service
	photos  *storage.PhotoUploader
	perPage int
}

func NewHandler(svc *Service, photos *storage.PhotoUploader, perPage int) *Handler {
	return &Handler{svc: svc, photos: photos, perPage: perPage}
}

// POST /api/products
func (h *Handler) Create() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateProductRequest
		if err := request.Body(c, &body); err != nil {
			return err
		}
		p, err := h.svc.Create(c.UserContext(), Input{
			Name:        body.Name,
			Code:        body.Code,
			Price:       body.Price,
			Description: body.Description,
		})
		if err != nil {
			return err
		}
		return response.OK(c, fiber.StatusCreated, "product created", ToResponse(*p, h.photos))
	}
}

// GET /api/products?search=&page=&per_page=
func (h *Handler) List() fiber.Handler {
	return func(c *fiber.Ctx) error {
		page := response.PageParams(c, h.perPage)
		list, total, err := h.svc.List(c.UserContext(), c.Query("search"), page)
		if err != nil {
			return err
		}
		out := make([]Response, 0, len(list))
		for _, p := range list {
			out = append(out, ToResponse(p, h.photos))
		}
		return response.Paged(c, "products", out, response.NewMeta(page, total, len(out)))
	}
}

// GET /api/products/list
func (h *Handler) Options() fiber.Handler {
	return func(c *fiber.Ctx) error {
		list, err := h.svc.ListAll(c.UserContext())
		if err != nil {
			return err
		}
		out := make([]OptionResponse, 0, len(list))
		for _, p := range list {
			out = append(out, OptionResponse{ID: p.ID, Name: p.Name, Code: p.Code, Price: p.Price})
		}
		return response.OK(c, fiber.StatusOK, "product options", out)
	}
}

// GET /api/products/:id
func (h *Handler) Get() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := request.ParamID(c, "id")
		if err != nil {
			return err
		}
		p, err := h.svc.Get(c.UserContext(), id)
		if err != nil {
			return err
		}
		return response.OK(c, fiber.StatusOK, "product", ToResponse(*p, h.photos))
	}
}

// PUT /api/products/:id
func (h *Handler) Update() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := request.ParamID(c, "id")
		if err != nil {
			return err
		}
		var body UpdateProductRequest
		if err := request.Body(c, &body); err != nil {
			return err
		}
		p, err := h.svc.Update(c.UserContext(), id, UpdateInput{
			Name:        body.Name,
			Code:        body.Code,
			Price:       body.Price,
			Description: body.Description,
		})
		if err != nil {
			return err
		}
		return response.OK(c, fiber.StatusOK, "product updated", ToResponse(*p, h.photos))
	}
}

// DELETE /api/products/:id (admin)
func (h *Handler) Delete() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := request.ParamID(c, "id")
		if err != nil {
			return err
		}
		p, err := h.svc.Delete(c.UserContext(), id)
		if err != nil {
			return err
		}
		h.photos.Remove(c.UserContext(), p.PhotoPath)
		return response.OK(c, fiber.StatusOK, "product "+p.Code+" deleted", nil)
	}
}

// POST /api/products/:id/photo (multipart field "photo")
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

		key, err := h.photos.Upload(c.UserContext(), fmt.Sprintf("products/%d", id), fh)
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
