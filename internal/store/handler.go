package store

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"konsinyasi-backend/internal/apperror"
	"konsinyasi-backend/internal/models"
	"konsinyasi-backend/internal/request"
	"konsinyasi-backend/internal/response"
	"konsinyasi-backend/internal/storage"
)

type CreateStoreRequest struct {
	Name      string   `json:"name" validate:"required,max=255"`
	Address   string   `json:"address" validate:"max=2000"`
	Phone     string   `json:"phone" validate:"max=20"`
	OwnerName string   `json:"owner_name" validate:"max=255"`
	Latitude  *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude" validate:"omitempty,longitude"`
}

type UpdateStoreRequest struct {
	Name      *string  `json:"name" validate:"omitempty,max=255"`
	Address   *string  `json:"address" validate:"omitempty,max=2000"`
	Phone     *string  `json:"phone" validate:"omitempty,max=20"`
	OwnerName *string  `json:"owner_name" validate:"omitempty,max=255"`
	Latitude  *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude" validate:"omitempty,longitude"`
}

type Response struct {
	ID        uint     `json:"id"`
	Name      string   `json:"name"`
	Address   string   `json:"address"`
	Phone     string   `json:"phone"`
	OwnerName string   `json:"owner_name"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	PhotoPath string   `json:"photo_path"`
	PhotoURL  string   `json:"photo_url"`
	ThumbURL  string   `json:"thumb_url"`
	CreatedAt string   `json:"created_at"`
}

type OptionResponse struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

func ToResponse(st models.Store, photos *storage.PhotoUploader) Response {
	r := Response{
		ID:        st.ID,
		Name:      st.Name,
		Address:   st.Address,
		Phone:     st.Phone,
		OwnerName: st.OwnerName,
		Latitude:  st.Latitude,
		Longitude: st.Longitude,
		PhotoPath: st.PhotoPath,
		CreatedAt: st.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	if photos != nil {
		r.PhotoURL = photos.URL(st.PhotoPath)
		r.ThumbURL = photos.ThumbURL(st.PhotoPath)
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

// POST /api/stores
func (h *Handler) Create() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateStoreRequest
		if err := request.Body(c, &body); err != nil {
			return err
		}
		st, err := h.svc.Create(c.UserContext(), Input{
			Name:      body.Name,
			Address:   body.Address,
			Phone:     body.Phone,
			OwnerName: body.OwnerName,
			Latitude:  body.Latitude,
			Longitude: body.Longitude,
		})
		if err != nil {
			return err
		}
		return response.OK(c, fiber.StatusCreated, "store created", ToResponse(*st, h.photos))
	}
}

// GET /api/stores?search=&page=&per_page=
func (h *Handler) List() fiber.Handler {
	return func(c *fiber.Ctx) error {
		page := response.PageParams(c, h.perPage)
		list, total, err := h.svc.List(c.UserContext(), c.Query("search"), page)
		if err != nil {
			return err
		}
		out := make([]Response, 0, len(list))
		for _, st := range list {
			out = append(out, ToResponse(st, h.photos))
		}
		return response.Paged(c, "stores", out, response.NewMeta(page, total, len(out)))
	}
}

// GET /api/stores/list
func (h *Handler) Options() fiber.Handler {
	return func(c *fiber.Ctx) error {
		list, err := h.svc.ListAll(c.UserContext())
		if err != nil {
			return err
		}
		out := make([]OptionResponse, 0, len(list))
		for _, st := range list {
			out = append(out, OptionResponse{ID: st.ID, Name: st.Name})
		}
		return response.OK(c, fiber.StatusOK, "store options", out)
	}
}

// GET /api/stores/:id
func (h *Handler) Get() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := request.ParamID(c, "id")
		if err != nil {
			return err
		}
		st, err := h.svc.Get(c.UserContext(), id)
		if err != nil {
			return err
		}
		return response.OK(c, fiber.StatusOK, "store", ToResponse(*st, h.photos))
	}
}

// PUT /api/stores/:id
func (h *Handler) Update() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := request.ParamID(c, "id")
		if err != nil {
			return err
		}
		var body UpdateStoreRequest
		if err := request.Body(c, &body); err != nil {
			return err
		}
		st, err := h.svc.Update(c.UserContext(), id, UpdateInput{
			Name:      body.Name,
			Address:   body.Address,
			Phone:     body.Phone,
			OwnerName: body.OwnerName,
			Latitude:  body.Latitude,
			Longitude: body.Longitude,
		})
		if err != nil {
			return err
		}
		return response.OK(c, fiber.StatusOK, "store updated", ToResponse(*st, h.photos))
	}
}

// DELETE /api/stores/:id (admin)
func (h *Handler) Delete() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := request.ParamID(c, "id")
		if err != nil {
			return err
		}
		st, err := h.svc.Delete(c.UserContext(), id)
		if err != nil {
			return err
		}
		h.photos.Remove(c.UserContext(), st.PhotoPath)
		return response.OK(c, fiber.StatusOK, "store "+st.Name+" deleted", nil)
	}
}

// POST /api/stores/:id/photo (multipart field "photo")
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

		key, err := h.photos.Upload(c.UserContext(), fmt.Sprintf("stores/%d", id), fh)
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
