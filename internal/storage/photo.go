package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"path"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"konsinyasi-backend/internal/apperror"
	"konsinyasi-backend/internal/logging"
)

const thumbWidth = 200

var allowedExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
}

// PhotoUploader validates image uploads and stores them with a thumbnail.
type PhotoUploader struct {
	store    Storage
	maxBytes int64
	logger   *logrus.Logger
}

func NewPhotoUploader(store Storage, maxBytes int64, logger *logrus.Logger) *PhotoUploader {
	return &PhotoUploader{store: store, maxBytes: maxBytes, logger: logger}
}

// ThumbKey is where the thumbnail of key lives.
func ThumbKey(key string) string {
	dir, file := path.Split(key)
	return dir + "thumb_" + strings.TrimSuffix(file, path.Ext(file)) + ".jpg"
}

// Upload stores fh under folder and returns the new key.
func (u *PhotoUploader) Upload(ctx context.Context, folder string, fh *multipart.FileHeader) (string, error) {
	if fh == nil {
		return "", apperror.Validation("photo is required").WithDetail("photo", "required")
	}
	if fh.Size > u.maxBytes {
		return "", apperror.Validationf("photo must be at most %d bytes", u.maxBytes).WithDetail("photo", "max")
	}
	ext := strings.ToLower(path.Ext(fh.Filename))
	contentType, ok := allowedExt[ext]
	if !ok {
		return "", apperror.Validation("photo must be jpeg, png or gif").WithDetail("photo", "mimes")
	}

	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, u.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > u.maxBytes {
		return "", apperror.Validationf("photo must be at most %d bytes", u.maxBytes).WithDetail("photo", "max")
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return "", apperror.Validation("photo is not a valid image").WithDetail("photo", "image")
	}
	var thumb bytes.Buffer
	if err := imaging.Encode(&thumb, imaging.Resize(img, thumbWidth, 0, imaging.Lanczos), imaging.JPEG); err != nil {
		return "", fmt.Errorf("encode thumbnail: %w", err)
	}

	key := path.Join(folder, uuid.New().String()+ext)
	if err := u.store.Save(ctx, key, data, contentType); err != nil {
		return "", err
	}
	if err := u.store.Save(ctx, ThumbKey(key), thumb.Bytes(), "image/jpeg"); err != nil {
		_ = u.store.Delete(ctx, key)
		return "", err
	}
	return key, nil
}

// Remove deletes a photo and its thumbnail. Failures are logged, not returned:
// an orphaned file must never fail the request that orphaned it.
func (u *PhotoUploader) Remove(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		for _, k := range []string{key, ThumbKey(key)} {
			if err := u.store.Delete(ctx, k); err != nil {
				logging.LogError(u.logger, "storage", "Remove", "Could not delete photo", k, err)
			}
		}
	}
}

func (u *PhotoUploader) URL(key string) string {
	return u.store.URL(key)
}

func (u *PhotoUploader) ThumbURL(key string) string {
	if key == "" {
		return ""
	}
	return u.store.URL(ThumbKey(key))
}
