package storage

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"konsinyasi-backend/internal/apperror"
)

func fileHeader(t *testing.T, name string, data []byte) *multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("photo", name)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))
	return req.MultipartForm.File["photo"][0]
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newUploader(t *testing.T, maxBytes int64) (*PhotoUploader, string) {
	root := t.TempDir()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewPhotoUploader(NewLocalStorage(root, "http://localhost:8080/"), maxBytes, logger), root
}

func TestUploadStoresPhotoAndThumbnail(t *testing.T) {
	u, root := newUploader(t, 1<<20)

	key, err := u.Upload(context.Background(), "consignments", fileHeader(t, "Nota.PNG", pngBytes(t, 400, 300)))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "consignments/"))
	assert.True(t, strings.HasSuffix(key, ".png"))

	assert.FileExists(t, filepath.Join(root, filepath.FromSlash(key)))
	thumbPath := filepath.Join(root, filepath.FromSlash(ThumbKey(key)))
	require.FileExists(t, thumbPath)

	f, err := os.Open(thumbPath)
	require.NoError(t, err)
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.Width)
	assert.Equal(t, 150, cfg.Height)

	assert.Equal(t, "http://localhost:8080/uploads/"+key, u.URL(key))

	u.Remove(context.Background(), key)
	assert.NoFileExists(t, filepath.Join(root, filepath.FromSlash(key)))
	assert.NoFileExists(t, thumbPath)
}

func TestUploadRejects(t *testing.T) {
	u, _ := newUploader(t, 2048)

	tests := []struct {
		name string
		file *multipart.FileHeader
	}{
		{"nil", nil},
		{"extension", fileHeader(t, "notes.txt", []byte("hello"))},
		{"not an image", fileHeader(t, "fake.jpg", []byte("definitely not jpeg"))},
		{"too large", fileHeader(t, "big.png", bytes.Repeat([]byte{1}, 4096))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := u.Upload(context.Background(), "x", tt.file)
			assert.True(t, apperror.HasCode(err, apperror.CodeValidation), "got %v", err)
		})
	}
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	s := NewLocalStorage(t.TempDir(), "")
	assert.Error(t, s.Save(context.Background(), "../escape.jpg", []byte("x"), "image/jpeg"))
}

func TestThumbKey(t *testing.T) {
	assert.Equal(t, "stores/thumb_abc.jpg", ThumbKey("stores/abc.png"))
}
