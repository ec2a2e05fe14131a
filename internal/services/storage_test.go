package services

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pngHeader is enough for content sniffing to report image/png.
var pngHeader = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D, 'I', 'H', 'D', 'R'}

func multipartFile(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("image", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(MaxImageSize*2))
	return req.MultipartForm.File["image"][0]
}

func TestLocalStorageUploadImage(t *testing.T) {
	dir := t.TempDir()
	st, err := NewStorage(StorageConfig{UploadDir: dir, BaseURL: "http://api.test/"})
	require.NoError(t, err)
	assert.False(t, st.UsingS3())

	url, err := st.UploadImage(context.Background(), multipartFile(t, "photo.bin", pngHeader), "listings")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "http://api.test/uploads/listings/"))
	assert.True(t, strings.HasSuffix(url, ".png"))

	rel := strings.TrimPrefix(url, "http://api.test/uploads/")
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)
}

func TestLocalStorageRejectsNonImage(t *testing.T) {
	st, err := NewStorage(StorageConfig{UploadDir: t.TempDir()})
	require.NoError(t, err)

	_, err = st.UploadImage(context.Background(), multipartFile(t, "notes.txt", []byte("plain text")), "blogs")
	assert.ErrorIs(t, err, ErrNotImage)
}

func TestLocalStorageRejectsLargeImage(t *testing.T) {
	st, err := NewStorage(StorageConfig{UploadDir: t.TempDir()})
	require.NoError(t, err)

	big := append(append([]byte{}, pngHeader...), make([]byte, MaxImageSize)...)
	_, err = st.UploadImage(context.Background(), multipartFile(t, "big.png", big), "blogs")
	assert.ErrorIs(t, err, ErrImageTooLarge)
}
