package blob

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func setupTestStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "media"), "http://localhost:8080/media/")
	require.NoError(t, err)
	return store
}

func TestNewFileStore(t *testing.T) {
	t.Run("creates the root directory", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "nested", "media")
		store, err := NewFileStore(root, "/media")
		require.NoError(t, err)

		info, err := os.Stat(store.Root())
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("rejects an empty root", func(t *testing.T) {
		_, err := NewFileStore("", "/media")
		assert.Error(t, err)
	})
}

func TestFileStore_Upload(t *testing.T) {
	t.Run("stores a png and returns its url", func(t *testing.T) {
		store := setupTestStore(t)
		data := testPNG(t, 200, 100)

		obj, err := store.Upload(context.Background(), "images/swb-1/1_cover.png", data)
		require.NoError(t, err)

		assert.Equal(t, "http://localhost:8080/media/images/swb-1/1_cover.png", obj.URL)
		assert.Equal(t, "images/swb-1/1_cover.png", obj.Path)
		assert.Equal(t, "image/png", obj.ContentType)
		assert.Equal(t, len(data), obj.Size)
		assert.NotEmpty(t, obj.BlurHash)

		stored, err := os.ReadFile(filepath.Join(store.Root(), "images", "swb-1", "1_cover.png"))
		require.NoError(t, err)
		assert.Equal(t, data, stored)
	})

	t.Run("rejects data that is not an image", func(t *testing.T) {
		store := setupTestStore(t)
		_, err := store.Upload(context.Background(), "images/swb-1/1_notes.txt", []byte("plain text"))
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("rejects empty data", func(t *testing.T) {
		store := setupTestStore(t)
		_, err := store.Upload(context.Background(), "images/swb-1/empty.png", nil)
		assert.Error(t, err)
	})

	t.Run("rejects paths outside the store", func(t *testing.T) {
		store := setupTestStore(t)
		data := testPNG(t, 4, 4)
		for _, p := range []string{"", "/etc/passwd", "../escape.png", "images/../../escape.png", `images\x.png`} {
			_, err := store.Upload(context.Background(), p, data)
			assert.ErrorIs(t, err, ErrInvalidPath, p)
		}
	})

	t.Run("honors a cancelled context", func(t *testing.T) {
		store := setupTestStore(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := store.Upload(ctx, "images/swb-1/x.png", testPNG(t, 4, 4))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestImagePath(t *testing.T) {
	got := ImagePath("swb-0001", time.UnixMilli(1700000000123), "My Cover.JPG")
	assert.Equal(t, "images/swb-0001/1700000000123_my-cover.jpg", got)
}

func TestSlugFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"cover.png", "cover.png"},
		{"Café Cover (1).JPG", "cafe-cover-1.jpg"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\scan.webp`, "scan.webp"},
		{"???.gif", "image.gif"},
		{"noext", "noext"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SlugFilename(tt.in))
		})
	}
}

func TestDetectFormat(t *testing.T) {
	contentType, err := DetectFormat(testPNG(t, 2, 2))
	require.NoError(t, err)
	assert.Equal(t, "image/png", contentType)

	_, err = DetectFormat([]byte("GIF89"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestComputeBlurHash(t *testing.T) {
	small, err := ComputeBlurHash(testPNG(t, 16, 16))
	require.NoError(t, err)
	assert.NotEmpty(t, small)

	large, err := ComputeBlurHash(testPNG(t, 300, 120))
	require.NoError(t, err)
	assert.NotEmpty(t, large)

	_, err = ComputeBlurHash([]byte("nope"))
	assert.Error(t, err)
}
