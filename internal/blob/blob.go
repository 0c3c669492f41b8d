// Package blob stores uploaded book images and serves them back by URL.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	_ "golang.org/x/image/webp" // Register WebP decoder
	"golang.org/x/text/unicode/norm"
)

// MaxUploadSize caps a single image upload.
const MaxUploadSize = 10 << 20

var (
	// ErrUnsupportedFormat is returned for data that is not a JPEG, PNG, GIF or WebP image.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrInvalidPath is returned for object paths that escape the store.
	ErrInvalidPath = errors.New("invalid object path")
	// ErrTooLarge is returned for uploads over MaxUploadSize.
	ErrTooLarge = errors.New("image exceeds maximum upload size")
)

var supportedFormats = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
}

// Object describes a stored blob.
type Object struct {
	URL         string `json:"url"`
	Path        string `json:"path"`
	ContentType string `json:"contentType"`
	BlurHash    string `json:"blurHash,omitempty"`
	Size        int    `json:"size"`
}

// Store uploads blobs and returns where they can be fetched.
type Store interface {
	Upload(ctx context.Context, objectPath string, data []byte) (*Object, error)
}

// ImagePath is the object path for an image uploaded to a book: images/<bookId>/<millis>_<filename>.
func ImagePath(bookID string, now time.Time, filename string) string {
	return path.Join("images", bookID, strconv.FormatInt(now.UnixMilli(), 10)+"_"+SlugFilename(filename))
}

var (
	nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)
	multipleHyphens = regexp.MustCompile(`-+`)
)

// SlugFilename makes an uploaded filename safe for a path segment while keeping its extension.
// "Café Cover (1).JPG" becomes "cafe-cover-1.jpg".
func SlugFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	ext := strings.ToLower(filepath.Ext(name))
	base := strings.TrimSuffix(name, filepath.Ext(name))

	base = norm.NFKD.String(base)
	base = strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, base)
	base = strings.ToLower(base)
	base = nonAlphanumeric.ReplaceAllString(base, "-")
	base = multipleHyphens.ReplaceAllString(base, "-")
	base = strings.Trim(base, "-")
	if base == "" {
		base = "image"
	}

	ext = nonAlphanumeric.ReplaceAllString(strings.TrimPrefix(ext, "."), "")
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// DetectFormat returns the content type of an image, reading only its header.
func DetectFormat(data []byte) (string, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	contentType, ok := supportedFormats[format]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	return contentType, nil
}

// FileStore keeps blobs on the local filesystem under root. Objects are served
// at baseURL joined with their path.
type FileStore struct {
	root    string
	baseURL string
	mu      sync.Mutex
}

// NewFileStore creates the root directory if needed.
func NewFileStore(root, baseURL string) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("blob root cannot be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &FileStore{root: root, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Root returns the directory blobs are written under.
func (s *FileStore) Root() string {
	return s.root
}

// Upload validates that data is a supported image and writes it at objectPath.
// An existing object at the same path is replaced.
func (s *FileStore) Upload(ctx context.Context, objectPath string, data []byte) (*Object, error) {
	clean, contentType, err := prepareUpload(ctx, objectPath, data)
	if err != nil {
		return nil, err
	}

	full := filepath.Join(s.root, filepath.FromSlash(clean))

	s.mu.Lock()
	err = writeFileAtomic(full, data)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	return newObject(s.baseURL+"/"+clean, clean, contentType, data), nil
}

// prepareUpload runs the checks shared by every Store: size, path and image format.
func prepareUpload(ctx context.Context, objectPath string, data []byte) (clean, contentType string, err error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	if len(data) == 0 {
		return "", "", fmt.Errorf("image data cannot be empty")
	}
	if len(data) > MaxUploadSize {
		return "", "", ErrTooLarge
	}

	clean, err = cleanObjectPath(objectPath)
	if err != nil {
		return "", "", err
	}
	contentType, err = DetectFormat(data)
	if err != nil {
		return "", "", err
	}
	return clean, contentType, nil
}

func newObject(url, clean, contentType string, data []byte) *Object {
	obj := &Object{
		URL:         url,
		Path:        clean,
		ContentType: contentType,
		Size:        len(data),
	}
	if hash, err := ComputeBlurHash(data); err == nil {
		obj.BlurHash = hash
	}
	return obj
}

func cleanObjectPath(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, `\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return clean, nil
}

func writeFileAtomic(full string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write image file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write image file: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return fmt.Errorf("failed to store image file: %w", err)
	}
	return nil
}
