package image

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/manash/banafit/pkg/models"
)

// MaxInputBytes bounds the size of an uploaded image.
const MaxInputBytes = 20 << 20

var (
	ErrNotAnImage = errors.New("file is not a supported image")
	ErrTooLarge   = errors.New("image exceeds size limit")
)

var supportedTypes = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/webp": "webp",
	"image/gif":  "gif",
}

// DetectMIME sniffs the content type of image bytes.
func DetectMIME(data []byte) string {
	return http.DetectContentType(data)
}

// ExtensionFor maps a MIME type to a file extension, defaulting to png.
func ExtensionFor(mime string) string {
	if ext, ok := supportedTypes[mime]; ok {
		return ext
	}
	return "png"
}

type Loader struct {
	newID func() string
	now   func() time.Time
}

func NewLoader(newID func() string) *Loader {
	return &Loader{newID: newID, now: time.Now}
}

// Load reads an image file into an InputImage. The file name is kept as the
// preview handle.
func (l *Loader) Load(path string) (models.InputImage, error) {
	info, err := os.Stat(path)
	if err != nil {
		return models.InputImage{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.Size() > MaxInputBytes {
		return models.InputImage{}, fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, path, info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return models.InputImage{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	part, err := Part(data)
	if err != nil {
		return models.InputImage{}, fmt.Errorf("%s: %w", path, err)
	}

	return models.InputImage{
		ID:      l.newID(),
		Name:    filepath.Base(path),
		Image:   part,
		AddedAt: l.now(),
	}, nil
}

// LoadAll loads every path, stopping at the first failure.
func (l *Loader) LoadAll(paths []string) ([]models.InputImage, error) {
	imgs := make([]models.InputImage, 0, len(paths))
	for _, p := range paths {
		img, err := l.Load(p)
		if err != nil {
			return nil, err
		}
		imgs = append(imgs, img)
	}
	return imgs, nil
}

// ReadPart reads a file as a bare image part, for reference images.
func ReadPart(path string) (models.ImagePart, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.ImagePart{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	part, err := Part(data)
	if err != nil {
		return models.ImagePart{}, fmt.Errorf("%s: %w", path, err)
	}
	return part, nil
}

// Part wraps data after checking it sniffs as a supported image type.
func Part(data []byte) (models.ImagePart, error) {
	mime := DetectMIME(data)
	if _, ok := supportedTypes[mime]; !ok {
		return models.ImagePart{}, fmt.Errorf("%w: detected %s", ErrNotAnImage, mime)
	}
	return models.ImagePart{Data: data, MIMEType: mime}, nil
}

type Saver struct{}

func NewSaver() *Saver {
	return &Saver{}
}

func (s *Saver) Save(img models.ImagePart, path string) error {
	if img.IsEmpty() {
		return fmt.Errorf("no image data available")
	}

	if err := s.ensureDir(path); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(path, img.Data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

func (s *Saver) ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}

// ExportFilename names an exported result after its id.
func ExportFilename(id, mime string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		id = time.Now().Format("20060102-150405")
	}
	return fmt.Sprintf("banafit-export-%s.%s", id, ExtensionFor(mime))
}
