// Package pictures stores uploaded images as bounded thumbnails.
package pictures

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	pkgerrors "github.com/pkg/errors"

	"github.com/thereayou/sellboard/internal/models"
)

const (
	DefaultMaxSide = 125
	// DefaultMaxPixels caps width*height before anything is decoded.
	DefaultMaxPixels = 4096 * 4096
)

var (
	ErrUnsupportedImageFormat = errors.New("unsupported image format")
	// ErrImageTooLarge also matches ErrUnsupportedImageFormat.
	ErrImageTooLarge = fmt.Errorf("%w: image dimensions too large", ErrUnsupportedImageFormat)
)

// Saver writes thumbnails into Dir under random names. Replaced files are
// never removed.
type Saver struct {
	Dir       string
	MaxSide   int
	MaxPixels int
}

func NewSaver(dir string) *Saver {
	return &Saver{Dir: dir, MaxSide: DefaultMaxSide, MaxPixels: DefaultMaxPixels}
}

// EnsureDir creates the directory and fails when the placeholder image is missing.
func (s *Saver) EnsureDir() error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return pkgerrors.Wrap(err, "create picture dir")
	}
	if _, err := os.Stat(s.Path(models.DefaultImage)); err != nil {
		return pkgerrors.Wrap(err, "placeholder image")
	}
	return nil
}

func (s *Saver) Path(name string) string {
	return filepath.Join(s.Dir, filepath.Base(name))
}

// Save decodes the upload, shrinks it to fit MaxSide x MaxSide and returns
// the generated file name. The name keeps the uploaded extension as is.
func (s *Saver) Save(ctx context.Context, fh *multipart.FileHeader) (string, error) {
	ext := filepath.Ext(fh.Filename)
	if _, err := imaging.FormatFromExtension(ext); err != nil {
		return "", ErrUnsupportedImageFormat
	}

	f, err := fh.Open()
	if err != nil {
		return "", pkgerrors.Wrap(err, "open upload")
	}
	defer f.Close()

	// Размеры читаются из заголовка, до декодирования пикселей
	if err := s.checkDimensions(f); err != nil {
		return "", err
	}

	img, err := imaging.Decode(f, imaging.AutoOrientation(true))
	if err != nil {
		return "", ErrUnsupportedImageFormat
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	side := s.MaxSide
	if side <= 0 {
		side = DefaultMaxSide
	}
	// Fit никогда не увеличивает изображение
	thumb := imaging.Fit(img, side, side, imaging.Lanczos)

	name, err := randomName(ext)
	if err != nil {
		return "", err
	}
	if err := imaging.Save(thumb, s.Path(name)); err != nil {
		return "", pkgerrors.Wrap(err, "save thumbnail")
	}
	return name, nil
}

func (s *Saver) checkDimensions(f multipart.File) error {
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return ErrUnsupportedImageFormat
	}
	limit := s.MaxPixels
	if limit <= 0 {
		limit = DefaultMaxPixels
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return ErrUnsupportedImageFormat
	}
	if cfg.Width > limit/cfg.Height {
		return ErrImageTooLarge
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return pkgerrors.Wrap(err, "rewind upload")
	}
	return nil
}

func randomName(ext string) (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", pkgerrors.Wrap(err, "random name")
	}
	return hex.EncodeToString(b) + ext, nil
}
