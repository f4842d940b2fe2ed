package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"payrecord/internal/core"
)

// ErrUploadTooLarge is returned when an upload exceeds the configured limit.
var ErrUploadTooLarge = errors.New("upload too large")

// IconURLPrefix is the public path icons are served under.
const IconURLPrefix = "/uploads/icons/"

var (
	unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9]`)
	storedIconName  = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,199}$`)
)

// UploadObserver counts icon uploads by outcome.
type UploadObserver interface {
	IncIconUpload(outcome string)
}

// IconService normalizes uploaded merchant icons to square PNGs on disk.
type IconService struct {
	dir      string
	size     int
	maxBytes int64
	observer UploadObserver
	now      func() time.Time
}

// NewIconService stores icons under uploadDir/icons. observer may be nil.
func NewIconService(uploadDir string, size int, maxBytes int64, observer UploadObserver) (*IconService, error) {
	dir := filepath.Join(uploadDir, "icons")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create icon directory: %w", err)
	}
	return &IconService{
		dir:      dir,
		size:     size,
		maxBytes: maxBytes,
		observer: observer,
		now:      time.Now,
	}, nil
}

// MaxBytes is the upload size limit.
func (s *IconService) MaxBytes() int64 {
	return s.maxBytes
}

// Store decodes an image, fills it to a square and writes it as PNG.
// It returns the public URL of the stored icon.
func (s *IconService) Store(ctx context.Context, originalName string, r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		s.observe("error")
		return "", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		s.observe("too_large")
		return "", ErrUploadTooLarge
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		s.observe("invalid")
		return "", fmt.Errorf("%w: unsupported image: %v", core.ErrInvalidInput, err)
	}
	icon := imaging.Fill(img, s.size, s.size, imaging.Center, imaging.Lanczos)

	name := s.fileName(originalName)
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		s.observe("error")
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := imaging.Encode(tmp, icon, imaging.PNG); err != nil {
		tmp.Close()
		s.observe("error")
		return "", fmt.Errorf("encode icon: %w", err)
	}
	if err := tmp.Close(); err != nil {
		s.observe("error")
		return "", fmt.Errorf("close icon: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		s.observe("error")
		return "", fmt.Errorf("store icon: %w", err)
	}

	slog.InfoContext(ctx, "Icon stored", "file", name, "bytes", len(data))
	s.observe("ok")
	return IconURLPrefix + name, nil
}

// Path resolves a stored icon name to its file, rejecting anything that
// could escape the icon directory.
func (s *IconService) Path(name string) (string, error) {
	if !storedIconName.MatchString(name) || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: invalid file name", core.ErrInvalidInput)
	}
	path := filepath.Join(s.dir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("icon %s: %w", name, core.ErrNotFound)
	}
	return path, nil
}

// fileName builds "<unix-ms>-<uuid8>-<name>.png".
func (s *IconService) fileName(original string) string {
	base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	base = unsafeNameChars.ReplaceAllString(base, "")
	if len(base) > 40 {
		base = base[:40]
	}
	if base == "" {
		base = "icon"
	}
	return fmt.Sprintf("%d-%s-%s.png", s.now().UnixMilli(), uuid.NewString()[:8], base)
}

func (s *IconService) observe(outcome string) {
	if s.observer != nil {
		s.observer.IncIconUpload(outcome)
	}
}
