package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alejandroruanova/sfumato/internal/core/domain"
	apperrors "github.com/alejandroruanova/sfumato/internal/pkg/errors"
	"github.com/alejandroruanova/sfumato/internal/pkg/textutil"
)

// RefScheme prefixes image references served from local storage
const RefScheme = "local://"

const imagesDir = "images"

// LocalStorage keeps generated images on the local filesystem. Files are
// content-addressed, so saving the same bytes twice yields the same ref.
type LocalStorage struct {
	basePath string
	logger   *slog.Logger
}

// LocalStorageConfig configures local storage
type LocalStorageConfig struct {
	BasePath string // Base directory for images (e.g., "/tmp/sfumato")
}

// ImageMetadata describes a stored image
type ImageMetadata struct {
	Ref         domain.ImageRef
	Model       domain.ImageModel
	StoredPath  string
	Size        int64
	Hash        string
	ContentType string
	CreatedAt   time.Time
}

// NewLocalStorage creates a new local storage instance
func NewLocalStorage(cfg *LocalStorageConfig, logger *slog.Logger) (*LocalStorage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Join(cfg.BasePath, imagesDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &LocalStorage{
		basePath: cfg.BasePath,
		logger:   logger,
	}, nil
}

// SaveImage stores image bytes for a model. The file name is derived from
// the prompt and the content hash; the extension comes from the model's
// capabilities.
func (s *LocalStorage) SaveImage(ctx context.Context, model domain.ImageModel, prompt string, data []byte) (*ImageMetadata, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("refusing to store empty image")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ext := "png"
	if caps, err := domain.CapabilitiesFor(model); err == nil {
		ext = caps.FileExtension
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	slug := textutil.Slugify(textutil.Truncate(prompt, 48))
	if slug == "" {
		slug = "image"
	}
	name := fmt.Sprintf("%s-%s.%s", slug, hash[:12], ext)

	dir := filepath.Join(s.basePath, imagesDir, string(model))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}
	destPath := filepath.Join(dir, name)

	if _, err := os.Stat(destPath); errors.Is(err, fs.ErrNotExist) {
		// Write to a temp file first so readers never see a partial image
		tmp, err := os.CreateTemp(dir, ".upload-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create temp file: %w", err)
		}
		if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return nil, fmt.Errorf("failed to write image: %w", err)
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmp.Name())
			return nil, fmt.Errorf("failed to close image: %w", err)
		}
		if err := os.Rename(tmp.Name(), destPath); err != nil {
			os.Remove(tmp.Name())
			return nil, fmt.Errorf("failed to move image into place: %w", err)
		}
	}

	meta := &ImageMetadata{
		Ref:         domain.ImageRef(RefScheme + string(model) + "/" + name),
		Model:       model,
		StoredPath:  destPath,
		Size:        int64(len(data)),
		Hash:        hash,
		ContentType: getContentType(name),
		CreatedAt:   time.Now(),
	}

	s.logger.Info("image stored",
		slog.String("image_ref", string(meta.Ref)),
		slog.Int64("size", meta.Size),
		slog.String("hash", hash))

	return meta, nil
}

// SaveBase64 decodes a base64 payload and stores it
func (s *LocalStorage) SaveBase64(ctx context.Context, model domain.ImageModel, prompt string, encoded string) (*ImageMetadata, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image payload: %w", err)
	}
	return s.SaveImage(ctx, model, prompt, data)
}

// Open returns a reader for a local image reference
func (s *LocalStorage) Open(ctx context.Context, ref domain.ImageRef) (io.ReadCloser, *ImageMetadata, error) {
	path, model, err := s.resolve(ref)
	if err != nil {
		return nil, nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, apperrors.NotFound("image").WithDetails("image_ref", string(ref))
		}
		return nil, nil, fmt.Errorf("failed to open image: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("failed to stat image: %w", err)
	}

	return file, &ImageMetadata{
		Ref:         ref,
		Model:       model,
		StoredPath:  path,
		Size:        info.Size(),
		ContentType: getContentType(path),
		CreatedAt:   info.ModTime(),
	}, nil
}

// DataURL returns a URL a vision model can fetch. Remote and data URLs pass
// through; local images are inlined as base64 data URLs.
func (s *LocalStorage) DataURL(ctx context.Context, ref domain.ImageRef) (string, error) {
	r := string(ref)
	if strings.HasPrefix(r, "http://") || strings.HasPrefix(r, "https://") || strings.HasPrefix(r, "data:") {
		return r, nil
	}

	rc, meta, err := s.Open(ctx, ref)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	return "data:" + meta.ContentType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// resolve maps local://<model>/<name> onto the filesystem, rejecting traversal
func (s *LocalStorage) resolve(ref domain.ImageRef) (string, domain.ImageModel, error) {
	rest, ok := strings.CutPrefix(string(ref), RefScheme)
	if !ok {
		return "", "", apperrors.InvalidInput(fmt.Sprintf("not a local image reference: %q", ref))
	}
	model, name, ok := strings.Cut(rest, "/")
	if !ok || model == "" || name == "" || name != filepath.Base(name) || model != filepath.Base(model) ||
		strings.HasPrefix(name, ".") || strings.HasPrefix(model, ".") {
		return "", "", apperrors.InvalidInput(fmt.Sprintf("malformed image reference: %q", ref))
	}
	return filepath.Join(s.basePath, imagesDir, model, name), domain.ImageModel(model), nil
}

// CleanupOldFiles removes images older than the specified duration
func (s *LocalStorage) CleanupOldFiles(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoffTime := time.Now().Add(-olderThan)
	root := filepath.Join(s.basePath, imagesDir)
	removed := 0

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			s.logger.Warn("failed to get file info",
				slog.String("path", path),
				slog.Any("error", err))
			return nil
		}

		if info.ModTime().Before(cutoffTime) {
			if err := os.Remove(path); err != nil {
				s.logger.Warn("failed to remove image",
					slog.String("path", path),
					slog.Any("error", err))
				return nil
			}
			removed++
			s.logger.Debug("removed old image",
				slog.String("path", path),
				slog.Time("mod_time", info.ModTime()))
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("failed to cleanup images: %w", err)
	}

	s.logger.Info("cleanup completed",
		slog.Duration("older_than", olderThan),
		slog.Int("removed", removed))

	return removed, nil
}

// getContentType returns the content type based on file extension
func getContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
