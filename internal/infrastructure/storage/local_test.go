package storage

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandroruanova/sfumato/internal/core/domain"
	apperrors "github.com/alejandroruanova/sfumato/internal/pkg/errors"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\nfake-image-body")

func setupTestStorage(t *testing.T) (*LocalStorage, string) {
	tempDir := t.TempDir()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors in tests
	}))

	storage, err := NewLocalStorage(&LocalStorageConfig{
		BasePath: tempDir,
	}, logger)
	require.NoError(t, err)

	return storage, tempDir
}

func TestLocalStorage_SaveImage(t *testing.T) {
	storage, tempDir := setupTestStorage(t)
	ctx := context.Background()

	meta, err := storage.SaveImage(ctx, domain.ImageModelOpenAI, "A red bicycle by the sea", pngBytes)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(string(meta.Ref), "local://openai/a-red-bicycle-by-the-sea-"))
	assert.True(t, strings.HasSuffix(string(meta.Ref), ".png"))
	assert.Equal(t, int64(len(pngBytes)), meta.Size)
	assert.Equal(t, "image/png", meta.ContentType)
	assert.Len(t, meta.Hash, 64)
	assert.True(t, strings.HasPrefix(meta.StoredPath, filepath.Join(tempDir, "images", "openai")))

	_, err = os.Stat(meta.StoredPath)
	assert.NoError(t, err)
}

func TestLocalStorage_SaveImageIsContentAddressed(t *testing.T) {
	storage, _ := setupTestStorage(t)
	ctx := context.Background()

	first, err := storage.SaveImage(ctx, domain.ImageModelGrok, "same", pngBytes)
	require.NoError(t, err)
	second, err := storage.SaveImage(ctx, domain.ImageModelGrok, "same", pngBytes)
	require.NoError(t, err)
	assert.Equal(t, first.Ref, second.Ref)
	assert.True(t, strings.HasSuffix(string(first.Ref), ".jpg"))

	other, err := storage.SaveImage(ctx, domain.ImageModelGrok, "same", []byte("different"))
	require.NoError(t, err)
	assert.NotEqual(t, first.Ref, other.Ref)

	_, err = storage.SaveImage(ctx, domain.ImageModelGrok, "empty", nil)
	assert.Error(t, err)
}

func TestLocalStorage_OpenAndDataURL(t *testing.T) {
	storage, _ := setupTestStorage(t)
	ctx := context.Background()

	meta, err := storage.SaveBase64(ctx, domain.ImageModelNanoBanana, "lighthouse", base64.StdEncoding.EncodeToString(pngBytes))
	require.NoError(t, err)

	rc, opened, err := storage.Open(ctx, meta.Ref)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)
	assert.Equal(t, domain.ImageModelNanoBanana, opened.Model)

	url, err := storage.DataURL(ctx, meta.Ref)
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,"+base64.StdEncoding.EncodeToString(pngBytes), url)

	remote, err := storage.DataURL(ctx, "https://cdn.example.com/a.png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.png", remote)
}

func TestLocalStorage_OpenRejectsBadRefs(t *testing.T) {
	storage, _ := setupTestStorage(t)
	ctx := context.Background()

	for _, ref := range []domain.ImageRef{
		"local://openai/../../etc/passwd",
		"local://../secret.png",
		"local://openai/",
		"s3://bucket/key.png",
	} {
		_, _, err := storage.Open(ctx, ref)
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeInvalidInput), string(ref))
	}

	_, _, err := storage.Open(ctx, "local://openai/missing.png")
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeNotFound))
}

func TestLocalStorage_CleanupOldFiles(t *testing.T) {
	storage, _ := setupTestStorage(t)
	ctx := context.Background()

	old, err := storage.SaveImage(ctx, domain.ImageModelOpenAI, "old", pngBytes)
	require.NoError(t, err)
	fresh, err := storage.SaveImage(ctx, domain.ImageModelOpenAI, "fresh", []byte("fresh-bytes"))
	require.NoError(t, err)

	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(old.StoredPath, past, past))

	removed, err := storage.CleanupOldFiles(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(old.StoredPath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh.StoredPath)
	assert.NoError(t, err)
}

func TestGetContentType(t *testing.T) {
	assert.Equal(t, "image/png", getContentType("a.PNG"))
	assert.Equal(t, "image/jpeg", getContentType("a.jpeg"))
	assert.Equal(t, "image/webp", getContentType("a.webp"))
	assert.Equal(t, "application/octet-stream", getContentType("a.bin"))
}
