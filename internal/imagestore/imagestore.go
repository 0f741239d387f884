// Package imagestore keeps auction pictures on local disk and hands back the
// public URL they are served from.
package imagestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"auction-house/internal/biddingerrors"
	model "auction-house/internal/models"
	"auction-house/utils"
)

const (
	// MaxImageSize is the largest accepted upload in bytes
	MaxImageSize = 2 << 20
	// MaxImages is how many pictures one auction may carry
	MaxImages = 5
)

var allowedTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

//go:generate mockgen -destination=mock_imagestore.go -package=imagestore auction-house/internal/imagestore Store

// Store persists image bytes
type Store interface {
	Save(ctx context.Context, filename, contentType string, r io.Reader) (model.Image, error)
	Delete(ctx context.Context, key string) error
}

// Validate checks an upload's name, declared type and size
func Validate(filename, contentType string, size int64) error {
	ext := strings.ToLower(filepath.Ext(filename))
	want, ok := allowedTypes[ext]
	if !ok {
		return fmt.Errorf("imagestore: %w - only jpg, jpeg and png images are accepted", biddingerrors.ErrValidation)
	}
	if ct := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0])); ct != "" && ct != want && ct != "image/jpg" {
		return fmt.Errorf("imagestore: %w - content type %q does not match %s", biddingerrors.ErrValidation, contentType, ext)
	}
	if size > MaxImageSize {
		return fmt.Errorf("imagestore: %w - image exceeds %d bytes", biddingerrors.ErrValidation, MaxImageSize)
	}
	return nil
}

// Disk stores images as files under a directory
type Disk struct {
	dir     string
	baseURL string
}

// NewDisk creates the upload directory if needed. Images are served at
// baseURL + "/" + key.
func NewDisk(dir, baseURL string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("imagestore: create %s: %w", dir, err)
	}
	return &Disk{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Save writes r under a fresh key. At most MaxImageSize bytes are accepted;
// anything larger is rejected and nothing is kept.
func (d *Disk) Save(ctx context.Context, filename, contentType string, r io.Reader) (model.Image, error) {
	if err := Validate(filename, contentType, 0); err != nil {
		return model.Image{}, err
	}
	if err := ctx.Err(); err != nil {
		return model.Image{}, err
	}

	key := utils.GenerateID() + strings.ToLower(filepath.Ext(filename))
	path := filepath.Join(d.dir, key)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return model.Image{}, fmt.Errorf("imagestore: create %s: %w", key, err)
	}

	n, err := io.Copy(f, io.LimitReader(r, MaxImageSize+1))
	closeErr := f.Close()
	switch {
	case err != nil:
		_ = os.Remove(path)
		return model.Image{}, fmt.Errorf("imagestore: write %s: %w", key, err)
	case closeErr != nil:
		_ = os.Remove(path)
		return model.Image{}, fmt.Errorf("imagestore: close %s: %w", key, closeErr)
	case n > MaxImageSize:
		_ = os.Remove(path)
		return model.Image{}, fmt.Errorf("imagestore: %w - image exceeds %d bytes", biddingerrors.ErrValidation, MaxImageSize)
	}

	return model.Image{URL: d.baseURL + "/" + key, StorageKey: key}, nil
}

// Delete removes a stored image. Deleting a missing key is not an error.
func (d *Disk) Delete(_ context.Context, key string) error {
	if key == "" || key != filepath.Base(key) {
		return fmt.Errorf("imagestore: %w - bad key %q", biddingerrors.ErrValidation, key)
	}
	if err := os.Remove(filepath.Join(d.dir, key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("imagestore: delete %s: %w", key, err)
	}
	return nil
}

// Dir is where files are written
func (d *Disk) Dir() string {
	return d.dir
}
