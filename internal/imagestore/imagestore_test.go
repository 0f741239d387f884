package imagestore

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"auction-house/internal/biddingerrors"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		filename    string
		contentType string
		size        int64
		wantErr     bool
	}{
		{name: "jpg", filename: "camera.jpg", contentType: "image/jpeg", size: 1024},
		{name: "upper case jpeg", filename: "CAMERA.JPEG", contentType: "image/jpeg", size: 1024},
		{name: "png without type", filename: "lens.png", size: 1024},
		{name: "exactly the limit", filename: "lens.png", contentType: "image/png", size: MaxImageSize},
		{name: "too large", filename: "lens.png", contentType: "image/png", size: MaxImageSize + 1, wantErr: true},
		{name: "gif", filename: "anim.gif", contentType: "image/gif", size: 10, wantErr: true},
		{name: "no extension", filename: "photo", contentType: "image/png", size: 10, wantErr: true},
		{name: "type mismatch", filename: "photo.png", contentType: "text/html", size: 10, wantErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := Validate(tc.filename, tc.contentType, tc.size)
			if tc.wantErr {
				require.ErrorIs(t, err, biddingerrors.ErrValidation)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestDisk_SaveAndDelete(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "uploads")
	store, err := NewDisk(dir, "http://localhost:8080/uploads/")
	require.NoError(t, err)

	img, err := store.Save(context.Background(), "Camera.PNG", "image/png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(img.StorageKey, ".png"))
	require.Equal(t, "http://localhost:8080/uploads/"+img.StorageKey, img.URL)

	data, err := os.ReadFile(filepath.Join(dir, img.StorageKey))
	require.NoError(t, err)
	require.Equal(t, "png-bytes", string(data))

	require.NoError(t, store.Delete(context.Background(), img.StorageKey))
	_, err = os.Stat(filepath.Join(dir, img.StorageKey))
	require.True(t, os.IsNotExist(err))

	require.NoError(t, store.Delete(context.Background(), img.StorageKey), "deleting twice is fine")
	require.ErrorIs(t, store.Delete(context.Background(), "../etc/passwd"), biddingerrors.ErrValidation)
}

func TestDisk_SaveRejectsOversizedStream(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewDisk(dir, "/uploads")
	require.NoError(t, err)

	_, err = store.Save(context.Background(), "big.jpg", "image/jpeg", bytes.NewReader(make([]byte, MaxImageSize+1)))
	require.ErrorIs(t, err, biddingerrors.ErrValidation)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, "rejected uploads leave nothing behind")
}

func TestDisk_SaveRejectsBadType(t *testing.T) {
	t.Parallel()

	store, err := NewDisk(t.TempDir(), "/uploads")
	require.NoError(t, err)

	_, err = store.Save(context.Background(), "script.svg", "image/svg+xml", strings.NewReader("<svg/>"))
	require.ErrorIs(t, err, biddingerrors.ErrValidation)
}
