package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, data string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
}

// TestLoadDirectoryImages filters by extension and orders frames numerically.
func TestLoadDirectoryImages(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "frame-10.jpg"), "ten")
	writeFile(t, filepath.Join(dir, "frame-2.png"), "two")
	writeFile(t, filepath.Join(dir, "b.WEBP"), "b")
	writeFile(t, filepath.Join(dir, "a.bmp"), "a")
	writeFile(t, filepath.Join(dir, "notes.txt"), "skip")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.jpg"), 0o755))

	images, err := LoadDirectoryImageFiles(dir)
	require.NoError(t, err)
	require.Len(t, images, 4)

	var names []string
	for _, img := range images {
		names = append(names, filepath.Base(img.Path))
	}
	assert.Equal(t, []string{"frame-2.png", "frame-10.jpg", "a.bmp", "b.WEBP"}, names)
	assert.Equal(t, 2, images[0].Frame)
	assert.Equal(t, -1, images[2].Frame)
	assert.Equal(t, []byte("two"), images[0].Data)
}

// TestLoadDirectoryImages_Missing returns the read error.
func TestLoadDirectoryImages_Missing(t *testing.T) {
	_, err := LoadDirectoryImageFiles(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

// TestIsImageFile checks extension matching.
func TestIsImageFile(t *testing.T) {
	assert.True(t, IsImageFile("x/y/photo.JPG"))
	assert.True(t, IsImageFile("scan.tiff"))
	assert.False(t, IsImageFile("model.onnx"))
	assert.False(t, IsImageFile("README"))
}
