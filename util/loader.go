// Package util - Filesystem helpers for locating models and images.
package util

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ImageFile represents an image file.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Data is the raw bytes of the image file.
	Data []byte
	// Frame is the frame number parsed from a "frame-N" file name, or -1.
	Frame int
}

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".bmp": true,
	".gif": true, ".tif": true, ".tiff": true, ".webp": true,
}

// IsImageFile reports whether a path has a supported image extension.
func IsImageFile(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// LoadDirectoryImageFiles reads all image files from a directory.
//
// Files named "frame-N.<ext>" sort by N ahead of the rest, which sort by name.
//
// Arguments:
// - dir: Directory path containing image files.
//
// Returns:
// - []ImageFile: Slice of ImageFile, each containing the raw bytes of an image file.
// - error: Error if loading fails.
func LoadDirectoryImageFiles(dir string) ([]ImageFile, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var images []ImageFile
	for _, file := range files {
		if file.IsDir() || !IsImageFile(file.Name()) {
			continue
		}

		imgPath := filepath.Join(dir, file.Name())
		data, err := os.ReadFile(imgPath)
		if err != nil {
			return nil, err
		}

		images = append(images, ImageFile{
			Path:  imgPath,
			Data:  data,
			Frame: frameNumber(file.Name()),
		})
	}

	sort.SliceStable(images, func(i, j int) bool {
		a, b := images[i], images[j]
		switch {
		case a.Frame >= 0 && b.Frame >= 0:
			return a.Frame < b.Frame
		case a.Frame >= 0 || b.Frame >= 0:
			return a.Frame >= 0
		default:
			return a.Path < b.Path
		}
	})

	return images, nil
}

func frameNumber(name string) int {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if !strings.HasPrefix(base, "frame-") {
		return -1
	}

	n, err := strconv.Atoi(strings.TrimPrefix(base, "frame-"))
	if err != nil || n < 0 {
		return -1
	}

	return n
}
