// Package images - Image decoding, letterboxing, and annotation utilities.
package images

import "github.com/pkg/errors"

// ErrInvalidImage is returned when image bytes cannot be decoded or an image has
// non-positive dimensions.
var ErrInvalidImage = errors.New("invalid image")

// ImageFormat represents supported image formats
type ImageFormat string

// ImageFormat constants
const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
	// FormatGIF is the GIF image format.
	FormatGIF ImageFormat = "gif"
	// FormatBMP is the BMP image format.
	FormatBMP ImageFormat = "bmp"
	// FormatTIFF is the TIFF image format.
	FormatTIFF ImageFormat = "tiff"
)

// Image represents an encoded image with its format and dimensions.
type Image struct {
	// The format of the image.
	Format ImageFormat `json:"format" yaml:"format"`
	// The data of the image.
	Data []byte `json:"data" yaml:"data"`
	// The width of the image.
	Width int `json:"width" yaml:"width"`
	// The height of the image.
	Height int `json:"height" yaml:"height"`
}
