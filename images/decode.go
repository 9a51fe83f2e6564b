package images

import (
	"bytes"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder
)

// Inspect reads the header of encoded image bytes without decoding the pixels.
//
// Arguments:
//   - data: The encoded image bytes.
//
// Returns:
//   - Image: The format and dimensions, with Data referencing the input.
//   - error: ErrInvalidImage if the bytes are empty, unrecognized, or describe an empty image.
func Inspect(data []byte) (Image, error) {
	if len(data) == 0 {
		return Image{}, errors.Wrap(ErrInvalidImage, "empty image data")
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Image{}, errors.Wrapf(ErrInvalidImage, "read header: %v", err)
	}

	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Image{}, errors.Wrapf(ErrInvalidImage, "invalid image dimensions: %dx%d", cfg.Width, cfg.Height)
	}

	return Image{Format: ImageFormat(format), Data: data, Width: cfg.Width, Height: cfg.Height}, nil
}

// Decode decodes JPEG, PNG, GIF, BMP, TIFF, or WebP bytes into an image.
//
// Arguments:
//   - data: The encoded image bytes.
//
// Returns:
//   - image.Image: The decoded image, with EXIF orientation left untouched.
//   - ImageFormat: The detected format.
//   - error: ErrInvalidImage if the bytes cannot be decoded.
func Decode(data []byte) (image.Image, ImageFormat, error) {
	info, err := Inspect(data)
	if err != nil {
		return nil, "", err
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", errors.Wrapf(ErrInvalidImage, "decode %s: %v", info.Format, err)
	}

	return img, info.Format, nil
}

// Save encodes an image to disk, choosing the format from the file extension.
func Save(img image.Image, path string) error {
	if err := imaging.Save(img, path); err != nil {
		return errors.Wrapf(err, "failed to save image to %s", path)
	}

	return nil
}
