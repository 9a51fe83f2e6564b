package images

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// DefaultPadColor is the gray used to fill the area not covered by the scaled image.
var DefaultPadColor = color.NRGBA{R: 114, G: 114, B: 114, A: 255}

// LetterboxResult holds a square canvas of interleaved RGB bytes with the scaled image
// anchored at its top-left corner.
type LetterboxResult struct {
	// Pixels is row-major interleaved RGB, len == Edge*Edge*3.
	Pixels []byte
	// Width and Height are the dimensions of the source image.
	Width  int
	Height int
	// ScaledWidth and ScaledHeight are the dimensions of the image region on the canvas.
	ScaledWidth  int
	ScaledHeight int
	// Edge is the canvas side length.
	Edge int
}

// ScaledSize returns the dimensions of an image scaled so its longer side equals edge,
// preserving the aspect ratio.
func ScaledSize(width, height, edge int) (int, int) {
	scale := float64(edge) / float64(max(width, height))
	sw := int(math.Round(float64(width) * scale))
	sh := int(math.Round(float64(height) * scale))

	return min(max(sw, 1), edge), min(max(sh, 1), edge)
}

// Letterbox scales an image with a linear filter and pads it to an edge x edge square.
//
// Arguments:
//   - img: The source image.
//   - edge: The side length of the output canvas.
//   - pad: The fill color of the padded area. Alpha is ignored.
//
// Returns:
//   - *LetterboxResult: The canvas and its geometry.
//   - error: ErrInvalidImage for a nil or empty image, or a non-positive edge.
//
// @example
// lb, err := images.Letterbox(img, 640, images.DefaultPadColor)
func Letterbox(img image.Image, edge int, pad color.NRGBA) (*LetterboxResult, error) {
	return LetterboxWith(LinearResampler{}, img, edge, pad)
}

// LetterboxWith is Letterbox using the given resampler.
func LetterboxWith(r Resampler, img image.Image, edge int, pad color.NRGBA) (*LetterboxResult, error) {
	if img == nil {
		return nil, errors.Wrap(ErrInvalidImage, "image is nil")
	}

	if edge <= 0 {
		return nil, errors.Wrapf(ErrInvalidImage, "invalid canvas edge: %d", edge)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, errors.Wrapf(ErrInvalidImage, "invalid image dimensions: %dx%d", w, h)
	}

	sw, sh := ScaledSize(w, h, edge)
	if r == nil {
		r = LinearResampler{}
	}

	canvas := imaging.New(edge, edge, color.NRGBA{R: pad.R, G: pad.G, B: pad.B, A: 0xff})
	canvas = imaging.Paste(canvas, r.Resize(img, sw, sh), image.Pt(0, 0))

	return &LetterboxResult{
		Pixels:       dropAlpha(canvas),
		Width:        w,
		Height:       h,
		ScaledWidth:  sw,
		ScaledHeight: sh,
		Edge:         edge,
	}, nil
}

func dropAlpha(img *image.NRGBA) []byte {
	b := img.Bounds()
	out := make([]byte, 0, b.Dx()*b.Dy()*3)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		for i := 0; i < len(row); i += 4 {
			out = append(out, row[i], row[i+1], row[i+2])
		}
	}

	return out
}
