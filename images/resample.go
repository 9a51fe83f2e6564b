package images

import (
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// Resampler scales an image to exact target dimensions.
type Resampler interface {
	Resize(img image.Image, width, height int) image.Image
}

// LinearResampler resizes with a triangle (bilinear) filter.
type LinearResampler struct{}

// Resize implements Resampler.
func (LinearResampler) Resize(img image.Image, width, height int) image.Image {
	return imaging.Resize(img, width, height, imaging.Linear)
}

// NFNTResampler resizes with one of the nfnt/resize interpolation functions.
type NFNTResampler struct {
	Interpolation resize.InterpolationFunction
}

// Resize implements Resampler.
func (r NFNTResampler) Resize(img image.Image, width, height int) image.Image {
	return resize.Resize(uint(width), uint(height), img, r.Interpolation)
}

// Resampler names accepted by ResamplerByName.
const (
	ResamplerLinear       = "linear"
	ResamplerNFNTBilinear = "nfnt-bilinear"
	ResamplerNFNTLanczos3 = "nfnt-lanczos3"
)

// ResamplerByName returns the resampler registered under name. An empty name selects
// the linear resampler.
//
// Arguments:
//   - name: One of "linear", "nfnt-bilinear", or "nfnt-lanczos3".
//
// Returns:
//   - Resampler: The matching resampler.
//   - error: An error if the name is unknown.
func ResamplerByName(name string) (Resampler, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ResamplerLinear:
		return LinearResampler{}, nil
	case ResamplerNFNTBilinear:
		return NFNTResampler{Interpolation: resize.Bilinear}, nil
	case ResamplerNFNTLanczos3:
		return NFNTResampler{Interpolation: resize.Lanczos3}, nil
	default:
		return nil, errors.Errorf("unknown resampler %q", name)
	}
}
