package yolov8

import (
	"math"

	"github.com/nvr-ai/go-yolo/images"
	"github.com/nvr-ai/go-yolo/inference"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// unitScale maps a byte to its [0,1] float32 value, rounded once from float64.
var unitScale = func() (t [256]float32) {
	for i := range t {
		t[i] = float32(float64(i) / 255.0)
	}
	return t
}()

// Pack converts a letterboxed interleaved RGB canvas into a planar BGR tensor of shape
// [1, 3, edge, edge] with values in [0, 1].
//
// Arguments:
//   - pixels: Row-major interleaved RGB bytes, len == edge*edge*3.
//   - edge: The canvas side length.
//
// Returns:
//   - inference.Tensor: The "images" input tensor.
//   - error: images.ErrInvalidImage if the buffer length does not match edge.
func Pack(pixels []byte, edge int) (inference.Tensor, error) {
	if edge <= 0 {
		return inference.Tensor{}, errors.Wrapf(images.ErrInvalidImage, "invalid canvas edge: %d", edge)
	}

	plane := edge * edge
	if len(pixels) != plane*3 {
		return inference.Tensor{}, errors.Wrapf(
			images.ErrInvalidImage,
			"pixel buffer holds %d bytes, want %d for a %dx%d canvas",
			len(pixels), plane*3, edge, edge,
		)
	}

	data := make([]float32, 3*plane)
	b, g, r := data[:plane], data[plane:2*plane], data[2*plane:]
	for pos, i := 0, 0; pos < plane; pos, i = pos+1, i+3 {
		r[pos] = unitScale[pixels[i]]
		g[pos] = unitScale[pixels[i+1]]
		b[pos] = unitScale[pixels[i+2]]
	}

	return inference.Tensor{
		Name:  InputName,
		DType: inference.DTypeFloat32,
		Shape: tensor.Shape{1, 3, edge, edge},
		Data:  data,
	}, nil
}

// Unpack is the inverse of Pack: it returns the interleaved RGB bytes of a packed tensor.
func Unpack(t inference.Tensor) ([]byte, error) {
	s := t.Shape
	if len(s) != 4 || s[0] != 1 || s[1] != 3 || s[2] != s[3] || s[2] <= 0 {
		return nil, errors.Wrapf(inference.ErrInference, "tensor %q has shape %v, want (1, 3, S, S)", t.Name, s)
	}

	plane := s[2] * s[3]
	if len(t.Data) != 3*plane {
		return nil, errors.Wrapf(inference.ErrInference, "tensor %q holds %d values, want %d", t.Name, len(t.Data), 3*plane)
	}

	b, g, r := t.Data[:plane], t.Data[plane:2*plane], t.Data[2*plane:]
	out := make([]byte, 3*plane)
	for pos, i := 0, 0; pos < plane; pos, i = pos+1, i+3 {
		out[i] = toByte(r[pos])
		out[i+1] = toByte(g[pos])
		out[i+2] = toByte(b[pos])
	}

	return out, nil
}

func toByte(f float32) byte {
	v := math.Round(float64(f) * 255)
	switch {
	case v <= 0 || math.IsNaN(v):
		return 0
	case v >= 255:
		return 255
	default:
		return byte(v)
	}
}

// ConfigTensor builds the NMS "config" input: [topK, iouThreshold, confidenceThreshold].
func ConfigTensor(topK int, iou, conf float32) inference.Tensor {
	return inference.Tensor{
		Name:  NMSConfigInput,
		DType: inference.DTypeFloat32,
		Shape: tensor.Shape{3},
		Data:  []float32{float32(topK), iou, conf},
	}
}
