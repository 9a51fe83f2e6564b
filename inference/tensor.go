package inference

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// DType names the element type of a Tensor.
type DType string

// DTypeFloat32 is the only element type produced by the pipelines.
const DTypeFloat32 DType = "float32"

// Tensor is a named, dense, row-major float32 array.
type Tensor struct {
	Name  string       `json:"name"`
	DType DType        `json:"dtype"`
	Shape tensor.Shape `json:"shape"`
	Data  []float32    `json:"-"`
}

// NewTensor builds a float32 tensor, checking that data fills the shape exactly.
//
// Arguments:
//   - name: The tensor name as declared by the model.
//   - shape: The tensor dimensions.
//   - data: The row-major values; not copied.
//
// Returns:
//   - Tensor: The tensor.
//   - error: ErrInference if len(data) does not match the shape.
func NewTensor(name string, shape tensor.Shape, data []float32) (Tensor, error) {
	t := Tensor{Name: name, DType: DTypeFloat32, Shape: shape.Clone(), Data: data}
	if err := t.Validate(); err != nil {
		return Tensor{}, err
	}

	return t, nil
}

// Zeros returns a zero-filled float32 tensor.
func Zeros(name string, shape tensor.Shape) Tensor {
	return Tensor{
		Name:  name,
		DType: DTypeFloat32,
		Shape: shape.Clone(),
		Data:  make([]float32, shape.TotalSize()),
	}
}

// Validate checks the tensor has a shape with non-negative dimensions and matching data.
func (t Tensor) Validate() error {
	if len(t.Shape) == 0 {
		return errors.Wrapf(ErrInference, "tensor %q has no shape", t.Name)
	}

	for _, d := range t.Shape {
		if d < 0 {
			return errors.Wrapf(ErrInference, "tensor %q has negative dimension in shape %v", t.Name, t.Shape)
		}
	}

	if want := t.Shape.TotalSize(); want != len(t.Data) {
		return errors.Wrapf(
			ErrInference,
			"tensor %q with shape %v holds %d values, got %d",
			t.Name, t.Shape, want, len(t.Data),
		)
	}

	return nil
}
