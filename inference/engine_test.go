package inference

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

// TestTensorInfo_Accepts checks fixed and dynamic dimensions.
func TestTensorInfo_Accepts(t *testing.T) {
	testCases := []struct {
		name  string
		dims  []int64
		shape tensor.Shape
		want  bool
	}{
		{name: "exact", dims: []int64{1, 3, 640, 640}, shape: tensor.Shape{1, 3, 640, 640}, want: true},
		{name: "dynamic batch and size", dims: []int64{-1, 3, -1, -1}, shape: tensor.Shape{1, 3, 640, 640}, want: true},
		{name: "wrong size", dims: []int64{1, 3, 320, 320}, shape: tensor.Shape{1, 3, 640, 640}, want: false},
		{name: "wrong rank", dims: []int64{3, 640, 640}, shape: tensor.Shape{1, 3, 640, 640}, want: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			info := TensorInfo{Name: "images", Dimensions: tc.dims}
			assert.Equal(t, tc.want, info.Accepts(tc.shape))
		})
	}
}

// TestSessionInfo_Lookup checks input and output lookups.
func TestSessionInfo_Lookup(t *testing.T) {
	info := SessionInfo{
		Inputs:  []TensorInfo{{Name: "images", Dimensions: []int64{1, 3, 640, 640}}},
		Outputs: []TensorInfo{{Name: "output0", Dimensions: []int64{1, 84, 8400}}},
	}

	in, ok := info.Input("images")
	require.True(t, ok)
	assert.Equal(t, []int64{1, 3, 640, 640}, in.Dimensions)

	_, ok = info.Output("selected")
	assert.False(t, ok)
	assert.False(t, info.Empty())
	assert.True(t, SessionInfo{}.Empty())
}

// TestNewTensor validates shape and data agreement.
func TestNewTensor(t *testing.T) {
	tt, err := NewTensor("config", tensor.Shape{3}, []float32{100, 0.45, 0.25})
	require.NoError(t, err)
	assert.Equal(t, DTypeFloat32, tt.DType)
	assert.Equal(t, 3, tt.Shape.TotalSize())

	_, err = NewTensor("config", tensor.Shape{4}, []float32{1, 2, 3})
	assert.True(t, errors.Is(err, ErrInference))

	_, err = NewTensor("empty", nil, nil)
	assert.True(t, errors.Is(err, ErrInference))

	z := Zeros("images", tensor.Shape{1, 3, 4, 4})
	assert.Len(t, z.Data, 48)
	assert.NoError(t, z.Validate())
}

type silentSession struct{}

func (silentSession) Run(context.Context, map[string]Tensor) (map[string]Tensor, error) {
	return nil, nil
}

func (silentSession) Info() SessionInfo { return SessionInfo{} }

func (silentSession) Close() error { return nil }

// TestSessionMetrics derives averages and skips sessions without timing.
func TestSessionMetrics(t *testing.T) {
	assert.Zero(t, SessionMetrics{}.Average())
	assert.Zero(t, SessionMetrics{}.Throughput())

	m := SessionMetrics{Model: "det.onnx", Inferences: 4, Total: 200 * time.Millisecond}
	assert.Equal(t, 50*time.Millisecond, m.Average())
	assert.InDelta(t, 20.0, m.Throughput(), 1e-9)

	_, ok := MetricsOf(silentSession{})
	assert.False(t, ok)
}
