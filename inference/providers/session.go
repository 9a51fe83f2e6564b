package providers

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nvr-ai/go-yolo/inference"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"gorgonia.org/tensor"
)

// Session wraps a dynamic ONNX Runtime session with inference timing.
type Session struct {
	session   *ort.DynamicAdvancedSession
	info      inference.SessionInfo
	modelPath string

	mu     sync.RWMutex
	closed bool

	inferenceCount atomic.Int64
	totalNanos     atomic.Int64
}

var (
	_ inference.Session         = (*Session)(nil)
	_ inference.MetricsReporter = (*Session)(nil)
)

// Info returns the declared inputs and outputs of the model.
func (s *Session) Info() inference.SessionInfo {
	return s.info
}

// Run executes the model. Outputs are allocated by ONNX Runtime and copied out.
//
// Arguments:
//   - ctx: Checked before the native call; a running call is not interrupted.
//   - inputs: Tensors keyed by declared input name.
//
// Returns:
//   - map[string]inference.Tensor: Outputs keyed by declared output name.
//   - error: inference.ErrInference on missing inputs or a failed run.
func (s *Session) Run(ctx context.Context, inputs map[string]inference.Tensor) (map[string]inference.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errors.Wrapf(inference.ErrInference, "session for %s is closed", s.modelPath)
	}

	in := make([]ort.Value, len(s.info.Inputs))
	defer destroyAll(in)

	for i, decl := range s.info.Inputs {
		t, ok := inputs[decl.Name]
		if !ok {
			return nil, errors.Wrapf(inference.ErrInference, "missing input %q for %s", decl.Name, s.modelPath)
		}
		if err := t.Validate(); err != nil {
			return nil, err
		}

		value, err := ort.NewTensor(toORTShape(t.Shape), t.Data)
		if err != nil {
			return nil, errors.Wrapf(inference.ErrInference, "input %q: %v", decl.Name, err)
		}
		in[i] = value
	}

	out := make([]ort.Value, len(s.info.Outputs))
	defer destroyAll(out)

	start := time.Now()
	err := s.session.Run(in, out)
	s.record(time.Since(start))
	if err != nil {
		return nil, errors.Wrapf(inference.ErrInference, "run %s: %v", s.modelPath, err)
	}

	result := make(map[string]inference.Tensor, len(out))
	for i, value := range out {
		name := s.info.Outputs[i].Name

		t, ok := value.(*ort.Tensor[float32])
		if !ok {
			return nil, errors.Wrapf(inference.ErrInference, "output %q has unsupported type %T", name, value)
		}

		result[name] = inference.Tensor{
			Name:  name,
			DType: inference.DTypeFloat32,
			Shape: fromORTShape(t.GetShape()),
			Data:  append([]float32(nil), t.GetData()...),
		}
	}

	return result, nil
}

func (s *Session) record(d time.Duration) {
	s.inferenceCount.Add(1)
	s.totalNanos.Add(d.Nanoseconds())
}

// Metrics returns the number of runs and the time spent in the native call.
func (s *Session) Metrics() inference.SessionMetrics {
	return inference.SessionMetrics{
		Model:      s.modelPath,
		Inferences: s.inferenceCount.Load(),
		Total:      time.Duration(s.totalNanos.Load()),
	}
}

// Close releases the native session. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.session.Destroy(); err != nil {
		return errors.Wrapf(err, "error destroying ORT session for %s", s.modelPath)
	}

	return nil
}

func destroyAll(values []ort.Value) {
	for _, v := range values {
		if v != nil {
			v.Destroy()
		}
	}
}

func toORTShape(shape tensor.Shape) ort.Shape {
	dims := make(ort.Shape, len(shape))
	for i, d := range shape {
		dims[i] = int64(d)
	}

	return dims
}

func fromORTShape(shape ort.Shape) tensor.Shape {
	dims := make(tensor.Shape, len(shape))
	for i, d := range shape {
		dims[i] = int(d)
	}

	return dims
}
