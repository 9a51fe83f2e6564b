// Package inference - Inference engine capability shared by model pipelines.
package inference

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

var (
	// ErrModelLoad is returned when a model file is missing or cannot be loaded.
	ErrModelLoad = errors.New("model load failed")
	// ErrInference is returned when a session run fails or produces malformed output.
	ErrInference = errors.New("inference failed")
)

// Runtime loads models into runnable sessions.
type Runtime interface {
	// Load opens the model at modelPath.
	//
	// Arguments:
	//   - ctx: The context for the load.
	//   - modelPath: The path to the model file.
	//
	// Returns:
	//   - Session: The loaded session.
	//   - error: ErrModelLoad if the file is missing or corrupt.
	Load(ctx context.Context, modelPath string) (Session, error)
}

// Session executes a loaded model. Implementations must be safe for concurrent Run calls.
type Session interface {
	// Run feeds named inputs and returns the named outputs.
	Run(ctx context.Context, inputs map[string]Tensor) (map[string]Tensor, error)
	// Info reports the declared inputs and outputs. It may be empty when the runtime
	// cannot introspect the model.
	Info() SessionInfo
	// Close releases the session.
	Close() error
}

// SessionMetrics is the inference timing of one session.
type SessionMetrics struct {
	Model      string        `json:"model"`
	Inferences int64         `json:"inferences"`
	Total      time.Duration `json:"total"`
}

// Average returns the mean time per inference, or zero before the first run.
func (m SessionMetrics) Average() time.Duration {
	if m.Inferences == 0 {
		return 0
	}

	return m.Total / time.Duration(m.Inferences)
}

// Throughput returns inferences per second of run time.
func (m SessionMetrics) Throughput() float64 {
	if m.Total <= 0 {
		return 0
	}

	return float64(m.Inferences) / m.Total.Seconds()
}

// MetricsReporter is implemented by sessions that time their runs.
type MetricsReporter interface {
	Metrics() SessionMetrics
}

// MetricsOf returns the session's timing when it reports any.
func MetricsOf(s Session) (SessionMetrics, bool) {
	r, ok := s.(MetricsReporter)
	if !ok {
		return SessionMetrics{}, false
	}

	return r.Metrics(), true
}

// TensorInfo describes a declared model input or output. Dynamic dimensions are negative.
type TensorInfo struct {
	Name       string  `json:"name"       yaml:"name"`
	Dimensions []int64 `json:"dimensions" yaml:"dimensions"`
}

// Accepts reports whether a concrete shape fits the declared dimensions.
func (i TensorInfo) Accepts(shape tensor.Shape) bool {
	if len(i.Dimensions) != len(shape) {
		return false
	}

	for n, d := range i.Dimensions {
		if d >= 0 && d != int64(shape[n]) {
			return false
		}
	}

	return true
}

// SessionInfo lists the declared inputs and outputs of a session.
type SessionInfo struct {
	Inputs  []TensorInfo `json:"inputs"  yaml:"inputs"`
	Outputs []TensorInfo `json:"outputs" yaml:"outputs"`
}

// Empty reports whether the runtime provided no metadata.
func (s SessionInfo) Empty() bool {
	return len(s.Inputs) == 0 && len(s.Outputs) == 0
}

// Input returns the declared input with the given name.
func (s SessionInfo) Input(name string) (TensorInfo, bool) {
	return find(s.Inputs, name)
}

// Output returns the declared output with the given name.
func (s SessionInfo) Output(name string) (TensorInfo, bool) {
	return find(s.Outputs, name)
}

func find(infos []TensorInfo, name string) (TensorInfo, bool) {
	for _, info := range infos {
		if info.Name == name {
			return info, true
		}
	}

	return TensorInfo{}, false
}
