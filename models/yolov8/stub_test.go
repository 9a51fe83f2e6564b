package yolov8

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/nvr-ai/go-yolo/inference"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

type runFunc func(inputs map[string]inference.Tensor) (map[string]inference.Tensor, error)

type stubSession struct {
	info  inference.SessionInfo
	run   runFunc
	model string

	mu     sync.Mutex
	calls  []map[string]inference.Tensor
	closed bool
}

func (s *stubSession) Run(ctx context.Context, inputs map[string]inference.Tensor) (map[string]inference.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.calls = append(s.calls, inputs)
	s.mu.Unlock()

	return s.run(inputs)
}

func (s *stubSession) Info() inference.SessionInfo { return s.info }

// Metrics reports one millisecond per recorded run.
func (s *stubSession) Metrics() inference.SessionMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return inference.SessionMetrics{
		Model:      s.model,
		Inferences: int64(len(s.calls)),
		Total:      time.Duration(len(s.calls)) * time.Millisecond,
	}
}

func (s *stubSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSession) Calls() []map[string]inference.Tensor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]inference.Tensor(nil), s.calls...)
}

func (s *stubSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type stubRuntime struct {
	sessions map[string]*stubSession
	errs     map[string]error
	gate     chan struct{}
	panicOn  string

	mu    sync.Mutex
	loads map[string]int
}

func (r *stubRuntime) Load(ctx context.Context, path string) (inference.Session, error) {
	r.mu.Lock()
	r.loads[path]++
	r.mu.Unlock()

	if r.gate != nil {
		<-r.gate
	}

	if path == r.panicOn {
		panic("native binding crashed")
	}

	if err := r.errs[path]; err != nil {
		return nil, err
	}

	s, ok := r.sessions[path]
	if !ok {
		return nil, errors.Wrapf(inference.ErrModelLoad, "no such model %s", path)
	}

	return s, nil
}

func (r *stubRuntime) Loads(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loads[path]
}

const (
	testDetector = "det.onnx"
	testNMS      = "nms-yolov8.onnx"
)

func detectorSession(edge, classes int) *stubSession {
	return &stubSession{
		info: inference.SessionInfo{
			Inputs:  []inference.TensorInfo{{Name: InputName, Dimensions: []int64{1, 3, int64(edge), int64(edge)}}},
			Outputs: []inference.TensorInfo{{Name: OutputName, Dimensions: []int64{1, int64(4 + classes), -1}}},
		},
		run: func(map[string]inference.Tensor) (map[string]inference.Tensor, error) {
			return map[string]inference.Tensor{
				OutputName: inference.Zeros(OutputName, tensor.Shape{1, 4 + classes, 1}),
			}, nil
		},
	}
}

func nmsSession(rows ...Row) *stubSession {
	width := 5
	if len(rows) > 0 {
		width = len(rows[0])
	}

	data := make([]float32, 0, len(rows)*width)
	for _, r := range rows {
		data = append(data, r...)
	}

	return &stubSession{
		info: inference.SessionInfo{
			Inputs: []inference.TensorInfo{
				{Name: NMSDetectionInput, Dimensions: []int64{1, -1, -1}},
				{Name: NMSConfigInput, Dimensions: []int64{3}},
			},
			Outputs: []inference.TensorInfo{{Name: NMSOutputName, Dimensions: []int64{1, -1, -1}}},
		},
		run: func(map[string]inference.Tensor) (map[string]inference.Tensor, error) {
			return map[string]inference.Tensor{
				NMSOutputName: {
					Name:  NMSOutputName,
					DType: inference.DTypeFloat32,
					Shape: tensor.Shape{1, len(rows), width},
					Data:  data,
				},
			}, nil
		},
	}
}

func newStubRuntime(detector, nms *stubSession) *stubRuntime {
	if detector != nil {
		detector.model = testDetector
	}
	if nms != nil {
		nms.model = testNMS
	}

	return &stubRuntime{
		sessions: map[string]*stubSession{testDetector: detector, testNMS: nms},
		errs:     map[string]error{},
		loads:    map[string]int{},
	}
}

func testConfig(edge int) Config {
	c := DefaultConfig()
	c.ModelPath = testDetector
	c.NMSModelPath = testNMS
	c.InputSize = edge
	return c
}

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func encodePNG(t *testing.T, w, h int, c color.NRGBA) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	return buf.Bytes()
}
