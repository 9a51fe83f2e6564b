package yolov8

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nvr-ai/go-yolo/images"
	"github.com/nvr-ai/go-yolo/inference"
	"github.com/nvr-ai/go-yolo/models"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorgonia.org/tensor"
)

var (
	// ErrEngineLoad is returned by every Detect call once loading the models has failed.
	ErrEngineLoad = errors.New("detection engine failed to load")
	// ErrClosed is returned by Detect after Close.
	ErrClosed = errors.New("pipeline closed")
)

// State is the lifecycle state of a Pipeline.
type State int32

const (
	// StateUnloaded means no model has been loaded yet.
	StateUnloaded State = iota
	// StateLoading means a load is in flight.
	StateLoading
	// StateReady means both models are loaded and warmed up.
	StateReady
	// StateFailed means loading failed; the pipeline will not retry.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// kindError tags a cause with a sentinel so both match errors.Is.
type kindError struct {
	kind  error
	cause error
}

func (e *kindError) Error() string { return e.kind.Error() + ": " + e.cause.Error() }

func (e *kindError) Unwrap() error { return e.cause }

func (e *kindError) Is(target error) bool { return target == e.kind }

// Stats counts pipeline activity. Session timing is present once the models are loaded
// and the runtime reports it.
type Stats struct {
	State      State                     `json:"state"`
	Loads      int64                     `json:"loads"`
	Detections int64                     `json:"detections"`
	Detector   *inference.SessionMetrics `json:"detector,omitempty"`
	NMS        *inference.SessionMetrics `json:"nms,omitempty"`
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClassSource overrides the class list source.
func WithClassSource(source models.ClassSource) Option {
	return func(p *Pipeline) { p.classes = source }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(p *Pipeline) { p.log = log }
}

// WithResampler overrides the resampler named in the config.
func WithResampler(r images.Resampler) Option {
	return func(p *Pipeline) { p.resampler = r }
}

// Pipeline runs letterbox, pack, detector, NMS, and decode for single images. Models are
// loaded lazily by the first Detect call and shared by all later calls.
type Pipeline struct {
	cfg       Config
	runtime   inference.Runtime
	classes   models.ClassSource
	resampler images.Resampler
	log       logrus.FieldLogger

	registry *models.ClassRegistry

	mu       sync.Mutex
	state    State
	err      error
	loading  chan struct{}
	closed   bool
	detector inference.Session
	nms      inference.Session

	loads      atomic.Int64
	detections atomic.Int64
}

// New creates a pipeline and loads its class registry. Models are not loaded until the
// first Detect.
//
// Arguments:
//   - cfg: The pipeline configuration.
//   - runtime: The inference runtime used to load both models.
//   - opts: Optional overrides.
//
// Returns:
//   - *Pipeline: The pipeline. It is non-nil and in StateFailed when the registry fails.
//   - error: A config error (with a nil pipeline) or an error matching models.ErrRegistryLoad.
//
// @example
// p, err := yolov8.New(yolov8.DefaultConfig(), rt, yolov8.WithLogger(log))
func New(cfg Config, runtime inference.Runtime, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid pipeline config")
	}
	if runtime == nil {
		return nil, errors.New("inference runtime is required")
	}

	p := &Pipeline{cfg: cfg, runtime: runtime}
	for _, opt := range opts {
		opt(p)
	}

	if p.log == nil {
		p.log = logrus.StandardLogger()
	}
	p.log = p.log.WithField("model", cfg.ModelPath)

	if p.classes == nil {
		p.classes = models.FileSource(cfg.ClassesPath)
	}

	if p.resampler == nil {
		r, err := images.ResamplerByName(cfg.Resampler)
		if err != nil {
			return nil, errors.Wrap(err, "invalid pipeline config")
		}
		p.resampler = r
	}

	registry, err := p.classes.LoadClasses()
	if err == nil && registry == nil {
		err = errors.New("class source returned no registry")
	}
	if err != nil {
		if !errors.Is(err, models.ErrRegistryLoad) {
			err = &kindError{kind: models.ErrRegistryLoad, cause: err}
		}
		p.state, p.err = StateFailed, err
		p.log.WithError(err).Error("class registry failed to load")

		return p, err
	}

	p.registry = registry
	p.log.WithField("classes", registry.Len()).Debug("class registry loaded")

	return p, nil
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state
}

// Stats returns activity counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	stats := Stats{State: p.state, Loads: p.loads.Load(), Detections: p.detections.Load()}
	detector, nms := p.detector, p.nms
	p.mu.Unlock()

	stats.Detector = sessionMetrics(detector)
	stats.NMS = sessionMetrics(nms)

	return stats
}

func sessionMetrics(s inference.Session) *inference.SessionMetrics {
	if s == nil {
		return nil
	}
	if m, ok := inference.MetricsOf(s); ok {
		return &m
	}

	return nil
}

// Classes returns the class registry, or nil when it failed to load.
func (p *Pipeline) Classes() *models.ClassRegistry {
	return p.registry
}

// Detect runs the full pipeline on encoded image bytes.
//
// Arguments:
//   - ctx: Bounds waiting for the model load and the inference calls.
//   - data: JPEG, PNG, GIF, BMP, TIFF, or WebP bytes.
//
// Returns:
//   - []DetectionBox: The detections in source image pixels, in NMS order.
//   - error: ErrEngineLoad, models.ErrRegistryLoad, images.ErrInvalidImage,
//     inference.ErrInference, models.ErrClassRegistryMismatch, ErrClosed, or a context error.
func (p *Pipeline) Detect(ctx context.Context, data []byte) ([]DetectionBox, error) {
	detector, nms, err := p.ensureReady(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	edge := p.cfg.InputSize

	img, _, err := images.Decode(data)
	if err != nil {
		return nil, err
	}

	lb, err := images.LetterboxWith(p.resampler, img, edge, p.cfg.padColor())
	if err != nil {
		return nil, err
	}

	input, err := Pack(lb.Pixels, edge)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := detector.Run(ctx, map[string]inference.Tensor{InputName: input})
	if err != nil {
		return nil, errors.Wrap(err, "detector")
	}

	raw, ok := out[OutputName]
	if !ok {
		return nil, errors.Wrapf(inference.ErrInference, "detector produced no %q output", OutputName)
	}
	raw.Name = NMSDetectionInput

	selected, err := nms.Run(ctx, map[string]inference.Tensor{
		NMSDetectionInput: raw,
		NMSConfigInput:    ConfigTensor(p.cfg.TopK, p.cfg.IoUThreshold, p.cfg.ConfidenceThreshold),
	})
	if err != nil {
		return nil, errors.Wrap(err, "nms")
	}

	sel, ok := selected[NMSOutputName]
	if !ok {
		return nil, errors.Wrapf(inference.ErrInference, "nms produced no %q output", NMSOutputName)
	}

	rows, err := RowsFromTensor(sel)
	if err != nil {
		return nil, err
	}

	boxes, err := Decode(rows, lb.Width, lb.Height, edge, p.registry)
	if err != nil {
		return nil, err
	}

	p.detections.Add(1)
	p.log.WithFields(logrus.Fields{
		"width":    lb.Width,
		"height":   lb.Height,
		"boxes":    len(boxes),
		"duration": time.Since(start),
	}).Debug("detect")

	return boxes, nil
}

// ensureReady returns the loaded sessions, loading them on the first call. Concurrent
// callers share one load; a caller whose ctx ends while waiting returns early without
// cancelling the load.
func (p *Pipeline) ensureReady(ctx context.Context) (inference.Session, inference.Session, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, nil, ErrClosed
		}

		switch p.state {
		case StateReady:
			detector, nms := p.detector, p.nms
			p.mu.Unlock()
			return detector, nms, nil

		case StateFailed:
			err := p.err
			p.mu.Unlock()
			return nil, nil, err

		case StateLoading:
			done := p.loading
			p.mu.Unlock()

			select {
			case <-done:
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			}

		default:
			done := make(chan struct{})
			p.state, p.loading = StateLoading, done
			p.mu.Unlock()

			p.runLoad(ctx, done)
		}
	}
}

// runLoad performs the single load and publishes its outcome, also when load panics.
func (p *Pipeline) runLoad(ctx context.Context, done chan struct{}) {
	var (
		detector, nms inference.Session
		err           error
		finished      bool
	)

	defer func() {
		if !finished {
			err = errors.Errorf("load panicked: %v", recover())
			p.log.WithError(err).Error("detection models failed to load")
		}

		p.mu.Lock()
		switch {
		case err != nil:
			p.state, p.err = StateFailed, &kindError{kind: ErrEngineLoad, cause: err}
		case p.closed:
			closeSessions(p.log, detector, nms)
			p.state = StateReady
		default:
			p.state, p.detector, p.nms = StateReady, detector, nms
		}
		p.loading = nil
		close(done)
		p.mu.Unlock()
	}()

	detector, nms, err = p.load(context.WithoutCancel(ctx))
	finished = true
}

func (p *Pipeline) load(ctx context.Context) (inference.Session, inference.Session, error) {
	p.loads.Add(1)
	start := time.Now()
	log := p.log.WithField("nms_model", p.cfg.NMSModelPath)
	log.Info("loading detection models")

	var opened []inference.Session
	ready := false
	defer func() {
		if !ready {
			closeSessions(log, opened...)
		}
	}()

	detector, err := p.runtime.Load(ctx, p.cfg.ModelPath)
	if err != nil {
		log.WithError(err).Error("detector model failed to load")
		return nil, nil, errors.Wrap(err, "detector")
	}
	opened = append(opened, detector)

	nms, err := p.runtime.Load(ctx, p.cfg.NMSModelPath)
	if err != nil {
		log.WithError(err).Error("nms model failed to load")
		return nil, nil, errors.Wrap(err, "nms")
	}
	opened = append(opened, nms)

	if err := p.checkShapes(detector.Info(), nms.Info()); err != nil {
		log.WithError(err).Error("model signature mismatch")
		return nil, nil, err
	}

	warm := time.Now()
	edge := p.cfg.InputSize
	if _, err := detector.Run(ctx, map[string]inference.Tensor{
		InputName: inference.Zeros(InputName, tensor.Shape{1, 3, edge, edge}),
	}); err != nil {
		log.WithError(err).Error("detector warmup failed")
		return nil, nil, errors.Wrap(err, "warmup")
	}

	log.WithFields(logrus.Fields{
		"warmup":   time.Since(warm),
		"duration": time.Since(start),
	}).Info("detection models ready")

	ready = true
	return detector, nms, nil
}

// checkShapes validates the declared model signatures. Sessions that report no metadata
// are accepted as is.
func (p *Pipeline) checkShapes(detector, nms inference.SessionInfo) error {
	edge := p.cfg.InputSize

	if !detector.Empty() {
		in, ok := detector.Input(InputName)
		if !ok {
			return errors.Wrapf(inference.ErrModelLoad, "detector has no input %q", InputName)
		}
		if want := (tensor.Shape{1, 3, edge, edge}); !in.Accepts(want) {
			return errors.Wrapf(inference.ErrModelLoad, "detector input %q has dims %v, want %v", InputName, in.Dimensions, want)
		}

		out, ok := detector.Output(OutputName)
		if !ok {
			return errors.Wrapf(inference.ErrModelLoad, "detector has no output %q", OutputName)
		}
		if len(out.Dimensions) == 3 && out.Dimensions[1] > 0 && p.registry != nil &&
			int(out.Dimensions[1]) != 4+p.registry.Len() {
			p.log.WithFields(logrus.Fields{
				"channels": out.Dimensions[1],
				"classes":  p.registry.Len(),
			}).Warn("detector output channels do not match the class list")
		}
	}

	if !nms.Empty() {
		for _, name := range []string{NMSDetectionInput, NMSConfigInput} {
			if _, ok := nms.Input(name); !ok {
				return errors.Wrapf(inference.ErrModelLoad, "nms model has no input %q", name)
			}
		}
		if _, ok := nms.Output(NMSOutputName); !ok {
			return errors.Wrapf(inference.ErrModelLoad, "nms model has no output %q", NMSOutputName)
		}
	}

	return nil
}

// Close releases both sessions. Detect fails with ErrClosed afterwards.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	for _, m := range []*inference.SessionMetrics{sessionMetrics(p.detector), sessionMetrics(p.nms)} {
		if m != nil {
			p.log.WithFields(logrus.Fields{
				"session":    m.Model,
				"inferences": m.Inferences,
				"total":      m.Total,
				"average":    m.Average(),
			}).Info("session metrics")
		}
	}

	err := closeSessions(p.log, p.detector, p.nms)
	p.detector, p.nms = nil, nil

	return err
}

func closeSessions(log logrus.FieldLogger, sessions ...inference.Session) error {
	var first error
	for _, s := range sessions {
		if s == nil {
			continue
		}
		if err := s.Close(); err != nil {
			log.WithError(err).Warn("failed to close session")
			if first == nil {
				first = err
			}
		}
	}

	return first
}
