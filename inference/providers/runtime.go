package providers

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/nvr-ai/go-yolo/inference"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

// The ONNX Runtime environment is process-wide.
var envMu sync.Mutex

// Runtime loads ONNX models into dynamic ONNX Runtime sessions.
type Runtime struct {
	config Config
	log    logrus.FieldLogger
}

var _ inference.Runtime = (*Runtime)(nil)

// NewRuntime creates a new ONNX Runtime binding.
//
// Arguments:
//   - config: The runtime configuration.
//   - log: The logger; nil selects the logrus standard logger.
//
// Returns:
//   - *Runtime: The runtime.
//   - error: An error if the configuration is invalid.
func NewRuntime(config Config, log logrus.FieldLogger) (*Runtime, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid runtime config")
	}

	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Runtime{config: config, log: log.WithField("component", "onnxruntime")}, nil
}

// Load opens an ONNX model and binds it to a dynamic session.
//
// Order of operations:
//  1. Model path check: fails fast before touching the native library.
//  2. Environment setup: loads the shared library once per process.
//  3. Metadata: reads the declared inputs and outputs.
//  4. Session creation: applies the session options and execution provider.
//
// Arguments:
//   - ctx: The context for the load.
//   - modelPath: The path to the ONNX model file.
//
// Returns:
//   - inference.Session: The loaded session.
//   - error: inference.ErrModelLoad if any step fails.
func (r *Runtime) Load(ctx context.Context, modelPath string) (inference.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if _, err := os.Stat(modelPath); err != nil {
		return nil, errors.Wrapf(inference.ErrModelLoad, "model %s: %v", modelPath, err)
	}

	if err := r.initEnvironment(); err != nil {
		return nil, errors.Wrapf(inference.ErrModelLoad, "onnxruntime environment: %v", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, errors.Wrapf(inference.ErrModelLoad, "read model %s: %v", modelPath, err)
	}

	info := inference.SessionInfo{Inputs: tensorInfos(inputs), Outputs: tensorInfos(outputs)}

	options, err := r.config.sessionOptions()
	if err != nil {
		return nil, errors.Wrapf(inference.ErrModelLoad, "session options: %v", err)
	}
	defer options.Destroy()

	start := time.Now()
	session, err := ort.NewDynamicAdvancedSession(modelPath, names(info.Inputs), names(info.Outputs), options)
	if err != nil {
		return nil, errors.Wrapf(inference.ErrModelLoad, "create session for %s: %v", modelPath, err)
	}

	r.log.WithFields(logrus.Fields{
		"model":    modelPath,
		"backend":  r.config.Backend,
		"inputs":   names(info.Inputs),
		"outputs":  names(info.Outputs),
		"duration": time.Since(start),
	}).Info("model loaded")

	return &Session{session: session, info: info, modelPath: modelPath}, nil
}

func (r *Runtime) initEnvironment() error {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}

	libPath := r.config.SharedLibraryPath
	if libPath == "" {
		libPath = GetSharedLibPath()
	}

	if _, err := os.Stat(libPath); err != nil {
		return errors.Wrapf(err, "ONNX Runtime library not found at %s", libPath)
	}

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "error initializing ORT environment")
	}

	r.log.WithField("library", libPath).Debug("onnxruntime environment initialized")

	return nil
}

func tensorInfos(infos []ort.InputOutputInfo) []inference.TensorInfo {
	out := make([]inference.TensorInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, inference.TensorInfo{
			Name:       info.Name,
			Dimensions: append([]int64(nil), info.Dimensions...),
		})
	}

	return out
}

func names(infos []inference.TensorInfo) []string {
	out := make([]string, len(infos))
	for i, info := range infos {
		out[i] = info.Name
	}

	return out
}
