// Package providers - ONNX Runtime binding of the inference engine capability.
package providers

import (
	"runtime"
	"strings"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// ProviderBackend represents different ONNX Runtime execution providers
type ProviderBackend string

const (
	// CPUProviderBackend runs on the default CPU execution provider.
	CPUProviderBackend ProviderBackend = "cpu"
	// CUDAProviderBackend uses NVIDIA CUDA for GPU acceleration.
	CUDAProviderBackend ProviderBackend = "cuda"
	// CoreMLProviderBackend uses Apple CoreML for macOS/iOS acceleration.
	CoreMLProviderBackend ProviderBackend = "coreml"
	// OpenVINOProviderBackend uses Intel OpenVINO for inference optimization.
	OpenVINOProviderBackend ProviderBackend = "openvino"
)

// Graph optimization levels accepted by Config.GraphOptimization.
const (
	OptimizationDisabled = "disabled"
	OptimizationBasic    = "basic"
	OptimizationExtended = "extended"
	OptimizationAll      = "all"
)

// Config represents the ONNX Runtime configuration shared by every session a Runtime loads.
type Config struct {
	// Backend specifies the execution provider to use.
	Backend ProviderBackend `json:"backend" yaml:"backend"`
	// SharedLibraryPath overrides the platform default onnxruntime library location.
	SharedLibraryPath string `json:"shared_library_path" yaml:"shared_library_path"`
	// IntraOpNumThreads sets threads for parallelizing ops. Zero lets ONNX Runtime decide.
	IntraOpNumThreads int `json:"intra_op_num_threads" yaml:"intra_op_num_threads"`
	// InterOpNumThreads sets threads for parallelizing independent ops. Zero lets ONNX Runtime decide.
	InterOpNumThreads int `json:"inter_op_num_threads" yaml:"inter_op_num_threads"`
	// GraphOptimization is one of disabled, basic, extended, or all.
	GraphOptimization string `json:"graph_optimization" yaml:"graph_optimization"`
	// EnableMemoryPattern enables memory pattern optimization.
	EnableMemoryPattern bool `json:"enable_memory_pattern" yaml:"enable_memory_pattern"`
	// EnableCPUMemArena enables the CPU memory arena.
	EnableCPUMemArena bool `json:"enable_cpu_mem_arena" yaml:"enable_cpu_mem_arena"`

	CUDA     CUDAOptions     `json:"cuda"     yaml:"cuda"`
	CoreML   CoreMLOptions   `json:"coreml"   yaml:"coreml"`
	OpenVINO OpenVINOOptions `json:"openvino" yaml:"openvino"`
}

// DefaultConfig returns a CPU configuration with extended graph optimizations.
func DefaultConfig() Config {
	return Config{
		Backend:             CPUProviderBackend,
		IntraOpNumThreads:   max(1, runtime.NumCPU()/2),
		InterOpNumThreads:   1,
		GraphOptimization:   OptimizationExtended,
		EnableMemoryPattern: true,
		EnableCPUMemArena:   true,
	}
}

// Validate checks the configuration for unsupported values.
func (c Config) Validate() error {
	switch c.Backend {
	case "", CPUProviderBackend, CUDAProviderBackend, CoreMLProviderBackend, OpenVINOProviderBackend:
	default:
		return errors.Errorf("unsupported backend %q", c.Backend)
	}

	if c.IntraOpNumThreads < 0 || c.InterOpNumThreads < 0 {
		return errors.Errorf(
			"thread counts must not be negative, got intra=%d inter=%d",
			c.IntraOpNumThreads, c.InterOpNumThreads,
		)
	}

	if _, err := graphOptimizationLevel(c.GraphOptimization); err != nil {
		return err
	}

	return nil
}

func graphOptimizationLevel(name string) (ort.GraphOptimizationLevel, error) {
	switch strings.ToLower(name) {
	case OptimizationDisabled:
		return ort.GraphOptimizationLevelDisableAll, nil
	case OptimizationBasic:
		return ort.GraphOptimizationLevelEnableBasic, nil
	case "", OptimizationExtended:
		return ort.GraphOptimizationLevelEnableExtended, nil
	case OptimizationAll:
		return ort.GraphOptimizationLevelEnableAll, nil
	default:
		return 0, errors.Errorf("unsupported graph optimization level %q", name)
	}
}

// sessionOptions builds native session options for the configured backend.
//
// **The caller must Destroy the returned options.**
func (c Config) sessionOptions() (*ort.SessionOptions, error) {
	level, err := graphOptimizationLevel(c.GraphOptimization)
	if err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "error creating ORT session options")
	}

	if err := c.applyTo(options, level); err != nil {
		options.Destroy()
		return nil, err
	}

	return options, nil
}

func (c Config) applyTo(options *ort.SessionOptions, level ort.GraphOptimizationLevel) error {
	if err := options.SetIntraOpNumThreads(c.IntraOpNumThreads); err != nil {
		return errors.Wrap(err, "error setting intra-op threads")
	}
	if err := options.SetInterOpNumThreads(c.InterOpNumThreads); err != nil {
		return errors.Wrap(err, "error setting inter-op threads")
	}
	if err := options.SetGraphOptimizationLevel(level); err != nil {
		return errors.Wrap(err, "error setting graph optimization level")
	}
	if err := options.SetMemPattern(c.EnableMemoryPattern); err != nil {
		return errors.Wrap(err, "error setting memory pattern")
	}
	if err := options.SetCpuMemArena(c.EnableCPUMemArena); err != nil {
		return errors.Wrap(err, "error setting CPU memory arena")
	}

	switch c.Backend {
	case CoreMLProviderBackend:
		if err := options.AppendExecutionProviderCoreML(c.CoreML.Flags()); err != nil {
			return errors.Wrap(err, "error enabling CoreML")
		}
	case OpenVINOProviderBackend:
		if err := options.AppendExecutionProviderOpenVINO(c.OpenVINO.ProviderOptions()); err != nil {
			return errors.Wrap(err, "error enabling OpenVINO")
		}
	case CUDAProviderBackend:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return errors.Wrap(err, "error creating CUDA options")
		}
		defer cuda.Destroy()

		if err := cuda.Update(c.CUDA.ProviderOptions()); err != nil {
			return errors.Wrap(err, "error converting CUDA options")
		}
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			return errors.Wrap(err, "error enabling CUDA")
		}
	}

	return nil
}
