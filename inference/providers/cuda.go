package providers

import "strconv"

// CUDAOptions contains arguments for the CUDA provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/CUDA-ExecutionProvider.html#configuration-options
type CUDAOptions struct {
	// The device ID.
	DeviceID int `json:"deviceID"              yaml:"deviceID"`
	// The size limit of the device memory arena in bytes. Zero leaves the default.
	GPUMemLimit int64 `json:"gpuMemLimit"           yaml:"gpuMemLimit"`
	// The strategy for extending the device memory arena.
	// 0: kNextPowerOfTwo
	// 1: kSameAsRequested
	ArenaExtendStrategy int `json:"arenaExtendStrategy"   yaml:"arenaExtendStrategy"`
	// The type of search done for cuDNN convolution algorithms.
	// 0: EXHAUSTIVE, 1: HEURISTIC, 2: DEFAULT
	CudnnConvAlgoSearch int `json:"cudnnConvAlgoSearch"   yaml:"cudnnConvAlgoSearch"`
	// Whether to do copies in the default stream or use separate streams.
	DoCopyInDefaultStream bool `json:"doCopyInDefaultStream" yaml:"doCopyInDefaultStream"`
	// Allow TF32 math on Ampere and newer GPUs.
	UseTF32 bool `json:"useTF32"               yaml:"useTF32"`
}

// ProviderOptions renders the options as the key/value pairs ONNX Runtime expects.
func (o CUDAOptions) ProviderOptions() map[string]string {
	opts := map[string]string{
		"device_id":                 strconv.Itoa(o.DeviceID),
		"arena_extend_strategy":     arenaStrategies[o.ArenaExtendStrategy&1],
		"cudnn_conv_algo_search":    convAlgoSearches[min(max(o.CudnnConvAlgoSearch, 0), 2)],
		"do_copy_in_default_stream": boolFlag(o.DoCopyInDefaultStream),
		"use_tf32":                  boolFlag(o.UseTF32),
	}
	if o.GPUMemLimit > 0 {
		opts["gpu_mem_limit"] = strconv.FormatInt(o.GPUMemLimit, 10)
	}

	return opts
}

var (
	arenaStrategies  = [...]string{"kNextPowerOfTwo", "kSameAsRequested"}
	convAlgoSearches = [...]string{"EXHAUSTIVE", "HEURISTIC", "DEFAULT"}
)

func boolFlag(b bool) string {
	if b {
		return "1"
	}

	return "0"
}
