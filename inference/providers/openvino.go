package providers

import "strconv"

// OpenVINOOptions contains arguments for the OpenVINO provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/OpenVINO-ExecutionProvider.html#summary-of-options
type OpenVINOOptions struct {
	// Overrides the accelerator hardware type, e.g. CPU, GPU, or NPU.
	DeviceType string `json:"deviceType"           yaml:"deviceType"`
	// Supported precisions: FP32, FP16, or ACCURACY.
	Precision string `json:"precision"            yaml:"precision"`
	// Overrides the accelerator default number of threads. Zero leaves the default.
	NumOfThreads int `json:"numOfThreads"         yaml:"numOfThreads"`
	// Overrides the accelerator default streams. Zero leaves the default.
	NumStreams int `json:"numStreams"           yaml:"numStreams"`
	// Rewrite dynamic shaped models to static shape at runtime.
	DisableDynamicShapes bool `json:"disableDynamicShapes" yaml:"disableDynamicShapes"`
}

// ProviderOptions renders the options as the key/value pairs ONNX Runtime expects.
func (o OpenVINOOptions) ProviderOptions() map[string]string {
	opts := map[string]string{
		"disable_dynamic_shapes": strconv.FormatBool(o.DisableDynamicShapes),
	}
	if o.DeviceType != "" {
		opts["device_type"] = o.DeviceType
	}
	if o.Precision != "" {
		opts["precision"] = o.Precision
	}
	if o.NumOfThreads > 0 {
		opts["num_of_threads"] = strconv.Itoa(o.NumOfThreads)
	}
	if o.NumStreams > 0 {
		opts["num_streams"] = strconv.Itoa(o.NumStreams)
	}

	return opts
}
