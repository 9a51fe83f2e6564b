package providers

// CoreML execution provider flags.
// See: https://onnxruntime.ai/docs/execution-providers/CoreML-ExecutionProvider.html
const (
	coreMLUseCPUOnly                 uint32 = 0x001
	coreMLEnableOnSubgraph           uint32 = 0x002
	coreMLOnlyEnableDeviceWithANE    uint32 = 0x004
	coreMLOnlyAllowStaticInputShapes uint32 = 0x008
)

// CoreMLOptions contains arguments for the CoreML provider.
type CoreMLOptions struct {
	// Limit CoreML to running on CPU only.
	CPUOnly bool `json:"cpuOnly"                  yaml:"cpuOnly"`
	// Enable CoreML EP to run on a subgraph in the body of a control flow operator.
	EnableOnSubgraphs bool `json:"enableOnSubgraphs"        yaml:"enableOnSubgraphs"`
	// Only enable the CoreML EP on devices with an Apple Neural Engine.
	RequireANE bool `json:"requireANE"               yaml:"requireANE"`
	// Only allow the CoreML EP to take nodes with inputs that have static shapes.
	RequireStaticInputShapes bool `json:"requireStaticInputShapes" yaml:"requireStaticInputShapes"`
}

// Flags returns the CoreML provider bit flags.
func (o CoreMLOptions) Flags() uint32 {
	var flags uint32
	if o.CPUOnly {
		flags |= coreMLUseCPUOnly
	}
	if o.EnableOnSubgraphs {
		flags |= coreMLEnableOnSubgraph
	}
	if o.RequireANE {
		flags |= coreMLOnlyEnableDeviceWithANE
	}
	if o.RequireStaticInputShapes {
		flags |= coreMLOnlyAllowStaticInputShapes
	}

	return flags
}
