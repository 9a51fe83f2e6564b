// Package yolov8 - YOLOv8 detection pipeline: packing, decoding, and lifecycle.
package yolov8

import (
	"image/color"

	"github.com/pkg/errors"
)

// Tensor names exchanged with the detector and NMS models.
const (
	InputName         = "images"
	OutputName        = "output0"
	NMSDetectionInput = "detection"
	NMSConfigInput    = "config"
	NMSOutputName     = "selected"
)

// Defaults matching stock YOLOv8 exports.
const (
	DefaultModelPath           = "model/yolov8n.onnx"
	DefaultNMSModelName        = "nms-yolov8.onnx"
	DefaultTopK                = 100
	DefaultIoUThreshold        = 0.45
	DefaultConfidenceThreshold = 0.25
	DefaultInputSize           = 640
)

// Config holds the pipeline settings.
type Config struct {
	// ModelPath is the detector ONNX model.
	ModelPath string `json:"model_path" yaml:"model_path"`
	// NMSModelPath is the non-maximum suppression ONNX model.
	NMSModelPath string `json:"nms_model_path" yaml:"nms_model_path"`
	// ClassesPath is a class list file; empty selects the bundled COCO classes.
	ClassesPath string `json:"classes_path" yaml:"classes_path"`
	// TopK caps the number of boxes kept per class by the NMS model.
	TopK int `json:"topk" yaml:"topk"`
	// IoUThreshold is the overlap above which the NMS model suppresses boxes.
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold"`
	// ConfidenceThreshold is the minimum class score the NMS model keeps.
	ConfidenceThreshold float32 `json:"confidence_threshold" yaml:"confidence_threshold"`
	// InputSize is the square edge the detector expects.
	InputSize int `json:"input_size" yaml:"input_size"`
	// PadColor is the RGB fill of the letterbox padding.
	PadColor [3]uint8 `json:"pad_color" yaml:"pad_color"`
	// Resampler selects the resize filter; empty selects linear.
	Resampler string `json:"resampler" yaml:"resampler"`
}

// DefaultConfig returns the stock YOLOv8n configuration.
func DefaultConfig() Config {
	return Config{
		ModelPath:           DefaultModelPath,
		NMSModelPath:        "model/" + DefaultNMSModelName,
		TopK:                DefaultTopK,
		IoUThreshold:        DefaultIoUThreshold,
		ConfidenceThreshold: DefaultConfidenceThreshold,
		InputSize:           DefaultInputSize,
		PadColor:            [3]uint8{114, 114, 114},
	}
}

// Validate checks thresholds and sizes.
func (c Config) Validate() error {
	if c.ModelPath == "" {
		return errors.New("model_path is required")
	}
	if c.NMSModelPath == "" {
		return errors.New("nms_model_path is required")
	}
	if c.TopK < 1 {
		return errors.Errorf("topk must be at least 1, got %d", c.TopK)
	}
	if !(c.IoUThreshold >= 0 && c.IoUThreshold <= 1) {
		return errors.Errorf("iou_threshold must be in [0, 1], got %v", c.IoUThreshold)
	}
	if !(c.ConfidenceThreshold >= 0 && c.ConfidenceThreshold <= 1) {
		return errors.Errorf("confidence_threshold must be in [0, 1], got %v", c.ConfidenceThreshold)
	}
	if c.InputSize <= 0 {
		return errors.Errorf("input_size must be positive, got %d", c.InputSize)
	}

	return nil
}

func (c Config) padColor() color.NRGBA {
	return color.NRGBA{R: c.PadColor[0], G: c.PadColor[1], B: c.PadColor[2], A: 0xff}
}
