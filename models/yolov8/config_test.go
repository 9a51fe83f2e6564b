package yolov8

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// TestDefaultConfig checks the stock defaults.
func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()

	assert.Equal(t, "model/yolov8n.onnx", c.ModelPath)
	assert.Equal(t, "model/nms-yolov8.onnx", c.NMSModelPath)
	assert.Equal(t, 100, c.TopK)
	assert.Equal(t, float32(0.45), c.IoUThreshold)
	assert.Equal(t, float32(0.25), c.ConfidenceThreshold)
	assert.Equal(t, 640, c.InputSize)
	assert.Equal(t, [3]uint8{114, 114, 114}, c.PadColor)
	assert.NoError(t, c.Validate())
}

// TestConfig_Validate rejects out-of-range settings.
func TestConfig_Validate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "no model", mutate: func(c *Config) { c.ModelPath = "" }},
		{name: "no nms model", mutate: func(c *Config) { c.NMSModelPath = "" }},
		{name: "zero topk", mutate: func(c *Config) { c.TopK = 0 }},
		{name: "iou above one", mutate: func(c *Config) { c.IoUThreshold = 1.5 }},
		{name: "negative confidence", mutate: func(c *Config) { c.ConfidenceThreshold = -0.1 }},
		{name: "zero input size", mutate: func(c *Config) { c.InputSize = 0 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := DefaultConfig()
			tc.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

// TestConfig_Decoding reads both JSON and YAML with the same keys.
func TestConfig_Decoding(t *testing.T) {
	const doc = `{"model_path": "m.onnx", "nms_model_path": "n.onnx", "topk": 10, "iou_threshold": 0.5, "confidence_threshold": 0.3, "input_size": 320, "pad_color": [0, 0, 0]}`

	var fromJSON Config
	require.NoError(t, json.Unmarshal([]byte(doc), &fromJSON))

	var fromYAML Config
	require.NoError(t, yaml.Unmarshal([]byte(doc), &fromYAML))

	assert.Equal(t, fromJSON, fromYAML)
	assert.Equal(t, 320, fromYAML.InputSize)
	assert.Equal(t, float32(0.3), fromYAML.ConfidenceThreshold)
}
