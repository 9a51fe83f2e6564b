package main

import (
	"os"

	"github.com/nvr-ai/go-yolo/inference/providers"
	"github.com/nvr-ai/go-yolo/models/yolov8"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration of the detect command.
type Config struct {
	Pipeline yolov8.Config    `yaml:"pipeline"`
	Runtime  providers.Config `yaml:"runtime"`
	// LogLevel is a logrus level name.
	LogLevel string `yaml:"log_level"`
	// Workers bounds concurrent detections in directory mode.
	Workers int `yaml:"workers"`
	// OutputDir receives annotated images when set.
	OutputDir string `yaml:"output_dir"`
	// Only restricts the output to these class names.
	Only []string `yaml:"only"`
}

// defaultConfig leaves the NMS model and class list empty so they are resolved beside
// the detector.
func defaultConfig() Config {
	pipeline := yolov8.DefaultConfig()
	pipeline.NMSModelPath = ""

	return Config{
		Pipeline: pipeline,
		Runtime:  providers.DefaultConfig(),
		LogLevel: "info",
		Workers:  2,
	}
}

// loadConfig reads a YAML file over the defaults. An empty path returns the defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", path)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}

	return cfg, nil
}
