// Command detect runs YOLOv8 detection on images and prints one JSON line per image.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nvr-ai/go-yolo/images"
	"github.com/nvr-ai/go-yolo/inference/providers"
	"github.com/nvr-ai/go-yolo/models/yolov8"
	"github.com/nvr-ai/go-yolo/util"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// result is the per-image output: the unique labels and the boxes behind them.
type result struct {
	File        string                `json:"file"`
	Detected    []string              `json:"detected"`
	Annotations []yolov8.DetectionBox `json:"annotations"`
	Error       string                `json:"error,omitempty"`
}

type job struct {
	path string
	data []byte
}

func main() {
	var (
		configPath string
		imagePath  string
		dirPath    string
		timeout    time.Duration
		bench      benchOptions
		only       string
	)

	cfg := defaultConfig()
	flag.StringVar(&configPath, "config", "", "Path to a YAML config file")
	flag.StringVar(&imagePath, "image", "", "Path to an image file")
	flag.StringVar(&dirPath, "dir", "", "Path to a directory of images")
	flag.DurationVar(&timeout, "timeout", 0, "Per-image timeout, 0 for none")
	flag.StringVar(&cfg.Pipeline.ModelPath, "model", cfg.Pipeline.ModelPath, "Detector .onnx file or a directory holding one")
	flag.StringVar(&cfg.Pipeline.NMSModelPath, "nms", "", "NMS .onnx file (default: nms-yolov8.onnx beside the model)")
	flag.StringVar(&cfg.Pipeline.ClassesPath, "classes", "", "Class list file (default: searched beside the model, then COCO)")
	flag.IntVar(&cfg.Pipeline.TopK, "topk", cfg.Pipeline.TopK, "Maximum boxes per class")
	flag.Float64Var(new(float64), "iou", float64(cfg.Pipeline.IoUThreshold), "NMS IoU threshold")
	flag.Float64Var(new(float64), "confidence", float64(cfg.Pipeline.ConfidenceThreshold), "Confidence threshold")
	flag.IntVar(&cfg.Pipeline.InputSize, "input-size", cfg.Pipeline.InputSize, "Detector input edge")
	flag.StringVar((*string)(&cfg.Runtime.Backend), "backend", string(cfg.Runtime.Backend), "Execution provider: cpu, cuda, coreml, openvino")
	flag.StringVar(&cfg.Runtime.SharedLibraryPath, "ort-lib", "", "Path to the onnxruntime shared library")
	flag.StringVar(&cfg.OutputDir, "output-dir", "", "Write annotated images to this directory")
	flag.IntVar(&cfg.Workers, "workers", cfg.Workers, "Concurrent detections in -dir mode")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	flag.StringVar(&only, "only", "", "Comma-separated class names to keep, e.g. person,car")
	flag.IntVar(&bench.iterations, "bench", 0, "Benchmark: run this many detections over the inputs instead of printing results")
	flag.IntVar(&bench.warmup, "bench-warmup", 3, "Benchmark warmup runs")
	flag.StringVar(&bench.output, "bench-output", "", "Write benchmark results as JSON to this file")
	flag.Parse()

	if only != "" {
		cfg.Only = strings.Split(only, ",")
	}

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetOutput(os.Stderr)

	if configPath != "" {
		fileCfg, err := loadConfig(configPath)
		if err != nil {
			log.WithError(err).Fatal("failed to load config")
		}
		cfg = applyFlags(fileCfg, cfg)
	} else {
		cfg = applyFlags(cfg, cfg)
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	} else {
		log.WithField("level", cfg.LogLevel).Warn("unknown log level, using info")
	}

	if (imagePath == "") == (dirPath == "") {
		log.Fatal("exactly one of -image or -dir is required")
	}

	if err := run(cfg, imagePath, dirPath, timeout, bench, log); err != nil {
		log.WithError(err).Fatal("detection failed")
	}
}

// applyFlags copies every flag the user set explicitly from flagged onto base.
func applyFlags(base, flagged Config) Config {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "model":
			base.Pipeline.ModelPath = flagged.Pipeline.ModelPath
		case "nms":
			base.Pipeline.NMSModelPath = flagged.Pipeline.NMSModelPath
		case "classes":
			base.Pipeline.ClassesPath = flagged.Pipeline.ClassesPath
		case "topk":
			base.Pipeline.TopK = flagged.Pipeline.TopK
		case "iou":
			base.Pipeline.IoUThreshold = flagFloat32(f)
		case "confidence":
			base.Pipeline.ConfidenceThreshold = flagFloat32(f)
		case "input-size":
			base.Pipeline.InputSize = flagged.Pipeline.InputSize
		case "backend":
			base.Runtime.Backend = flagged.Runtime.Backend
		case "ort-lib":
			base.Runtime.SharedLibraryPath = flagged.Runtime.SharedLibraryPath
		case "output-dir":
			base.OutputDir = flagged.OutputDir
		case "workers":
			base.Workers = flagged.Workers
		case "log-level":
			base.LogLevel = flagged.LogLevel
		case "only":
			base.Only = flagged.Only
		}
	})

	return base
}

func flagFloat32(f *flag.Flag) float32 {
	v, _ := f.Value.(flag.Getter).Get().(float64)
	return float32(v)
}

func run(cfg Config, imagePath, dirPath string, timeout time.Duration, bench benchOptions, log *logrus.Logger) error {
	paths, err := util.Resolve(cfg.Pipeline.ModelPath, cfg.Pipeline.NMSModelPath, cfg.Pipeline.ClassesPath)
	if err != nil {
		return err
	}
	cfg.Pipeline.ModelPath, cfg.Pipeline.NMSModelPath, cfg.Pipeline.ClassesPath = paths.Model, paths.NMS, paths.Classes

	rt, err := providers.NewRuntime(cfg.Runtime, log)
	if err != nil {
		return err
	}

	pipeline, err := yolov8.New(cfg.Pipeline, rt, yolov8.WithLogger(log))
	if err != nil {
		return err
	}
	defer pipeline.Close()

	filter, err := yolov8.NewClassFilter(pipeline.Classes(), cfg.Only)
	if err != nil {
		return err
	}

	var jobs []job
	if imagePath != "" {
		data, err := os.ReadFile(imagePath)
		if err != nil {
			return errors.Wrapf(err, "read %s", imagePath)
		}
		jobs = append(jobs, job{path: imagePath, data: data})
	} else {
		files, err := util.LoadDirectoryImageFiles(dirPath)
		if err != nil {
			return errors.Wrapf(err, "read %s", dirPath)
		}
		for _, f := range files {
			jobs = append(jobs, job{path: f.Path, data: f.Data})
		}
	}

	if bench.iterations > 0 {
		return runBenchmark(pipeline, jobs, cfg.Workers, bench, log)
	}

	if cfg.OutputDir != "" {
		if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
			return errors.Wrapf(err, "create %s", cfg.OutputDir)
		}
	}

	start := time.Now()
	results := detectAll(pipeline, jobs, filter, max(cfg.Workers, 1), timeout, cfg.OutputDir, log)

	enc := json.NewEncoder(os.Stdout)
	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
		if err := enc.Encode(r); err != nil {
			return errors.Wrap(err, "write result")
		}
	}

	stats := pipeline.Stats()
	log.WithFields(logrus.Fields{
		"images":     len(jobs),
		"failed":     failed,
		"detections": stats.Detections,
		"duration":   time.Since(start),
	}).Info("done")

	if failed == len(jobs) && failed > 0 {
		return errors.Errorf("all %d images failed", failed)
	}

	return nil
}

// detectAll runs detections with at most workers in flight and returns results in job order.
func detectAll(
	p *yolov8.Pipeline,
	jobs []job,
	filter yolov8.ClassFilter,
	workers int,
	timeout time.Duration,
	outputDir string,
	log logrus.FieldLogger,
) []result {
	results := make([]result, len(jobs))
	sem := make(chan struct{}, workers)

	var wg sync.WaitGroup
	for i, j := range jobs {
		wg.Add(1)
		sem <- struct{}{}

		go func(i int, j job) {
			defer wg.Done()
			defer func() { <-sem }()

			results[i] = detectOne(p, j, filter, timeout, outputDir, log)
		}(i, j)
	}
	wg.Wait()

	return results
}

func detectOne(
	p *yolov8.Pipeline,
	j job,
	filter yolov8.ClassFilter,
	timeout time.Duration,
	outputDir string,
	log logrus.FieldLogger,
) result {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	r := result{File: j.path, Detected: []string{}, Annotations: []yolov8.DetectionBox{}}
	entry := log.WithField("file", j.path)

	boxes, err := p.Detect(ctx, j.data)
	if err != nil {
		entry.WithError(err).Error("detect failed")
		r.Error = err.Error()
		return r
	}

	boxes = filter.Apply(boxes)
	r.Detected, r.Annotations = yolov8.Labels(boxes), boxes
	entry.WithField("boxes", len(boxes)).Debug("detected")

	if outputDir != "" && len(boxes) > 0 {
		if err := writeAnnotated(j, boxes, outputDir); err != nil {
			entry.WithError(err).Warn("failed to write annotated image")
		}
	}

	return r
}

func writeAnnotated(j job, boxes []yolov8.DetectionBox, outputDir string) error {
	img, _, err := images.Decode(j.data)
	if err != nil {
		return err
	}

	base := strings.TrimSuffix(filepath.Base(j.path), filepath.Ext(j.path))
	out := filepath.Join(outputDir, base+".annotated.png")

	return images.Save(images.Annotate(img, yolov8.Annotations(boxes)), out)
}
