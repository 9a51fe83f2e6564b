package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/nvr-ai/go-yolo/benchmark"
	"github.com/nvr-ai/go-yolo/models/yolov8"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// benchReport is the -bench output line.
type benchReport struct {
	Benchmark *benchmark.PerformanceMetrics `json:"benchmark"`
	Pipeline  *yolov8.Stats                 `json:"pipeline,omitempty"`
}

type statsReporter interface {
	Stats() yolov8.Stats
}

type benchOptions struct {
	iterations int
	warmup     int
	output     string
}

// runBenchmark measures d over the loaded jobs and prints the metrics as one JSON line,
// with pipeline and session counters when d reports them.
func runBenchmark(d benchmark.Detector, jobs []job, workers int, opts benchOptions, log logrus.FieldLogger) error {
	corpus := make([][]byte, len(jobs))
	for i, j := range jobs {
		corpus[i] = j.data
	}

	scenario := benchmark.NewScenarioBuilder("detect").
		WithIterations(opts.iterations).
		WithWarmupRuns(opts.warmup).
		WithConcurrency(max(workers, 1)).
		Build()

	suite := benchmark.NewSuite(d, corpus, log)
	m, err := suite.Run(context.Background(), scenario)
	if err != nil {
		return errors.Wrap(err, "benchmark")
	}

	if opts.output != "" {
		if err := suite.SaveResults(opts.output); err != nil {
			return err
		}
	}

	report := benchReport{Benchmark: m}
	if r, ok := d.(statsReporter); ok {
		stats := r.Stats()
		report.Pipeline = &stats
	}

	return errors.Wrap(json.NewEncoder(os.Stdout).Encode(report), "write metrics")
}
