// Package benchmark - Functionality for running detection benchmarks.
package benchmark

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/nvr-ai/go-yolo/models/yolov8"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Detector is the operation under benchmark. *yolov8.Pipeline satisfies it.
type Detector interface {
	Detect(ctx context.Context, data []byte) ([]yolov8.DetectionBox, error)
}

// Scenario defines a specific test configuration
type Scenario struct {
	Name        string `json:"name"        yaml:"name"`
	Iterations  int    `json:"iterations"  yaml:"iterations"`
	WarmupRuns  int    `json:"warmup_runs" yaml:"warmup_runs"`
	Concurrency int    `json:"concurrency" yaml:"concurrency"`
}

// ScenarioBuilder helps build scenarios with a fluent API.
type ScenarioBuilder struct {
	scenario Scenario
}

// NewScenarioBuilder creates a builder with one iteration and no warmup.
func NewScenarioBuilder(name string) *ScenarioBuilder {
	return &ScenarioBuilder{scenario: Scenario{Name: name, Iterations: 1, Concurrency: 1}}
}

// WithIterations sets the number of measured Detect calls.
func (b *ScenarioBuilder) WithIterations(n int) *ScenarioBuilder {
	b.scenario.Iterations = n
	return b
}

// WithWarmupRuns sets the number of unmeasured Detect calls.
func (b *ScenarioBuilder) WithWarmupRuns(n int) *ScenarioBuilder {
	b.scenario.WarmupRuns = n
	return b
}

// WithConcurrency sets how many Detect calls run at once.
func (b *ScenarioBuilder) WithConcurrency(n int) *ScenarioBuilder {
	b.scenario.Concurrency = n
	return b
}

// Build returns the scenario.
func (b *ScenarioBuilder) Build() Scenario {
	return b.scenario
}

// Suite manages and executes benchmark scenarios against one detector.
type Suite struct {
	detector Detector
	corpus   [][]byte
	log      logrus.FieldLogger

	mu      sync.RWMutex
	results []PerformanceMetrics
}

// NewSuite creates a new benchmark suite.
//
// Arguments:
//   - detector: The detector to measure.
//   - corpus: Encoded images, cycled through in order.
//   - log: The logger; nil selects the logrus standard logger.
//
// Returns:
//   - *Suite: The benchmark suite.
func NewSuite(detector Detector, corpus [][]byte, log logrus.FieldLogger) *Suite {
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Suite{detector: detector, corpus: corpus, log: log.WithField("component", "benchmark")}
}

// Run executes a scenario and records its metrics.
func (s *Suite) Run(ctx context.Context, scenario Scenario) (*PerformanceMetrics, error) {
	if len(s.corpus) == 0 {
		return nil, errors.New("benchmark corpus is empty")
	}
	if scenario.Iterations < 1 {
		return nil, errors.Errorf("scenario %q needs at least one iteration", scenario.Name)
	}
	workers := max(scenario.Concurrency, 1)

	for i := 0; i < scenario.WarmupRuns; i++ {
		if _, err := s.detector.Detect(ctx, s.corpus[i%len(s.corpus)]); err != nil {
			s.log.WithError(err).Debug("warmup run failed")
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	var startMem, endMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&startMem)

	latencies := make([]time.Duration, scenario.Iterations)
	counts := make([]int, scenario.Iterations)
	failed := make([]bool, scenario.Iterations)

	next := make(chan int)
	var wg sync.WaitGroup
	start := time.Now()

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				t0 := time.Now()
				boxes, err := s.detector.Detect(ctx, s.corpus[i%len(s.corpus)])
				latencies[i] = time.Since(t0)
				counts[i], failed[i] = len(boxes), err != nil
			}
		}()
	}

feed:
	for i := 0; i < scenario.Iterations; i++ {
		select {
		case next <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(next)
	wg.Wait()

	total := time.Since(start)
	runtime.GC()
	runtime.ReadMemStats(&endMem)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m := &PerformanceMetrics{
		Scenario:        scenario,
		Timestamp:       start,
		TotalDuration:   total,
		Latency:         summarize(latencies),
		FramesPerSecond: float64(scenario.Iterations) / total.Seconds(),
		MemoryStats:     memoryDelta(startMem, endMem),
	}
	for i := range counts {
		m.DetectionCount += counts[i]
		if failed[i] {
			m.ErrorCount++
		}
	}
	m.ErrorRate = float64(m.ErrorCount) / float64(scenario.Iterations)

	s.log.WithFields(logrus.Fields{
		"scenario": scenario.Name,
		"fps":      m.FramesPerSecond,
		"p50":      m.Latency.P50,
		"p95":      m.Latency.P95,
		"errors":   m.ErrorCount,
	}).Info("scenario complete")

	s.mu.Lock()
	s.results = append(s.results, *m)
	s.mu.Unlock()

	return m, nil
}

// Results returns a copy of every recorded run.
func (s *Suite) Results() []PerformanceMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]PerformanceMetrics(nil), s.results...)
}

// SaveResults writes the recorded runs as indented JSON.
func (s *Suite) SaveResults(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create %s", filepath.Dir(path))
	}

	data, err := json.MarshalIndent(s.Results(), "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal results")
	}

	return errors.Wrapf(os.WriteFile(path, data, 0o644), "write %s", path)
}
