package benchmark

import (
	"runtime"
	"sort"
	"time"
)

// PerformanceMetrics captures detailed performance data for one scenario run.
type PerformanceMetrics struct {
	Scenario        Scenario       `json:"scenario"`
	Timestamp       time.Time      `json:"timestamp"`
	TotalDuration   time.Duration  `json:"total_duration"`
	Latency         LatencyMetrics `json:"latency"`
	FramesPerSecond float64        `json:"frames_per_second"`
	MemoryStats     MemoryMetrics  `json:"memory_stats"`
	DetectionCount  int            `json:"detection_count"`
	ErrorCount      int            `json:"error_count"`
	ErrorRate       float64        `json:"error_rate"`
}

// LatencyMetrics summarizes per-image Detect latencies.
type LatencyMetrics struct {
	Min  time.Duration `json:"min"`
	Mean time.Duration `json:"mean"`
	P50  time.Duration `json:"p50"`
	P95  time.Duration `json:"p95"`
	P99  time.Duration `json:"p99"`
	Max  time.Duration `json:"max"`
}

// MemoryMetrics captures memory usage statistics
type MemoryMetrics struct {
	AllocBytes      uint64 `json:"alloc_bytes"`
	TotalAllocBytes uint64 `json:"total_alloc_bytes"`
	SysBytes        uint64 `json:"sys_bytes"`
	NumGC           uint32 `json:"num_gc"`
	HeapAllocBytes  uint64 `json:"heap_alloc_bytes"`
	HeapSysBytes    uint64 `json:"heap_sys_bytes"`
}

func memoryDelta(start, end runtime.MemStats) MemoryMetrics {
	return MemoryMetrics{
		AllocBytes:      end.Alloc,
		TotalAllocBytes: end.TotalAlloc - start.TotalAlloc,
		SysBytes:        end.Sys,
		NumGC:           end.NumGC - start.NumGC,
		HeapAllocBytes:  end.HeapAlloc,
		HeapSysBytes:    end.HeapSys,
	}
}

// summarize computes latency statistics using nearest-rank percentiles.
func summarize(samples []time.Duration) LatencyMetrics {
	if len(samples) == 0 {
		return LatencyMetrics{}
	}

	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, s := range sorted {
		total += s
	}

	rank := func(p float64) time.Duration {
		i := int(p*float64(len(sorted))+0.999999) - 1
		return sorted[min(max(i, 0), len(sorted)-1)]
	}

	return LatencyMetrics{
		Min:  sorted[0],
		Mean: total / time.Duration(len(sorted)),
		P50:  rank(0.50),
		P95:  rank(0.95),
		P99:  rank(0.99),
		Max:  sorted[len(sorted)-1],
	}
}
