package watch

import (
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Health defaults. Crossing either threshold makes the watcher stop
// itself rather than degrade the machine it runs on.
const (
	DefaultMaxLogBytes   int64   = 50 * 1024 * 1024
	DefaultMaxCPUPercent float64 = 50.0
)

// HealthStatus is the watcher's self-reported state.
type HealthStatus struct {
	Uptime          time.Duration `json:"uptime"`
	EventsProcessed int64         `json:"events_processed"`
	UpdatesApplied  int64         `json:"updates_applied"`
	LogSizeBytes    int64         `json:"log_size_bytes"`
	CPUPercent      float64       `json:"cpu_percent"`
}

// healthMonitor tracks counters and samples CPU usage between checks.
type healthMonitor struct {
	started       time.Time
	logPath       string
	maxLogBytes   int64
	maxCPUPercent float64

	events  atomic.Int64
	updates atomic.Int64

	mu           sync.Mutex
	lastSample   time.Time
	lastCPU      time.Duration
	lastCPUUsage float64
}

func newHealthMonitor(logPath string, maxLogBytes int64, maxCPUPercent float64) *healthMonitor {
	if maxLogBytes <= 0 {
		maxLogBytes = DefaultMaxLogBytes
	}
	if maxCPUPercent <= 0 {
		maxCPUPercent = DefaultMaxCPUPercent
	}
	return &healthMonitor{
		started:       time.Now(),
		logPath:       logPath,
		maxLogBytes:   maxLogBytes,
		maxCPUPercent: maxCPUPercent,
		lastSample:    time.Now(),
		lastCPU:       processCPUTime(),
	}
}

func (h *healthMonitor) recordEvents(n int) { h.events.Add(int64(n)) }

func (h *healthMonitor) recordUpdate() { h.updates.Add(1) }

// status returns the current health snapshot.
func (h *healthMonitor) status() HealthStatus {
	h.mu.Lock()
	cpu := h.lastCPUUsage
	h.mu.Unlock()

	return HealthStatus{
		Uptime:          time.Since(h.started),
		EventsProcessed: h.events.Load(),
		UpdatesApplied:  h.updates.Load(),
		LogSizeBytes:    h.logSize(),
		CPUPercent:      cpu,
	}
}

// check samples CPU usage since the last call and returns a non-empty
// reason when a critical threshold is breached.
func (h *healthMonitor) check() (reason string) {
	if size := h.logSize(); size > h.maxLogBytes {
		return "log file size over threshold"
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	cpu := processCPUTime()
	wall := now.Sub(h.lastSample)
	if wall > 0 {
		h.lastCPUUsage = 100 * float64(cpu-h.lastCPU) / float64(wall)
	}
	h.lastSample = now
	h.lastCPU = cpu

	if h.lastCPUUsage > h.maxCPUPercent {
		return "sustained cpu usage over threshold"
	}
	return ""
}

func (h *healthMonitor) logSize() int64 {
	if h.logPath == "" {
		return 0
	}
	info, err := os.Stat(h.logPath)
	if err != nil {
		return 0
	}
	return info.Size()
}

// processCPUTime returns user+system CPU time consumed by this process.
func processCPUTime() time.Duration {
	var usage syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &usage); err != nil {
		return 0
	}
	return time.Duration(usage.Utime.Nano() + usage.Stime.Nano())
}
