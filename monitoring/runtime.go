package monitoring

import (
	"runtime"
	"time"

	"github.com/epic1st/mexcscanner/logging"
)

// RuntimeSampler periodically samples goroutine count and heap usage
// into the memory/goroutine gauges, and warns via log when usage looks
// high. It does not fire alerts (no alerting collaborator is in scope
// here); it only feeds the Observable gauges and the structured log.
type RuntimeSampler struct {
	interval time.Duration
	log      *logging.Logger
	stopChan chan struct{}
}

// NewRuntimeSampler creates a sampler that wakes every interval.
func NewRuntimeSampler(interval time.Duration, log *logging.Logger) *RuntimeSampler {
	return &RuntimeSampler{interval: interval, log: log, stopChan: make(chan struct{})}
}

// Run samples metrics on a ticker until Stop is called. Intended to run
// in its own goroutine.
func (r *RuntimeSampler) Run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.sample()
		case <-r.stopChan:
			return
		}
	}
}

// Stop halts the sampler.
func (r *RuntimeSampler) Stop() {
	close(r.stopChan)
}

func (r *RuntimeSampler) sample() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	SetMemoryUsage(m.Alloc)
	goroutines := runtime.NumGoroutine()
	SetGoroutineCount(goroutines)

	usedMB := float64(m.Alloc) / 1024 / 1024
	totalMB := float64(m.Sys) / 1024 / 1024
	var usagePercent float64
	if totalMB > 0 {
		usagePercent = (usedMB / totalMB) * 100
	}

	if usagePercent > 80 {
		r.log.Warn("high memory usage detected",
			logging.Component("monitoring"),
			logging.Float64("used_mb", usedMB),
			logging.Float64("usage_percent", usagePercent),
			logging.Int("goroutines", goroutines))
	}
	if goroutines > 10000 {
		r.log.Warn("high goroutine count detected",
			logging.Component("monitoring"),
			logging.Int("goroutines", goroutines))
	}
}
