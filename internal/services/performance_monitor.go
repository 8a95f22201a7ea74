package services

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
)

// PerformanceMonitor samples process and host resource usage on a
// fixed interval and logs a structured snapshot. High watermarks are
// warned about so resource pressure shows up before it hurts scan
// latency.
type PerformanceMonitor struct {
	logger   *logrus.Logger
	interval time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

const (
	cpuWarnPercent    = 85.0
	memoryWarnPercent = 90.0
)

func NewPerformanceMonitor(interval time.Duration, logger *logrus.Logger) *PerformanceMonitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &PerformanceMonitor{
		logger:   logger,
		interval: interval,
	}
}

func (pm *PerformanceMonitor) Start(ctx context.Context) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.running {
		return
	}
	pm.ctx, pm.cancel = context.WithCancel(ctx)
	pm.running = true

	pm.wg.Add(1)
	go pm.run()
	pm.logger.WithField("interval", pm.interval).Info("Performance monitor started")
}

func (pm *PerformanceMonitor) Stop() {
	pm.mu.Lock()
	if !pm.running {
		pm.mu.Unlock()
		return
	}
	pm.running = false
	pm.cancel()
	pm.mu.Unlock()

	pm.wg.Wait()
	pm.logger.Info("Performance monitor stopped")
}

func (pm *PerformanceMonitor) run() {
	defer pm.wg.Done()

	ticker := time.NewTicker(pm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-pm.ctx.Done():
			return
		case <-ticker.C:
			pm.sample(pm.ctx)
		}
	}
}

func (pm *PerformanceMonitor) sample(ctx context.Context) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	fields := logrus.Fields{
		"goroutines":    runtime.NumGoroutine(),
		"heap_alloc_mb": memStats.HeapAlloc / 1024 / 1024,
		"gc_cycles":     memStats.NumGC,
	}

	cpuPercent, err := cpu.PercentWithContext(ctx, time.Second, false)
	if err == nil && len(cpuPercent) > 0 {
		fields["cpu_percent"] = cpuPercent[0]
		if cpuPercent[0] > cpuWarnPercent {
			pm.logger.WithField("cpu_percent", cpuPercent[0]).Warn("CPU usage above threshold")
		}
	}

	memInfo, err := mem.VirtualMemoryWithContext(ctx)
	if err == nil {
		fields["memory_percent"] = memInfo.UsedPercent
		if memInfo.UsedPercent > memoryWarnPercent {
			pm.logger.WithField("memory_percent", memInfo.UsedPercent).Warn("Memory usage above threshold")
		}
	}

	pm.logger.WithFields(fields).Debug("Resource usage sample")
}
