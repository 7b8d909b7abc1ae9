// Package metrics logs system resource usage at a fixed interval while a
// long batch run is in flight.
package metrics

import (
	"context"
	"os"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// Collector periodically collects and logs system metrics
type Collector struct {
	interval time.Duration
	logger   *zap.Logger
	proc     *process.Process
}

// NewCollector creates a new metrics collector
func NewCollector(interval time.Duration, logger *zap.Logger) *Collector {
	if interval < time.Second {
		interval = 30 * time.Second
	}
	proc, _ := process.NewProcess(int32(os.Getpid()))
	return &Collector{interval: interval, logger: logger, proc: proc}
}

// Start begins periodic metrics collection. Returns when context is cancelled.
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect()
	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("Metrics collection stopped")
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

func (c *Collector) collect() {
	fields := make([]zap.Field, 0, 4)

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		fields = append(fields, zap.Float64("sys_cpu", pct[0]))
	}
	if c.proc != nil {
		if pct, err := c.proc.Percent(0); err == nil {
			fields = append(fields, zap.Float64("proc_cpu", pct))
		}
	}
	if vmem, err := mem.VirtualMemory(); err == nil {
		fields = append(fields,
			zap.Float64("mem_pct", vmem.UsedPercent),
			zap.Uint64("mem_used_mb", vmem.Used/(1024*1024)),
		)
	}

	c.logger.Info("System metrics", fields...)
}
