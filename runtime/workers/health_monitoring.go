package workers

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"chat-relay/contract"

	"github.com/shirou/gopsutil/process"
)

// HealthMonitoringWorker periodically logs process-level vitals plus the
// relay's own gauges (online users). Observability only, no side effects.
type HealthMonitoringWorker struct {
	log      *slog.Logger
	registry contract.IRegistry
	interval time.Duration
}

func NewHealthMonitoringWorker(log *slog.Logger, registry contract.IRegistry, interval time.Duration) *HealthMonitoringWorker {
	return &HealthMonitoringWorker{log: log, registry: registry, interval: interval}
}

func (w *HealthMonitoringWorker) Run(ctx context.Context) error {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health monitoring")
			return nil
		case <-ticker.C:
			attrs := []any{
				"goroutines", runtime.NumGoroutine(),
				"onlineUsers", len(w.registry.OnlineUserIDs()),
			}
			if cpuPercent, err := proc.CPUPercent(); err == nil {
				attrs = append(attrs, "cpuPercent", cpuPercent)
			}
			if memory, err := proc.MemoryInfo(); err == nil && memory != nil {
				attrs = append(attrs, "rssBytes", memory.RSS)
			}
			w.log.Debug("Process health", attrs...)
		}
	}
}
