package monitoring

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"
)

// SystemMonitor periodically samples process CPU and memory usage and
// exports the readings as Prometheus gauges.
type SystemMonitor struct {
	logger   zerolog.Logger
	interval time.Duration
}

func NewSystemMonitor(logger zerolog.Logger, interval time.Duration) *SystemMonitor {
	return &SystemMonitor{
		logger:   logger,
		interval: interval,
	}
}

// Run samples until ctx is cancelled. Intended to be launched as a goroutine.
func (m *SystemMonitor) Run(ctx context.Context) {
	defer RecoverPanic(m.logger, "systemMonitor", nil)

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to get process handle, system monitor disabled")
		return
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cpuPercent, err := proc.CPUPercent()
			if err != nil {
				m.logger.Debug().Err(err).Msg("CPU sample failed")
				continue
			}

			memInfo, err := proc.MemoryInfo()
			if err != nil {
				m.logger.Debug().Err(err).Msg("Memory sample failed")
				continue
			}

			SetProcessUsage(cpuPercent, memInfo.RSS)

			m.logger.Debug().
				Float64("cpu_percent", cpuPercent).
				Float64("memory_mb", float64(memInfo.RSS)/1024/1024).
				Msg("System usage sampled")
		}
	}
}
