package utils

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// SystemStats is a point-in-time resource snapshot for the health endpoint.
type SystemStats struct {
	MemoryTotalMB   uint64  `json:"memory_total_mb"`
	MemoryUsedMB    uint64  `json:"memory_used_mb"`
	MemoryPercent   float64 `json:"memory_percent"`
	CPUPercent      float64 `json:"cpu_percent"`
	ProcessRSSMB    uint64  `json:"process_rss_mb"`
	Goroutines      int     `json:"goroutines"`
	NumCPU          int     `json:"num_cpu"`
	UptimeSeconds   int64   `json:"uptime_seconds"`
	CollectionError string  `json:"collection_error,omitempty"`
}

const mb = 1024 * 1024

// CollectSystemStats gathers host memory, CPU and process RSS. Failures of
// individual readings are reported in CollectionError; the rest is still
// filled in.
func CollectSystemStats(ctx context.Context, startedAt time.Time) SystemStats {
	stats := SystemStats{
		Goroutines: runtime.NumGoroutine(),
		NumCPU:     runtime.NumCPU(),
	}
	if !startedAt.IsZero() {
		stats.UptimeSeconds = int64(time.Since(startedAt).Seconds())
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		stats.MemoryTotalMB = vm.Total / mb
		stats.MemoryUsedMB = vm.Used / mb
		stats.MemoryPercent = vm.UsedPercent
	} else {
		stats.CollectionError = err.Error()
	}

	// interval 0 compares against the previous call
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		stats.CPUPercent = pct[0]
	}

	if proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if info, err := proc.MemoryInfoWithContext(ctx); err == nil {
			stats.ProcessRSSMB = info.RSS / mb
		}
	}
	return stats
}
