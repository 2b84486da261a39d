package monitoring

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"cam-chunker/storage"
)

// ResourceUsage is a point-in-time view of this process and the output volume.
type ResourceUsage struct {
	CPUPercent    float64 `json:"cpuPercent"`
	RSSMB         float64 `json:"rssMb"`
	SystemMemMB   float64 `json:"systemMemMb"`
	MemoryPercent float64 `json:"memoryPercent"`
	NumGoroutines int     `json:"goroutines"`
	DiskFreeMB    uint64  `json:"diskFreeMb"` // 0 when the output folder is not there yet
	DiskUsedPct   float64 `json:"diskUsedPercent"`
}

// LowDisk reports whether the output volume has less than minFreeMB left.
// An unknown figure or a zero threshold never counts as low.
func (u ResourceUsage) LowDisk(minFreeMB uint64) bool {
	return minFreeMB > 0 && u.DiskFreeMB > 0 && u.DiskFreeMB < minFreeMB
}

// StartMonitoring logs usage of outputFolder's volume and this process every
// interval until ctx is done, warning when free space drops below minFreeMB.
func StartMonitoring(ctx context.Context, interval time.Duration, outputFolder string, minFreeMB uint64) {
	go func() {
		proc, err := process.NewProcess(int32(os.Getpid()))
		if err != nil {
			log.Printf("[Monitor] Error getting process: %v", err)
			return
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var peakRSS float64
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			usage, err := sample(proc, outputFolder)
			if err != nil {
				log.Printf("[Monitor] Error getting resource usage: %v", err)
				continue
			}
			if usage.RSSMB > peakRSS {
				peakRSS = usage.RSSMB
			}

			log.Printf("[Monitor] CPU %.1f%%, RSS %.1f MB (peak %.1f), goroutines %d, output disk %d MB free (%.1f%% used)",
				usage.CPUPercent, usage.RSSMB, peakRSS, usage.NumGoroutines, usage.DiskFreeMB, usage.DiskUsedPct)
			if usage.LowDisk(minFreeMB) {
				log.Printf("[Monitor] WARNING: only %d MB free under %s, runs need %d MB", usage.DiskFreeMB, outputFolder, minFreeMB)
			}
		}
	}()
}

// Snapshot samples resource usage once.
func Snapshot(outputFolder string) (ResourceUsage, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return ResourceUsage{}, fmt.Errorf("error getting process: %w", err)
	}
	return sample(proc, outputFolder)
}

func sample(proc *process.Process, outputFolder string) (ResourceUsage, error) {
	usage := ResourceUsage{NumGoroutines: runtime.NumGoroutine()}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		return usage, fmt.Errorf("error getting CPU usage: %w", err)
	}
	usage.CPUPercent = cpuPercent

	vm, err := mem.VirtualMemory()
	if err != nil {
		return usage, fmt.Errorf("error getting memory info: %w", err)
	}
	rss, err := proc.MemoryInfo()
	if err != nil {
		return usage, fmt.Errorf("error getting process memory: %w", err)
	}
	usage.RSSMB = float64(rss.RSS) / 1024 / 1024
	usage.SystemMemMB = float64(vm.Total) / 1024 / 1024
	usage.MemoryPercent = float64(rss.RSS) / float64(vm.Total) * 100

	if outputFolder != "" {
		if space, err := storage.GetDiskSpace(outputFolder); err == nil {
			usage.DiskFreeMB = space.FreeMB
			usage.DiskUsedPct = space.UsedPercent
		}
	}

	return usage, nil
}
