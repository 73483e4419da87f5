package monitoring

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

var startTime = time.Now()

type StorageUsage struct {
	TotalGB     float64 `json:"total_gb"`
	FreeGB      float64 `json:"free_gb"`
	UsedPercent float64 `json:"used_percent"`
}

type ResourceUsage struct {
	CPUPercent    float64      `json:"cpu"`
	MemoryUsedMB  float64      `json:"memory_used"`
	MemoryTotalMB float64      `json:"memory_total"`
	MemoryPercent float64      `json:"memory_percent"`
	NumGoroutines int          `json:"goroutines"`
	Uptime        string       `json:"uptime"`
	Storage       StorageUsage `json:"storage"`
}

// StartMonitoring logs process resource usage on a fixed interval. The buffer
// directory's disk is the one that fills up, so it is the one reported.
func StartMonitoring(interval time.Duration, bufferDir string) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for range ticker.C {
			usage, err := GetCurrentResourceUsage(bufferDir)
			if err != nil {
				log.Printf("Error getting resource usage: %v", err)
				continue
			}

			log.Printf("Resource Usage - CPU: %.2f%%, Memory: %.2f/%.2f MB (%.2f%%), Disk free: %.2f GB, Goroutines: %d",
				usage.CPUPercent,
				usage.MemoryUsedMB,
				usage.MemoryTotalMB,
				usage.MemoryPercent,
				usage.Storage.FreeGB,
				usage.NumGoroutines)
		}
	}()
}

// GetCurrentResourceUsage samples CPU, memory, and buffer-disk usage for the
// current process.
func GetCurrentResourceUsage(bufferDir string) (ResourceUsage, error) {
	var usage ResourceUsage

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return usage, fmt.Errorf("error getting process: %v", err)
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		return usage, fmt.Errorf("error getting CPU usage: %v", err)
	}
	usage.CPUPercent = cpuPercent

	virtualMem, err := mem.VirtualMemory()
	if err != nil {
		return usage, fmt.Errorf("error getting memory info: %v", err)
	}

	procMem, err := proc.MemoryInfo()
	if err != nil {
		return usage, fmt.Errorf("error getting process memory: %v", err)
	}

	usage.MemoryUsedMB = float64(procMem.RSS) / 1024 / 1024
	usage.MemoryTotalMB = float64(virtualMem.Total) / 1024 / 1024
	usage.MemoryPercent = float64(procMem.RSS) / float64(virtualMem.Total) * 100
	usage.NumGoroutines = runtime.NumGoroutine()
	usage.Uptime = time.Since(startTime).Round(time.Second).String()

	if diskUsage, err := disk.Usage(bufferDir); err == nil {
		usage.Storage = StorageUsage{
			TotalGB:     float64(diskUsage.Total) / 1024 / 1024 / 1024,
			FreeGB:      float64(diskUsage.Free) / 1024 / 1024 / 1024,
			UsedPercent: diskUsage.UsedPercent,
		}
	}

	return usage, nil
}
