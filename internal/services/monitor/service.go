// Package monitor samples host metrics for the monitoring endpoints.
package monitor

import (
	"context"
	"os"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	gopsnet "github.com/shirou/gopsutil/v4/net"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/common"
)

// SystemSnapshot is a point-in-time host metrics sample. Fields the host
// could not report stay zero and the failure lands in Errors.
type SystemSnapshot struct {
	CPUPercent       float64  `json:"cpu_percent"`
	MemoryTotal      uint64   `json:"memory_total"`
	MemoryUsed       uint64   `json:"memory_used"`
	MemoryAvailable  uint64   `json:"memory_available"`
	MemoryPercent    float64  `json:"memory_percent"`
	DiskTotal        uint64   `json:"disk_total"`
	DiskUsed         uint64   `json:"disk_used"`
	DiskFree         uint64   `json:"disk_free"`
	DiskPercent      float64  `json:"disk_percent"`
	SwapTotal        uint64   `json:"swap_total"`
	SwapUsed         uint64   `json:"swap_used"`
	NetworkBytesSent uint64   `json:"network_bytes_sent"`
	NetworkBytesRecv uint64   `json:"network_bytes_recv"`
	BootTime         int64    `json:"boot_time"`
	UptimeHours      float64  `json:"uptime_hours"`
	SampledAt        string   `json:"sampled_at"`
	Errors           []string `json:"errors,omitempty"`
}

// DatabaseInfo reports one database file's size and reachability.
type DatabaseInfo struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
	Exists    bool   `json:"exists"`
}

type Service struct {
	cfg    *common.Config
	logger arbor.ILogger
}

func NewService(cfg *common.Config, logger arbor.ILogger) *Service {
	return &Service{cfg: cfg, logger: logger}
}

// System samples the host. Each probe degrades independently; a machine
// without swap still reports CPU and memory.
func (s *Service) System(ctx context.Context) *SystemSnapshot {
	snapshot := &SystemSnapshot{SampledAt: time.Now().UTC().Format(time.RFC3339)}

	if percents, err := cpu.PercentWithContext(ctx, 500*time.Millisecond, false); err != nil {
		snapshot.Errors = append(snapshot.Errors, "cpu: "+err.Error())
	} else if len(percents) > 0 {
		snapshot.CPUPercent = percents[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		snapshot.Errors = append(snapshot.Errors, "memory: "+err.Error())
	} else {
		snapshot.MemoryTotal = vm.Total
		snapshot.MemoryUsed = vm.Used
		snapshot.MemoryAvailable = vm.Available
		snapshot.MemoryPercent = vm.UsedPercent
	}

	if swap, err := mem.SwapMemoryWithContext(ctx); err != nil {
		snapshot.Errors = append(snapshot.Errors, "swap: "+err.Error())
	} else {
		snapshot.SwapTotal = swap.Total
		snapshot.SwapUsed = swap.Used
	}

	if usage, err := disk.UsageWithContext(ctx, s.cfg.Storage.BaseDir); err != nil {
		snapshot.Errors = append(snapshot.Errors, "disk: "+err.Error())
	} else {
		snapshot.DiskTotal = usage.Total
		snapshot.DiskUsed = usage.Used
		snapshot.DiskFree = usage.Free
		snapshot.DiskPercent = usage.UsedPercent
	}

	if counters, err := gopsnet.IOCountersWithContext(ctx, false); err != nil {
		snapshot.Errors = append(snapshot.Errors, "network: "+err.Error())
	} else if len(counters) > 0 {
		snapshot.NetworkBytesSent = counters[0].BytesSent
		snapshot.NetworkBytesRecv = counters[0].BytesRecv
	}

	if boot, err := host.BootTimeWithContext(ctx); err != nil {
		snapshot.Errors = append(snapshot.Errors, "host: "+err.Error())
	} else {
		snapshot.BootTime = int64(boot)
		snapshot.UptimeHours = time.Since(time.Unix(int64(boot), 0)).Hours()
	}

	if len(snapshot.Errors) > 0 {
		s.logger.Debug().Int("probe_failures", len(snapshot.Errors)).Msg("Partial system snapshot")
	}
	return snapshot
}

// Databases reports the size of every database file the platform owns.
func (s *Service) Databases(ctx context.Context) []DatabaseInfo {
	paths := map[string]string{
		"admin":         s.cfg.AdminDBPath(),
		"preprocessing": s.cfg.PreprocessingDBPath(),
		"cache":         s.cfg.CacheDBPath(),
	}
	out := make([]DatabaseInfo, 0, len(paths))
	for _, name := range []string{"admin", "preprocessing", "cache"} {
		path := paths[name]
		info := DatabaseInfo{Name: name, Path: path}
		if stat, err := os.Stat(path); err == nil {
			info.Exists = true
			info.SizeBytes = stat.Size()
		}
		out = append(out, info)
	}
	return out
}

// ModelInfo describes one persisted model artifact.
type ModelInfo struct {
	FileName  string `json:"file_name"`
	SizeBytes int64  `json:"size_bytes"`
	Modified  string `json:"modified"`
}

// Models lists the artifacts under the models directory.
func (s *Service) Models(ctx context.Context) []ModelInfo {
	entries, err := os.ReadDir(s.cfg.ModelsDir())
	if err != nil {
		return nil
	}
	var out []ModelInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		out = append(out, ModelInfo{
			FileName:  entry.Name(),
			SizeBytes: info.Size(),
			Modified:  info.ModTime().UTC().Format(time.RFC3339),
		})
	}
	return out
}
