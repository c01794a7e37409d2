package telemetry

import (
	"context"
	"strings"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/sensors"
)

// HostStats 心跳附带的主机指标
type HostStats struct {
	CPUPercent  float64 `json:"cpu_percent"`
	MemPercent  float64 `json:"mem_percent"`
	DiskPercent float64 `json:"disk_percent"`
	TempCelsius float64 `json:"temp_celsius"` // 读不到温度时为 0
}

// ReadHostStats 采集主机指标，单项失败时该项为 0
func ReadHostStats(ctx context.Context, diskPath string) HostStats {
	var s HostStats
	if v, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(v) > 0 {
		s.CPUPercent = v[0]
	}
	if v, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		s.MemPercent = v.UsedPercent
	}
	if diskPath == "" {
		diskPath = "/"
	}
	if v, err := disk.UsageWithContext(ctx, diskPath); err == nil {
		s.DiskPercent = v.UsedPercent
	}
	if temps, err := sensors.SensorsTemperatures(); err == nil {
		for _, t := range temps {
			// 树莓派为 cpu_thermal，x86 常见 coretemp
			if strings.Contains(t.SensorKey, "cpu") || strings.Contains(t.SensorKey, "coretemp") {
				s.TempCelsius = t.Temperature
				break
			}
		}
	}
	return s
}
