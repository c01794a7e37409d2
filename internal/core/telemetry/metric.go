// Package telemetry 指标与日志的异步上报，任何失败只记录日志
package telemetry

import (
	"context"
	"time"
)

// Unit 指标单位
type Unit string

const (
	UnitCount     Unit = "Count"
	UnitSeconds   Unit = "Seconds"
	UnitMegabytes Unit = "Megabytes"
	UnitPercent   Unit = "Percent"
	UnitNone      Unit = "None"
)

// 指标名
const (
	MetricSystemStartup     = "SystemStartup"
	MetricSystemHeartbeat   = "SystemHeartbeat"
	MetricMotionDetected    = "MotionDetected"
	MetricClipRecorded      = "ClipRecorded"
	MetricEncoderOpenFailed = "EncoderOpenFailed"
	MetricTranscodeFailed   = "TranscodeFailed"
	MetricObjectDetected    = "ObjectDetected"
	MetricVideoUploaded     = "VideoUploaded"
	MetricUploadDuration    = "UploadDuration"
	MetricVideoSize         = "VideoSize"
	MetricMotionScore       = "MotionScore"
	MetricUploadFailed      = "UploadFailed"
	MetricCPUUsage          = "CPUUsage"
	MetricMemoryUsage       = "MemoryUsage"
	MetricDiskUsage         = "DiskUsage"
	MetricCPUTemperature    = "CPUTemperature"
)

// Metric 单个指标点
type Metric struct {
	Name       string            `cbor:"name" json:"name"`
	Value      float64           `cbor:"value" json:"value"`
	Unit       Unit              `cbor:"unit" json:"unit"`
	Dimensions map[string]string `cbor:"dims,omitempty" json:"dims,omitempty"`
	Timestamp  time.Time         `cbor:"ts" json:"ts"`
}

// LogEntry 一条已格式化的日志
type LogEntry struct {
	Time time.Time `cbor:"ts" json:"ts"`
	Line string    `cbor:"line" json:"line"`
}

// MetricSink 指标后端
type MetricSink interface {
	PutMetrics(ctx context.Context, metrics []Metric) error
}

// LogSink 日志后端
type LogSink interface {
	ShipLogs(ctx context.Context, entries []LogEntry) error
}

// Emitter 指标写入入口，调用方不会被阻塞
type Emitter interface {
	PutMetric(name string, value float64, unit Unit, dims ...string)
}

// Discard 丢弃所有指标
type Discard struct{}

func (Discard) PutMetric(string, float64, Unit, ...string) {}
