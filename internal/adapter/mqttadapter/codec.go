package mqttadapter

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/gowvp/edgecam/internal/core/telemetry"
	"github.com/klauspost/compress/zstd"
)

var (
	encMode cbor.EncMode

	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	encMode, err = opts.EncMode()
	if err != nil {
		panic("mqttadapter: cbor encoder: " + err.Error())
	}
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("mqttadapter: zstd encoder: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("mqttadapter: zstd decoder: " + err.Error())
	}
}

// MetricBatch 指标消息体
type MetricBatch struct {
	Device  string             `cbor:"device"`
	Metrics []telemetry.Metric `cbor:"metrics"`
}

// LogBatch 日志消息体，编码后整体 zstd 压缩
type LogBatch struct {
	Device  string               `cbor:"device"`
	Stream  string               `cbor:"stream"`
	Entries []telemetry.LogEntry `cbor:"entries"`
}

// EncodeMetrics cbor 编码
func EncodeMetrics(b MetricBatch) ([]byte, error) {
	return encMode.Marshal(b)
}

// DecodeMetrics 与 EncodeMetrics 对应
func DecodeMetrics(data []byte) (MetricBatch, error) {
	var b MetricBatch
	err := cbor.Unmarshal(data, &b)
	return b, err
}

// EncodeLogs cbor 编码后压缩
func EncodeLogs(b LogBatch) ([]byte, error) {
	raw, err := encMode.Marshal(b)
	if err != nil {
		return nil, err
	}
	return zstdEncoder.EncodeAll(raw, nil), nil
}

// DecodeLogs 与 EncodeLogs 对应
func DecodeLogs(data []byte) (LogBatch, error) {
	var b LogBatch
	raw, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return b, fmt.Errorf("decompress: %w", err)
	}
	err = cbor.Unmarshal(raw, &b)
	return b, err
}
