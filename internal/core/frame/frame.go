// Package frame 定义采集帧及采集源接口
package frame

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"
)

// ErrReadFailed 采集设备读取失败，属于致命错误
var ErrReadFailed = errors.New("frame read failed")

// Frame 一帧 YUV420P 平面数据，创建后不可修改
// Data 依次为 Y、U、V 三个平面，Y 平面即灰度图
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
	Data      []byte
}

// Indexed 片段内的帧，Index 为该帧在片段中的序号
type Indexed struct {
	Index int
	Frame
}

// Source 采集源，同一时刻只允许一个调用方读取
type Source interface {
	Open(ctx context.Context) error
	// Read 阻塞直到下一帧可用
	Read(ctx context.Context) (Frame, error)
	Close() error
	// Type 采集源类型，会写入文件名与上传元数据
	Type() string
}

// Size YUV420P 帧字节数
func Size(width, height int) int {
	return width * height * 3 / 2
}

// New 校验尺寸后构造帧
func New(seq uint64, ts time.Time, width, height int, data []byte) (Frame, error) {
	if width <= 0 || height <= 0 || width%2 != 0 || height%2 != 0 {
		return Frame{}, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	if len(data) != Size(width, height) {
		return Frame{}, fmt.Errorf("frame data %d bytes, want %d", len(data), Size(width, height))
	}
	return Frame{Seq: seq, Timestamp: ts, Width: width, Height: height, Data: data}, nil
}

// Gray 由灰度平面构造帧，色度平面填充 128
func Gray(seq uint64, ts time.Time, width, height int, luma []byte) Frame {
	data := make([]byte, Size(width, height))
	n := copy(data, luma)
	for i := n; i < len(data); i++ {
		data[i] = 128
	}
	return Frame{Seq: seq, Timestamp: ts, Width: width, Height: height, Data: data}
}

// Luma 返回 Y 平面，只读
func (f Frame) Luma() []byte {
	return f.Data[:f.Width*f.Height]
}

// IsZero 是否为空帧
func (f Frame) IsZero() bool {
	return len(f.Data) == 0
}

// YCbCr 包装为 image.YCbCr，不复制数据，用于 jpeg 编码
func (f Frame) YCbCr() *image.YCbCr {
	ySize := f.Width * f.Height
	cSize := ySize / 4
	cw := f.Width / 2
	return &image.YCbCr{
		Y:              f.Data[:ySize],
		Cb:             f.Data[ySize : ySize+cSize],
		Cr:             f.Data[ySize+cSize : ySize+2*cSize],
		YStride:        f.Width,
		CStride:        cw,
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           image.Rect(0, 0, f.Width, f.Height),
	}
}
