// Package camera 采集源实现，picamera 打开失败时可回退到 usb
package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gowvp/edgecam/internal/adapter/onvifadapter"
	"github.com/gowvp/edgecam/internal/core/frame"
	"github.com/gowvp/edgecam/pkg/ffwork"
)

// 采集源类型
const (
	TypePiCamera = "picamera"
	TypeUSB      = "usb"
	TypeRTSP     = "rtsp"
	TypeOnvif    = "onvif"
)

// firstFrameTimeout 打开后等待首帧的时长，超时视为打开失败
const firstFrameTimeout = 10 * time.Second

// ErrUnknownType 不支持的采集源类型
var ErrUnknownType = errors.New("unknown camera type")

// Config 采集源配置
type Config struct {
	Type     string
	Index    int
	Device   string
	URL      string
	Width    int
	Height   int
	FPS      int
	Fallback bool
	Onvif    onvifadapter.Config

	// 进程路径，测试或非标准安装时覆盖
	FFmpegBin   string
	PiCameraBin string
}

func (c Config) device() string {
	if c.Device != "" {
		return c.Device
	}
	return fmt.Sprintf("/dev/video%d", c.Index)
}

func (c Config) ffmpeg(in ffwork.Input) ffwork.Input {
	if c.FFmpegBin != "" && !in.Raw {
		in.Bin = c.FFmpegBin
	}
	return in
}

var _ frame.Source = (*Capture)(nil)

// Capture 基于子进程的采集源
type Capture struct {
	typ   string
	cfg   ffwork.Config
	fc    *ffwork.FrameCapture
	first *frame.Frame
	seq   uint64
	log   *slog.Logger

	onvif     *onvifadapter.Device
	keepalive context.CancelFunc
}

// NewCapture typ 为写入文件名的采集源类型
func NewCapture(typ string, cfg ffwork.Config) *Capture {
	cfg.Name = typ
	return &Capture{typ: typ, cfg: cfg, log: slog.With("component", "camera", "type", typ)}
}

// Type implements frame.Source.
func (c *Capture) Type() string {
	return c.typ
}

// Open 启动采集进程并等待首帧，拿不到首帧视为打开失败
func (c *Capture) Open(ctx context.Context) error {
	fc, err := ffwork.NewFrameCapture(c.cfg)
	if err != nil {
		return err
	}
	if err := fc.Start(); err != nil {
		return err
	}

	firstCtx, cancel := context.WithTimeout(ctx, firstFrameTimeout)
	defer cancel()
	data, err := fc.Next(firstCtx)
	if err != nil {
		_ = fc.Stop()
		return fmt.Errorf("no frame from %s: %w, log: %v", c.typ, err, fc.Log())
	}
	c.fc = fc
	f, err := c.toFrame(data)
	if err != nil {
		_ = fc.Stop()
		return err
	}
	c.first = &f
	c.log.Info("camera opened", "width", c.cfg.Width, "height", c.cfg.Height, "fps", c.cfg.FPS)
	return nil
}

func (c *Capture) toFrame(data *ffwork.FrameData) (frame.Frame, error) {
	c.seq++
	return frame.New(c.seq, data.Timestamp, c.cfg.Width, c.cfg.Height, data.Data)
}

// Read implements frame.Source.
func (c *Capture) Read(ctx context.Context) (frame.Frame, error) {
	if c.fc == nil {
		return frame.Frame{}, fmt.Errorf("%w: camera not opened", frame.ErrReadFailed)
	}
	if c.first != nil {
		f := *c.first
		c.first = nil
		return f, nil
	}
	data, err := c.fc.Next(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return frame.Frame{}, err
		}
		return frame.Frame{}, fmt.Errorf("%w: %w", frame.ErrReadFailed, err)
	}
	return c.toFrame(data)
}

// Close implements frame.Source.
func (c *Capture) Close() error {
	if c.keepalive != nil {
		c.keepalive()
	}
	if c.fc == nil {
		return nil
	}
	stats := c.fc.GetStats()
	c.log.Info("camera released", "frames", stats.FrameCount, "skipped", stats.SkipCount)
	err := c.fc.Stop()
	c.fc = nil
	return err
}

// Stats 采集统计
func (c *Capture) Stats() ffwork.Stats {
	if c.fc == nil {
		return ffwork.Stats{Name: c.typ}
	}
	return c.fc.GetStats()
}

func newByType(ctx context.Context, typ string, cfg Config) (*Capture, error) {
	base := ffwork.Config{Width: cfg.Width, Height: cfg.Height, FPS: cfg.FPS}
	switch typ {
	case TypePiCamera:
		base.Input = ffwork.PiCameraInput(cfg.PiCameraBin, cfg.Width, cfg.Height, cfg.FPS)
	case TypeUSB:
		base.Input = cfg.ffmpeg(ffwork.V4L2Input(cfg.device(), cfg.Width, cfg.Height, cfg.FPS))
	case TypeRTSP:
		if cfg.URL == "" {
			return nil, fmt.Errorf("rtsp camera requires url")
		}
		base.Input = cfg.ffmpeg(ffwork.RTSPInput(cfg.URL, "tcp"))
	case TypeOnvif:
		uri, dev, err := onvifadapter.ResolveStreamURI(ctx, cfg.Onvif)
		if err != nil {
			return nil, err
		}
		base.Input = cfg.ffmpeg(ffwork.RTSPInput(uri, "tcp"))
		c := NewCapture(typ, base)
		c.onvif = dev
		return c, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	return NewCapture(typ, base), nil
}

// Open 按配置打开采集源
// picamera 打开失败且允许回退时改用 usb，之后只有 Type 体现实际来源
func Open(ctx context.Context, cfg Config) (*Capture, error) {
	c, err := openType(ctx, cfg.Type, cfg)
	if err == nil {
		return c, nil
	}
	if cfg.Type != TypePiCamera || !cfg.Fallback {
		return nil, err
	}
	slog.Warn("picamera unavailable, falling back to usb", "device", cfg.device(), "err", err)
	return openType(ctx, TypeUSB, cfg)
}

func openType(ctx context.Context, typ string, cfg Config) (*Capture, error) {
	c, err := newByType(ctx, typ, cfg)
	if err != nil {
		return nil, err
	}
	if err := c.Open(ctx); err != nil {
		return nil, err
	}
	if c.onvif != nil {
		kctx, cancel := context.WithCancel(context.Background())
		c.keepalive = cancel
		go c.onvif.Keepalive(kctx)
	}
	return c, nil
}
