// Package clip 运动片段录制，同一时刻最多一个打开的片段
package clip

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gowvp/edgecam/internal/core/frame"
	"github.com/jonboulle/clockwork"
)

var (
	// ErrClipOpen 已有片段在录制
	ErrClipOpen = errors.New("clip already open")
	// ErrNoClip 没有正在录制的片段
	ErrNoClip = errors.New("no open clip")
	// ErrEncoderOpen 编码器无法打开，片段放弃且不重试
	ErrEncoderOpen = errors.New("encoder open failed")
)

// Encoder 视频编码能力
type Encoder interface {
	Open(path string, fps, width, height int) (Writer, error)
}

// Writer 已打开的编码输出
type Writer interface {
	Write(frame.Frame) error
	Close() error
}

// Config 录制参数
type Config struct {
	Dir         string
	FPS         int
	Ext         string
	SourceType  string
	RetainEvery int // 每 N 帧保留一帧用于识别，0 表示不保留
}

// State 片段状态
type State int

const (
	StateOpen State = iota + 1
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Clip 正在录制的片段
type Clip struct {
	ID        string
	Path      string
	State     State
	StartedAt time.Time
	Width     int
	Height    int
	Written   int // 成功写入的帧数
	Attempted int // 送入的帧数

	writer   Writer
	retained []frame.Indexed
}

// Result 关闭后的片段
type Result struct {
	ID        string
	Path      string
	StartedAt time.Time
	Duration  time.Duration // 墙钟时长，从 Start 到 Stop
	Frames    int           // 实际写入的帧数
	Dropped   int
	Retained  []frame.Indexed
}

// Recorder 片段录制器，仅供主循环单协程使用
type Recorder struct {
	cfg     Config
	encoder Encoder
	clock   clockwork.Clock
	log     *slog.Logger
	current *Clip
}

type Option func(*Recorder)

// WithClock 注入时钟，测试中使用 fake clock
func WithClock(clock clockwork.Clock) Option {
	return func(r *Recorder) {
		r.clock = clock
	}
}

// NewRecorder 创建录制器
func NewRecorder(cfg Config, encoder Encoder, opts ...Option) *Recorder {
	if cfg.FPS <= 0 {
		cfg.FPS = 20
	}
	if cfg.Ext == "" {
		cfg.Ext = "mp4"
	}
	r := Recorder{
		cfg:     cfg,
		encoder: encoder,
		clock:   clockwork.NewRealClock(),
		log:     slog.With("component", "clip"),
	}
	for _, opt := range opts {
		opt(&r)
	}
	return &r
}

// IsOpen 是否有片段在录制
func (r *Recorder) IsOpen() bool {
	return r.current != nil
}

// Current 当前片段，没有时返回 nil
func (r *Recorder) Current() *Clip {
	return r.current
}

// Start 以首帧尺寸打开片段并写入首帧
func (r *Recorder) Start(first frame.Frame) (string, error) {
	if r.current != nil {
		return "", ErrClipOpen
	}
	if err := os.MkdirAll(r.cfg.Dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %w", ErrEncoderOpen, err)
	}

	now := r.clock.Now()
	id := now.Format(IDLayout)
	path := filepath.Join(r.cfg.Dir, ArtifactName(now, r.cfg.SourceType, r.cfg.Ext))
	w, err := r.encoder.Open(path, r.cfg.FPS, first.Width, first.Height)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEncoderOpen, err)
	}

	c := &Clip{
		ID:        id,
		Path:      path,
		State:     StateOpen,
		StartedAt: now,
		Width:     first.Width,
		Height:    first.Height,
		writer:    w,
	}
	// 首帧写不进去说明编码进程已退出
	if err := r.write(c, first); err != nil {
		_ = w.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("%w: %w", ErrEncoderOpen, err)
	}
	r.current = c
	r.log.Info("clip started", "id", id, "path", path, "size", fmt.Sprintf("%dx%d", first.Width, first.Height))
	return id, nil
}

// AddFrame 写入一帧，没有打开的片段时静默忽略
func (r *Recorder) AddFrame(f frame.Frame) {
	c := r.current
	if c == nil {
		return
	}
	if err := r.write(c, f); err != nil && c.Attempted-c.Written == 1 {
		r.log.Warn("clip write failed", "id", c.ID, "index", c.Attempted-1, "err", err)
	}
}

func (r *Recorder) write(c *Clip, f frame.Frame) error {
	index := c.Attempted
	c.Attempted++

	if f.Width != c.Width || f.Height != c.Height {
		r.log.Warn("frame size changed during clip", "id", c.ID, "index", index)
		return nil
	}
	if err := c.writer.Write(f); err != nil {
		return err
	}
	c.Written++

	if every := r.cfg.RetainEvery; every > 0 && index%every == 0 {
		c.retained = append(c.retained, frame.Indexed{Index: index, Frame: f})
	}
	return nil
}

// Stop 关闭片段，返回实际写入的帧数与墙钟时长
// 编码器关闭失败时仍返回结果，片段视为已关闭
func (r *Recorder) Stop() (Result, error) {
	c := r.current
	if c == nil {
		return Result{}, ErrNoClip
	}
	r.current = nil
	c.State = StateClosed

	out := Result{
		ID:        c.ID,
		Path:      c.Path,
		StartedAt: c.StartedAt,
		Duration:  r.clock.Since(c.StartedAt),
		Frames:    c.Written,
		Dropped:   c.Attempted - c.Written,
		Retained:  c.retained,
	}
	err := c.writer.Close()
	r.log.Info("clip stopped",
		"id", c.ID,
		"frames", out.Frames,
		"dropped", out.Dropped,
		"duration", out.Duration,
		"retained", len(out.Retained),
	)
	if err != nil {
		return out, fmt.Errorf("close encoder: %w", err)
	}
	return out, nil
}
