// Package pipeline 采集、检测、录制、识别、上传的主循环
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/gowvp/edgecam/internal/core/clip"
	"github.com/gowvp/edgecam/internal/core/delivery"
	"github.com/gowvp/edgecam/internal/core/frame"
	"github.com/gowvp/edgecam/internal/core/motion"
	"github.com/gowvp/edgecam/internal/core/tagging"
	"github.com/gowvp/edgecam/internal/core/telemetry"
	"github.com/jonboulle/clockwork"
)

var (
	// ErrDevice 采集设备读取失败，主循环终止
	ErrDevice = errors.New("capture device failed")
	// ErrDelivery 片段上传失败，主循环终止，本地文件保留
	ErrDelivery = errors.New("clip delivery failed")
)

// State 主循环状态
type State int32

const (
	StateWaiting State = iota
	StateRecording
	StateProcessing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateRecording:
		return "recording"
	case StateProcessing:
		return "processing"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Source 已打开的采集源
type Source interface {
	Read(ctx context.Context) (frame.Frame, error)
	Type() string
}

// Scorer 运动评分
type Scorer interface {
	Score(frame.Frame) motion.Score
	ResetBackground(frame.Frame)
}

// Recorder 片段录制
type Recorder interface {
	Start(first frame.Frame) (string, error)
	AddFrame(frame.Frame)
	Stop() (clip.Result, error)
}

// Tagger 目标识别
type Tagger interface {
	Tag(ctx context.Context, frames []frame.Indexed, sampleRate int) tagging.TagSet
}

// Uploader 片段上传
type Uploader interface {
	Upload(ctx context.Context, path, key string, meta map[string]any) (delivery.Record, error)
}

// Transcoder 片段转码，失败时原文件保持不变
type Transcoder interface {
	Transcode(ctx context.Context, path string) (string, error)
}

// History 片段处理结果的持久化
type History interface {
	Save(ctx context.Context, r Report) error
}

// Preview 实时画面发布
type Preview interface {
	Publish(frame.Frame)
}

// Config 主循环参数
type Config struct {
	ClipDuration  time.Duration // 录制窗口，从触发开始计算
	FrameInterval time.Duration // 两次读帧之间的间隔，0 表示不等待
	TagSampleRate int
	SaveClips     bool // 关闭时只检测不录制
}

// Report 一个片段的处理结果
type Report struct {
	Clip        clip.Result
	Source      string
	Path        string // 最终文件路径，转码成功后为转码文件
	Size        int64
	Transcoded  bool
	Trigger     motion.Score
	Tags        tagging.TagSet
	Upload      *delivery.Record // 未开启上传时为 nil
	Removed     bool             // 上传成功后本地文件已删除
	Interrupted bool             // 录制或处理被关机中断，未上传
	Err         error
}

// Stats 运行统计
type Stats struct {
	State           string    `json:"state"`
	Source          string    `json:"source"`
	FramesRead      uint64    `json:"frames_read"`
	MotionEvents    uint64    `json:"motion_events"`
	ClipsRecorded   uint64    `json:"clips_recorded"`
	ClipsUploaded   uint64    `json:"clips_uploaded"`
	UploadFailures  uint64    `json:"upload_failures"`
	EncoderFailures uint64    `json:"encoder_failures"`
	TranscodeFailed uint64    `json:"transcode_failed"`
	LastClipAt      time.Time `json:"last_clip_at"`
}

// Orchestrator 主循环，Run 只能在单个协程中调用
type Orchestrator struct {
	cfg        Config
	src        Source
	scorer     Scorer
	recorder   Recorder
	tagger     Tagger
	uploader   Uploader
	transcoder Transcoder
	history    History
	preview    Preview
	metrics    telemetry.Emitter
	clock      clockwork.Clock
	log        *slog.Logger

	state           atomic.Int32
	framesRead      atomic.Uint64
	motionEvents    atomic.Uint64
	clipsRecorded   atomic.Uint64
	clipsUploaded   atomic.Uint64
	uploadFailures  atomic.Uint64
	encoderFailures atomic.Uint64
	transcodeFailed atomic.Uint64
	lastClipAt      atomic.Int64
}

type Option func(*Orchestrator)

// WithClock 注入时钟
func WithClock(clock clockwork.Clock) Option {
	return func(o *Orchestrator) { o.clock = clock }
}

// WithTagger 启用目标识别
func WithTagger(t Tagger) Option {
	return func(o *Orchestrator) { o.tagger = t }
}

// WithUploader 启用上传，未设置时片段保留在本地
func WithUploader(u Uploader) Option {
	return func(o *Orchestrator) { o.uploader = u }
}

// WithTranscoder 启用转码
func WithTranscoder(t Transcoder) Option {
	return func(o *Orchestrator) { o.transcoder = t }
}

// WithHistory 记录片段历史
func WithHistory(h History) Option {
	return func(o *Orchestrator) { o.history = h }
}

// WithPreview 发布实时画面
func WithPreview(p Preview) Option {
	return func(o *Orchestrator) { o.preview = p }
}

// WithMetrics 指标上报
func WithMetrics(m telemetry.Emitter) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New 创建主循环
func New(cfg Config, src Source, scorer Scorer, recorder Recorder, opts ...Option) *Orchestrator {
	if cfg.TagSampleRate <= 0 {
		cfg.TagSampleRate = tagging.DefaultSampleRate
	}
	o := Orchestrator{
		cfg:      cfg,
		src:      src,
		scorer:   scorer,
		recorder: recorder,
		metrics:  telemetry.Discard{},
		clock:    clockwork.NewRealClock(),
		log:      slog.With("component", "pipeline"),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &o
}

// State 当前状态
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

func (o *Orchestrator) setState(s State) {
	if prev := State(o.state.Swap(int32(s))); prev != s {
		o.log.Debug("state changed", "from", prev, "to", s)
	}
}

// Stats 运行统计快照，可在任意协程调用
func (o *Orchestrator) Stats() Stats {
	s := Stats{
		State:           o.State().String(),
		Source:          o.src.Type(),
		FramesRead:      o.framesRead.Load(),
		MotionEvents:    o.motionEvents.Load(),
		ClipsRecorded:   o.clipsRecorded.Load(),
		ClipsUploaded:   o.clipsUploaded.Load(),
		UploadFailures:  o.uploadFailures.Load(),
		EncoderFailures: o.encoderFailures.Load(),
		TranscodeFailed: o.transcodeFailed.Load(),
	}
	if ms := o.lastClipAt.Load(); ms > 0 {
		s.LastClipAt = time.UnixMilli(ms)
	}
	return s
}

// Run 运行主循环，直到 ctx 取消或出现致命错误
// ctx 取消时返回 nil，设备故障返回 ErrDevice，上传失败返回 ErrDelivery
func (o *Orchestrator) Run(ctx context.Context) error {
	defer o.setState(StateStopped)
	o.setState(StateWaiting)
	o.log.Info("waiting for motion", "source", o.src.Type(), "save_clips", o.cfg.SaveClips)

	for {
		if ctx.Err() != nil {
			o.log.Info("shutdown requested")
			return nil
		}
		f, err := o.read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		score := o.scorer.Score(f)
		if score.Detected && o.cfg.SaveClips {
			if err := o.handleMotion(ctx, f, score); err != nil {
				return err
			}
		}
		o.pace(ctx)
	}
}

func (o *Orchestrator) read(ctx context.Context) (frame.Frame, error) {
	f, err := o.src.Read(ctx)
	if err != nil {
		return frame.Frame{}, fmt.Errorf("%w: %w", ErrDevice, err)
	}
	o.framesRead.Add(1)
	if o.preview != nil {
		o.preview.Publish(f)
	}
	return f, nil
}

func (o *Orchestrator) pace(ctx context.Context) {
	if o.cfg.FrameInterval <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-o.clock.After(o.cfg.FrameInterval):
	}
}

// handleMotion 录制固定时长的片段并处理
// 返回的错误都是致命错误
func (o *Orchestrator) handleMotion(ctx context.Context, first frame.Frame, score motion.Score) error {
	o.motionEvents.Add(1)
	o.metrics.PutMetric(telemetry.MetricMotionDetected, 1, telemetry.UnitCount)
	o.log.InfoContext(ctx, "motion detected", "score", score.Score, "max_area", score.MaxArea, "regions", score.Regions)

	id, err := o.recorder.Start(first)
	if err != nil {
		o.encoderFailures.Add(1)
		o.metrics.PutMetric(telemetry.MetricEncoderOpenFailed, 1, telemetry.UnitCount)
		o.log.ErrorContext(ctx, "clip abandoned", "err", err)
		return nil
	}
	o.setState(StateRecording)
	log := o.log.With("clip", id)

	start := o.clock.Now()
	var deviceErr error
	for o.clock.Since(start) < o.cfg.ClipDuration {
		if ctx.Err() != nil {
			break
		}
		f, err := o.read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				deviceErr = err
				log.ErrorContext(ctx, "frame read failed during recording", "err", err)
			}
			break
		}
		o.recorder.AddFrame(f)
		o.pace(ctx)
	}

	o.setState(StateProcessing)
	res, err := o.recorder.Stop()
	if fileSize(res.Path) == 0 {
		o.abandon(ctx, res, err)
		if deviceErr != nil {
			return deviceErr
		}
		o.setState(StateWaiting)
		return nil
	}
	if err != nil {
		log.WarnContext(ctx, "clip close reported error", "err", err)
	}
	o.clipsRecorded.Add(1)
	o.lastClipAt.Store(res.StartedAt.UnixMilli())
	o.metrics.PutMetric(telemetry.MetricClipRecorded, 1, telemetry.UnitCount)
	log.InfoContext(ctx, "recording complete", "frames", res.Frames, "duration", res.Duration)

	if ctx.Err() != nil {
		o.keepInterrupted(res, score)
		return nil
	}
	if err := o.process(ctx, res, score); err != nil {
		return err
	}
	if deviceErr != nil {
		return deviceErr
	}

	// 用新读取的帧重置背景，避免片段结束后立即误触发
	f, err := o.read(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	o.scorer.ResetBackground(f)
	o.setState(StateWaiting)
	log.InfoContext(ctx, "motion event processing complete, resuming detection")
	return nil
}

// abandon 编码进程没有产出文件，按编码器打开失败处理
func (o *Orchestrator) abandon(ctx context.Context, res clip.Result, closeErr error) {
	if err := os.Remove(res.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		o.log.WarnContext(ctx, "failed to remove empty artifact", "path", res.Path, "err", err)
	}
	o.encoderFailures.Add(1)
	o.metrics.PutMetric(telemetry.MetricEncoderOpenFailed, 1, telemetry.UnitCount)
	o.log.ErrorContext(ctx, "clip abandoned, encoder produced no output",
		"clip", res.ID,
		"attempted", res.Frames+res.Dropped,
		"err", errors.Join(clip.ErrEncoderOpen, closeErr),
	)
}

// keepInterrupted 关机时录制中的片段只落库，不转码不上传
func (o *Orchestrator) keepInterrupted(res clip.Result, score motion.Score) {
	o.keepReport(Report{
		Clip:    res,
		Source:  o.src.Type(),
		Path:    res.Path,
		Size:    fileSize(res.Path),
		Trigger: score,
	})
}

// keepReport ctx 已取消，历史记录改用独立 ctx 写入
func (o *Orchestrator) keepReport(r Report) {
	r.Interrupted = true
	o.log.Warn("clip interrupted by shutdown, kept locally", "clip", r.Clip.ID, "path", r.Path)
	o.save(context.Background(), r)
}

func (o *Orchestrator) save(ctx context.Context, r Report) {
	if o.history == nil {
		return
	}
	if err := o.history.Save(ctx, r); err != nil {
		o.log.WarnContext(ctx, "failed to save clip history", "clip", r.Clip.ID, "err", err)
	}
}
