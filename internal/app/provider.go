package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/google/wire"
	"github.com/gowvp/edgecam/internal/adapter/awsadapter"
	"github.com/gowvp/edgecam/internal/adapter/camera"
	"github.com/gowvp/edgecam/internal/adapter/mqttadapter"
	"github.com/gowvp/edgecam/internal/adapter/onvifadapter"
	"github.com/gowvp/edgecam/internal/conf"
	"github.com/gowvp/edgecam/internal/core/clip"
	"github.com/gowvp/edgecam/internal/core/credential"
	"github.com/gowvp/edgecam/internal/core/delivery"
	"github.com/gowvp/edgecam/internal/core/event"
	"github.com/gowvp/edgecam/internal/core/motion"
	"github.com/gowvp/edgecam/internal/core/pipeline"
	"github.com/gowvp/edgecam/internal/core/preview"
	"github.com/gowvp/edgecam/internal/core/recording"
	"github.com/gowvp/edgecam/internal/core/recording/adapter"
	"github.com/gowvp/edgecam/internal/core/tagging"
	"github.com/gowvp/edgecam/internal/core/telemetry"
	"github.com/gowvp/edgecam/internal/rpc"
	"github.com/gowvp/edgecam/pkg/ffwork"
)

var ProviderSet = wire.NewSet(
	NewCamera, NewScorer, NewRecorder, NewTagger,
	NewAWSConfig, NewCredentialManager, NewUploader,
	NewTelemetry, NewPreviewHub, NewHistory, NewPipeline,
	wire.Struct(new(App), "*"),
)

// NewCamera 打开采集源，picamera 失败时按配置回退到 usb
func NewCamera(ctx context.Context, bc *conf.Bootstrap) (*camera.Capture, func(), error) {
	c := bc.Camera
	cam, err := camera.Open(ctx, camera.Config{
		Type:     c.Type,
		Index:    c.Index,
		Device:   c.Device,
		URL:      c.URL,
		Width:    c.Width,
		Height:   c.Height,
		FPS:      c.FPS,
		Fallback: c.Fallback,
		Onvif: onvifadapter.Config{
			Addr:     c.Onvif.Addr,
			Username: c.Onvif.Username,
			Password: c.Onvif.Password,
			Profile:  c.Onvif.Profile,
		},
		FFmpegBin:   c.FFmpegBin,
		PiCameraBin: c.PiCameraBin,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", pipeline.ErrDevice, err)
	}
	slog.Info("camera opened", "type", cam.Type(), "width", c.Width, "height", c.Height, "fps", c.FPS)
	return cam, func() {
		if err := cam.Close(); err != nil {
			slog.Warn("close camera", "err", err)
		}
	}, nil
}

// NewScorer 运动评分
func NewScorer(bc *conf.Bootstrap) (*motion.Scorer, error) {
	m := bc.Motion
	return motion.NewScorer(motion.Config{
		MinArea:          m.MinArea,
		BlurKernel:       m.BlurKernel,
		Threshold:        m.Threshold,
		DilateIterations: m.DilateIterations,
	})
}

// NewRecorder 文件名中的采集源取实际打开的类型
func NewRecorder(bc *conf.Bootstrap, cam *camera.Capture) (*clip.Recorder, error) {
	if err := os.MkdirAll(bc.Clip.Dir, 0o755); err != nil {
		return nil, err
	}
	retain := 0
	if bc.Tagging.Enabled {
		retain = bc.Tagging.SampleRate
	}
	return clip.NewRecorder(clip.Config{
		Dir:         bc.Clip.Dir,
		FPS:         bc.Clip.FPS,
		Ext:         bc.Clip.Ext,
		SourceType:  cam.Type(),
		RetainEvery: retain,
	}, camera.NewClipEncoder(bc.Camera.FFmpegBin, bc.Clip.Ext)), nil
}

// NewTagger 识别后端不可用时返回不做识别的 Tagger
func NewTagger(ctx context.Context, bc *conf.Bootstrap) *tagging.Tagger {
	t := bc.Tagging
	return tagging.NewTagger(rpc.NewClassifier(ctx, rpc.Config{
		Enabled:   t.Enabled,
		Backend:   t.Backend,
		Addr:      t.Addr,
		WorkerCmd: t.WorkerCmd,
		Timeout:   t.Timeout.Duration(),
	}))
}

func awsConfig(bc *conf.Bootstrap) awsadapter.Config {
	u := bc.Upload
	return awsadapter.Config{
		Region:          u.Region,
		AccessKeyID:     u.AccessKeyID,
		SecretAccessKey: u.SecretAccessKey,
		RoleARN:         u.RoleARN,
		SessionName:     u.SessionName,
	}
}

// NewAWSConfig 基础凭证，用于 STS 调用或直接上传
func NewAWSConfig(ctx context.Context, bc *conf.Bootstrap) (aws.Config, error) {
	return awsadapter.LoadConfig(ctx, awsConfig(bc))
}

// NewCredentialManager 配置了 role_arn 时使用 AssumeRole，否则使用静态凭证
// 未开启上传时返回 nil
func NewCredentialManager(bc *conf.Bootstrap, base aws.Config) *credential.Manager {
	u := bc.Upload
	if !u.Enabled || !u.OnMotion {
		return nil
	}
	var provider credential.Provider = credential.Static{Lease: credential.Lease{
		AccessKeyID:     u.AccessKeyID,
		SecretAccessKey: u.SecretAccessKey,
	}}
	if u.RoleARN != "" {
		provider = credential.AssumeRole{
			Broker:      awsadapter.NewSTSBroker(base),
			RoleARN:     u.RoleARN,
			SessionName: u.SessionName,
			Duration:    credential.DefaultLeaseDuration,
		}
	}
	return credential.NewManager(provider)
}

// NewUploader 未开启上传时返回 nil，片段保留在本地
func NewUploader(ctx context.Context, bc *conf.Bootstrap, creds *credential.Manager, base aws.Config) (*delivery.Client, error) {
	if creds == nil {
		return nil, nil
	}
	return delivery.NewClient(ctx, delivery.Config{
		Bucket:    bc.Upload.Bucket,
		KeyPrefix: bc.Upload.KeyPrefix,
	}, creds, awsadapter.NewStoreFactory(base))
}

// NewTelemetry 未开启时返回 nil
func NewTelemetry(ctx context.Context, bc *conf.Bootstrap, buf *telemetry.Buffer) (*telemetry.Client, func(), error) {
	t := bc.Telemetry
	if !t.Enabled {
		return nil, func() {}, nil
	}
	var (
		metrics telemetry.MetricSink
		logs    telemetry.LogSink
		cleanup = func() {}
	)
	switch t.Backend {
	case "mqtt":
		sink, err := mqttadapter.Connect(ctx, mqttadapter.Config{
			Broker:       t.MQTT.Broker,
			ClientID:     t.MQTT.ClientID,
			Topic:        t.MQTT.Topic,
			Username:     t.MQTT.Username,
			Password:     t.MQTT.Password,
			StreamPrefix: t.LogStreamPrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		metrics, logs, cleanup = sink, sink, sink.Close
	case "cloudwatch":
		cfg, err := awsadapter.LoadTelemetryConfig(ctx, awsConfig(bc))
		if err != nil {
			return nil, nil, err
		}
		metrics = awsadapter.NewMetricSink(cfg, t.Namespace)
		logs = awsadapter.NewLogSink(cfg, t.LogGroup, t.LogStreamPrefix)
	default:
		return nil, nil, fmt.Errorf("unknown telemetry backend %q", t.Backend)
	}

	opts := []telemetry.Option{}
	if buf != nil {
		opts = append(opts, telemetry.WithLogBuffer(buf))
	}
	c := telemetry.NewClient(telemetry.Config{
		QueueSize:         t.QueueSize,
		FlushInterval:     t.FlushInterval.Duration(),
		HeartbeatInterval: t.HeartbeatInterval.Duration(),
		DiskPath:          bc.Clip.Dir,
	}, metrics, logs, opts...)
	return c, cleanup, nil
}

// NewPreviewHub 实时画面
func NewPreviewHub() *preview.Hub {
	return preview.NewHub(preview.DefaultQuality)
}

// NewHistory 片段历史与识别事件
func NewHistory(r recording.Core, e event.Core) pipeline.History {
	return adapter.NewHistoryAdapter(r, e)
}

// NewPipeline 组装主循环，nil 组件对应的能力关闭
func NewPipeline(
	bc *conf.Bootstrap,
	cam *camera.Capture,
	scorer *motion.Scorer,
	recorder *clip.Recorder,
	tagger *tagging.Tagger,
	uploader *delivery.Client,
	tel *telemetry.Client,
	hub *preview.Hub,
	history pipeline.History,
) *pipeline.Orchestrator {
	opts := []pipeline.Option{
		pipeline.WithHistory(history),
		pipeline.WithPreview(hub),
	}
	if tagger.Enabled() {
		opts = append(opts, pipeline.WithTagger(tagger))
	}
	if uploader != nil {
		opts = append(opts, pipeline.WithUploader(uploader))
	}
	if bc.Clip.Transcode {
		opts = append(opts, pipeline.WithTranscoder(ffwork.Transcoder{
			Bin:     bc.Camera.FFmpegBin,
			Timeout: bc.Clip.TranscodeTimeout.Duration(),
		}))
	}
	if tel != nil {
		opts = append(opts, pipeline.WithMetrics(tel))
	}
	return pipeline.New(pipeline.Config{
		ClipDuration:  bc.Clip.Duration.Duration(),
		FrameInterval: bc.Clip.FrameInterval.Duration(),
		TagSampleRate: bc.Tagging.SampleRate,
		SaveClips:     bc.Clip.Enabled,
	}, cam, scorer, recorder, opts...)
}
