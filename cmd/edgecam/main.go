// edgecam 运动检测边缘代理
// 采集摄像头画面，检测到运动后录制固定时长片段，识别目标并上传到对象存储
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gowvp/edgecam/internal/adapter/onvifadapter"
	"github.com/gowvp/edgecam/internal/app"
	"github.com/gowvp/edgecam/internal/conf"
	"github.com/gowvp/edgecam/internal/core/telemetry"
	"github.com/spf13/pflag"
)

var buildVersion = "0.0.1"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		cameraType  string
		cameraIndex int
		showVersion bool
		discover    time.Duration
	)
	flags := pflag.NewFlagSet("edgecam", pflag.ContinueOnError)
	flags.StringVar(&configPath, "conf", "configs/config.toml", "config file, written with defaults when missing")
	flags.StringVar(&cameraType, "camera", "", "camera type: picamera, usb, rtsp, onvif")
	flags.IntVar(&cameraIndex, "camera-index", 0, "usb camera index, /dev/videoN")
	flags.BoolVar(&showVersion, "version", false, "print version and exit")
	flags.DurationVar(&discover, "discover", 0, "discover onvif cameras for the given duration and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Println("edgecam", buildVersion)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if discover > 0 {
		dctx, cancel := context.WithTimeout(ctx, discover)
		defer cancel()
		return onvifadapter.Discover(dctx, os.Stdout)
	}

	bc, err := conf.SetupConfig(configPath)
	if err != nil {
		return err
	}
	bc.BuildVersion = buildVersion
	if cameraType != "" {
		bc.Camera.Type = cameraType
	}
	if flags.Changed("camera-index") {
		bc.Camera.Index = cameraIndex
	}

	buf := setupLog(&bc)
	slog.Info("edgecam starting",
		"version", buildVersion,
		"camera", bc.Camera.Type,
		"upload", bc.Upload.Enabled && bc.Upload.OnMotion,
		"tagging", bc.Tagging.Enabled,
		"telemetry", bc.Telemetry.Enabled,
	)

	if err := app.Run(ctx, &bc, buf); err != nil {
		slog.Error("edgecam stopped", "err", err)
		return err
	}
	slog.Info("edgecam stopped")
	return nil
}

// setupLog 安装全局日志，开启上报时日志同时进入上报缓冲
func setupLog(bc *conf.Bootstrap) *telemetry.Buffer {
	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(bc.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	if bc.Debug {
		level = slog.LevelDebug
	}
	opts := slog.HandlerOptions{Level: level, AddSource: bc.Debug}

	var handler slog.Handler
	if strings.EqualFold(bc.Log.Format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, &opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, &opts)
	}

	var buf *telemetry.Buffer
	if bc.Telemetry.Enabled {
		buf = telemetry.NewBuffer(bc.Telemetry.BufferBytes)
		handler = telemetry.NewLogHandler(handler, buf, slog.LevelInfo)
	}
	slog.SetDefault(slog.New(handler))
	return buf
}
