// Package app 组装采集、检测、录制、识别、上传与上报，并管理后台任务的生命周期
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gowvp/edgecam/internal/adapter/camera"
	"github.com/gowvp/edgecam/internal/conf"
	"github.com/gowvp/edgecam/internal/core/event"
	"github.com/gowvp/edgecam/internal/core/pipeline"
	"github.com/gowvp/edgecam/internal/core/recording"
	"github.com/gowvp/edgecam/internal/core/telemetry"
	"github.com/gowvp/edgecam/internal/data"
	"gorm.io/gorm"
)

// drainTimeout 主循环退出后留给指标与日志发送的时间
const drainTimeout = 10 * time.Second

// App 运行时组件
type App struct {
	Conf       *conf.Bootstrap
	DB         *gorm.DB
	Camera     *camera.Capture
	Pipeline   *pipeline.Orchestrator
	Telemetry  *telemetry.Client
	Recordings recording.Core
	Events     event.Core
	Handler    http.Handler
}

// Run 组装并运行，直到 ctx 取消或主循环出现致命错误
// ctx 取消时返回 nil
func Run(ctx context.Context, bc *conf.Bootstrap, buf *telemetry.Buffer) error {
	app, cleanup, err := wireApp(ctx, bc, buf)
	if err != nil {
		return err
	}
	defer cleanup()
	return app.Run(ctx)
}

// Run 启动后台任务与主循环
func (a *App) Run(ctx context.Context) error {
	if _, err := data.ReconcileClips(ctx, a.DB, a.Conf.Clip.Dir); err != nil {
		slog.Warn("reconcile clips", "err", err)
	}

	// 后台任务在主循环退出后仍需收尾，使用独立的上下文
	bgCtx, cancelBg := context.WithCancel(context.WithoutCancel(ctx))
	var wg sync.WaitGroup
	defer func() {
		cancelBg()
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(drainTimeout):
			slog.Warn("background tasks did not stop in time")
		}
	}()

	if a.Telemetry != nil {
		wg.Go(func() { a.Telemetry.Run(bgCtx) })
		a.Telemetry.PutMetric(telemetry.MetricSystemStartup, 1, telemetry.UnitCount)
	}
	wg.Go(func() { a.Recordings.StartCleanupWorker(bgCtx) })
	wg.Go(func() { a.Events.StartCleanupWorker(bgCtx, a.Conf.Clip.RetainDays) })

	if port := a.Conf.Server.HTTP.Port; port > 0 {
		readTimeout := a.Conf.Server.HTTP.Timeout.Duration()
		if readTimeout <= 0 {
			readTimeout = 10 * time.Second
		}
		srv := http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           a.Handler,
			ReadHeaderTimeout: readTimeout,
			BaseContext:       func(net.Listener) context.Context { return bgCtx },
		}
		wg.Go(func() {
			slog.Info("http server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("http server", "err", err)
			}
		})
		wg.Go(func() {
			<-bgCtx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		})
	}

	err := a.Pipeline.Run(ctx)
	stats := a.Pipeline.Stats()
	slog.Info("pipeline stopped",
		"frames_read", stats.FramesRead,
		"clips_recorded", stats.ClipsRecorded,
		"clips_uploaded", stats.ClipsUploaded,
		"err", err,
	)
	return err
}
