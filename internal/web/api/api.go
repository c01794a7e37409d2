package api

import (
	"log/slog"
	"net/http"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gowvp/edgecam/internal/conf"
	"github.com/ixugo/goddd/pkg/web"
)

var startRuntime = time.Now()

// SnapshotDir 识别快照目录
func SnapshotDir(bc *conf.Bootstrap) string {
	return filepath.Join(bc.Clip.Dir, "snapshots")
}

func setupRouter(r *gin.Engine, uc *Usecase) {
	r.Use(
		gin.CustomRecovery(func(c *gin.Context, err any) {
			slog.ErrorContext(c.Request.Context(), "panic", "err", err, "stack", string(debug.Stack()))
			c.AbortWithStatus(http.StatusInternalServerError)
		}),
		web.Metrics(),
		web.Logger(
			web.IgnoreMethod(http.MethodOptions),
			web.IgnorePrefix("/preview"),
			web.IgnorePrefix("/static"),
			web.IgnorePrefix("/health"),
		),
	)

	r.Use(cors.New(cors.Config{
		AllowMethods: []string{"GET", "HEAD", "OPTIONS"},
		AllowHeaders: []string{
			"Accept", "Content-Length", "Content-Type", "Range", "Accept-Language",
			"Origin", "Referer", "User-Agent", "Accept-Encoding", "Cache-Control",
		},
		MaxAge: 12 * time.Hour,
		AllowOriginFunc: func(_ string) bool {
			return true
		},
	}))

	r.GET("/health", web.WrapH(uc.StatusAPI.getHealth))
	registerPreview(r, uc.PreviewAPI)

	// 预览流不能压缩，只对 json 接口启用 gzip
	group := r.Group("", gzip.Gzip(gzip.DefaultCompression))
	group.GET("/stats", web.WrapH(uc.StatusAPI.getStats))
	registerClips(group, uc.ClipAPI)

	r.Static("/static/snapshots", SnapshotDir(uc.Conf))
}
