package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/wire"
	"github.com/gowvp/edgecam/internal/conf"
	"github.com/gowvp/edgecam/internal/core/event"
	"github.com/gowvp/edgecam/internal/core/event/store/eventdb"
	"github.com/gowvp/edgecam/internal/core/recording"
	"github.com/gowvp/edgecam/internal/core/recording/store/recordingdb"
	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/web"
	"gorm.io/gorm"
)

var ProviderSet = wire.NewSet(
	wire.Struct(new(Usecase), "*"),
	NewHTTPHandler,
	NewRecordingStore, NewRecordingCore, NewClipAPI,
	NewEventStore, NewEventCore,
	NewPreviewAPI,
	NewStatusAPI,
)

type Usecase struct {
	Conf       *conf.Bootstrap
	ClipAPI    ClipAPI
	PreviewAPI PreviewAPI
	StatusAPI  StatusAPI
}

// NewHTTPHandler 生成Gin框架路由内容
func NewHTTPHandler(uc *Usecase) http.Handler {
	cfg := uc.Conf.Server
	if !uc.Conf.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	g := gin.New()
	g.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{"msg": "not found"})
	})
	if cfg.HTTP.PProf.Enabled {
		web.SetupPProf(g, &cfg.HTTP.PProf.AccessIps)
	}
	setupRouter(g, uc)
	return g
}

// NewRecordingStore 片段历史存储
func NewRecordingStore(db *gorm.DB) recording.Storer {
	return recordingdb.NewDB(db).AutoMigrate(orm.GetEnabledAutoMigrate())
}

// NewRecordingCore 片段历史，清理协程由 app 随主上下文启动
func NewRecordingCore(store recording.Storer, bc *conf.Bootstrap) recording.Core {
	return recording.NewCore(store, recording.WithConfig(&recording.Config{
		Dir:                bc.Clip.Dir,
		RetainDays:         bc.Clip.RetainDays,
		DiskUsageThreshold: bc.Clip.DiskUsageThreshold,
	}))
}

// NewEventStore 识别事件存储
func NewEventStore(db *gorm.DB) event.Storer {
	return eventdb.NewDB(db).AutoMigrate(orm.GetEnabledAutoMigrate())
}

// NewEventCore 快照保存在片段目录下的 snapshots
func NewEventCore(store event.Storer, bc *conf.Bootstrap) event.Core {
	return event.NewCore(store, SnapshotDir(bc))
}
