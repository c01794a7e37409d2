package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gowvp/edgecam/internal/core/event"
	"github.com/gowvp/edgecam/internal/core/recording"
	"github.com/ixugo/goddd/pkg/web"
)

// ClipAPI 片段历史与识别事件
type ClipAPI struct {
	recordingCore recording.Core
	eventCore     event.Core
}

func NewClipAPI(r recording.Core, e event.Core) ClipAPI {
	return ClipAPI{recordingCore: r, eventCore: e}
}

func registerClips(g gin.IRouter, api ClipAPI, handler ...gin.HandlerFunc) {
	group := g.Group("/clips", handler...)
	group.GET("", web.WrapH(api.findClips))
	group.GET("/latest", web.WrapH(api.getLatestClip))
	group.GET("/:id", web.WrapH(api.getClip))
	group.GET("/:id/events", web.WrapH(api.findClipEvents))
	group.GET("/:id/download", api.downloadClip)
}

// findClips 分页查询片段历史
func (a ClipAPI) findClips(c *gin.Context, in *recording.FindRecordingInput) (any, error) {
	items, total, err := a.recordingCore.FindRecordings(c.Request.Context(), in)
	return gin.H{"items": items, "total": total}, err
}

func (a ClipAPI) getLatestClip(c *gin.Context, _ *struct{}) (*recording.Recording, error) {
	return a.recordingCore.GetLatestRecording(c.Request.Context())
}

func (a ClipAPI) getClip(c *gin.Context, _ *struct{}) (*recording.Recording, error) {
	id, _ := strconv.ParseInt(c.Param("id"), 10, 64)
	return a.recordingCore.GetRecording(c.Request.Context(), id)
}

// findClipEvents 片段内的识别事件，按置信度降序
func (a ClipAPI) findClipEvents(c *gin.Context, in *event.FindEventInput) (any, error) {
	in.RecordingID, _ = strconv.ParseInt(c.Param("id"), 10, 64)
	items, total, err := a.eventCore.FindEvents(c.Request.Context(), in)
	return gin.H{"items": items, "total": total}, err
}

// downloadClip 仅未上传的片段在本地保留文件
func (a ClipAPI) downloadClip(c *gin.Context) {
	id, _ := strconv.ParseInt(c.Param("id"), 10, 64)
	rec, err := a.recordingCore.GetRecording(c.Request.Context(), id)
	if err != nil {
		web.Fail(c, err)
		return
	}
	path := a.recordingCore.GetFullPath(rec.Path)
	if _, err := os.Stat(path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"msg": "clip file not found", "status": rec.Status})
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}
