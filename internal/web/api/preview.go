package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gowvp/edgecam/internal/core/preview"
)

const mjpegBoundary = "frame"

// PreviewAPI 实时画面
type PreviewAPI struct {
	hub      *preview.Hub
	interval time.Duration // mjpeg 两帧最小间隔
}

func NewPreviewAPI(hub *preview.Hub) PreviewAPI {
	return PreviewAPI{hub: hub, interval: 100 * time.Millisecond}
}

func registerPreview(g gin.IRouter, api PreviewAPI) {
	g.GET("/preview.jpg", api.snapshot)
	g.GET("/preview.mjpeg", api.stream)
}

// snapshot 最新一帧
func (a PreviewAPI) snapshot(c *gin.Context) {
	img, seq, err := a.hub.JPEG()
	if err != nil {
		if errors.Is(err, preview.ErrNoFrame) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"msg": "camera not ready"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"msg": err.Error()})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Header("X-Frame-Seq", strconv.FormatUint(seq, 10))
	c.Data(http.StatusOK, "image/jpeg", img)
}

// stream multipart/x-mixed-replace，客户端断开时退出
func (a PreviewAPI) stream(c *gin.Context) {
	ctx := c.Request.Context()
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)

	var last uint64
	for {
		img, seq, err := a.hub.JPEG()
		if err == nil && seq != last {
			if _, err := fmt.Fprintf(c.Writer, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", mjpegBoundary, len(img)); err != nil {
				return
			}
			if _, err := c.Writer.Write(append(img[:len(img):len(img)], '\r', '\n')); err != nil {
				return
			}
			c.Writer.Flush()
			last = seq
		}
		if err := a.hub.Wait(ctx); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(a.interval):
		}
	}
}
