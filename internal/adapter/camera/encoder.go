package camera

import (
	"github.com/gowvp/edgecam/internal/core/clip"
	"github.com/gowvp/edgecam/internal/core/frame"
	"github.com/gowvp/edgecam/pkg/ffwork"
)

var _ clip.Encoder = ClipEncoder{}

// ClipEncoder 实现 clip.Encoder，帧数据直接写入 ffmpeg
type ClipEncoder struct {
	ffwork.Encoder
}

// NewClipEncoder ext 为 avi 时使用 mpeg4，其余使用 libx264
func NewClipEncoder(bin, ext string) ClipEncoder {
	enc := ffwork.Encoder{Bin: bin}
	if ext == "avi" {
		enc.Codec = "mpeg4"
	}
	return ClipEncoder{Encoder: enc}
}

// Open implements clip.Encoder.
func (e ClipEncoder) Open(path string, fps, width, height int) (clip.Writer, error) {
	w, err := e.Encoder.Open(path, fps, width, height)
	if err != nil {
		return nil, err
	}
	return clipWriter{w}, nil
}

type clipWriter struct {
	w *ffwork.RawWriter
}

func (c clipWriter) Write(f frame.Frame) error {
	return c.w.WriteFrame(f.Data)
}

func (c clipWriter) Close() error {
	return c.w.Close()
}
