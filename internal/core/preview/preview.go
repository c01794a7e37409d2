// Package preview 最新画面的发布与 JPEG 编码
package preview

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"sync"

	"github.com/gowvp/edgecam/internal/core/frame"
)

// ErrNoFrame 尚未收到任何画面
var ErrNoFrame = errors.New("no frame yet")

// DefaultQuality 默认 JPEG 质量
const DefaultQuality = 75

// Hub 保存最新一帧，编码结果按帧缓存
type Hub struct {
	quality int

	mu      sync.Mutex
	latest  frame.Frame
	encoded []byte
	encSeq  uint64
	waiters []chan struct{}
}

// NewHub quality<=0 时使用默认值
func NewHub(quality int) *Hub {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &Hub{quality: quality}
}

// Publish 替换最新帧并唤醒等待者，不阻塞
func (h *Hub) Publish(f frame.Frame) {
	h.mu.Lock()
	h.latest = f
	h.encoded = nil
	waiters := h.waiters
	h.waiters = nil
	h.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
}

// Latest 最新帧
func (h *Hub) Latest() (frame.Frame, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest, !h.latest.IsZero()
}

// JPEG 最新帧的 JPEG 编码，同一帧只编码一次
func (h *Hub) JPEG() ([]byte, uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest.IsZero() {
		return nil, 0, ErrNoFrame
	}
	if h.encoded != nil && h.encSeq == h.latest.Seq {
		return h.encoded, h.encSeq, nil
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, h.latest.YCbCr(), &jpeg.Options{Quality: h.quality}); err != nil {
		return nil, 0, err
	}
	h.encoded, h.encSeq = buf.Bytes(), h.latest.Seq
	return h.encoded, h.encSeq, nil
}

// Wait 阻塞到下一次 Publish 或 ctx 结束
func (h *Hub) Wait(ctx context.Context) error {
	ch := make(chan struct{})
	h.mu.Lock()
	h.waiters = append(h.waiters, ch)
	h.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		h.mu.Lock()
		for i, w := range h.waiters {
			if w == ch {
				h.waiters = append(h.waiters[:i], h.waiters[i+1:]...)
				break
			}
		}
		h.mu.Unlock()
		return ctx.Err()
	}
}

// EncodeJPEG 单帧编码，用于识别快照
func EncodeJPEG(f frame.Frame, quality int) ([]byte, error) {
	if f.IsZero() {
		return nil, ErrNoFrame
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, f.YCbCr(), &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
