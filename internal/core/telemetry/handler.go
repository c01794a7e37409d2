package telemetry

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// LogHandler 同时写本地日志与上报队列，入队不阻塞
type LogHandler struct {
	next   slog.Handler
	remote slog.Handler
}

var _ slog.Handler = (*LogHandler)(nil)

// NewLogHandler 包装本地 handler，level 及以上的日志以 json 行进入 buf
func NewLogHandler(next slog.Handler, buf *Buffer, level slog.Leveler) *LogHandler {
	return &LogHandler{
		next:   next,
		remote: slog.NewJSONHandler(bufferWriter{buf: buf}, &slog.HandlerOptions{Level: level}),
	}
}

// LocalLogger 去掉上报分支，只写本地
// l 不是 LogHandler 时原样返回
func LocalLogger(l *slog.Logger) *slog.Logger {
	if h, ok := l.Handler().(*LogHandler); ok {
		return slog.New(h.next)
	}
	return l
}

func (h *LogHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.next.Enabled(ctx, l) || h.remote.Enabled(ctx, l)
}

func (h *LogHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.remote.Enabled(ctx, r.Level) {
		_ = h.remote.Handle(ctx, r.Clone())
	}
	if h.next.Enabled(ctx, r.Level) {
		return h.next.Handle(ctx, r)
	}
	return nil
}

func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LogHandler{next: h.next.WithAttrs(attrs), remote: h.remote.WithAttrs(attrs)}
}

func (h *LogHandler) WithGroup(name string) slog.Handler {
	return &LogHandler{next: h.next.WithGroup(name), remote: h.remote.WithGroup(name)}
}

// bufferWriter json handler 每条记录调用一次 Write
type bufferWriter struct {
	buf *Buffer
}

func (w bufferWriter) Write(p []byte) (int, error) {
	w.buf.Push(LogEntry{Time: time.Now(), Line: strings.TrimRight(string(p), "\n")})
	return len(p), nil
}
