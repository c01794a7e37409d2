package rpc

import (
	"context"
	"log/slog"
	"time"

	"github.com/gowvp/edgecam/internal/core/tagging"
)

// Config 识别后端配置
type Config struct {
	Enabled   bool
	Backend   string // grpc 或 worker
	Addr      string
	WorkerCmd []string
	Timeout   time.Duration
}

// NewClassifier 按配置选择后端，未启用或创建失败时返回 nil，识别随之关闭
func NewClassifier(ctx context.Context, cfg Config) tagging.Classifier {
	if !cfg.Enabled {
		return nil
	}
	switch cfg.Backend {
	case "grpc":
		if c := NewGRPCClassifier(cfg.Addr, cfg.Timeout); c != nil {
			return c
		}
	case "worker":
		if c := NewWorkerClassifier(ctx, cfg.WorkerCmd, cfg.Timeout); c != nil {
			return c
		}
	default:
		slog.Error("unknown classifier backend", "backend", cfg.Backend)
	}
	slog.Warn("object tagging disabled")
	return nil
}
