package recording

import (
	"path/filepath"
	"strings"
)

// Storer data persistence
type Storer interface {
	Recording() RecordingStorer
}

// Config 片段历史配置
type Config struct {
	Dir        string // 片段目录，用于清理转码残留
	RetainDays int    // 历史保留天数，<=0 不清理
	// DiskUsageThreshold 磁盘使用率告警阈值（百分比），未上传的片段不会被自动删除
	DiskUsageThreshold float64
}

// Core business domain
type Core struct {
	store Storer
	conf  *Config
}

type Option func(*Core)

// WithConfig 注入配置
func WithConfig(conf *Config) Option {
	return func(c *Core) {
		c.conf = conf
	}
}

// NewCore create business domain
func NewCore(store Storer, opts ...Option) Core {
	c := Core{store: store}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// GetFullPath 获取片段文件的完整路径
func (c Core) GetFullPath(path string) string {
	if c.conf == nil || c.conf.Dir == "" {
		return path
	}
	// 已包含片段目录或为绝对路径时直接返回
	if filepath.IsAbs(path) || strings.HasPrefix(path, c.conf.Dir) {
		return path
	}
	return filepath.Join(c.conf.Dir, path)
}
