package event

import (
	"os"
	"path/filepath"
)

// Storer data persistence
type Storer interface {
	Event() EventStorer
}

// Core business domain
type Core struct {
	store Storer
	dir   string // 快照目录
}

// NewCore create business domain
func NewCore(store Storer, dir string) Core {
	return Core{store: store, dir: dir}
}

// SaveSnapshot 保存识别快照，返回相对快照目录的路径
func (c Core) SaveSnapshot(clipID string, jpeg []byte) (string, error) {
	rel := filepath.Join(clipID[:min(8, len(clipID))], clipID+".jpg")
	full := filepath.Join(c.dir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(full, jpeg, 0o644); err != nil {
		return "", err
	}
	return rel, nil
}

// SnapshotPath 快照完整路径
func (c Core) SnapshotPath(rel string) string {
	return filepath.Join(c.dir, rel)
}
