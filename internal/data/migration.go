package data

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gowvp/edgecam/internal/core/clip"
	"github.com/gowvp/edgecam/internal/core/recording"
	"github.com/ixugo/goddd/pkg/orm"
	"gorm.io/gorm"
)

// orphanErr 写入补登记录的失败原因
const orphanErr = "found on disk at startup"

// ReconcileClips 补登目录中存在但历史表中缺失的片段文件
// 进程在处理中途退出时会出现这种文件，补登后状态为 recorded，不会被清理
func ReconcileClips(ctx context.Context, db *gorm.DB, dir string) (int, error) {
	if dir == "" {
		return 0, nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return 0, nil
	}

	var added int
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && d.Name() == "snapshots" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), recording.TranscodeSuffix) {
			return nil
		}
		startedAt, source, ok := clip.ParseArtifactName(d.Name())
		if !ok {
			return nil
		}

		var existing recording.Recording
		if err := db.WithContext(ctx).Where("path = ?", path).First(&existing).Error; err == nil {
			return nil
		} else if !orm.IsErrRecordNotFound(err) {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		rec := recording.Recording{
			ClipID:    startedAt.Format(clip.IDLayout),
			Source:    source,
			Path:      path,
			StartedAt: orm.Time{Time: startedAt},
			EndedAt:   orm.Time{Time: info.ModTime()},
			Size:      info.Size(),
			Status:    recording.StatusRecorded,
			Err:       orphanErr,
		}
		if err := db.WithContext(ctx).Create(&rec).Error; err != nil {
			slog.Error("reconcile clip failed", "path", path, "err", err)
			return nil
		}
		added++
		return nil
	})
	if added > 0 {
		slog.Info("orphan clips reconciled", "dir", dir, "count", added)
	}
	return added, err
}
