package recording

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/web"
	"github.com/shirou/gopsutil/v4/disk"
	"gorm.io/gorm"
)

// TranscodeSuffix 转码中间文件后缀
const TranscodeSuffix = ".h264.mp4"

// staleTranscodeAge 超过该时长的转码中间文件视为残留
const staleTranscodeAge = time.Hour

// StartCleanupWorker 启动定时清理协程
// 程序启动时执行一次清理，随后每 60 分钟执行一次，ctx 结束时退出
func (c Core) StartCleanupWorker(ctx context.Context) {
	if c.conf == nil {
		slog.Info("recording cleanup disabled")
		return
	}

	slog.Info("recording cleanup worker started",
		"retain_days", c.conf.RetainDays,
		"disk_threshold", c.conf.DiskUsageThreshold,
		"dir", c.conf.Dir,
	)

	c.runCleanup(ctx)

	ticker := time.NewTicker(60 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runCleanup(ctx)
		}
	}
}

// runCleanup 清理过期历史、转码残留，并检查磁盘
// 未上传成功的片段文件从不自动删除
func (c Core) runCleanup(ctx context.Context) {
	c.cleanupExpiredRecordings(ctx)
	c.cleanupStaleTranscodes(time.Now())
	c.checkDiskUsage()
}

// cleanupExpiredRecordings 删除超过保留天数的历史记录
func (c Core) cleanupExpiredRecordings(ctx context.Context) {
	if c.conf.RetainDays <= 0 {
		return
	}

	cutoffTime := time.Now().AddDate(0, 0, -c.conf.RetainDays)
	totalDeleted := c.batchDeleteRecordings(ctx, orm.Where("started_at < ?", orm.Time{Time: cutoffTime}))

	if totalDeleted > 0 {
		slog.Info("expired recording cleanup completed",
			"reason", "retention_policy",
			"retain_days", c.conf.RetainDays,
			"cutoff_time", cutoffTime.Format(time.DateTime),
			"recordings_deleted", totalDeleted,
		)
	}
}

// batchDeleteRecordings 分批删除历史记录
func (c Core) batchDeleteRecordings(ctx context.Context, conditions ...orm.QueryOption) (totalDeleted int) {
	const batchSize = 100

	for {
		var recordings []*Recording
		pager := web.PagerFilter{Page: 1, Size: batchSize}
		_, err := c.store.Recording().Find(ctx, &recordings, &pager, conditions...)
		if err != nil || len(recordings) == 0 {
			break
		}

		deleteIDs := make([]int64, 0, len(recordings))
		for _, rec := range recordings {
			deleteIDs = append(deleteIDs, rec.ID)
		}

		err = c.store.Recording().Session(ctx, func(tx *gorm.DB) error {
			return tx.Where("id IN ?", deleteIDs).Delete(&Recording{}).Error
		})
		if err != nil {
			slog.Warn("failed to batch delete recordings", "count", len(deleteIDs), "err", err)
			break
		}
		totalDeleted += len(deleteIDs)
	}
	return
}

// cleanupStaleTranscodes 删除异常退出遗留的转码中间文件
func (c Core) cleanupStaleTranscodes(now time.Time) int {
	if c.conf.Dir == "" {
		return 0
	}
	var removed int
	_ = filepath.WalkDir(c.conf.Dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(d.Name(), TranscodeSuffix) {
			return nil
		}
		info, err := d.Info()
		if err != nil || now.Sub(info.ModTime()) < staleTranscodeAge {
			return nil
		}
		if err := os.Remove(path); err != nil {
			slog.Warn("failed to remove stale transcode", "path", path, "err", err)
			return nil
		}
		removed++
		return nil
	})
	cleanupEmptyDirs(c.conf.Dir)
	if removed > 0 {
		slog.Info("stale transcode cleanup completed", "files_deleted", removed)
	}
	return removed
}

// checkDiskUsage 磁盘使用率超过阈值时告警
func (c Core) checkDiskUsage() {
	if c.conf.DiskUsageThreshold <= 0 || c.conf.DiskUsageThreshold >= 100 || c.conf.Dir == "" {
		return
	}
	usage, err := disk.Usage(c.conf.Dir)
	if err != nil {
		slog.Warn("failed to get disk usage", "err", err)
		return
	}
	if usage.UsedPercent >= c.conf.DiskUsageThreshold {
		slog.Warn("disk usage above threshold, local clips are kept until uploaded",
			"usage", usage.UsedPercent,
			"threshold", c.conf.DiskUsageThreshold,
			"free_bytes", usage.Free,
		)
	}
}

// cleanupEmptyDirs 递归删除空目录
func cleanupEmptyDirs(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			subDir := filepath.Join(dir, entry.Name())
			cleanupEmptyDirs(subDir)

			subEntries, err := os.ReadDir(subDir)
			if err == nil && len(subEntries) == 0 {
				_ = os.Remove(subDir)
			}
		}
	}
}
