package event

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/web"
	"gorm.io/gorm"
)

const (
	cleanupInterval = time.Hour
	cleanupBatch    = 100
)

// StartCleanupWorker 按片段开始时间清理超过 days 天的识别事件与快照
// 阻塞直到 ctx 结束
func (c Core) StartCleanupWorker(ctx context.Context, days int) {
	if days <= 0 {
		slog.Info("event cleanup disabled")
		return
	}
	slog.Info("event cleanup worker started", "retain_days", days, "snapshot_dir", c.dir)

	c.cleanupExpiredEvents(ctx, time.Now().AddDate(0, 0, -days))

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.cleanupExpiredEvents(ctx, now.AddDate(0, 0, -days))
		}
	}
}

// cleanupExpiredEvents 快照先于记录删除，删除失败的快照留给下一轮
func (c Core) cleanupExpiredEvents(ctx context.Context, cutoff time.Time) int {
	var rows, files int
	for ctx.Err() == nil {
		var events []*Event
		pager := web.PagerFilter{Page: 1, Size: cleanupBatch}
		if _, err := c.store.Event().Find(ctx, &events, &pager, orm.Where("started_at < ?", cutoff.UnixMilli())); err != nil {
			slog.Warn("failed to query expired events", "err", err)
			break
		}
		if len(events) == 0 {
			break
		}

		ids, snapshots := expiredSet(events)
		files += c.removeSnapshots(snapshots)

		err := c.store.Event().Session(ctx, func(tx *gorm.DB) error {
			return tx.Where("id IN ?", ids).Delete(&Event{}).Error
		})
		if err != nil {
			slog.Warn("failed to delete expired events", "count", len(ids), "err", err)
			break
		}
		rows += len(ids)
	}

	if rows > 0 || files > 0 {
		removeEmptyDirs(c.dir)
		slog.Info("expired events removed",
			"cutoff", cutoff.Format(time.DateTime),
			"events_deleted", rows,
			"snapshots_deleted", files,
		)
	}
	return rows
}

// expiredSet 同一片段的事件共用一张快照
func expiredSet(events []*Event) ([]int64, []string) {
	ids := make([]int64, 0, len(events))
	seen := make(map[string]struct{})
	var snapshots []string
	for _, e := range events {
		ids = append(ids, e.ID)
		if e.ImagePath == "" {
			continue
		}
		if _, ok := seen[e.ImagePath]; ok {
			continue
		}
		seen[e.ImagePath] = struct{}{}
		snapshots = append(snapshots, e.ImagePath)
	}
	return ids, snapshots
}

func (c Core) removeSnapshots(rels []string) int {
	var n int
	for _, rel := range rels {
		err := os.Remove(c.SnapshotPath(rel))
		switch {
		case err == nil:
			n++
		case !errors.Is(err, fs.ErrNotExist):
			slog.Warn("failed to delete snapshot", "path", rel, "err", err)
		}
	}
	return n
}

// removeEmptyDirs 删除快照目录下的空子目录，快照目录本身保留
func removeEmptyDirs(root string) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sub := filepath.Join(root, entry.Name())
		removeEmptyDirs(sub)
		if rest, err := os.ReadDir(sub); err == nil && len(rest) == 0 {
			_ = os.Remove(sub)
		}
	}
}
