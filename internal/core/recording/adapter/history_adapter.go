package adapter

import (
	"context"
	"log/slog"
	"strings"

	"github.com/gowvp/edgecam/internal/core/delivery"
	"github.com/gowvp/edgecam/internal/core/event"
	"github.com/gowvp/edgecam/internal/core/frame"
	"github.com/gowvp/edgecam/internal/core/pipeline"
	"github.com/gowvp/edgecam/internal/core/preview"
	"github.com/gowvp/edgecam/internal/core/recording"
	"github.com/gowvp/edgecam/internal/core/tagging"
	"github.com/ixugo/goddd/pkg/orm"
)

var _ pipeline.History = (*HistoryAdapter)(nil)

// snapshotQuality 识别快照 JPEG 质量
const snapshotQuality = 85

// HistoryAdapter 实现 pipeline.History 接口
// 将片段处理结果写入 recording 历史，识别结果写入 event
type HistoryAdapter struct {
	recordings recording.Core
	events     event.Core
}

// NewHistoryAdapter 创建历史适配器
// Wire 通过此函数绑定 recording.Core + event.Core -> pipeline.History
func NewHistoryAdapter(recordings recording.Core, events event.Core) pipeline.History {
	return &HistoryAdapter{recordings: recordings, events: events}
}

// Save 写入片段历史与识别事件
func (a *HistoryAdapter) Save(ctx context.Context, r pipeline.Report) error {
	in := recording.AddRecordingInput{
		ClipID:      r.Clip.ID,
		Source:      r.Source,
		Path:        r.Path,
		StartedAt:   orm.Time{Time: r.Clip.StartedAt},
		EndedAt:     orm.Time{Time: r.Clip.StartedAt.Add(r.Clip.Duration)},
		Duration:    r.Clip.Duration.Seconds(),
		Frames:      r.Clip.Frames,
		Size:        r.Size,
		MotionScore: r.Trigger.Score,
		MaxArea:     r.Trigger.MaxArea,
		Transcoded:  r.Transcoded,
		Tags:        strings.Join(r.Tags.Names(), ","),
		ObjectCount: len(r.Tags.Detections),
		Status:      status(r),
	}
	if r.Upload != nil {
		in.RemoteKey = r.Upload.Key
		in.Attempts = r.Upload.Attempts
	}
	if r.Err != nil {
		in.Err = r.Err.Error()
	}

	rec, err := a.recordings.AddRecording(ctx, &in)
	if err != nil {
		return err
	}
	if len(r.Tags.Detections) == 0 {
		return nil
	}
	return a.events.AddEvents(ctx, a.buildEvents(rec, r))
}

func (a *HistoryAdapter) buildEvents(rec *recording.Recording, r pipeline.Report) []*event.Event {
	imagePath := a.saveSnapshot(r.Clip.ID, r.Clip.Retained, r.Tags)
	best := bestDetection(r.Tags.Detections)

	out := make([]*event.Event, 0, len(r.Tags.Detections))
	for _, d := range r.Tags.Detections {
		e := event.Event{
			RecordingID: rec.ID,
			ClipID:      r.Clip.ID,
			Label:       d.Class,
			Score:       d.Confidence,
			X1:          d.Box.X1,
			Y1:          d.Box.Y1,
			X2:          d.Box.X2,
			Y2:          d.Box.Y2,
			FrameIndex:  d.FrameIndex,
			StartedAt:   r.Clip.StartedAt.UnixMilli(),
		}
		if d.FrameIndex == best.FrameIndex {
			e.ImagePath = imagePath
		}
		out = append(out, &e)
	}
	return out
}

// saveSnapshot 保存置信度最高的检测所在帧，失败只记录日志
func (a *HistoryAdapter) saveSnapshot(clipID string, retained []frame.Indexed, tags tagging.TagSet) string {
	best := bestDetection(tags.Detections)
	for _, f := range retained {
		if f.Index != best.FrameIndex {
			continue
		}
		b, err := preview.EncodeJPEG(f.Frame, snapshotQuality)
		if err != nil {
			slog.Warn("encode snapshot failed", "clip", clipID, "err", err)
			return ""
		}
		path, err := a.events.SaveSnapshot(clipID, b)
		if err != nil {
			slog.Warn("save snapshot failed", "clip", clipID, "err", err)
			return ""
		}
		return path
	}
	return ""
}

func bestDetection(dets []tagging.Detection) tagging.Detection {
	var best tagging.Detection
	for _, d := range dets {
		if d.Confidence > best.Confidence {
			best = d
		}
	}
	return best
}

func status(r pipeline.Report) string {
	switch {
	case r.Interrupted:
		return recording.StatusRecorded
	case r.Upload == nil:
		return recording.StatusKept
	case r.Upload.Outcome == delivery.OutcomeSuccess:
		return recording.StatusUploaded
	default:
		return recording.StatusFailed
	}
}
