package pipeline

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/gowvp/edgecam/internal/core/delivery"
)

// Metadata 上传附带的元数据
// detections 带检测框，仅在总大小不超过对象存储上限时附带
func Metadata(r Report) map[string]any {
	meta := map[string]any{
		"type":         "motion_clip",
		"timestamp":    r.Clip.StartedAt.Format(time.RFC3339),
		"duration":     r.Clip.Duration.Seconds(),
		"motion_score": r.Trigger.Score,
		"max_area":     r.Trigger.MaxArea,
		"camera_type":  r.Source,
		"frame_count":  r.Clip.Frames,
	}
	if names := r.Tags.Names(); len(names) > 0 {
		meta["detected_objects"] = strings.Join(names, ",")
	}
	if len(r.Tags.Detections) == 0 {
		return meta
	}
	b, err := json.Marshal(r.Tags.Detections)
	if err != nil {
		return meta
	}
	if delivery.MetadataSize(delivery.Stringify(meta))+len("detections")+len(b) <= delivery.MetadataLimit {
		meta["detections"] = string(b)
	}
	return meta
}
