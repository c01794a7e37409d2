package recording

import (
	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/web"
)

type FindRecordingInput struct {
	web.PagerFilter
	web.DateFilter
	Source string `form:"source"` // 采集源类型
	Status string `form:"status"` // 片段状态
	Tag    string `form:"tag"`    // 包含的识别类别
}

type AddRecordingInput struct {
	ClipID      string   `json:"clip_id"`
	Source      string   `json:"source"`
	Path        string   `json:"path"`
	StartedAt   orm.Time `json:"started_at"`
	EndedAt     orm.Time `json:"ended_at"`
	Duration    float64  `json:"duration"`
	Frames      int      `json:"frames"`
	Size        int64    `json:"size"`
	MotionScore int      `json:"motion_score"`
	MaxArea     int      `json:"max_area"`
	Transcoded  bool     `json:"transcoded"`
	Tags        string   `json:"tags"`
	ObjectCount int      `json:"object_count"`
	RemoteKey   string   `json:"remote_key"`
	Attempts    int      `json:"attempts"`
	Status      string   `json:"status"`
	Err         string   `json:"err"`
}

// EditRecordingInput 处理完成后回写结果
type EditRecordingInput struct {
	Path        string `json:"path"`
	Size        int64  `json:"size"`
	Tags        string `json:"tags"`
	ObjectCount int    `json:"object_count"`
	RemoteKey   string `json:"remote_key"`
	Attempts    int    `json:"attempts"`
	Status      string `json:"status"`
	Err         string `json:"err"`
}
