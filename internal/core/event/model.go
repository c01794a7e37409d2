package event

import "github.com/ixugo/goddd/pkg/orm"

// Event 片段内的一次目标识别结果
type Event struct {
	ID          int64    `gorm:"primaryKey" json:"id"`
	RecordingID int64    `gorm:"column:recording_id;index;notNull;default:0" json:"recording_id"` // 所属片段历史
	ClipID      string   `gorm:"column:clip_id;notNull;default:''" json:"clip_id"`                // 片段 ID
	Label       string   `gorm:"column:label;index;notNull;default:''" json:"label"`              // 类别
	Score       float64  `gorm:"column:score;notNull;default:0" json:"score"`                     // 置信度
	X1          int      `gorm:"column:x1;notNull;default:0" json:"x1"`
	Y1          int      `gorm:"column:y1;notNull;default:0" json:"y1"`
	X2          int      `gorm:"column:x2;notNull;default:0" json:"x2"`
	Y2          int      `gorm:"column:y2;notNull;default:0" json:"y2"`
	FrameIndex  int      `gorm:"column:frame_index;notNull;default:0" json:"frame_index"` // 片段内帧序号
	ImagePath   string   `gorm:"column:image_path;notNull;default:''" json:"image_path"`  // 快照相对路径
	StartedAt   int64    `gorm:"column:started_at;index;notNull;default:0" json:"started_at"` // 片段开始时间（毫秒）
	CreatedAt   orm.Time `gorm:"column:created_at;notNull;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName database table name
func (*Event) TableName() string {
	return "events"
}
