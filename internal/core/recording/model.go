package recording

import (
	"github.com/ixugo/goddd/pkg/orm"
)

// 片段状态
const (
	StatusRecorded = "recorded" // 已录制，等待处理
	StatusUploaded = "uploaded" // 已上传，本地文件已删除
	StatusKept     = "kept"     // 未开启上传，保留在本地
	StatusFailed   = "failed"   // 上传失败，本地文件保留
)

// Recording 已处理片段的历史记录
type Recording struct {
	ID          int64    `gorm:"primaryKey" json:"id"`
	ClipID      string   `gorm:"column:clip_id;index;notNull;default:''" json:"clip_id"`       // 片段 ID，即时间戳
	Source      string   `gorm:"column:source;notNull;default:''" json:"source"`               // 采集源类型
	Path        string   `gorm:"column:path;notNull;default:''" json:"path"`                   // 本地文件路径
	StartedAt   orm.Time `gorm:"column:started_at;index;notNull" json:"started_at"`            // 开始录制时间
	EndedAt     orm.Time `gorm:"column:ended_at;notNull" json:"ended_at"`                      // 结束录制时间
	Duration    float64  `gorm:"column:duration;notNull;default:0" json:"duration"`            // 时长（秒）
	Frames      int      `gorm:"column:frames;notNull;default:0" json:"frames"`                // 写入帧数
	Size        int64    `gorm:"column:size;notNull;default:0" json:"size"`                    // 文件大小（字节）
	MotionScore int      `gorm:"column:motion_score;notNull;default:0" json:"motion_score"`    // 触发帧的运动面积和
	MaxArea     int      `gorm:"column:max_area;notNull;default:0" json:"max_area"`            // 触发帧最大区域面积
	Tags        string   `gorm:"column:tags;notNull;default:''" json:"tags"`                   // 识别类别，逗号分隔
	ObjectCount int      `gorm:"column:object_count;notNull;default:0" json:"object_count"`    // 达标检测数量
	Transcoded  bool     `gorm:"column:transcoded;notNull;default:false" json:"transcoded"`    // 是否转码成功
	RemoteKey   string   `gorm:"column:remote_key;notNull;default:''" json:"remote_key"`       // 对象存储 key
	Attempts    int      `gorm:"column:attempts;notNull;default:0" json:"attempts"`            // 上传尝试次数
	Status      string   `gorm:"column:status;index;notNull;default:'recorded'" json:"status"` // 状态
	Err         string   `gorm:"column:err;notNull;default:''" json:"err"`                     // 失败原因
	CreatedAt   orm.Time `gorm:"column:created_at;notNull;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   orm.Time `gorm:"column:updated_at;notNull;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName database table name
func (*Recording) TableName() string {
	return "recordings"
}

// StatusCount 按状态统计
type StatusCount struct {
	Status string `gorm:"column:status" json:"status"`
	Count  int64  `gorm:"column:cnt" json:"count"`
}
