package conf

import (
	"time"
)

// Bootstrap 启动配置，对应 configs/config.toml
type Bootstrap struct {
	BuildVersion string    `toml:"-"`
	Debug        bool      `toml:"debug" comment:"调试模式，输出更详细的日志"`
	Server       Server    `toml:"server"`
	Data         Data      `toml:"data"`
	Log          Log       `toml:"log"`
	Camera       Camera    `toml:"camera"`
	Motion       Motion    `toml:"motion"`
	Clip         Clip      `toml:"clip"`
	Tagging      Tagging   `toml:"tagging"`
	Upload       Upload    `toml:"upload"`
	Telemetry    Telemetry `toml:"telemetry"`
}

type Server struct {
	HTTP ServerHTTP `toml:"http"`
}

type ServerHTTP struct {
	Port    int      `toml:"port" comment:"预览与状态接口端口，0 表示不启动"`
	Timeout Duration `toml:"timeout"`
	PProf   PProf    `toml:"pprof"`
}

type PProf struct {
	Enabled   bool     `toml:"enabled"`
	AccessIps []string `toml:"access_ips"`
}

type Data struct {
	Database Database `toml:"database"`
}

type Database struct {
	Dsn             string   `toml:"dsn" comment:"sqlite 文件路径，或 postgres:// mysql:// 开头的连接串"`
	MaxIdleConns    int32    `toml:"max_idle_conns"`
	MaxOpenConns    int32    `toml:"max_open_conns"`
	ConnMaxLifetime Duration `toml:"conn_max_lifetime"`
	SlowThreshold   Duration `toml:"slow_threshold"`
}

type Log struct {
	Level  string `toml:"level" comment:"debug/info/warn/error"`
	Format string `toml:"format" comment:"json 或 text"`
}

// Camera 采集源配置
type Camera struct {
	Type     string      `toml:"type" comment:"picamera/usb/rtsp/onvif"`
	Index    int         `toml:"index" comment:"usb 摄像头序号，对应 /dev/videoN"`
	Device   string      `toml:"device" comment:"显式指定采集设备，覆盖 index"`
	URL      string      `toml:"url" comment:"rtsp 地址"`
	Width    int         `toml:"width"`
	Height   int         `toml:"height"`
	FPS      int         `toml:"fps"`
	Fallback bool        `toml:"fallback" comment:"picamera 打开失败时回退到 usb"`
	Onvif    CameraOnvif `toml:"onvif"`

	FFmpegBin   string `toml:"ffmpeg_bin" comment:"为空时使用 PATH 中的 ffmpeg"`
	PiCameraBin string `toml:"picamera_bin" comment:"为空时使用 rpicam-vid"`
}

type CameraOnvif struct {
	Addr     string `toml:"addr" comment:"设备地址，如 192.168.1.64:80"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	Profile  string `toml:"profile" comment:"profile token，为空时使用第一个"`
}

// Motion 运动检测参数
type Motion struct {
	MinArea          int `toml:"min_area" comment:"区域面积超过该值才视为运动"`
	BlurKernel       int `toml:"blur_kernel" comment:"高斯模糊核大小，必须为奇数"`
	Threshold        int `toml:"threshold" comment:"帧差二值化阈值"`
	DilateIterations int `toml:"dilate_iterations"`
}

// Clip 片段录制与处理参数
type Clip struct {
	Enabled          bool     `toml:"enabled" comment:"是否保存片段"`
	Dir              string   `toml:"dir"`
	Duration         Duration `toml:"duration" comment:"触发后固定录制时长"`
	FPS              int      `toml:"fps"`
	Ext              string   `toml:"ext"`
	FrameInterval    Duration `toml:"frame_interval" comment:"两次读帧之间的休眠，降低 CPU 占用"`
	Transcode        bool     `toml:"transcode" comment:"上传前转码为 h264"`
	TranscodeTimeout Duration `toml:"transcode_timeout"`
	RetainDays       int      `toml:"retain_days" comment:"片段历史保留天数"`
	// DiskUsageThreshold 磁盘使用率告警阈值，未上传的片段不会被自动删除
	DiskUsageThreshold float64 `toml:"disk_usage_threshold"`
}

// Tagging 目标识别配置
type Tagging struct {
	Enabled    bool     `toml:"enabled"`
	Backend    string   `toml:"backend" comment:"grpc 或 worker"`
	Addr       string   `toml:"addr" comment:"grpc 识别服务地址"`
	WorkerCmd  []string `toml:"worker_cmd" comment:"识别子进程命令"`
	SampleRate int      `toml:"sample_rate" comment:"每 N 帧识别一次"`
	Timeout    Duration `toml:"timeout"`
}

// Upload 上传配置
type Upload struct {
	Enabled         bool   `toml:"enabled"`
	OnMotion        bool   `toml:"on_motion"`
	Region          string `toml:"region"`
	Bucket          string `toml:"bucket"`
	KeyPrefix       string `toml:"key_prefix"`
	RoleARN         string `toml:"role_arn" comment:"配置后通过 AssumeRole 获取临时凭证"`
	SessionName     string `toml:"session_name"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
}

// Telemetry 指标与日志上报配置
type Telemetry struct {
	Enabled           bool     `toml:"enabled"`
	Backend           string   `toml:"backend" comment:"cloudwatch 或 mqtt"`
	Namespace         string   `toml:"namespace"`
	LogGroup          string   `toml:"log_group"`
	LogStreamPrefix   string   `toml:"log_stream_prefix"`
	HeartbeatInterval Duration `toml:"heartbeat_interval"`
	FlushInterval     Duration `toml:"flush_interval"`
	QueueSize         int      `toml:"queue_size"`
	BufferBytes       int      `toml:"buffer_bytes"`
	MQTT              MQTT     `toml:"mqtt"`
}

type MQTT struct {
	Broker   string `toml:"broker"`
	ClientID string `toml:"client_id"`
	Topic    string `toml:"topic"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// Duration 以字符串形式存储在 toml 中，如 "30s"
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
