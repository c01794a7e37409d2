package conf

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// DefaultConfig 默认配置
func DefaultConfig() Bootstrap {
	return Bootstrap{
		Server: Server{
			HTTP: ServerHTTP{
				Port:    8000,
				Timeout: Duration(60 * time.Second),
			},
		},
		Data: Data{
			Database: Database{
				Dsn:             "configs/data.db",
				MaxIdleConns:    10,
				MaxOpenConns:    50,
				ConnMaxLifetime: Duration(6 * time.Hour),
				SlowThreshold:   Duration(200 * time.Millisecond),
			},
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Camera: Camera{
			Type:     "picamera",
			Width:    1280,
			Height:   720,
			FPS:      20,
			Fallback: true,
		},
		Motion: Motion{
			MinArea:          500,
			BlurKernel:       21,
			Threshold:        25,
			DilateIterations: 2,
		},
		Clip: Clip{
			Enabled:          true,
			Dir:              "motion_detections",
			Duration:         Duration(30 * time.Second),
			FPS:              20,
			Ext:              "mp4",
			FrameInterval:    Duration(50 * time.Millisecond),
			Transcode:        true,
			TranscodeTimeout: Duration(5 * time.Minute),
			RetainDays:       30,

			DiskUsageThreshold: 90,
		},
		Tagging: Tagging{
			Backend:    "grpc",
			SampleRate: 10,
			Timeout:    Duration(10 * time.Second),
		},
		Upload: Upload{
			OnMotion:    true,
			Region:      "us-east-1",
			KeyPrefix:   "motion_detections",
			SessionName: "motion-detection-pi-session",
		},
		Telemetry: Telemetry{
			Backend:           "cloudwatch",
			Namespace:         "RaspberryPi/MotionDetection",
			LogGroup:          "/raspberry-pi/motion-detection",
			LogStreamPrefix:   "motion-detector",
			HeartbeatInterval: Duration(5 * time.Minute),
			FlushInterval:     Duration(5 * time.Second),
			QueueSize:         256,
			BufferBytes:       4 << 20,
			MQTT: MQTT{
				Broker: "tcp://localhost:1883",
				Topic:  "edgecam",
			},
		},
	}
}

// SetupConfig 读取配置文件，文件不存在时按默认值生成
// 随后加载工作目录下的 .env 并以环境变量覆盖
func SetupConfig(path string) (Bootstrap, error) {
	bc := DefaultConfig()
	if err := ReadConfig(path, &bc); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return bc, err
		}
		if err := WriteConfig(path, &bc); err != nil {
			slog.Warn("write default config", "path", path, "err", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("load .env", "err", err)
	}
	if err := ApplyEnv(&bc, os.LookupEnv); err != nil {
		return bc, err
	}
	return bc, bc.Validate()
}

// ReadConfig 解析 toml 文件
func ReadConfig(path string, bc *Bootstrap) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := toml.Unmarshal(b, bc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// WriteConfig 写出 toml 文件
func WriteConfig(path string, bc *Bootstrap) error {
	b, err := toml.Marshal(bc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// ApplyEnv 兼容旧部署使用的环境变量
func ApplyEnv(bc *Bootstrap, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("env %s: %w", key, err)
		}
		*dst = b
		return nil
	}
	integer := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("env %s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("AWS_REGION", &bc.Upload.Region)
	str("AWS_ACCESS_KEY_ID", &bc.Upload.AccessKeyID)
	str("AWS_SECRET_ACCESS_KEY", &bc.Upload.SecretAccessKey)
	str("S3_BUCKET_NAME", &bc.Upload.Bucket)
	str("IAM_ROLE_ARN", &bc.Upload.RoleARN)
	str("OUTPUT_DIR", &bc.Clip.Dir)

	if err := integer("MIN_MOTION_AREA", &bc.Motion.MinArea); err != nil {
		return err
	}
	if err := integer("WEB_PORT", &bc.Server.HTTP.Port); err != nil {
		return err
	}
	var seconds int
	if err := integer("CLIP_DURATION", &seconds); err != nil {
		return err
	}
	if seconds > 0 {
		bc.Clip.Duration = Duration(time.Duration(seconds) * time.Second)
	}
	if err := boolean("SAVE_CLIPS", &bc.Clip.Enabled); err != nil {
		return err
	}
	if err := boolean("UPLOAD_TO_S3", &bc.Upload.Enabled); err != nil {
		return err
	}
	return boolean("S3_UPLOAD_ON_MOTION", &bc.Upload.OnMotion)
}

// Validate 检查相互依赖的配置项
func (bc *Bootstrap) Validate() error {
	if bc.Motion.BlurKernel%2 == 0 {
		return fmt.Errorf("motion.blur_kernel must be odd, got %d", bc.Motion.BlurKernel)
	}
	if bc.Camera.Width%2 != 0 || bc.Camera.Height%2 != 0 {
		return fmt.Errorf("camera resolution must be even, got %dx%d", bc.Camera.Width, bc.Camera.Height)
	}
	if bc.Clip.Duration <= 0 {
		return fmt.Errorf("clip.duration must be positive")
	}
	if bc.Upload.Enabled && bc.Upload.Bucket == "" {
		return fmt.Errorf("upload.bucket is required when upload is enabled")
	}
	if bc.Tagging.SampleRate <= 0 {
		bc.Tagging.SampleRate = 10
	}
	return nil
}
