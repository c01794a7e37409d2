package conf

import (
	"path/filepath"
	"testing"
	"time"
)

func TestWriteReadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "configs", "config.toml")
	bc := DefaultConfig()
	bc.Clip.Duration = Duration(12 * time.Second)
	if err := WriteConfig(path, &bc); err != nil {
		t.Fatal(err)
	}

	var out Bootstrap
	if err := ReadConfig(path, &out); err != nil {
		t.Fatal(err)
	}
	if out.Clip.Duration.Duration() != 12*time.Second {
		t.Fatalf("clip duration = %s", out.Clip.Duration.Duration())
	}
	if out.Motion.MinArea != 500 || out.Telemetry.Namespace != "RaspberryPi/MotionDetection" {
		t.Fatalf("unexpected config %+v", out)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"S3_BUCKET_NAME":  "clips",
		"IAM_ROLE_ARN":    "arn:aws:iam::123:role/pi",
		"MIN_MOTION_AREA": "800",
		"CLIP_DURATION":   "10",
		"UPLOAD_TO_S3":    "true",
		"SAVE_CLIPS":      "false",
	}
	bc := DefaultConfig()
	err := ApplyEnv(&bc, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if err != nil {
		t.Fatal(err)
	}
	if bc.Upload.Bucket != "clips" || bc.Upload.RoleARN == "" || !bc.Upload.Enabled {
		t.Fatalf("upload = %+v", bc.Upload)
	}
	if bc.Motion.MinArea != 800 {
		t.Fatalf("min area = %d", bc.Motion.MinArea)
	}
	if bc.Clip.Duration.Duration() != 10*time.Second || bc.Clip.Enabled {
		t.Fatalf("clip = %+v", bc.Clip)
	}
}

func TestApplyEnvInvalid(t *testing.T) {
	bc := DefaultConfig()
	err := ApplyEnv(&bc, func(k string) (string, bool) {
		if k == "MIN_MOTION_AREA" {
			return "many", true
		}
		return "", false
	})
	if err == nil {
		t.Fatal("expected error for non-numeric MIN_MOTION_AREA")
	}
}

func TestValidate(t *testing.T) {
	bc := DefaultConfig()
	bc.Motion.BlurKernel = 20
	if err := bc.Validate(); err == nil {
		t.Fatal("expected even kernel to be rejected")
	}

	bc = DefaultConfig()
	bc.Upload.Enabled = true
	if err := bc.Validate(); err == nil {
		t.Fatal("expected missing bucket to be rejected")
	}
}
