package ffwork

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTranscodePaths(t *testing.T) {
	tmp, final := TranscodePaths("/data/20240101_120000_usb_motion_clip.avi")
	if tmp != "/data/20240101_120000_usb_motion_clip.h264.mp4" {
		t.Fatalf("tmp = %s", tmp)
	}
	if final != "/data/20240101_120000_usb_motion_clip.mp4" {
		t.Fatalf("final = %s", final)
	}
}

func TestTranscodeSuccess(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "clip.avi")
	if err := os.WriteFile(input, []byte("raw"), 0o644); err != nil {
		t.Fatal(err)
	}
	bin := writeScript(t, `for last; do :; done; printf transcoded > "$last"`)

	out, err := Transcoder{Bin: bin, Timeout: 5 * time.Second}.Transcode(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if out != filepath.Join(dir, "clip.mp4") {
		t.Fatalf("out = %s", out)
	}
	if _, err := os.Stat(input); !os.IsNotExist(err) {
		t.Fatal("original should be removed")
	}
	b, _ := os.ReadFile(out)
	if string(b) != "transcoded" {
		t.Fatalf("content = %q", b)
	}
}

func TestTranscodeFailureKeepsOriginal(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{name: "exit code", body: `for last; do :; done; printf partial > "$last"; exit 1`},
		{name: "empty output", body: `for last; do :; done; : > "$last"`, want: ErrTranscodeEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			input := filepath.Join(dir, "clip.mp4")
			if err := os.WriteFile(input, []byte("raw"), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := Transcoder{Bin: writeScript(t, tt.body)}.Transcode(context.Background(), input)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("err = %v", err)
			}
			if _, err := os.Stat(input); err != nil {
				t.Fatal("original must be kept")
			}
			tmp, _ := TranscodePaths(input)
			if _, err := os.Stat(tmp); !os.IsNotExist(err) {
				t.Fatal("partial output must be removed")
			}
		})
	}
}

func TestTranscodeRenameFailureKeepsOriginal(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "clip.avi")
	if err := os.WriteFile(input, []byte("raw"), 0o644); err != nil {
		t.Fatal(err)
	}
	// 非空目录占住最终文件名，rename 必然失败
	_, final := TranscodePaths(input)
	if err := os.MkdirAll(filepath.Join(final, "busy"), 0o755); err != nil {
		t.Fatal(err)
	}
	bin := writeScript(t, `for last; do :; done; printf transcoded > "$last"`)

	if _, err := (Transcoder{Bin: bin}).Transcode(context.Background(), input); err == nil {
		t.Fatal("expected rename error")
	}
	b, err := os.ReadFile(input)
	if err != nil || string(b) != "raw" {
		t.Fatalf("original must survive, content %q err %v", b, err)
	}
	tmp, _ := TranscodePaths(input)
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Fatal("intermediate output must be removed")
	}
}

func TestTranscodeInPlace(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(input, []byte("raw"), 0o644); err != nil {
		t.Fatal(err)
	}
	bin := writeScript(t, `for last; do :; done; printf transcoded > "$last"`)

	out, err := Transcoder{Bin: bin}.Transcode(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if out != input {
		t.Fatalf("out = %s", out)
	}
	b, err := os.ReadFile(out)
	if err != nil || string(b) != "transcoded" {
		t.Fatalf("content %q err %v", b, err)
	}
}

func TestTranscodeTimeout(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(input, []byte("raw"), 0o644); err != nil {
		t.Fatal(err)
	}
	bin := writeScript(t, `exec sleep 5`)
	_, err := Transcoder{Bin: bin, Timeout: 100 * time.Millisecond}.Transcode(context.Background(), input)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	if _, err := os.Stat(input); err != nil {
		t.Fatal("original must be kept")
	}
}

func TestEncoderArgs(t *testing.T) {
	args := Encoder{}.Args("/tmp/out.mp4", 20, 640, 480)
	for _, want := range []string{"pipe:0", "640x480", "libx264", "veryfast"} {
		if !slices.Contains(args, want) {
			t.Fatalf("missing %q in %v", want, args)
		}
	}
	if args[len(args)-1] != "/tmp/out.mp4" {
		t.Fatalf("output must be last: %v", args)
	}

	args = Encoder{Codec: "mpeg4"}.Args("/tmp/out.avi", 20, 640, 480)
	if slices.Contains(args, "-preset") {
		t.Fatalf("preset only applies to libx264: %v", args)
	}
}

func TestEncoderOpenMissingBinary(t *testing.T) {
	_, err := Encoder{Bin: "/nonexistent/ffmpeg"}.Open(filepath.Join(t.TempDir(), "a.mp4"), 20, 64, 48)
	if err == nil {
		t.Fatal("expected open failure")
	}
}

func TestEncoderWriteAndClose(t *testing.T) {
	out := filepath.Join(t.TempDir(), "a.mp4")
	bin := writeScript(t, `for last; do :; done; cat > "$last"`)
	w, err := Encoder{Bin: bin}.Open(out, 20, 4, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteFrame(make([]byte, 12)); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteFrame(make([]byte, 5)); err == nil {
		t.Fatal("expected size mismatch")
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	fi, err := os.Stat(out)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Size() != 12 {
		t.Fatalf("size = %d", fi.Size())
	}
}

func TestEncoderExitOnFirstFrame(t *testing.T) {
	bin := writeScript(t, `echo "Unknown encoder 'libx264'" >&2; exit 1`)
	w, err := Encoder{Bin: bin}.Open(filepath.Join(t.TempDir(), "a.mp4"), 20, 4, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	err = w.WriteFrame(make([]byte, 12))
	if !errors.Is(err, ErrEncoderExited) {
		t.Fatalf("err = %v", err)
	}
	if err := w.WriteFrame(make([]byte, 12)); !errors.Is(err, ErrEncoderExited) {
		t.Fatalf("later writes must keep failing, err = %v", err)
	}
}

func TestCaptureRawInput(t *testing.T) {
	fc, err := NewFrameCapture(Config{
		Width: 4, Height: 2, FPS: 10,
		Input: Input{Bin: "sh", Raw: true, Args: []string{"-c", "head -c 24 /dev/zero"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := fc.Start(); err != nil {
		t.Fatal(err)
	}
	defer fc.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := range 2 {
		f, err := fc.Next(ctx)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if len(f.Data) != 12 {
			t.Fatalf("frame size %d", len(f.Data))
		}
	}
	if _, err := fc.Next(ctx); !errors.Is(err, ErrStreamEnded) {
		t.Fatalf("err = %v", err)
	}
}

func TestCaptureArgs(t *testing.T) {
	fc, err := NewFrameCapture(Config{Width: 640, Height: 480, FPS: 20, Input: V4L2Input("/dev/video0", 640, 480, 20)})
	if err != nil {
		t.Fatal(err)
	}
	args := fc.buildArgs()
	if !slices.Contains(args, "/dev/video0") || args[len(args)-1] != "pipe:1" {
		t.Fatalf("args %v", args)
	}

	pi := PiCameraInput("", 640, 480, 20)
	if pi.Bin != "rpicam-vid" || !pi.Raw || !slices.Contains(pi.Args, "yuv420") {
		t.Fatalf("picamera input %+v", pi)
	}

	if _, err := NewFrameCapture(Config{Width: 641, Height: 480, FPS: 20, Input: pi}); err == nil {
		t.Fatal("odd width must be rejected")
	}
}
