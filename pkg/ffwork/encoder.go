package ffwork

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/ixugo/goddd/pkg/queue"
)

// ErrEncoderExited 编码进程已退出，无法继续写入
var ErrEncoderExited = errors.New("encoder exited")

// DefaultStartupGrace 写入首帧后等待编码进程退出的时长
const DefaultStartupGrace = 200 * time.Millisecond

// Encoder 通过 ffmpeg 将 yuv420p 原始帧编码为视频文件
type Encoder struct {
	Bin    string // 默认 ffmpeg
	Codec  string // 默认 libx264
	Preset string // 默认 veryfast
	// StartupGrace 首帧写入后进程在该时长内退出，视为编码器无法打开
	StartupGrace time.Duration
}

func (e Encoder) bin() string {
	if e.Bin == "" {
		return "ffmpeg"
	}
	return e.Bin
}

// Args 编码命令参数
func (e Encoder) Args(path string, fps, width, height int) []string {
	codec := e.Codec
	if codec == "" {
		codec = "libx264"
	}
	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "yuv420p",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-r", strconv.Itoa(fps),
		"-i", "pipe:0",
		"-an",
		"-c:v", codec,
	}
	if codec == "libx264" {
		preset := e.Preset
		if preset == "" {
			preset = "veryfast"
		}
		args = append(args, "-preset", preset)
	}
	return append(args, "-pix_fmt", "yuv420p", path)
}

// Open 启动编码进程，进程无法启动时返回错误
// 编码器参数错误通常在读到首帧后才退出，由首次 WriteFrame 报告
func (e Encoder) Open(path string, fps, width, height int) (*RawWriter, error) {
	if width <= 0 || height <= 0 || fps <= 0 {
		return nil, fmt.Errorf("invalid encoder params: %dx%d@%d", width, height, fps)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	cmd := exec.Command(e.bin(), e.Args(path, fps, width, height)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", e.bin(), err)
	}

	grace := e.StartupGrace
	if grace <= 0 {
		grace = DefaultStartupGrace
	}
	w := RawWriter{
		cmd:       cmd,
		stdin:     stdin,
		grace:     grace,
		frameSize: width * height * 3 / 2,
		stderrLog: queue.NewCirQueue[string](50),
		exited:    make(chan struct{}),
	}
	w.wg.Go(func() { readLines(stderr, w.stderrLog) })
	go func() {
		w.wg.Wait()
		w.waitErr = cmd.Wait()
		close(w.exited)
	}()
	return &w, nil
}

// RawWriter 写入端，每次写入一整帧
type RawWriter struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	grace     time.Duration
	frames    int
	frameSize int
	stderrLog *queue.CirQueue[string]
	wg        sync.WaitGroup
	exited    chan struct{}
	waitErr   error
	closeOnce sync.Once
	closeErr  error
}

// WriteFrame 写入一帧 yuv420p 数据
// 首帧写入后等待 StartupGrace，期间进程退出则返回 ErrEncoderExited
func (w *RawWriter) WriteFrame(data []byte) error {
	select {
	case <-w.exited:
		return w.exitErr()
	default:
	}
	if len(data) != w.frameSize {
		return fmt.Errorf("frame size mismatch: %d != %d", len(data), w.frameSize)
	}
	if _, err := w.stdin.Write(data); err != nil {
		select {
		case <-w.exited:
			return w.exitErr()
		case <-time.After(w.grace):
		}
		return fmt.Errorf("%w: %w", ErrEncoderExited, err)
	}
	if w.frames == 0 {
		select {
		case <-w.exited:
			return w.exitErr()
		case <-time.After(w.grace):
		}
	}
	w.frames++
	return nil
}

// exitErr 只能在 exited 关闭后调用
func (w *RawWriter) exitErr() error {
	return fmt.Errorf("%w: %v, log: %v", ErrEncoderExited, w.waitErr, w.Log())
}

// Close 关闭输入并等待编码完成
func (w *RawWriter) Close() error {
	w.closeOnce.Do(func() {
		_ = w.stdin.Close()
		<-w.exited
		if w.waitErr != nil {
			w.closeErr = fmt.Errorf("encoder: %w, log: %v", w.waitErr, w.Log())
		}
	})
	return w.closeErr
}

// Log 最近的编码进程输出
func (w *RawWriter) Log() []string {
	return w.stderrLog.Range()
}
