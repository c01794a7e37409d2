package ffwork

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ixugo/goddd/pkg/queue"
)

// ErrStreamEnded 采集进程退出或输出中断
var ErrStreamEnded = errors.New("capture stream ended")

type (
	// Config 采集配置，Input 描述输入源参数
	Config struct {
		Width, Height int
		FPS           int
		Input         Input
		Name          string
	}
	// Input 采集输入，Bin 为进程名
	Input struct {
		Bin  string
		Args []string
		// Raw 为 true 时 Args 即完整命令行，不追加 ffmpeg 输出参数
		Raw bool
	}
	FrameData struct {
		FrameNum  uint64
		Timestamp time.Time
		Data      []byte
	}
	FrameCapture struct {
		config                Config
		frameSize             int
		frameCh               chan *FrameData
		errCh                 chan error
		ctx                   context.Context
		cancel                context.CancelFunc
		m                     sync.Mutex
		started               bool
		cmd                   *exec.Cmd
		lastFrame             time.Time
		wg                    sync.WaitGroup
		stderrLog             *queue.CirQueue[string]
		frameCount, skipCount uint64
	}
	Stats struct {
		Name                  string
		FrameCount, SkipCount uint64
		LastFrame             time.Time
		FrameSize             int
		IsRunning             bool
	}
)

// RTSPInput 拉取网络摄像头
func RTSPInput(url, transport string) Input {
	if transport == "" {
		transport = "tcp"
	}
	return Input{Bin: "ffmpeg", Args: []string{
		"-user_agent", "FFmpeg edgecam",
		"-avoid_negative_ts", "make_zero",
		"-fflags", "+genpts+discardcorrupt",
		"-rtsp_transport", transport,
		"-timeout", "10000000",
		"-i", url,
	}}
}

// V4L2Input 读取 USB 摄像头
func V4L2Input(device string, width, height, fps int) Input {
	return Input{Bin: "ffmpeg", Args: []string{
		"-f", "v4l2",
		"-framerate", strconv.Itoa(fps),
		"-video_size", fmt.Sprintf("%dx%d", width, height),
		"-i", device,
	}}
}

// PiCameraInput 树莓派摄像头，rpicam-vid 直接输出 yuv420
func PiCameraInput(bin string, width, height, fps int) Input {
	if bin == "" {
		bin = "rpicam-vid"
	}
	return Input{Bin: bin, Raw: true, Args: []string{
		"-t", "0",
		"-n",
		"--codec", "yuv420",
		"--width", strconv.Itoa(width),
		"--height", strconv.Itoa(height),
		"--framerate", strconv.Itoa(fps),
		"-o", "-",
	}}
}

func NewFrameCapture(cfg Config) (*FrameCapture, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width%2 != 0 || cfg.Height%2 != 0 {
		return nil, fmt.Errorf("invalid resolution: %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.FPS <= 0 {
		return nil, fmt.Errorf("invalid fps: %d", cfg.FPS)
	}
	if cfg.Input.Bin == "" {
		return nil, fmt.Errorf("capture input is required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &FrameCapture{
		config:    cfg,
		frameSize: cfg.Width * cfg.Height * 3 / 2,
		frameCh:   make(chan *FrameData, 10),
		errCh:     make(chan error, 1),
		ctx:       ctx,
		cancel:    cancel,
		stderrLog: queue.NewCirQueue[string](100),
	}, nil
}

func (fc *FrameCapture) FrameSize() int {
	return fc.frameSize
}

func (fc *FrameCapture) buildArgs() []string {
	if fc.config.Input.Raw {
		return append([]string(nil), fc.config.Input.Args...)
	}
	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-threads", "2",
	}
	args = append(args, fc.config.Input.Args...)
	args = append(args,
		"-f", "rawvideo",
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(fc.config.FPS),
		"-vf", fmt.Sprintf("fps=%d,scale=%d:%d", fc.config.FPS, fc.config.Width, fc.config.Height),
		"pipe:1",
	)
	return args
}

func (fc *FrameCapture) Start() error {
	fc.m.Lock()
	defer fc.m.Unlock()
	if fc.started {
		return fmt.Errorf("frame capture already started")
	}

	fc.cmd = exec.CommandContext(fc.ctx, fc.config.Input.Bin, fc.buildArgs()...)
	stdout, err := fc.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderr, err := fc.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to get stderr pipe: %w", err)
	}
	if err := fc.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", fc.config.Input.Bin, err)
	}
	fc.started = true
	fc.lastFrame = time.Now()

	fc.wg.Go(func() { fc.captureLoop(stdout) })
	fc.wg.Go(func() { readLines(stderr, fc.stderrLog) })
	return nil
}

// captureLoop 按固定帧大小读取 YUV420P 原始帧
// 通道满时丢弃新帧并计数，保证读取端拿到的总是较新的画面
func (fc *FrameCapture) captureLoop(stdout io.Reader) {
	defer close(fc.frameCh)

	reader := bufio.NewReaderSize(stdout, fc.frameSize*2)
	for {
		select {
		case <-fc.ctx.Done():
			return
		default:
		}

		frameBytes := make([]byte, fc.frameSize)
		if _, err := io.ReadFull(reader, frameBytes); err != nil {
			fc.reportErr(fmt.Errorf("%w: %w", ErrStreamEnded, err))
			return
		}

		frameNum := atomic.AddUint64(&fc.frameCount, 1)
		now := time.Now()
		fc.m.Lock()
		fc.lastFrame = now
		fc.m.Unlock()

		select {
		case fc.frameCh <- &FrameData{FrameNum: frameNum, Timestamp: now, Data: frameBytes}:
		case <-fc.ctx.Done():
			return
		default:
			atomic.AddUint64(&fc.skipCount, 1)
		}
	}
}

func (fc *FrameCapture) reportErr(err error) {
	select {
	case fc.errCh <- err:
	default:
	}
}

// Log 最近的进程输出，用于失败时定位
func (fc *FrameCapture) Log() []string {
	return fc.stderrLog.Range()
}

// Next 阻塞读取下一帧，直到有帧、采集结束或 ctx 取消
func (fc *FrameCapture) Next(ctx context.Context) (*FrameData, error) {
	select {
	case frame, ok := <-fc.frameCh:
		if !ok {
			select {
			case err := <-fc.errCh:
				return nil, err
			default:
				return nil, ErrStreamEnded
			}
		}
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-fc.ctx.Done():
		return nil, ErrStreamEnded
	}
}

func (fc *FrameCapture) Stop() error {
	fc.m.Lock()
	if !fc.started {
		fc.m.Unlock()
		return nil
	}
	fc.started = false
	fc.m.Unlock()

	fc.cancel()

	var waitErr error
	if fc.cmd != nil && fc.cmd.Process != nil {
		done := make(chan error, 1)
		go func() {
			done <- fc.cmd.Wait()
		}()

		select {
		case <-time.After(5 * time.Second):
			if err := fc.cmd.Process.Kill(); err != nil {
				waitErr = fmt.Errorf("failed to kill %s: %w", fc.config.Input.Bin, err)
			}
			<-done
		case <-done:
		}
	}
	fc.wg.Wait()
	return waitErr
}

func (fc *FrameCapture) GetStats() Stats {
	fc.m.Lock()
	defer fc.m.Unlock()
	return Stats{
		Name:       fc.config.Name,
		FrameCount: atomic.LoadUint64(&fc.frameCount),
		SkipCount:  atomic.LoadUint64(&fc.skipCount),
		LastFrame:  fc.lastFrame,
		FrameSize:  fc.frameSize,
		IsRunning:  fc.started,
	}
}
