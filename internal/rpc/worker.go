package rpc

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/gowvp/edgecam/internal/core/frame"
	"github.com/gowvp/edgecam/internal/core/tagging"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrWorkerBroken 一次请求超时或读写失败后，流上的消息边界不再可信
var ErrWorkerBroken = errors.New("classifier worker broken")

// maxMessageSize 单条响应上限
const maxMessageSize = 16 << 20

var _ tagging.Classifier = (*WorkerClassifier)(nil)

// workerRequest 发往子进程的帧，原始 yuv420p 数据
type workerRequest struct {
	Seq    uint64 `msgpack:"seq"`
	Width  int    `msgpack:"width"`
	Height int    `msgpack:"height"`
	Format string `msgpack:"format"`
	Data   []byte `msgpack:"data"`
}

// WorkerClassifier 本地识别子进程，stdin/stdout 上以 4 字节大端长度前缀 + msgpack 交换消息
// 同一时刻只有一个请求在途
type WorkerClassifier struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  *bufio.Reader
	timeout time.Duration

	mu     sync.Mutex
	broken bool
}

// NewWorkerClassifier 启动子进程，失败时返回 nil
func NewWorkerClassifier(ctx context.Context, argv []string, timeout time.Duration) *WorkerClassifier {
	if len(argv) == 0 {
		slog.Error("NewWorkerClassifier", "err", "empty worker command")
		return nil
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		slog.Error("NewWorkerClassifier", "err", err)
		return nil
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		slog.Error("NewWorkerClassifier", "err", err)
		return nil
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		slog.Error("NewWorkerClassifier", "err", err)
		return nil
	}
	if err := cmd.Start(); err != nil {
		slog.Error("NewWorkerClassifier", "cmd", argv[0], "err", err)
		return nil
	}

	log := slog.With("component", "classifier_worker", "pid", cmd.Process.Pid)
	go func() {
		s := bufio.NewScanner(stderr)
		for s.Scan() {
			log.Debug(s.Text())
		}
	}()
	w := newWorker(stdin, stdout, timeout)
	w.cmd = cmd
	go func() {
		err := cmd.Wait()
		w.mu.Lock()
		w.broken = true
		w.mu.Unlock()
		if ctx.Err() == nil {
			log.Error("classifier worker exited", "err", err)
		}
	}()
	log.Info("classifier worker started", "cmd", argv[0])
	return w
}

func newWorker(stdin io.WriteCloser, stdout io.Reader, timeout time.Duration) *WorkerClassifier {
	return &WorkerClassifier{stdin: stdin, stdout: bufio.NewReader(stdout), timeout: timeout}
}

// Infer implements tagging.Classifier.
func (w *WorkerClassifier) Infer(ctx context.Context, f frame.Frame) ([]tagging.Detection, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.broken {
		return nil, ErrWorkerBroken
	}

	payload, err := msgpack.Marshal(workerRequest{
		Seq: f.Seq, Width: f.Width, Height: f.Height, Format: "yuv420p", Data: f.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	type result struct {
		dets []tagging.Detection
		err  error
	}
	done := make(chan result, 1)
	go func() {
		dets, err := w.exchange(payload)
		done <- result{dets, err}
	}()

	var timeout <-chan time.Time
	if w.timeout > 0 {
		timer := time.NewTimer(w.timeout)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case r := <-done:
		var perr *protocolError
		if r.err != nil && !errors.As(r.err, &perr) {
			w.broken = true
		}
		return r.dets, r.err
	case <-timeout:
		w.broken = true
		return nil, fmt.Errorf("%w: infer timeout after %s", ErrWorkerBroken, w.timeout)
	case <-ctx.Done():
		w.broken = true
		return nil, ctx.Err()
	}
}

// protocolError 子进程返回的业务错误，不影响后续请求
type protocolError struct {
	msg string
}

func (e *protocolError) Error() string { return "worker: " + e.msg }

func (w *WorkerClassifier) exchange(payload []byte) ([]tagging.Detection, error) {
	if err := writeMessage(w.stdin, payload); err != nil {
		return nil, err
	}
	data, err := readMessage(w.stdout)
	if err != nil {
		return nil, err
	}
	var resp map[string]any
	if err := msgpack.Unmarshal(data, &resp); err != nil {
		return nil, &protocolError{msg: "unmarshal response: " + err.Error()}
	}
	dets, err := parseDetections(resp)
	if err != nil {
		return nil, &protocolError{msg: err.Error()}
	}
	return dets, nil
}

// Close 关闭 stdin 通知子进程退出，2 秒后强制结束
func (w *WorkerClassifier) Close() error {
	w.mu.Lock()
	w.broken = true
	w.mu.Unlock()
	err := w.stdin.Close()
	if w.cmd != nil && w.cmd.Process != nil {
		go func() {
			time.Sleep(2 * time.Second)
			_ = w.cmd.Process.Kill()
		}()
	}
	return err
}

func writeMessage(wr io.Writer, payload []byte) error {
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := wr.Write(prefix[:]); err != nil {
		return fmt.Errorf("write length prefix: %w", err)
	}
	if _, err := wr.Write(payload); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}

func readMessage(r io.Reader) ([]byte, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, fmt.Errorf("read length prefix: %w", err)
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n > maxMessageSize {
		return nil, fmt.Errorf("response too large: %d bytes", n)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return data, nil
}
