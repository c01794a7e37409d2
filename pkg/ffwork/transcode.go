package ffwork

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// TranscodeSuffix 转码输出的中间文件后缀
const TranscodeSuffix = ".h264.mp4"

// DefaultTranscodeTimeout 默认转码超时
const DefaultTranscodeTimeout = 5 * time.Minute

// ErrTranscodeEmpty 转码进程成功退出但输出为空
var ErrTranscodeEmpty = errors.New("transcoded output is empty")

// Transcoder 将片段转为浏览器可播放的 H.264
type Transcoder struct {
	Bin     string
	Timeout time.Duration
}

// TranscodePaths 返回中间文件与最终文件路径
func TranscodePaths(input string) (tmp, final string) {
	stem := strings.TrimSuffix(input, filepath.Ext(input))
	return stem + TranscodeSuffix, stem + ".mp4"
}

// Args 转码命令参数
func (t Transcoder) Args(input, output string) []string {
	return []string{
		"-y",
		"-i", input,
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-movflags", "+faststart",
		output,
	}
}

// Transcode 转码成功时删除原文件并返回最终路径
// 失败或超时时删除中间文件，原文件保持不变
// 中间文件改名为最终文件后才删除原文件
func (t Transcoder) Transcode(ctx context.Context, input string) (string, error) {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultTranscodeTimeout
	}
	bin := t.Bin
	if bin == "" {
		bin = "ffmpeg"
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tmp, final := TranscodePaths(input)
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, t.Args(input, tmp)...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		_ = os.Remove(tmp)
		if ctx.Err() != nil {
			return "", fmt.Errorf("transcode timeout after %s: %w", timeout, ctx.Err())
		}
		return "", fmt.Errorf("transcode: %w: %s", err, lastLine(stderr.String()))
	}

	fi, err := os.Stat(tmp)
	if err != nil || fi.Size() == 0 {
		_ = os.Remove(tmp)
		return "", ErrTranscodeEmpty
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("transcode: %w", err)
	}
	// 输入为 mp4 时 final 与 input 相同，rename 已覆盖原文件
	if final != input {
		if err := os.Remove(input); err != nil && !errors.Is(err, os.ErrNotExist) {
			return final, fmt.Errorf("transcode: remove original: %w", err)
		}
	}
	return final, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
