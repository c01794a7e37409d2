// Package motion 基于背景帧差的运动检测
package motion

import (
	"fmt"

	"github.com/gowvp/edgecam/internal/core/frame"
)

// Config 检测参数
type Config struct {
	MinArea          int // 区域像素数必须大于该值
	BlurKernel       int // 高斯核边长，奇数
	Threshold        int // 差值严格大于该值视为变化
	DilateIterations int // 3x3 膨胀次数
}

// DefaultConfig 默认参数
func DefaultConfig() Config {
	return Config{MinArea: 500, BlurKernel: 21, Threshold: 25, DilateIterations: 2}
}

func (c Config) validate() error {
	if c.BlurKernel <= 0 || c.BlurKernel%2 == 0 {
		return fmt.Errorf("blur kernel must be a positive odd number, got %d", c.BlurKernel)
	}
	if c.Threshold < 0 || c.Threshold > 255 {
		return fmt.Errorf("threshold out of range: %d", c.Threshold)
	}
	if c.MinArea < 0 || c.DilateIterations < 0 {
		return fmt.Errorf("min area and dilate iterations must not be negative")
	}
	return nil
}

// Score 单帧检测结果
type Score struct {
	Detected bool `json:"detected"`
	Score    int  `json:"score"`    // 达标区域面积之和
	MaxArea  int  `json:"max_area"` // 最大达标区域面积
	Regions  int  `json:"regions"`  // 达标区域数量
}

// Scorer 持有背景参考帧，仅供主循环单协程使用
type Scorer struct {
	cfg    Config
	blur   *gaussian
	width  int
	height int

	background []byte
	current    []byte
	mask       []byte
	scratch    []byte
	labeler    labeler
}

// NewScorer 创建检测器
func NewScorer(cfg Config) (*Scorer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Scorer{cfg: cfg, blur: newGaussian(cfg.BlurKernel)}, nil
}

// Score 与背景比较并计算运动区域，随后无条件以当前帧替换背景
// 首帧或分辨率变化时仅建立背景，不报告运动
func (s *Scorer) Score(f frame.Frame) Score {
	if s.background == nil || f.Width != s.width || f.Height != s.height {
		s.ResetBackground(f)
		return Score{}
	}

	s.blur.apply(f.Luma(), s.current, s.width, s.height)

	n := s.width * s.height
	t := s.cfg.Threshold
	for i := 0; i < n; i++ {
		d := int(s.current[i]) - int(s.background[i])
		if d < 0 {
			d = -d
		}
		if d > t {
			s.mask[i] = 1
		} else {
			s.mask[i] = 0
		}
	}
	for range s.cfg.DilateIterations {
		dilate(s.mask, s.scratch, s.width, s.height)
	}

	var out Score
	for _, area := range s.labeler.areas(s.mask, s.width, s.height) {
		if area <= s.cfg.MinArea {
			continue
		}
		out.Detected = true
		out.Regions++
		out.Score += area
		out.MaxArea = max(out.MaxArea, area)
	}

	s.background, s.current = s.current, s.background
	return out
}

// ResetBackground 以指定帧重建背景参考
func (s *Scorer) ResetBackground(f frame.Frame) {
	n := f.Width * f.Height
	if f.Width != s.width || f.Height != s.height || s.background == nil {
		s.width, s.height = f.Width, f.Height
		s.background = make([]byte, n)
		s.current = make([]byte, n)
		s.mask = make([]byte, n)
		s.scratch = make([]byte, n)
	}
	s.blur.apply(f.Luma(), s.background, s.width, s.height)
}

// Config 当前参数
func (s *Scorer) Config() Config {
	return s.cfg
}
