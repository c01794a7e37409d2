// Package tagging 对片段抽样帧做目标识别并汇总标签
package tagging

import (
	"context"
	"log/slog"
	"sort"

	"github.com/gowvp/edgecam/internal/core/frame"
)

// MinConfidence 低于该置信度的检测结果丢弃
const MinConfidence = 0.5

// DefaultSampleRate 默认每 10 帧识别一次
const DefaultSampleRate = 10

// Box 检测框，像素坐标
type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Detection 单个检测结果
type Detection struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"bbox"`
	FrameIndex int     `json:"frame_index"`
}

// Classifier 识别能力，由 grpc 服务或本地子进程提供
type Classifier interface {
	Infer(ctx context.Context, f frame.Frame) ([]Detection, error)
}

// TagSet 片段的标签汇总
type TagSet struct {
	Classes    map[string]float64 `json:"classes"`    // 类别到最高置信度
	Detections []Detection        `json:"detections"` // 所有达标检测，含所在帧序号
}

// Names 类别名，按字母排序
func (t TagSet) Names() []string {
	names := make([]string, 0, len(t.Classes))
	for k := range t.Classes {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Empty 没有任何达标检测
func (t TagSet) Empty() bool {
	return len(t.Classes) == 0
}

// Tagger 标签汇总器，classifier 为 nil 时始终返回空结果
type Tagger struct {
	classifier Classifier
	log        *slog.Logger
}

// NewTagger 创建汇总器
func NewTagger(classifier Classifier) *Tagger {
	return &Tagger{classifier: classifier, log: slog.With("component", "tagging")}
}

// Enabled 是否配置了识别能力
func (t *Tagger) Enabled() bool {
	return t != nil && t.classifier != nil
}

// Tag 对序号为 sampleRate 整数倍的帧做识别
// 单帧识别失败只记录日志，不影响其它帧，整体从不返回错误
func (t *Tagger) Tag(ctx context.Context, frames []frame.Indexed, sampleRate int) TagSet {
	out := TagSet{Classes: make(map[string]float64)}
	if !t.Enabled() {
		return out
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	var sampled, failed int
	for _, f := range frames {
		if f.Index%sampleRate != 0 {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		sampled++
		dets, err := t.classifier.Infer(ctx, f.Frame)
		if err != nil {
			failed++
			t.log.WarnContext(ctx, "infer failed", "frame_index", f.Index, "err", err)
			continue
		}
		for _, d := range dets {
			if d.Confidence < MinConfidence {
				continue
			}
			d.FrameIndex = f.Index
			out.Detections = append(out.Detections, d)
			if d.Confidence > out.Classes[d.Class] {
				out.Classes[d.Class] = d.Confidence
			}
		}
	}
	t.log.InfoContext(ctx, "tagging completed",
		"sampled", sampled,
		"failed", failed,
		"classes", out.Names(),
		"detections", len(out.Detections),
	)
	return out
}
