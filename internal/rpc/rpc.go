// Package rpc 目标识别后端，grpc 服务或本地子进程
package rpc

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gowvp/edgecam/internal/core/frame"
	"github.com/gowvp/edgecam/internal/core/preview"
	"github.com/gowvp/edgecam/internal/core/tagging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"
)

// DetectMethod 识别服务的 unary 方法，请求与响应均为 google.protobuf.Struct
const DetectMethod = "/edgecam.v1.Detector/Detect"

// jpegQuality 送检图片质量
const jpegQuality = 80

var _ tagging.Classifier = (*GRPCClassifier)(nil)

// GRPCClassifier 调用远端识别服务
type GRPCClassifier struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

// NewGRPCClassifier 创建客户端，失败时返回 nil
// 健康检查在后台执行，只记录结果
func NewGRPCClassifier(addr string, timeout time.Duration, opts ...grpc.DialOption) *GRPCClassifier {
	if len(opts) == 0 {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		slog.Error("NewGRPCClassifier", "addr", addr, "err", err)
		return nil
	}
	c := GRPCClassifier{conn: conn, timeout: timeout}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		status, err := c.Health(ctx)
		if err != nil {
			slog.Error("HealthCheck", "addr", addr, "err", err)
			return
		}
		if status == healthpb.HealthCheckResponse_SERVING {
			slog.Info("HealthCheck OK", "addr", addr)
		} else {
			slog.Error("HealthCheck", "addr", addr, "status", status.String())
		}
	}()
	return &c
}

// Health 查询服务健康状态
func (c *GRPCClassifier) Health(ctx context.Context) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// Infer implements tagging.Classifier.
func (c *GRPCClassifier) Infer(ctx context.Context, f frame.Frame) ([]tagging.Detection, error) {
	img, err := preview.EncodeJPEG(f, jpegQuality)
	if err != nil {
		return nil, err
	}
	req, err := structpb.NewStruct(map[string]any{
		"format": "jpeg",
		"width":  f.Width,
		"height": f.Height,
		"seq":    float64(f.Seq),
		"image":  base64.StdEncoding.EncodeToString(img),
	})
	if err != nil {
		return nil, err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	var resp structpb.Struct
	if err := c.conn.Invoke(ctx, DetectMethod, req, &resp); err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	return parseDetections(resp.AsMap())
}

// Close 关闭连接
func (c *GRPCClassifier) Close() error {
	return c.conn.Close()
}

// parseDetections 解析 {"detections":[{"class","confidence","bbox":[x1,y1,x2,y2]}]}
func parseDetections(m map[string]any) ([]tagging.Detection, error) {
	if msg, ok := m["error"].(string); ok && msg != "" {
		return nil, errors.New(msg)
	}
	list, _ := m["detections"].([]any)
	out := make([]tagging.Detection, 0, len(list))
	for _, item := range list {
		d, ok := item.(map[string]any)
		if !ok {
			continue
		}
		det := tagging.Detection{
			Class:      toString(d["class"]),
			Confidence: toFloat(d["confidence"]),
		}
		if box, ok := d["bbox"].([]any); ok && len(box) == 4 {
			det.Box = tagging.Box{
				X1: int(toFloat(box[0])),
				Y1: int(toFloat(box[1])),
				X2: int(toFloat(box[2])),
				Y2: int(toFloat(box[3])),
			}
		}
		if det.Class == "" {
			continue
		}
		out = append(out, det)
	}
	return out, nil
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}

// toFloat structpb 数字为 float64，msgpack 可能是各种整数
func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	}
	return 0
}
