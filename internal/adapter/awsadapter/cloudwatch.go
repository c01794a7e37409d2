package awsadapter

import (
	"context"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/gowvp/edgecam/internal/core/telemetry"
)

var _ telemetry.MetricSink = (*MetricSink)(nil)

type cloudwatchAPI interface {
	PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, opts ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// MetricSink CloudWatch 指标
type MetricSink struct {
	client    cloudwatchAPI
	namespace string
}

// NewMetricSink namespace 如 RaspberryPi/MotionDetection
func NewMetricSink(cfg aws.Config, namespace string) *MetricSink {
	return &MetricSink{client: cloudwatch.NewFromConfig(cfg), namespace: namespace}
}

// PutMetrics implements telemetry.MetricSink.
func (s *MetricSink) PutMetrics(ctx context.Context, metrics []telemetry.Metric) error {
	if len(metrics) == 0 {
		return nil
	}
	data := make([]cwtypes.MetricDatum, 0, len(metrics))
	for _, m := range metrics {
		data = append(data, toDatum(m))
	}
	_, err := s.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(s.namespace),
		MetricData: data,
	})
	return err
}

func toDatum(m telemetry.Metric) cwtypes.MetricDatum {
	d := cwtypes.MetricDatum{
		MetricName: aws.String(m.Name),
		Value:      aws.Float64(m.Value),
		Unit:       cwtypes.StandardUnit(m.Unit),
		Timestamp:  aws.Time(m.Timestamp),
	}
	keys := make([]string, 0, len(m.Dimensions))
	for k := range m.Dimensions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		d.Dimensions = append(d.Dimensions, cwtypes.Dimension{Name: aws.String(k), Value: aws.String(m.Dimensions[k])})
	}
	return d
}
