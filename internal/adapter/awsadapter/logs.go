package awsadapter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	logtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/gowvp/edgecam/internal/core/telemetry"
	"github.com/jonboulle/clockwork"
)

var _ telemetry.LogSink = (*LogSink)(nil)

const (
	// 单次 PutLogEvents 上限
	maxLogBatchBytes  = 1_048_576
	maxLogBatchEvents = 10_000
	logEventOverhead  = 26
)

type logsAPI interface {
	CreateLogGroup(ctx context.Context, in *cloudwatchlogs.CreateLogGroupInput, opts ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error)
	CreateLogStream(ctx context.Context, in *cloudwatchlogs.CreateLogStreamInput, opts ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error)
	PutLogEvents(ctx context.Context, in *cloudwatchlogs.PutLogEventsInput, opts ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error)
}

// LogSink CloudWatch Logs，日志流按天命名 <prefix>-YYYYMMDD
type LogSink struct {
	client logsAPI
	group  string
	prefix string
	clock  clockwork.Clock

	mu      sync.Mutex
	created map[string]bool
}

// NewLogSink 创建日志后端
func NewLogSink(cfg aws.Config, group, streamPrefix string) *LogSink {
	return newLogSink(cloudwatchlogs.NewFromConfig(cfg), group, streamPrefix, clockwork.NewRealClock())
}

func newLogSink(client logsAPI, group, prefix string, clock clockwork.Clock) *LogSink {
	return &LogSink{client: client, group: group, prefix: prefix, clock: clock, created: make(map[string]bool)}
}

// StreamName 当天的日志流名
func (s *LogSink) StreamName() string {
	return fmt.Sprintf("%s-%s", s.prefix, s.clock.Now().Format("20060102"))
}

// ShipLogs implements telemetry.LogSink.
func (s *LogSink) ShipLogs(ctx context.Context, entries []telemetry.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	stream := s.StreamName()
	if err := s.ensureStream(ctx, stream); err != nil {
		return err
	}

	events := make([]logtypes.InputLogEvent, 0, len(entries))
	for _, e := range entries {
		events = append(events, logtypes.InputLogEvent{
			Message:   aws.String(e.Line),
			Timestamp: aws.Int64(e.Time.UnixMilli()),
		})
	}
	// 同一批次要求按时间升序
	sort.SliceStable(events, func(i, j int) bool {
		return *events[i].Timestamp < *events[j].Timestamp
	})

	for _, batch := range splitEvents(events) {
		if _, err := s.client.PutLogEvents(ctx, &cloudwatchlogs.PutLogEventsInput{
			LogGroupName:  aws.String(s.group),
			LogStreamName: aws.String(stream),
			LogEvents:     batch,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *LogSink) ensureStream(ctx context.Context, stream string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.created[stream] {
		return nil
	}
	if len(s.created) == 0 {
		_, err := s.client.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{LogGroupName: aws.String(s.group)})
		if err != nil && !alreadyExists(err) {
			return fmt.Errorf("create log group: %w", err)
		}
	}
	_, err := s.client.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(s.group),
		LogStreamName: aws.String(stream),
	})
	if err != nil && !alreadyExists(err) {
		return fmt.Errorf("create log stream: %w", err)
	}
	s.created[stream] = true
	return nil
}

func alreadyExists(err error) bool {
	var exists *logtypes.ResourceAlreadyExistsException
	return errors.As(err, &exists)
}

// splitEvents 按条数与字节数上限切分
func splitEvents(events []logtypes.InputLogEvent) [][]logtypes.InputLogEvent {
	var (
		out   [][]logtypes.InputLogEvent
		start int
		size  int
	)
	for i, e := range events {
		n := len(aws.ToString(e.Message)) + logEventOverhead
		if i > start && (size+n > maxLogBatchBytes || i-start >= maxLogBatchEvents) {
			out = append(out, events[start:i])
			start, size = i, 0
		}
		size += n
	}
	if start < len(events) {
		out = append(out, events[start:])
	}
	return out
}
