package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type memSink struct {
	mu      sync.Mutex
	metrics []Metric
	logs    []LogEntry
	failN   int
}

func (s *memSink) PutMetrics(_ context.Context, m []Metric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, m...)
	return nil
}

func (s *memSink) ShipLogs(_ context.Context, e []LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failN > 0 {
		s.failN--
		return errors.New("sink unavailable")
	}
	s.logs = append(s.logs, e...)
	return nil
}

func (s *memSink) snapshot() ([]Metric, []LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Metric(nil), s.metrics...), append([]LogEntry(nil), s.logs...)
}

func TestPutMetricNeverBlocks(t *testing.T) {
	c := NewClient(Config{QueueSize: 2}, nil, nil)
	done := make(chan struct{})
	go func() {
		for range 10 {
			c.PutMetric("x", 1, UnitCount)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PutMetric blocked on a full queue")
	}
	if got := c.Stats().MetricsDropped; got != 8 {
		t.Fatalf("dropped = %d", got)
	}
}

func TestDimensionsMerged(t *testing.T) {
	c := NewClient(Config{QueueSize: 1, Dimensions: map[string]string{"camera": "usb"}}, nil, nil)
	c.PutMetric(MetricObjectDetected, 1, UnitCount, "class", "person")
	m := <-c.queue
	if m.Dimensions["camera"] != "usb" || m.Dimensions["class"] != "person" {
		t.Fatalf("dims = %v", m.Dimensions)
	}
}

func TestRunDrainsMetricsOnShutdown(t *testing.T) {
	sink := &memSink{}
	c := NewClient(Config{FlushInterval: time.Hour}, sink, nil)
	for i := range 25 {
		c.PutMetric("n", float64(i), UnitCount)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	metrics, _ := sink.snapshot()
	if len(metrics) != 25 {
		t.Fatalf("metrics = %d", len(metrics))
	}
}

func TestLogShippingWithRetry(t *testing.T) {
	sink := &memSink{failN: 1}
	buf := NewBuffer(1 << 16)
	quiet := slog.New(slog.NewTextHandler(discard{}, nil))
	c := NewClient(Config{FlushInterval: 10 * time.Millisecond}, nil, sink, WithLogBuffer(buf), WithLogger(quiet))

	log := slog.New(NewLogHandler(slog.NewTextHandler(discard{}, nil), buf, slog.LevelInfo))
	log.Info("motion detected", "score", 900)
	log.Debug("filtered out")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	// 首次失败后退避 1s，关闭时 drain 会再尝试一次
	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	_, logs := sink.snapshot()
	if len(logs) != 1 || !strings.Contains(logs[0].Line, `"msg":"motion detected"`) {
		t.Fatalf("logs = %+v", logs)
	}
	if c.Stats().LogsShipped != 1 || buf.Len() != 0 {
		t.Fatalf("stats = %+v", c.Stats())
	}
}

func TestShipperWarningsStayLocal(t *testing.T) {
	buf := NewBuffer(1 << 16)
	prev := slog.Default()
	slog.SetDefault(slog.New(NewLogHandler(slog.NewTextHandler(discard{}, nil), buf, slog.LevelInfo)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	sink := &memSink{failN: 100}
	c := NewClient(Config{FlushInterval: 10 * time.Millisecond}, nil, sink, WithLogBuffer(buf))
	slog.Info("motion detected")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	if buf.Len() != 1 {
		t.Fatalf("ship failures must not be queued for shipping, pending = %d", buf.Len())
	}
	if _, logs := sink.snapshot(); len(logs) != 0 {
		t.Fatalf("logs = %+v", logs)
	}
}

func TestLocalLoggerUnwrapsHandler(t *testing.T) {
	buf := NewBuffer(1 << 16)
	log := slog.New(NewLogHandler(slog.NewTextHandler(discard{}, nil), buf, slog.LevelInfo))
	LocalLogger(log).Warn("local only")
	if buf.Len() != 0 {
		t.Fatal("local logger must bypass the buffer")
	}
	plain := slog.New(slog.NewTextHandler(discard{}, nil))
	if LocalLogger(plain) != plain {
		t.Fatal("plain logger must be returned unchanged")
	}
}

func TestHeartbeatEmitsHostGauges(t *testing.T) {
	c := NewClient(Config{QueueSize: 10}, nil, nil, WithHostStats(func(context.Context) HostStats {
		return HostStats{CPUPercent: 12, MemPercent: 34, DiskPercent: 56, TempCelsius: 48}
	}))
	c.heartbeat(context.Background())
	names := map[string]float64{}
	for len(c.queue) > 0 {
		m := <-c.queue
		names[m.Name] = m.Value
	}
	if names[MetricSystemHeartbeat] != 1 || names[MetricCPUTemperature] != 48 || names[MetricDiskUsage] != 56 {
		t.Fatalf("metrics = %v", names)
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
