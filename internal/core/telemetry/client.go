package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ixugo/goddd/pkg/conc"
	"github.com/jonboulle/clockwork"
)

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
	drainTimeout   = 5 * time.Second

	metricBatchSize = 20
	logBatchSize    = 500
)

// Config 上报参数
type Config struct {
	QueueSize         int
	FlushInterval     time.Duration
	HeartbeatInterval time.Duration
	Dimensions        map[string]string // 附加到每个指标
	DiskPath          string            // 心跳磁盘使用率的挂载点
}

// Client 指标与日志上报，后台协程在 Run 中启动
type Client struct {
	cfg     Config
	metrics MetricSink
	logs    LogSink
	buffer  *Buffer
	clock   clockwork.Clock
	log     *slog.Logger
	host    func(ctx context.Context) HostStats

	queue   chan Metric
	dropped atomic.Uint64
	sent    atomic.Uint64
	shipped atomic.Uint64
}

var _ Emitter = (*Client)(nil)

type Option func(*Client)

// WithLogger 上报自身的日志，应避开 LogHandler 以免回环
// 默认使用去掉上报分支的全局 logger
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// WithClock 注入时钟
func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) {
		c.clock = clock
	}
}

// WithLogBuffer 注入日志队列
func WithLogBuffer(buf *Buffer) Option {
	return func(c *Client) {
		c.buffer = buf
	}
}

// WithHostStats 替换主机指标采集
func WithHostStats(fn func(ctx context.Context) HostStats) Option {
	return func(c *Client) {
		c.host = fn
	}
}

// NewClient metrics 与 logs 可以为 nil，对应数据直接丢弃
func NewClient(cfg Config, metrics MetricSink, logs LogSink, opts ...Option) *Client {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	c := Client{
		cfg:     cfg,
		metrics: metrics,
		logs:    logs,
		clock:   clockwork.NewRealClock(),
		log:     LocalLogger(slog.Default()).With("component", "telemetry"),
		queue:   make(chan Metric, cfg.QueueSize),
	}
	c.host = func(ctx context.Context) HostStats { return ReadHostStats(ctx, c.cfg.DiskPath) }
	for _, opt := range opts {
		opt(&c)
	}
	return &c
}

// PutMetric 非阻塞入队，队列满时丢弃并计数
// dims 为 key, value 交替排列
func (c *Client) PutMetric(name string, value float64, unit Unit, dims ...string) {
	m := Metric{Name: name, Value: value, Unit: unit, Timestamp: c.clock.Now()}
	if len(dims) > 0 || len(c.cfg.Dimensions) > 0 {
		m.Dimensions = make(map[string]string, len(dims)/2+len(c.cfg.Dimensions))
		for k, v := range c.cfg.Dimensions {
			m.Dimensions[k] = v
		}
		for i := 0; i+1 < len(dims); i += 2 {
			m.Dimensions[dims[i]] = dims[i+1]
		}
	}
	select {
	case c.queue <- m:
	default:
		c.dropped.Add(1)
	}
}

// Stats 运行计数
type Stats struct {
	MetricsSent    uint64 `json:"metrics_sent"`
	MetricsDropped uint64 `json:"metrics_dropped"`
	LogsShipped    uint64 `json:"logs_shipped"`
	LogsDropped    uint64 `json:"logs_dropped"`
	LogsPending    int    `json:"logs_pending"`
}

func (c *Client) Stats() Stats {
	s := Stats{
		MetricsSent:    c.sent.Load(),
		MetricsDropped: c.dropped.Load(),
		LogsShipped:    c.shipped.Load(),
	}
	if c.buffer != nil {
		s.LogsDropped = c.buffer.Dropped()
		s.LogsPending = c.buffer.Len()
	}
	return s
}

// Run 启动指标发送、日志上报与心跳，阻塞到 ctx 结束并尽力发送剩余数据
func (c *Client) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Go(func() { c.runDispatcher(ctx) })
	if c.buffer != nil {
		wg.Go(func() { c.runShipper(ctx) })
	}
	if c.cfg.HeartbeatInterval > 0 {
		wg.Go(func() {
			conc.Timer(ctx, c.cfg.HeartbeatInterval, c.cfg.HeartbeatInterval, func() { c.heartbeat(ctx) })
		})
	}
	wg.Wait()
}

// heartbeat 存活信号与主机指标
func (c *Client) heartbeat(ctx context.Context) {
	c.PutMetric(MetricSystemHeartbeat, 1, UnitCount)
	s := c.host(ctx)
	c.PutMetric(MetricCPUUsage, s.CPUPercent, UnitPercent)
	c.PutMetric(MetricMemoryUsage, s.MemPercent, UnitPercent)
	c.PutMetric(MetricDiskUsage, s.DiskPercent, UnitPercent)
	if s.TempCelsius > 0 {
		c.PutMetric(MetricCPUTemperature, s.TempCelsius, UnitNone)
	}
	c.log.Debug("heartbeat", "cpu", s.CPUPercent, "mem", s.MemPercent, "disk", s.DiskPercent, "temp", s.TempCelsius)
}

func (c *Client) runDispatcher(ctx context.Context) {
	ticker := c.clock.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]Metric, 0, metricBatchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		c.sendMetrics(ctx, batch)
		batch = batch[:0]
	}

	for {
		select {
		case m := <-c.queue:
			batch = append(batch, m)
			if len(batch) >= metricBatchSize {
				flush(ctx)
			}
		case <-ticker.Chan():
			flush(ctx)
		case <-ctx.Done():
			dctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
			for {
				select {
				case m := <-c.queue:
					batch = append(batch, m)
					if len(batch) >= metricBatchSize {
						flush(dctx)
					}
					continue
				default:
				}
				break
			}
			flush(dctx)
			return
		}
	}
}

func (c *Client) sendMetrics(ctx context.Context, batch []Metric) {
	if c.metrics == nil {
		return
	}
	if err := c.metrics.PutMetrics(ctx, batch); err != nil {
		c.log.Warn("put metrics failed", "count", len(batch), "err", err)
		return
	}
	c.sent.Add(uint64(len(batch)))
}

// runShipper 按 FlushInterval 批量上报日志，失败后指数退避
func (c *Client) runShipper(ctx context.Context) {
	ticker := c.clock.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()
	backoff := initialBackoff
	var retryAt time.Time

	for {
		select {
		case <-ticker.Chan():
		case <-ctx.Done():
			c.drainLogs()
			return
		}
		if c.clock.Now().Before(retryAt) {
			continue
		}

		for c.buffer.Len() > 0 {
			entries := c.buffer.Peek(logBatchSize)
			if err := c.shipLogs(ctx, entries); err != nil {
				if ctx.Err() != nil {
					c.drainLogs()
					return
				}
				c.log.Warn("log ship failed, will retry", "err", err, "backoff", backoff, "pending", c.buffer.Len())
				retryAt = c.clock.Now().Add(backoff)
				backoff = min(backoff*2, maxBackoff)
				break
			}
			c.buffer.Pop(len(entries))
			c.shipped.Add(uint64(len(entries)))
			backoff = initialBackoff
		}
	}
}

func (c *Client) shipLogs(ctx context.Context, entries []LogEntry) error {
	if c.logs == nil {
		return nil
	}
	return c.logs.ShipLogs(ctx, entries)
}

// drainLogs 退出前尽力上报一次
func (c *Client) drainLogs() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for c.buffer.Len() > 0 {
		entries := c.buffer.Peek(logBatchSize)
		if err := c.shipLogs(ctx, entries); err != nil {
			c.log.Warn("drain: log ship failed, abandoning remaining", "err", err, "remaining", c.buffer.Len())
			return
		}
		c.buffer.Pop(len(entries))
		c.shipped.Add(uint64(len(entries)))
	}
}
