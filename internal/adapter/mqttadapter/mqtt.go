// Package mqttadapter 通过 MQTT 上报指标与日志，用于无法直连云服务的现场网络
package mqttadapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/gowvp/edgecam/internal/core/telemetry"
	"github.com/jonboulle/clockwork"
)

var (
	_ telemetry.MetricSink = (*Sink)(nil)
	_ telemetry.LogSink    = (*Sink)(nil)
)

// ErrNotConnected 连接断开期间的发布直接失败，由上层丢弃
var ErrNotConnected = errors.New("mqtt not connected")

const publishTimeout = 5 * time.Second

// Config 连接参数
type Config struct {
	Broker       string
	ClientID     string // 为空时生成 edgecam-<uuid>
	Topic        string
	Username     string
	Password     string
	StreamPrefix string
}

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
}

// Sink 指标发布到 <topic>/<client>/metrics，日志发布到 <topic>/<client>/logs
type Sink struct {
	client    publisher
	conn      mqtt.Client
	clientID  string
	topic     string
	prefix    string
	clock     clockwork.Clock
	connected atomic.Bool
}

// Connect 建立连接，之后由 paho 自动重连
func Connect(ctx context.Context, cfg Config) (*Sink, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = "edgecam-" + uuid.NewString()[:8]
	}
	s := &Sink{clientID: cfg.ClientID, topic: cfg.Topic, prefix: cfg.StreamPrefix, clock: clockwork.NewRealClock()}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		s.connected.Store(true)
		slog.Info("mqtt connection established", "broker", cfg.Broker, "client_id", cfg.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		s.connected.Store(false)
		slog.Warn("mqtt connection lost, will auto-reconnect", "broker", cfg.Broker, "err", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		client.Disconnect(0)
		return nil, ctx.Err()
	case <-time.After(publishTimeout):
		// SetConnectRetry 下首次连接会在后台持续重试
		slog.Warn("mqtt broker not reachable yet, retrying in background", "broker", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	s.conn = client
	s.client = client
	return s, nil
}

func newSink(client publisher, clientID, topic, prefix string, clock clockwork.Clock) *Sink {
	s := &Sink{client: client, clientID: clientID, topic: topic, prefix: prefix, clock: clock}
	s.connected.Store(true)
	return s
}

// MetricsTopic 指标主题
func (s *Sink) MetricsTopic() string {
	return fmt.Sprintf("%s/%s/metrics", s.topic, s.clientID)
}

// LogsTopic 日志主题
func (s *Sink) LogsTopic() string {
	return fmt.Sprintf("%s/%s/logs", s.topic, s.clientID)
}

// PutMetrics implements telemetry.MetricSink.
func (s *Sink) PutMetrics(ctx context.Context, metrics []telemetry.Metric) error {
	if len(metrics) == 0 {
		return nil
	}
	payload, err := EncodeMetrics(MetricBatch{Device: s.clientID, Metrics: metrics})
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	return s.publish(ctx, s.MetricsTopic(), 0, payload)
}

// ShipLogs implements telemetry.LogSink.
func (s *Sink) ShipLogs(ctx context.Context, entries []telemetry.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	payload, err := EncodeLogs(LogBatch{
		Device:  s.clientID,
		Stream:  fmt.Sprintf("%s-%s", s.prefix, s.clock.Now().Format("20060102")),
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("encode logs: %w", err)
	}
	return s.publish(ctx, s.LogsTopic(), 1, payload)
}

func (s *Sink) publish(ctx context.Context, topic string, qos byte, payload []byte) error {
	if !s.connected.Load() {
		return ErrNotConnected
	}
	token := s.client.Publish(topic, qos, false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish %s: %w", topic, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		return fmt.Errorf("publish %s: timeout", topic)
	}
}

// Close 断开连接
func (s *Sink) Close() {
	if s.conn != nil && s.conn.IsConnected() {
		s.conn.Disconnect(250)
		slog.Info("mqtt disconnected")
	}
	s.connected.Store(false)
}
