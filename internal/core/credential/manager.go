package credential

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// State 租约状态
type State int

const (
	StateUninitialized State = iota
	StateActive
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateRefreshing:
		return "refreshing"
	}
	return "unknown"
}

// Manager 管理当前租约
// 租约只能由持有者所在的协程读写，State 可在任意协程读取
type Manager struct {
	provider Provider
	clock    clockwork.Clock
	window   time.Duration
	log      *slog.Logger

	state atomic.Int32
	lease Lease
}

type Option func(*Manager)

// WithClock 注入时钟
func WithClock(clock clockwork.Clock) Option {
	return func(m *Manager) {
		m.clock = clock
	}
}

// WithRefreshWindow 设置主动刷新窗口
func WithRefreshWindow(d time.Duration) Option {
	return func(m *Manager) {
		m.window = d
	}
}

// NewManager 创建租约管理器，首次 Current 调用时才获取凭证
func NewManager(provider Provider, opts ...Option) *Manager {
	m := Manager{
		provider: provider,
		clock:    clockwork.NewRealClock(),
		window:   DefaultRefreshWindow,
		log:      slog.With("component", "credential", "provider", provider.Kind()),
	}
	for _, opt := range opts {
		opt(&m)
	}
	return &m
}

// State 当前状态
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Renewable 能否重新签发
func (m *Manager) Renewable() bool {
	return m.provider.Renewable()
}

// Current 返回可用租约，未初始化或即将过期时先刷新
func (m *Manager) Current(ctx context.Context) (Lease, error) {
	if m.State() == StateUninitialized {
		return m.Refresh(ctx)
	}
	if m.provider.Renewable() && m.lease.Remaining(m.clock.Now()) < m.window {
		m.log.InfoContext(ctx, "lease close to expiry, refreshing", "expiry", m.lease.Expiry)
		return m.Refresh(ctx)
	}
	return m.lease, nil
}

// Refresh 重新获取租约，失败时保留原租约与状态
func (m *Manager) Refresh(ctx context.Context) (Lease, error) {
	prev := m.state.Swap(int32(StateRefreshing))

	lease, err := m.provider.Fetch(ctx)
	if err != nil {
		m.state.Store(prev)
		return Lease{}, fmt.Errorf("refresh credential: %w", err)
	}
	m.lease = lease
	m.state.Store(int32(StateActive))
	if lease.CanExpire() {
		m.log.InfoContext(ctx, "credential refreshed", "expiry", lease.Expiry.Format(time.DateTime))
	} else {
		m.log.DebugContext(ctx, "credential loaded")
	}
	return lease, nil
}
