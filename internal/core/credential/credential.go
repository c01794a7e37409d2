// Package credential 上传凭证租约，支持长期静态凭证与 AssumeRole 临时凭证
package credential

import (
	"context"
	"errors"
	"time"
)

// DefaultRefreshWindow 剩余有效期低于该值时主动刷新
const DefaultRefreshWindow = 5 * time.Minute

// DefaultLeaseDuration AssumeRole 申请的有效期
const DefaultLeaseDuration = time.Hour

// Lease 一组凭证，Expiry 为零值表示永不过期
type Lease struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expiry          time.Time
	Source          string
}

// CanExpire 是否有过期时间
func (l Lease) CanExpire() bool {
	return !l.Expiry.IsZero()
}

// Remaining 剩余有效期，永不过期时返回最大值
func (l Lease) Remaining(now time.Time) time.Duration {
	if !l.CanExpire() {
		return time.Duration(1<<63 - 1)
	}
	return l.Expiry.Sub(now)
}

// Broker 信任代理，签发临时凭证
type Broker interface {
	Assume(ctx context.Context, roleARN, sessionName string, duration time.Duration) (Lease, error)
}

// Provider 凭证来源，启动时选定
type Provider interface {
	Fetch(ctx context.Context) (Lease, error)
	// Renewable 能否重新签发，静态凭证不能
	Renewable() bool
	Kind() string
}

// Static 长期凭证，AccessKeyID 为空时交由 SDK 默认链解析
type Static struct {
	Lease Lease
}

var _ Provider = Static{}

func (s Static) Fetch(context.Context) (Lease, error) {
	l := s.Lease
	l.Expiry = time.Time{}
	l.Source = s.Kind()
	return l, nil
}

func (Static) Renewable() bool { return false }

func (Static) Kind() string { return "static" }

// AssumeRole 通过信任代理获取临时凭证
type AssumeRole struct {
	Broker      Broker
	RoleARN     string
	SessionName string
	Duration    time.Duration
}

var _ Provider = AssumeRole{}

func (a AssumeRole) Fetch(ctx context.Context) (Lease, error) {
	if a.Broker == nil || a.RoleARN == "" {
		return Lease{}, errors.New("assume role requires broker and role arn")
	}
	d := a.Duration
	if d <= 0 {
		d = DefaultLeaseDuration
	}
	l, err := a.Broker.Assume(ctx, a.RoleARN, a.SessionName, d)
	if err != nil {
		return Lease{}, err
	}
	l.Source = a.Kind()
	return l, nil
}

func (AssumeRole) Renewable() bool { return true }

func (AssumeRole) Kind() string { return "assume_role" }
