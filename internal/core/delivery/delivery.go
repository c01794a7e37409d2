// Package delivery 片段上传，凭证过期时刷新并仅重试一次
package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gowvp/edgecam/internal/core/credential"
	"github.com/gowvp/edgecam/pkg/progress"
	"github.com/jonboulle/clockwork"
)

// ErrCredentialExpired 对象存储拒绝了过期凭证
var ErrCredentialExpired = errors.New("credential expired")

// ObjectStore 对象存储能力
type ObjectStore interface {
	Put(ctx context.Context, bucket, key string, body io.ReadSeeker, size int64, meta map[string]string) error
	Head(ctx context.Context, bucket string) error
}

// StoreFactory 以指定租约构造对象存储客户端
type StoreFactory func(ctx context.Context, lease credential.Lease) (ObjectStore, error)

// Outcome 上传结果
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// Record 一次上传的记录，不持久化
type Record struct {
	Path     string
	Key      string
	Metadata map[string]string
	Size     int64
	Attempts int
	Outcome  Outcome
	Elapsed  time.Duration
}

// Config 上传参数
type Config struct {
	Bucket    string
	KeyPrefix string
}

// Client 上传客户端，仅供主循环单协程使用
type Client struct {
	cfg     Config
	creds   *credential.Manager
	factory StoreFactory
	clock   clockwork.Clock
	log     *slog.Logger

	store ObjectStore
	lease credential.Lease
}

type Option func(*Client)

// WithClock 注入时钟
func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) {
		c.clock = clock
	}
}

// NewClient 获取首个租约并探测存储桶，探测失败只记录日志
func NewClient(ctx context.Context, cfg Config, creds *credential.Manager, factory StoreFactory, opts ...Option) (*Client, error) {
	c := Client{
		cfg:     cfg,
		creds:   creds,
		factory: factory,
		clock:   clockwork.NewRealClock(),
		log:     slog.With("component", "delivery", "bucket", cfg.Bucket),
	}
	for _, opt := range opts {
		opt(&c)
	}

	store, err := c.currentStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := store.Head(ctx, cfg.Bucket); err != nil {
		c.log.WarnContext(ctx, "bucket check failed", "err", err)
	} else {
		c.log.InfoContext(ctx, "bucket reachable")
	}
	return &c, nil
}

// currentStore 租约变化时重建客户端
func (c *Client) currentStore(ctx context.Context) (ObjectStore, error) {
	lease, err := c.creds.Current(ctx)
	if err != nil {
		return nil, err
	}
	if c.store != nil && lease == c.lease {
		return c.store, nil
	}
	store, err := c.factory(ctx, lease)
	if err != nil {
		return nil, fmt.Errorf("build object store: %w", err)
	}
	c.store, c.lease = store, lease
	return store, nil
}

// DefaultKey <prefix>/<YYYYMMDD_HHMMSS><ext>
func DefaultKey(prefix string, now time.Time, path string) string {
	name := now.Format("20060102_150405") + filepath.Ext(path)
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// Upload 上传本地文件，key 为空时按时间生成
// 仅在凭证过期且凭证可续签时刷新并重试一次，其它错误直接返回
func (c *Client) Upload(ctx context.Context, path, key string, meta map[string]any) (Record, error) {
	start := c.clock.Now()
	if key == "" {
		key = DefaultKey(c.cfg.KeyPrefix, start, path)
	}
	rec := Record{
		Path:     path,
		Key:      key,
		Metadata: Stringify(meta),
		Outcome:  OutcomeFailed,
	}

	f, err := os.Open(path)
	if err != nil {
		return rec, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return rec, fmt.Errorf("stat artifact: %w", err)
	}
	rec.Size = fi.Size()

	log := c.log.With("key", key, "size", rec.Size)
	body := progress.NewReader(rec.Size, f, func(cur, total int64) {
		log.Debug("upload progress", "sent", cur, "total", total)
	})
	defer body.Close()

	err = c.put(ctx, key, body, &rec)
	if errors.Is(err, ErrCredentialExpired) && c.creds.Renewable() {
		log.WarnContext(ctx, "credential expired during upload, refreshing once")
		if _, rerr := c.creds.Refresh(ctx); rerr != nil {
			rec.Elapsed = c.clock.Since(start)
			return rec, fmt.Errorf("upload %s: %w", key, errors.Join(err, rerr))
		}
		if _, serr := body.Seek(0, io.SeekStart); serr != nil {
			rec.Elapsed = c.clock.Since(start)
			return rec, fmt.Errorf("rewind artifact: %w", serr)
		}
		err = c.put(ctx, key, body, &rec)
	}
	rec.Elapsed = c.clock.Since(start)
	if err != nil {
		log.ErrorContext(ctx, "upload failed", "attempts", rec.Attempts, "err", err)
		return rec, fmt.Errorf("upload %s: %w", key, err)
	}

	rec.Outcome = OutcomeSuccess
	log.InfoContext(ctx, "upload succeeded", "attempts", rec.Attempts, "elapsed", rec.Elapsed)
	return rec, nil
}

func (c *Client) put(ctx context.Context, key string, body io.ReadSeeker, rec *Record) error {
	store, err := c.currentStore(ctx)
	if err != nil {
		return err
	}
	rec.Attempts++
	return store.Put(ctx, c.cfg.Bucket, key, body, rec.Size, rec.Metadata)
}
