// Package awsadapter 对象存储、临时凭证、指标与日志的 AWS 实现
package awsadapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/gowvp/edgecam/internal/core/credential"
	"github.com/gowvp/edgecam/internal/core/delivery"
)

// Config AWS 连接参数
type Config struct {
	Region          string
	AccessKeyID     string // 为空时使用默认凭证链
	SecretAccessKey string
	RoleARN         string
	SessionName     string
}

// LoadConfig 加载基础配置，显式密钥优先，否则走默认凭证链
func LoadConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awscfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awscfg, nil
}

// LoadTelemetryConfig 指标与日志使用 SDK 自带的角色凭证缓存，与上传租约互不影响
func LoadTelemetryConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	awscfg, err := LoadConfig(ctx, cfg)
	if err != nil {
		return aws.Config{}, err
	}
	if cfg.RoleARN == "" {
		return awscfg, nil
	}
	provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(awscfg), cfg.RoleARN, func(o *stscreds.AssumeRoleOptions) {
		o.RoleSessionName = cfg.SessionName + "-telemetry"
	})
	awscfg.Credentials = aws.NewCredentialsCache(provider)
	return awscfg, nil
}

// WithLease 以租约覆盖凭证，零值租约保持原凭证
func WithLease(base aws.Config, lease credential.Lease) aws.Config {
	if lease.AccessKeyID == "" {
		return base
	}
	out := base.Copy()
	out.Credentials = credentials.NewStaticCredentialsProvider(lease.AccessKeyID, lease.SecretAccessKey, lease.SessionToken)
	return out
}

// expiredCodes 凭证过期的错误码
var expiredCodes = map[string]struct{}{
	"ExpiredToken":          {},
	"ExpiredTokenException": {},
	"RequestExpired":        {},
}

// mapError 凭证过期统一映射为 delivery.ErrCredentialExpired
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if _, ok := expiredCodes[apiErr.ErrorCode()]; ok {
			return fmt.Errorf("%w: %w", delivery.ErrCredentialExpired, err)
		}
	}
	return err
}
