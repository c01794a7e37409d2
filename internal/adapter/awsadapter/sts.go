package awsadapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/google/uuid"
	"github.com/gowvp/edgecam/internal/core/credential"
)

var _ credential.Broker = (*STSBroker)(nil)

type stsAPI interface {
	AssumeRole(ctx context.Context, in *sts.AssumeRoleInput, opts ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

// STSBroker 通过 STS AssumeRole 获取临时凭证
type STSBroker struct {
	client stsAPI
}

// NewSTSBroker cfg 为调用 STS 的基础凭证
func NewSTSBroker(cfg aws.Config) *STSBroker {
	return &STSBroker{client: sts.NewFromConfig(cfg)}
}

// Assume implements credential.Broker.
// session 为空时生成随机会话名
func (b *STSBroker) Assume(ctx context.Context, role, session string, d time.Duration) (credential.Lease, error) {
	if session == "" {
		session = "edgecam-" + uuid.NewString()[:8]
	}
	out, err := b.client.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(role),
		RoleSessionName: aws.String(session),
		DurationSeconds: aws.Int32(int32(d / time.Second)),
	})
	if err != nil {
		return credential.Lease{}, fmt.Errorf("assume role %s: %w", role, err)
	}
	c := out.Credentials
	if c == nil {
		return credential.Lease{}, errors.New("assume role returned no credentials")
	}
	return credential.Lease{
		AccessKeyID:     aws.ToString(c.AccessKeyId),
		SecretAccessKey: aws.ToString(c.SecretAccessKey),
		SessionToken:    aws.ToString(c.SessionToken),
		Expiry:          aws.ToTime(c.Expiration),
	}, nil
}
