package common

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/pankaj-dahiya-devops/org-posture/internal/models"
)

// DefaultAWSClientProvider is the production implementation of AWSClientProvider.
// It resolves explicit access keys, a named shared-config profile, or the
// SDK default credential chain, in that order.
//
// Inject a custom ClientFactory via NewDefaultAWSClientProviderWithFactory to
// replace real SDK clients with mocks in unit tests.
type DefaultAWSClientProvider struct {
	factory     ClientFactory
	maxAttempts int
}

// Option customises a DefaultAWSClientProvider.
type Option func(*DefaultAWSClientProvider)

// WithMaxAttempts sets the SDK retryer attempt count. Zero keeps the SDK default.
func WithMaxAttempts(n int) Option {
	return func(p *DefaultAWSClientProvider) { p.maxAttempts = n }
}

// NewDefaultAWSClientProvider returns a provider backed by the real AWS SDK.
func NewDefaultAWSClientProvider(opts ...Option) *DefaultAWSClientProvider {
	return NewDefaultAWSClientProviderWithFactory(NewClientSet, opts...)
}

// NewDefaultAWSClientProviderWithFactory returns a provider that uses f to
// create its ClientSet. Pass a mock factory in tests.
func NewDefaultAWSClientProviderWithFactory(f ClientFactory, opts ...Option) *DefaultAWSClientProvider {
	p := &DefaultAWSClientProvider{factory: f}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ---------------------------------------------------------------------------
// AWSClientProvider implementation
// ---------------------------------------------------------------------------

// LoadSession loads the AWS SDK config for base and returns a Session with
// initialised management-plane clients. No network call is made; use
// TestConnection to verify the credential.
func (p *DefaultAWSClientProvider) LoadSession(ctx context.Context, base models.BaseCredentials) (*Session, error) {
	region := base.Region
	if region == "" {
		region = models.DefaultRegion
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if p.maxAttempts > 0 {
		opts = append(opts, awsconfig.WithRetryMaxAttempts(p.maxAttempts))
	}

	name := profileDisplayName(base.Profile)
	switch {
	case base.Static():
		if base.AccessKeyID == "" || base.SecretAccessKey == "" {
			return nil, fmt.Errorf("both access key ID and secret access key are required")
		}
		name = "static"
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(base.AccessKeyID, base.SecretAccessKey, ""),
		))
	case base.Profile != "":
		opts = append(opts, awsconfig.WithSharedConfigProfile(base.Profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS credentials %q: %w", name, err)
	}

	// Shared config may override the region with an empty value.
	if cfg.Region == "" {
		cfg.Region = models.DefaultRegion
	}

	return &Session{
		ProfileName: name,
		Region:      cfg.Region,
		Config:      cfg,
		Clients:     p.factory(cfg),
	}, nil
}

// ---------------------------------------------------------------------------
// Session helpers
// ---------------------------------------------------------------------------

// TestConnection calls STS GetCallerIdentity with the base credential.
func (s *Session) TestConnection(ctx context.Context) (Identity, error) {
	out, err := s.Clients.STS.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return Identity{}, fmt.Errorf("STS GetCallerIdentity: %w", err)
	}
	if out.Account == nil {
		return Identity{}, fmt.Errorf("STS GetCallerIdentity returned nil account")
	}
	return Identity{
		AccountID: aws.ToString(out.Account),
		ARN:       aws.ToString(out.Arn),
		UserID:    aws.ToString(out.UserId),
	}, nil
}

// ---------------------------------------------------------------------------
// Package-private helpers
// ---------------------------------------------------------------------------

// profileDisplayName returns a human-readable profile identifier. An empty
// string (the default profile) is shown as "default".
func profileDisplayName(profile string) string {
	if profile == "" {
		return "default"
	}
	return profile
}
