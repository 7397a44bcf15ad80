package checks

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/s3control"

	"github.com/pankaj-dahiya-devops/org-posture/internal/models"
	"github.com/pankaj-dahiya-devops/org-posture/internal/pagination"
)

type s3APIClient interface {
	bucketAPIClient
	ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
}

type s3ControlAPIClient interface {
	GetPublicAccessBlock(ctx context.Context, params *s3control.GetPublicAccessBlockInput, optFns ...func(*s3control.Options)) (*s3control.GetPublicAccessBlockOutput, error)
}

// S3BaselineChecker verifies Block Public Access and default encryption at
// account and bucket level.
type S3BaselineChecker struct {
	buckets func(cfg aws.Config) s3APIClient
	control func(cfg aws.Config) s3ControlAPIClient
}

func NewS3BaselineChecker() *S3BaselineChecker {
	return &S3BaselineChecker{
		buckets: func(cfg aws.Config) s3APIClient { return s3.NewFromConfig(cfg) },
		control: func(cfg aws.Config) s3ControlAPIClient { return s3control.NewFromConfig(cfg) },
	}
}

func (c *S3BaselineChecker) Name() string { return CheckS3Baseline }

func (c *S3BaselineChecker) Check(ctx context.Context, account models.Account, creds aws.CredentialsProvider, region string) *models.Finding {
	return run(c.Name(), "S3 baseline", account, func(f *models.Finding) error {
		cfg := sessionConfig(ctx, creds, region)
		accountBlocked := c.checkAccountBlock(ctx, c.control(cfg), account.ID, f)

		client := c.buckets(cfg)
		buckets, err := pagination.Collect(ctx, func(ctx context.Context, token *string) (pagination.Page[s3types.Bucket], error) {
			out, err := client.ListBuckets(ctx, &s3.ListBucketsInput{ContinuationToken: token})
			if err != nil {
				return pagination.Page[s3types.Bucket]{}, err
			}
			return pagination.Page[s3types.Bucket]{Items: out.Buckets, Next: out.ContinuationToken}, nil
		})
		if err != nil {
			return err
		}

		for _, b := range buckets {
			checkBucket(ctx, client, b, region, accountBlocked, f)
		}
		return nil
	})
}

// checkAccountBlock reports whether account-level Block Public Access is
// fully on.
func (c *S3BaselineChecker) checkAccountBlock(ctx context.Context, client s3ControlAPIClient, accountID string, f *models.Finding) bool {
	out, err := client.GetPublicAccessBlock(ctx, &s3control.GetPublicAccessBlockInput{AccountId: aws.String(accountID)})
	switch {
	case err == nil:
		if blocksAllPublicAccess(out.PublicAccessBlockConfiguration) {
			return true
		}
		f.Fail("Account-level S3 Block Public Access disabled")
	case hasErrorCode(err, codeNoSuchPublicAccessBlock) || httpStatus(err) == 404:
		f.Fail("Account-level S3 Block Public Access not configured")
	default:
		f.Warn(fmt.Sprintf("Account-level S3 Block Public Access check failed: %s", errMessage(err)))
	}
	return false
}

// checkBucket probes one bucket. The bucket-level public access block is
// only consulted when the account-level block does not already cover it.
func checkBucket(ctx context.Context, client s3APIClient, b s3types.Bucket, region string, accountBlocked bool, f *models.Finding) {
	name := aws.ToString(b.Name)
	rgn := aws.ToString(b.BucketRegion)
	if rgn == "" {
		// A failed lookup falls through to the probes below, which report it.
		rgn, _ = bucketRegion(ctx, client, name, region)
	}

	if !accountBlocked {
		out, err := client.GetPublicAccessBlock(ctx, &s3.GetPublicAccessBlockInput{Bucket: aws.String(name)}, inRegion(rgn))
		switch {
		case err == nil:
			pab := out.PublicAccessBlockConfiguration
			if pab == nil || !aws.ToBool(pab.BlockPublicAcls) || !aws.ToBool(pab.BlockPublicPolicy) {
				f.Fail(fmt.Sprintf("Public bucket detected: %s", name))
			}
		case hasErrorCode(err, codeNoSuchPublicAccessBlock) || httpStatus(err) == 404:
			f.Fail(fmt.Sprintf("Bucket '%s' does not have public access block configured", name))
		default:
			f.Warn(fmt.Sprintf("Bucket '%s' public access check failed: %s", name, errMessage(err)))
		}
	}

	enc, err := client.GetBucketEncryption(ctx, &s3.GetBucketEncryptionInput{Bucket: aws.String(name)}, inRegion(rgn))
	switch {
	case err == nil:
		if enc.ServerSideEncryptionConfiguration == nil || len(enc.ServerSideEncryptionConfiguration.Rules) == 0 {
			f.Warn(fmt.Sprintf("Bucket unencrypted: %s", name))
		}
	case hasErrorCode(err, codeEncryptionNotFound):
		f.Warn(fmt.Sprintf("Bucket unencrypted: %s", name))
	case isBucketMissing(err):
		f.Warn(fmt.Sprintf("Bucket '%s' not found or not accessible", name))
	default:
		f.Warn(fmt.Sprintf("Bucket '%s' encryption check failed: %s", name, errMessage(err)))
	}

	if strings.Contains(name, "log") || strings.Contains(name, "trail") {
		f.Warn(fmt.Sprintf("Log bucket '%s' - verify write-only permissions", name))
	}
}
