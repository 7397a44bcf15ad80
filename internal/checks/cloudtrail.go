package checks

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	cttypes "github.com/aws/aws-sdk-go-v2/service/cloudtrail/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/pankaj-dahiya-devops/org-posture/internal/models"
)

type trailAPIClient interface {
	DescribeTrails(ctx context.Context, params *cloudtrail.DescribeTrailsInput, optFns ...func(*cloudtrail.Options)) (*cloudtrail.DescribeTrailsOutput, error)
	GetTrailStatus(ctx context.Context, params *cloudtrail.GetTrailStatusInput, optFns ...func(*cloudtrail.Options)) (*cloudtrail.GetTrailStatusOutput, error)
}

// CloudTrailChecker verifies trail coverage and the hygiene of the buckets
// trails deliver to.
type CloudTrailChecker struct {
	trails  func(cfg aws.Config) trailAPIClient
	buckets func(cfg aws.Config) bucketAPIClient
}

func NewCloudTrailChecker() *CloudTrailChecker {
	return &CloudTrailChecker{
		trails:  func(cfg aws.Config) trailAPIClient { return cloudtrail.NewFromConfig(cfg) },
		buckets: func(cfg aws.Config) bucketAPIClient { return s3.NewFromConfig(cfg) },
	}
}

func (c *CloudTrailChecker) Name() string { return CheckCloudTrail }

func (c *CloudTrailChecker) Check(ctx context.Context, account models.Account, creds aws.CredentialsProvider, region string) *models.Finding {
	return run(c.Name(), "CloudTrail configuration", account, func(f *models.Finding) error {
		cfg := sessionConfig(ctx, creds, region)
		client := c.trails(cfg)

		out, err := client.DescribeTrails(ctx, &cloudtrail.DescribeTrailsInput{IncludeShadowTrails: aws.Bool(true)})
		if err != nil {
			return err
		}
		if len(out.TrailList) == 0 {
			f.Fail("No CloudTrail configured")
			return nil
		}

		s3Client := c.buckets(cfg)
		for _, trail := range out.TrailList {
			c.checkTrail(ctx, client, trail, f)
			if bucket := aws.ToString(trail.S3BucketName); bucket != "" {
				checkTrailBucket(ctx, s3Client, bucket, region, f)
			}
		}
		return nil
	})
}

func (c *CloudTrailChecker) checkTrail(ctx context.Context, client trailAPIClient, trail cttypes.Trail, f *models.Finding) {
	name := aws.ToString(trail.Name)
	if !aws.ToBool(trail.IsMultiRegionTrail) {
		f.Warn(fmt.Sprintf("CloudTrail '%s' not multi-region", name))
	}
	if !aws.ToBool(trail.IncludeGlobalServiceEvents) {
		f.Warn(fmt.Sprintf("CloudTrail '%s' global events not included", name))
	}
	if !aws.ToBool(trail.LogFileValidationEnabled) {
		f.Warn(fmt.Sprintf("CloudTrail '%s' log integrity not enabled", name))
	}

	// Shadow trails must be queried by ARN from outside their home region.
	id := trail.TrailARN
	if id == nil {
		id = trail.Name
	}
	status, err := client.GetTrailStatus(ctx, &cloudtrail.GetTrailStatusInput{Name: id})
	switch {
	case err != nil:
		f.Warn(fmt.Sprintf("CloudTrail '%s' status check failed: %s", name, errMessage(err)))
	case !aws.ToBool(status.IsLogging):
		f.Warn(fmt.Sprintf("CloudTrail '%s' is not logging", name))
	}
}

func checkTrailBucket(ctx context.Context, client bucketAPIClient, bucket, region string, f *models.Finding) {
	bucketRgn, err := bucketRegion(ctx, client, bucket, region)
	if err != nil && isBucketMissing(err) {
		f.Warn(fmt.Sprintf("Trail S3 bucket '%s' not found or not accessible", bucket))
		return
	}

	_, err = client.GetBucketEncryption(ctx, &s3.GetBucketEncryptionInput{Bucket: aws.String(bucket)}, inRegion(bucketRgn))
	switch {
	case err == nil:
	case hasErrorCode(err, codeEncryptionNotFound):
		f.Warn(fmt.Sprintf("Trail S3 bucket '%s' is not encrypted", bucket))
	case isBucketMissing(err):
		f.Warn(fmt.Sprintf("Trail S3 bucket '%s' not found or not accessible", bucket))
	default:
		f.Warn(fmt.Sprintf("Trail S3 bucket '%s' encryption check failed: %s", bucket, errMessage(err)))
	}

	pab, err := client.GetPublicAccessBlock(ctx, &s3.GetPublicAccessBlockInput{Bucket: aws.String(bucket)}, inRegion(bucketRgn))
	switch {
	case err == nil:
		if !blocksAllPublicAccess(pab.PublicAccessBlockConfiguration) {
			f.Warn(fmt.Sprintf("Trail S3 bucket '%s' has public access settings enabled", bucket))
		}
	case hasErrorCode(err, codeNoSuchPublicAccessBlock) || isBucketMissing(err):
		f.Fail(fmt.Sprintf("Trail S3 bucket '%s' does not have public access block configured", bucket))
	default:
		f.Warn(fmt.Sprintf("Trail S3 bucket '%s' public access check failed: %s", bucket, errMessage(err)))
	}
}
