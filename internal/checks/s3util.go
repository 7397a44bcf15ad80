package checks

import (
	"context"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	s3ctltypes "github.com/aws/aws-sdk-go-v2/service/s3control/types"
)

// bucketAPIClient covers the per-bucket S3 calls shared by the CloudTrail
// and S3 checkers.
type bucketAPIClient interface {
	GetBucketLocation(ctx context.Context, params *s3.GetBucketLocationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error)
	GetBucketEncryption(ctx context.Context, params *s3.GetBucketEncryptionInput, optFns ...func(*s3.Options)) (*s3.GetBucketEncryptionOutput, error)
	GetPublicAccessBlock(ctx context.Context, params *s3.GetPublicAccessBlockInput, optFns ...func(*s3.Options)) (*s3.GetPublicAccessBlockOutput, error)
}

// inRegion routes a single S3 call to region. Bucket calls sent to the wrong
// region fail with a redirect instead of being followed.
func inRegion(region string) func(*s3.Options) {
	return func(o *s3.Options) {
		if region != "" {
			o.Region = region
		}
	}
}

// bucketRegion resolves the region bucket lives in. An empty location
// constraint means us-east-1; "EU" is the legacy name of eu-west-1.
// On error the fallback region is returned with the error.
func bucketRegion(ctx context.Context, client bucketAPIClient, bucket, fallback string) (string, error) {
	out, err := client.GetBucketLocation(ctx, &s3.GetBucketLocationInput{Bucket: aws.String(bucket)})
	if err != nil {
		return fallback, err
	}
	switch out.LocationConstraint {
	case "":
		return "us-east-1", nil
	case s3types.BucketLocationConstraintEu:
		return "eu-west-1", nil
	default:
		return string(out.LocationConstraint), nil
	}
}

// blocksAllPublicAccess reports whether every Block Public Access flag of
// cfg is on. cfg is the bucket-level (s3) or account-level (s3control)
// configuration; any other value, nil included, blocks nothing.
func blocksAllPublicAccess(cfg any) bool {
	var flags [4]*bool
	switch c := cfg.(type) {
	case *s3types.PublicAccessBlockConfiguration:
		if c == nil {
			return false
		}
		flags = [4]*bool{c.BlockPublicAcls, c.BlockPublicPolicy, c.IgnorePublicAcls, c.RestrictPublicBuckets}
	case *s3ctltypes.PublicAccessBlockConfiguration:
		if c == nil {
			return false
		}
		flags = [4]*bool{c.BlockPublicAcls, c.BlockPublicPolicy, c.IgnorePublicAcls, c.RestrictPublicBuckets}
	default:
		return false
	}
	for _, on := range flags {
		if !aws.ToBool(on) {
			return false
		}
	}
	return true
}

// isBucketMissing reports whether err means the bucket itself is gone or
// hidden. S3 also answers 404 for absent sub-resource configuration.
func isBucketMissing(err error) bool {
	if hasErrorCode(err, codeNoSuchBucket, codeNotFound) {
		return true
	}
	return httpStatus(err) == http.StatusNotFound &&
		!hasErrorCode(err, codeNoSuchPublicAccessBlock, codeEncryptionNotFound)
}
