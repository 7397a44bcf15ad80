package output

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DefaultUploadRegion is used when the uploader is built without a region.
const DefaultUploadRegion = "us-east-1"

// PutObjectAPI is the subset of the S3 client used for report upload.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader stores JSON reports in an S3 bucket.
type Uploader struct {
	client PutObjectAPI
	now    func() time.Time
}

// NewUploader returns an Uploader writing through client.
func NewUploader(client PutObjectAPI) *Uploader {
	return &Uploader{client: client, now: time.Now}
}

// NewS3Uploader builds an Uploader from cfg, pinned to region
// (DefaultUploadRegion when empty).
func NewS3Uploader(cfg aws.Config, region string) *Uploader {
	if region == "" {
		region = DefaultUploadRegion
	}
	return NewUploader(s3.NewFromConfig(cfg, func(o *s3.Options) { o.Region = region }))
}

// ReportKey returns the object key for a report written at t.
// A non-empty prefix without a trailing slash gets one.
func ReportKey(prefix string, t time.Time) string {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + "aws_security_assessment_" + t.UTC().Format("20060102_150405") + ".json"
}

// Upload serialises v as indented JSON into bucket under prefix and returns the
// object key.
func (u *Uploader) Upload(ctx context.Context, bucket, prefix string, v any) (string, error) {
	if bucket == "" {
		return "", fmt.Errorf("upload: bucket name is required")
	}
	var buf bytes.Buffer
	if err := WriteJSON(&buf, v); err != nil {
		return "", err
	}
	key := ReportKey(prefix, u.now())
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("upload report to s3://%s/%s: %w", bucket, key, err)
	}
	return key, nil
}
