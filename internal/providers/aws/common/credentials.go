package common

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/google/uuid"
)

// SessionNamePrefix prefixes every audit role session name so that the
// target account's CloudTrail shows who assumed the role.
const SessionNamePrefix = "SecurityAssessment-"

// RoleAssumptionError reports that the audit role could not be assumed in a
// target account. It is fatal to that account only.
type RoleAssumptionError struct {
	RoleARN string
	Err     error
}

func (e *RoleAssumptionError) Error() string {
	return fmt.Sprintf("failed to assume role %s: %v", e.RoleARN, e.Err)
}

func (e *RoleAssumptionError) Unwrap() error { return e.Err }

// SubstituteAccountID returns roleTemplate with its account-id segment (the
// fifth colon-delimited field of an ARN) replaced by accountID. Templates with
// fewer than five fields are returned unchanged.
//
//	arn:aws:iam::111111111111:role/Audit -> arn:aws:iam::222222222222:role/Audit
func SubstituteAccountID(roleTemplate, accountID string) string {
	parts := strings.Split(roleTemplate, ":")
	if len(parts) < 5 {
		return roleTemplate
	}
	parts[4] = accountID
	return strings.Join(parts, ":")
}

// AssumeAuditRole exchanges the base credential for a short-lived session in
// targetAccountID, valid for duration (one hour when zero). The returned
// provider yields the same expiring credential on every call and is safe for
// concurrent use.
//
// Failures are returned as *RoleAssumptionError and are never retried here.
func (s *Session) AssumeAuditRole(ctx context.Context, roleTemplate, targetAccountID string, duration time.Duration) (aws.CredentialsProvider, error) {
	roleARN := SubstituteAccountID(roleTemplate, targetAccountID)
	if roleARN == "" {
		return nil, &RoleAssumptionError{RoleARN: roleARN, Err: fmt.Errorf("audit role ARN is required")}
	}

	if duration <= 0 {
		duration = time.Hour
	}

	out, err := s.Clients.STS.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(roleARN),
		RoleSessionName: aws.String(NewSessionName()),
		DurationSeconds: aws.Int32(int32(duration / time.Second)),
	})
	if err != nil {
		return nil, &RoleAssumptionError{RoleARN: roleARN, Err: err}
	}
	if out.Credentials == nil {
		return nil, &RoleAssumptionError{RoleARN: roleARN, Err: fmt.Errorf("STS AssumeRole returned no credentials")}
	}

	c := out.Credentials
	value := aws.Credentials{
		AccessKeyID:     aws.ToString(c.AccessKeyId),
		SecretAccessKey: aws.ToString(c.SecretAccessKey),
		SessionToken:    aws.ToString(c.SessionToken),
		Source:          "AssumeRole",
	}
	if c.Expiration != nil {
		value.CanExpire = true
		value.Expires = *c.Expiration
	}
	return credentials.StaticCredentialsProvider{Value: value}, nil
}

// NewSessionName returns a role session name that is unique per call.
// STS limits session names to 64 characters; the prefix plus a UUID fits.
func NewSessionName() string {
	return SessionNamePrefix + uuid.NewString()
}
