// Package checks holds the per-account security checkers.
//
// Every checker inspects one concern of one account and returns exactly one
// Finding. Checkers never panic out and never return nil: API errors and
// internal faults become FAIL or WARN messages on their own Finding, so one
// misbehaving checker cannot affect its siblings.
package checks

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/pankaj-dahiya-devops/org-posture/internal/models"
)

// Stable check names, one per checker type.
const (
	CheckRootHygiene       = "ROOT_HYGIENE"
	CheckOrgStructure      = "ORG_STRUCTURE"
	CheckIAMBaseline       = "IAM_BASELINE"
	CheckCrossAccountTrust = "CROSS_ACCOUNT_TRUST"
	CheckCloudTrail        = "CLOUDTRAIL"
	CheckAWSConfig         = "AWS_CONFIG"
	CheckSecurityServices  = "SECURITY_SERVICES"
	CheckS3Baseline        = "S3_BASELINE"
	CheckKMSBaseline       = "KMS_BASELINE"
	CheckNetworkBaseline   = "NETWORK_BASELINE"
	CheckMonitoring        = "MONITORING"
	CheckBilling           = "BILLING"
	CheckTagging           = "TAGGING"
	CheckBackup            = "BACKUP"
	CheckIaCGovernance     = "IAC_GOVERNANCE"
	CheckIncidentReadiness = "INCIDENT_READINESS"
)

// Checker inspects one concern of one account.
//
// Implementations must be safe to call concurrently for different accounts
// and alongside other checkers on the same account. They must not share
// mutable state between invocations.
type Checker interface {
	// Name returns the stable check name (e.g. "S3_BASELINE").
	Name() string

	// Check runs the inspection with the account's session credential and
	// always returns a non-nil Finding for account.
	Check(ctx context.Context, account models.Account, creds aws.CredentialsProvider, region string) *models.Finding
}

// run creates the Finding for name, executes body, and folds a returned
// error or a panic into a FAIL message "Error checking <topic>: <cause>".
func run(name, topic string, account models.Account, body func(f *models.Finding) error) (f *models.Finding) {
	f = models.NewFinding(name, account)
	defer func() {
		if r := recover(); r != nil {
			f.Fail(fmt.Sprintf("Error checking %s: %v", topic, r))
		}
	}()
	if err := body(f); err != nil {
		f.Fail(fmt.Sprintf("Error checking %s: %s", topic, errMessage(err)))
	}
	return f
}

type baseConfigKey struct{}

// WithBaseConfig returns a context whose checkers build their clients from
// a copy of base, so the retryer and HTTP settings of the operator session
// reach every per-account client. Region and credentials are replaced.
func WithBaseConfig(ctx context.Context, base aws.Config) context.Context {
	return context.WithValue(ctx, baseConfigKey{}, base)
}

// BaseConfigFrom returns the configuration set by WithBaseConfig.
func BaseConfigFrom(ctx context.Context) (aws.Config, bool) {
	base, ok := ctx.Value(baseConfigKey{}).(aws.Config)
	return base, ok
}

// sessionConfig returns the SDK configuration a checker builds its clients
// from. Clients are created per invocation and dropped when Check returns.
func sessionConfig(ctx context.Context, creds aws.CredentialsProvider, region string) aws.Config {
	var cfg aws.Config
	if base, ok := BaseConfigFrom(ctx); ok {
		cfg = base.Copy()
	}
	cfg.Region = region
	cfg.Credentials = nil
	if creds != nil {
		cfg.Credentials = aws.NewCredentialsCache(creds)
	}
	return cfg
}

// globalConfig returns cfg pinned to us-east-1 for global-only services
// (Budgets, Cost Explorer).
func globalConfig(cfg aws.Config) aws.Config {
	cfg.Region = models.DefaultRegion
	return cfg
}
