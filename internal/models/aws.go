package models

import "time"

// ---------------------------------------------------------------------------
// AWS Organizations models
// ---------------------------------------------------------------------------

// AccountStatus mirrors the Organizations account status.
type AccountStatus string

const (
	AccountStatusActive         AccountStatus = "ACTIVE"
	AccountStatusSuspended      AccountStatus = "SUSPENDED"
	AccountStatusPendingClosure AccountStatus = "PENDING_CLOSURE"
)

// Account is one member of the organization being assessed.
// Accounts are produced by discovery and never modified afterwards.
type Account struct {
	ID     string        `json:"id" yaml:"id"`
	Name   string        `json:"name" yaml:"name"`
	Email  string        `json:"email" yaml:"email"`
	Status AccountStatus `json:"status" yaml:"status"`
}

// Active reports whether the account is in the ACTIVE state.
func (a Account) Active() bool {
	return a.Status == AccountStatusActive
}

// ---------------------------------------------------------------------------
// Run inputs
// ---------------------------------------------------------------------------

// DefaultRegion is used whenever no region has been configured.
const DefaultRegion = "us-east-1"

// DefaultSessionDuration is the validity window requested for audit role sessions.
const DefaultSessionDuration = time.Hour

// BaseCredentials identifies the long-lived operator credential. When both
// keys are empty the SDK default chain (optionally narrowed to Profile) is used.
type BaseCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Profile         string
}

// Static reports whether explicit access keys were supplied.
func (c BaseCredentials) Static() bool {
	return c.AccessKeyID != "" || c.SecretAccessKey != ""
}

// AssessmentConfig holds the run-scoped parameters of one assessment.
type AssessmentConfig struct {
	// AuditRoleARN is the role to assume in each account. The account-id
	// segment is replaced with the target account's id.
	AuditRoleARN string

	// Region is the region every checker runs against.
	Region string

	// SessionDuration is the lifetime requested for each role session.
	// Zero means DefaultSessionDuration.
	SessionDuration time.Duration

	// MaxConcurrency caps the checkers running at once for one account.
	// Zero or negative means no cap.
	MaxConcurrency int
}

// EffectiveRegion returns Region or DefaultRegion when unset.
func (c AssessmentConfig) EffectiveRegion() string {
	if c.Region == "" {
		return DefaultRegion
	}
	return c.Region
}

// EffectiveSessionDuration returns SessionDuration or DefaultSessionDuration when unset.
func (c AssessmentConfig) EffectiveSessionDuration() time.Duration {
	if c.SessionDuration <= 0 {
		return DefaultSessionDuration
	}
	return c.SessionDuration
}
