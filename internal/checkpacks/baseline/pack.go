// Package baseline provides the organization security baseline check pack.
// New returns the sixteen checkers in their fixed order; the engine registers
// them into a checks.Registry in one loop.
//
// Adding a checker:
//  1. Implement it in internal/checks/ following the Checker interface.
//  2. Append it to the slice returned by New().
//  3. No other files need to change.
package baseline

import (
	"time"

	"github.com/pankaj-dahiya-devops/org-posture/internal/checks"
)

// Settings tunes the checkers that take parameters.
type Settings struct {
	// MaxAccessKeyAge is the age after which an active IAM access key is reported.
	MaxAccessKeyAge time.Duration

	// RequiredTags are the tag keys every resource must carry.
	RequiredTags []string

	// Organizations is the management-account client used by ORG_STRUCTURE.
	// When nil, each account's own session is used.
	Organizations checks.OrganizationsAPI
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		MaxAccessKeyAge: checks.DefaultMaxAccessKeyAge,
		RequiredTags:    checks.DefaultRequiredTags,
	}
}

// New returns the baseline checkers in evaluation order.
func New(s Settings) []checks.Checker {
	return []checks.Checker{
		checks.NewRootHygieneChecker(),                  // root MFA, root keys, recent root use
		checks.NewOrgStructureChecker(s.Organizations),  // SCPs and OU placement
		checks.NewIAMBaselineChecker(s.MaxAccessKeyAge), // admin users, old keys, console MFA, wildcard policies
		checks.NewCrossAccountTrustChecker(),            // role trust outside the account
		checks.NewCloudTrailChecker(),                   // trail coverage and bucket hygiene
		checks.NewAWSConfigChecker(),                    // recorder and aggregator
		checks.NewSecurityServicesChecker(),             // GuardDuty, Security Hub, Access Analyzer, Inspector
		checks.NewS3BaselineChecker(),                   // Block Public Access and encryption
		checks.NewKMSBaselineChecker(),                  // key policies and rotation
		checks.NewNetworkBaselineChecker(),              // VPC, load balancer and EKS exposure
		checks.NewMonitoringChecker(),                   // security alarms and log groups
		checks.NewBillingChecker(),                      // budgets and anomaly monitors
		checks.NewTaggingChecker(s.RequiredTags...),     // mandatory tags
		checks.NewBackupChecker(),                       // plans, vaults, RDS retention
		checks.NewIaCGovernanceChecker(),                // drift and StackSets
		checks.NewIncidentReadinessChecker(),            // manual items
	}
}

// NewRegistry returns a registry holding New(s).
func NewRegistry(s Settings) *checks.DefaultRegistry {
	return checks.NewDefaultRegistry(New(s)...)
}
