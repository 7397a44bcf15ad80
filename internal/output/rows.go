// Package output turns assessment findings into report rows and writes them
// as a table, CSV, JSON or YAML. It also uploads JSON reports to S3.
package output

import (
	"strings"

	"github.com/pankaj-dahiya-devops/org-posture/internal/models"
)

// NotApplicable fills account columns on rows that belong to no account.
const NotApplicable = "N/A"

const (
	passFix      = "No action required - check passed."
	defaultFix   = "Review the finding details and consult AWS security best practices documentation."
	discoveryFix = "Please verify your credentials and permissions, then try again."
)

// remediation holds the recommended fix for every non-passing check.
var remediation = map[string]string{
	"ROOT_HYGIENE":        "Enable MFA for root account. Remove root access keys if present. Monitor CloudTrail for root account usage.",
	"IAM_BASELINE":        "Review IAM policies and remove overly permissive access. Enable MFA for all users. Rotate access keys regularly. Remove AdministratorAccess from IAM users.",
	"CROSS_ACCOUNT_TRUST": "Review and restrict cross-account trust policies. Add conditions to external trust relationships. Remove wildcard principals.",
	"CLOUDTRAIL":          "Enable multi-region CloudTrail. Enable log file validation. Ensure CloudTrail captures all regions and global services.",
	"AWS_CONFIG":          "Enable AWS Config recorder. Set up Config aggregator for organization-wide visibility.",
	"SECURITY_SERVICES":   "Enable GuardDuty, Security Hub, Access Analyzer, and Inspector for comprehensive security monitoring.",
	"S3_BASELINE":         "Enable account-level S3 Block Public Access. Encrypt all S3 buckets. Review bucket policies and ACLs.",
	"KMS_BASELINE":        "Review KMS key policies for overly permissive access. Enable automatic key rotation where supported.",
	"NETWORK_BASELINE":    "Remove default VPCs. Enable VPC Flow Logs. Configure VPC endpoints for S3 and SSM.",
	"MONITORING":          "Set up CloudWatch alarms for unauthorized API calls, root account usage, and GuardDuty findings.",
	"BILLING":             "Configure AWS Budgets with alerts. Review and restrict billing access permissions.",
	"TAGGING":             "Implement mandatory tagging policy. Tag all resources with Environment, Owner, and Project tags.",
	"BACKUP":              "Configure backup plans for critical resources. Enable encryption for backup vaults.",
	"IAC_GOVERNANCE":      "Use CloudFormation StackSets for organization-wide deployments. Enable drift detection.",
	"INCIDENT_READINESS":  "Document incident response runbooks. Conduct regular incident response testing. Establish incident response team.",
	"ORG_STRUCTURE":       "Attach Service Control Policies (SCPs) to accounts. Organize accounts into OUs with appropriate policies.",
}

// Row is the flattened, human-facing view of one Finding.
type Row struct {
	Title          string        `json:"finding_title" yaml:"finding_title"`
	Details        string        `json:"details" yaml:"details"`
	RecommendedFix string        `json:"recommended_fix" yaml:"recommended_fix"`
	Status         models.Status `json:"status" yaml:"status"`
	AccountID      string        `json:"account_id" yaml:"account_id"`
	AccountName    string        `json:"account_name" yaml:"account_name"`
}

// RecommendedFix returns the remediation text for f.
// Passing findings need no action; unknown checks get a generic pointer.
func RecommendedFix(f models.Finding) string {
	if f.Status == models.StatusPass {
		return passFix
	}
	if fix, ok := remediation[f.CheckName]; ok {
		return fix
	}
	return defaultFix
}

// NewRow maps one Finding to its report row.
func NewRow(f models.Finding) Row {
	return Row{
		Title:          "[" + string(f.Status) + "] " + f.CheckName + " - " + f.AccountName + " (" + f.AccountID + ")",
		Details:        strings.Join(f.Messages, "; "),
		RecommendedFix: RecommendedFix(f),
		Status:         f.Status,
		AccountID:      f.AccountID,
		AccountName:    f.AccountName,
	}
}

// Rows maps findings to rows, preserving order.
func Rows(findings []models.Finding) []Row {
	rows := make([]Row, 0, len(findings))
	for _, f := range findings {
		rows = append(rows, NewRow(f))
	}
	return rows
}

// ErrorRow is the single row reported when the run fails before any account is
// assessed, typically because discovery was denied.
func ErrorRow(err error) Row {
	return Row{
		Title:          models.AssessmentErrorCheck,
		Details:        "Error: " + err.Error(),
		RecommendedFix: discoveryFix,
		Status:         models.StatusFail,
		AccountID:      NotApplicable,
		AccountName:    NotApplicable,
	}
}

// ResultRows returns the rows for a finished run. A failed run that produced
// no findings yields ErrorRow(err) so the report is never silently empty.
func ResultRows(res *models.AssessmentResult, err error) []Row {
	var findings []models.Finding
	if res != nil {
		findings = res.Findings
	}
	if err != nil && len(findings) == 0 {
		return []Row{ErrorRow(err)}
	}
	return Rows(findings)
}
