package checks

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/pankaj-dahiya-devops/org-posture/internal/models"
)

// IncidentReadinessChecker records the manual incident-response items. It
// makes no API calls.
type IncidentReadinessChecker struct{}

func NewIncidentReadinessChecker() *IncidentReadinessChecker { return &IncidentReadinessChecker{} }

func (c *IncidentReadinessChecker) Name() string { return CheckIncidentReadiness }

func (c *IncidentReadinessChecker) Check(_ context.Context, account models.Account, _ aws.CredentialsProvider, _ string) *models.Finding {
	return run(c.Name(), "incident readiness", account, func(f *models.Finding) error {
		f.Warn("Incident response runbooks - verify manually")
		f.Warn("Incident response testing - verify manually")
		return nil
	})
}
