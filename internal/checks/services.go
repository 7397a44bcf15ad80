package checks

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/accessanalyzer"
	aatypes "github.com/aws/aws-sdk-go-v2/service/accessanalyzer/types"
	"github.com/aws/aws-sdk-go-v2/service/guardduty"
	gdtypes "github.com/aws/aws-sdk-go-v2/service/guardduty/types"
	"github.com/aws/aws-sdk-go-v2/service/inspector2"
	i2types "github.com/aws/aws-sdk-go-v2/service/inspector2/types"
	"github.com/aws/aws-sdk-go-v2/service/securityhub"

	"github.com/pankaj-dahiya-devops/org-posture/internal/models"
	"github.com/pankaj-dahiya-devops/org-posture/internal/pagination"
)

type guardDutyAPIClient interface {
	ListDetectors(ctx context.Context, params *guardduty.ListDetectorsInput, optFns ...func(*guardduty.Options)) (*guardduty.ListDetectorsOutput, error)
	GetDetector(ctx context.Context, params *guardduty.GetDetectorInput, optFns ...func(*guardduty.Options)) (*guardduty.GetDetectorOutput, error)
}

type securityHubAPIClient interface {
	DescribeHub(ctx context.Context, params *securityhub.DescribeHubInput, optFns ...func(*securityhub.Options)) (*securityhub.DescribeHubOutput, error)
}

type accessAnalyzerAPIClient interface {
	ListAnalyzers(ctx context.Context, params *accessanalyzer.ListAnalyzersInput, optFns ...func(*accessanalyzer.Options)) (*accessanalyzer.ListAnalyzersOutput, error)
}

type inspectorAPIClient interface {
	BatchGetAccountStatus(ctx context.Context, params *inspector2.BatchGetAccountStatusInput, optFns ...func(*inspector2.Options)) (*inspector2.BatchGetAccountStatusOutput, error)
}

// SecurityServicesChecker verifies that the regional detective services are
// enabled. Each service is probed independently; a failed probe is a WARN
// and does not stop the others.
type SecurityServicesChecker struct {
	guardDuty      func(cfg aws.Config) guardDutyAPIClient
	securityHub    func(cfg aws.Config) securityHubAPIClient
	accessAnalyzer func(cfg aws.Config) accessAnalyzerAPIClient
	inspector      func(cfg aws.Config) inspectorAPIClient
}

func NewSecurityServicesChecker() *SecurityServicesChecker {
	return &SecurityServicesChecker{
		guardDuty:      func(cfg aws.Config) guardDutyAPIClient { return guardduty.NewFromConfig(cfg) },
		securityHub:    func(cfg aws.Config) securityHubAPIClient { return securityhub.NewFromConfig(cfg) },
		accessAnalyzer: func(cfg aws.Config) accessAnalyzerAPIClient { return accessanalyzer.NewFromConfig(cfg) },
		inspector:      func(cfg aws.Config) inspectorAPIClient { return inspector2.NewFromConfig(cfg) },
	}
}

func (c *SecurityServicesChecker) Name() string { return CheckSecurityServices }

func (c *SecurityServicesChecker) Check(ctx context.Context, account models.Account, creds aws.CredentialsProvider, region string) *models.Finding {
	return run(c.Name(), "security services", account, func(f *models.Finding) error {
		cfg := sessionConfig(ctx, creds, region)

		probes := []struct {
			service string
			probe   func() (enabled bool, err error)
			off     string
		}{
			{"GuardDuty", func() (bool, error) { return guardDutyEnabled(ctx, c.guardDuty(cfg)) }, "GuardDuty not enabled"},
			{"Security Hub", func() (bool, error) { return securityHubEnabled(ctx, c.securityHub(cfg)) }, "Security Hub not enabled"},
			{"IAM Access Analyzer", func() (bool, error) { return accessAnalyzerActive(ctx, c.accessAnalyzer(cfg)) }, "IAM Access Analyzer not enabled"},
			{"Inspector", func() (bool, error) { return inspectorEnabled(ctx, c.inspector(cfg), account.ID) }, "Amazon Inspector not enabled"},
		}
		for _, p := range probes {
			enabled, err := p.probe()
			switch {
			case err != nil:
				f.Warn(fmt.Sprintf("%s check failed: %s", p.service, errMessage(err)))
			case !enabled:
				f.Warn(p.off)
			}
		}
		return nil
	})
}

// guardDutyEnabled reports whether any detector in the region is ENABLED.
func guardDutyEnabled(ctx context.Context, client guardDutyAPIClient) (bool, error) {
	ids, err := pagination.Collect(ctx, func(ctx context.Context, token *string) (pagination.Page[string], error) {
		out, err := client.ListDetectors(ctx, &guardduty.ListDetectorsInput{NextToken: token})
		if err != nil {
			return pagination.Page[string]{}, err
		}
		return pagination.Page[string]{Items: out.DetectorIds, Next: out.NextToken}, nil
	})
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		d, err := client.GetDetector(ctx, &guardduty.GetDetectorInput{DetectorId: aws.String(id)})
		if err != nil {
			return false, err
		}
		if d.Status == gdtypes.DetectorStatusEnabled {
			return true, nil
		}
	}
	return false, nil
}

// securityHubEnabled treats InvalidAccessException as "not subscribed".
func securityHubEnabled(ctx context.Context, client securityHubAPIClient) (bool, error) {
	_, err := client.DescribeHub(ctx, &securityhub.DescribeHubInput{})
	if err != nil {
		if hasErrorCode(err, codeInvalidAccess) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func accessAnalyzerActive(ctx context.Context, client accessAnalyzerAPIClient) (bool, error) {
	analyzers, err := pagination.Collect(ctx, func(ctx context.Context, token *string) (pagination.Page[aatypes.AnalyzerSummary], error) {
		out, err := client.ListAnalyzers(ctx, &accessanalyzer.ListAnalyzersInput{NextToken: token})
		if err != nil {
			return pagination.Page[aatypes.AnalyzerSummary]{}, err
		}
		return pagination.Page[aatypes.AnalyzerSummary]{Items: out.Analyzers, Next: out.NextToken}, nil
	})
	if err != nil {
		return false, err
	}
	for _, a := range analyzers {
		if a.Status == aatypes.AnalyzerStatusActive {
			return true, nil
		}
	}
	return false, nil
}

func inspectorEnabled(ctx context.Context, client inspectorAPIClient, accountID string) (bool, error) {
	out, err := client.BatchGetAccountStatus(ctx, &inspector2.BatchGetAccountStatusInput{AccountIds: []string{accountID}})
	if err != nil {
		return false, err
	}
	for _, a := range out.Accounts {
		if a.State != nil && a.State.Status == i2types.StatusEnabled {
			return true, nil
		}
	}
	return false, nil
}
