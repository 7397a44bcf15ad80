package checks

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudformation/types"

	"github.com/pankaj-dahiya-devops/org-posture/internal/models"
)

type cloudFormationAPIClient interface {
	cloudformation.DescribeStacksAPIClient
	ListStackSets(ctx context.Context, params *cloudformation.ListStackSetsInput, optFns ...func(*cloudformation.Options)) (*cloudformation.ListStackSetsOutput, error)
}

// IaCGovernanceChecker reviews CloudFormation drift and StackSet usage.
type IaCGovernanceChecker struct {
	clients func(cfg aws.Config) cloudFormationAPIClient
}

func NewIaCGovernanceChecker() *IaCGovernanceChecker {
	return &IaCGovernanceChecker{
		clients: func(cfg aws.Config) cloudFormationAPIClient { return cloudformation.NewFromConfig(cfg) },
	}
}

func (c *IaCGovernanceChecker) Name() string { return CheckIaCGovernance }

func (c *IaCGovernanceChecker) Check(ctx context.Context, account models.Account, creds aws.CredentialsProvider, region string) *models.Finding {
	return run(c.Name(), "IaC governance", account, func(f *models.Finding) error {
		client := c.clients(sessionConfig(ctx, creds, region))

		stacks := 0
		paginator := cloudformation.NewDescribeStacksPaginator(client, &cloudformation.DescribeStacksInput{})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return err
			}
			for _, s := range page.Stacks {
				stacks++
				if s.DriftInformation != nil && s.DriftInformation.StackDriftStatus == cftypes.StackDriftStatusDrifted {
					f.Warn(fmt.Sprintf("Stack '%s' has drifted from its template", aws.ToString(s.StackName)))
				}
			}
		}
		if stacks > 0 {
			f.Warn("Drift detection status - verify per stack")
		}

		sets, err := client.ListStackSets(ctx, &cloudformation.ListStackSetsInput{Status: cftypes.StackSetStatusActive})
		switch {
		case err != nil:
			f.Warn(fmt.Sprintf("Could not check StackSets - may require organization-level permissions: %s", errMessage(err)))
		case len(sets.Summaries) == 0:
			f.Warn("No organization-wide StackSets configured")
		}
		return nil
	})
}
