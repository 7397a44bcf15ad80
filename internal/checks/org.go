package checks

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	orgtypes "github.com/aws/aws-sdk-go-v2/service/organizations/types"

	"github.com/pankaj-dahiya-devops/org-posture/internal/models"
	"github.com/pankaj-dahiya-devops/org-posture/internal/pagination"
)

// OrganizationsAPI is the Organizations interface used for SCP and OU
// placement checks. It is exported so the management-account client can be
// injected from the base session.
type OrganizationsAPI interface {
	ListPoliciesForTarget(ctx context.Context, params *organizations.ListPoliciesForTargetInput, optFns ...func(*organizations.Options)) (*organizations.ListPoliciesForTargetOutput, error)
	ListParents(ctx context.Context, params *organizations.ListParentsInput, optFns ...func(*organizations.Options)) (*organizations.ListParentsOutput, error)
}

// OrgStructureChecker verifies SCP attachment and OU placement.
//
// Organizations is only readable from the management (or delegated admin)
// account, so a management client is used when one was supplied; otherwise
// the account's session credential is tried.
type OrgStructureChecker struct {
	management OrganizationsAPI
	clients    func(cfg aws.Config) OrganizationsAPI
}

// NewOrgStructureChecker returns a checker that queries management, or the
// target account's session when management is nil.
func NewOrgStructureChecker(management OrganizationsAPI) *OrgStructureChecker {
	return &OrgStructureChecker{
		management: management,
		clients:    func(cfg aws.Config) OrganizationsAPI { return organizations.NewFromConfig(cfg) },
	}
}

func (c *OrgStructureChecker) Name() string { return CheckOrgStructure }

func (c *OrgStructureChecker) Check(ctx context.Context, account models.Account, creds aws.CredentialsProvider, region string) *models.Finding {
	return run(c.Name(), "org structure", account, func(f *models.Finding) error {
		client := c.management
		if client == nil {
			client = c.clients(sessionConfig(ctx, creds, region))
		}

		scps, err := pagination.Collect(ctx, func(ctx context.Context, token *string) (pagination.Page[orgtypes.PolicySummary], error) {
			out, err := client.ListPoliciesForTarget(ctx, &organizations.ListPoliciesForTargetInput{
				TargetId:  aws.String(account.ID),
				Filter:    orgtypes.PolicyTypeServiceControlPolicy,
				NextToken: token,
			})
			if err != nil {
				return pagination.Page[orgtypes.PolicySummary]{}, err
			}
			return pagination.Page[orgtypes.PolicySummary]{Items: out.Policies, Next: out.NextToken}, nil
		})
		if err != nil {
			return err
		}
		if len(scps) == 0 {
			f.Warn("No SCPs attached to account")
		}

		parents, err := client.ListParents(ctx, &organizations.ListParentsInput{ChildId: aws.String(account.ID)})
		if err != nil {
			return err
		}
		for _, p := range parents.Parents {
			if p.Type == orgtypes.ParentTypeRoot {
				f.Warn("Account is not placed in an organizational unit")
			}
		}

		if f.IsPass() {
			f.Pass()
		}
		return nil
	})
}
