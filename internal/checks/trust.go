package checks

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	iamsvc "github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"

	"github.com/pankaj-dahiya-devops/org-posture/internal/models"
	"github.com/pankaj-dahiya-devops/org-posture/internal/pagination"
)

type rolesAPIClient interface {
	ListRoles(ctx context.Context, params *iamsvc.ListRolesInput, optFns ...func(*iamsvc.Options)) (*iamsvc.ListRolesOutput, error)
}

// CrossAccountTrustChecker reviews role trust policies for principals
// outside the account.
type CrossAccountTrustChecker struct {
	clients func(cfg aws.Config) rolesAPIClient
}

func NewCrossAccountTrustChecker() *CrossAccountTrustChecker {
	return &CrossAccountTrustChecker{
		clients: func(cfg aws.Config) rolesAPIClient { return iamsvc.NewFromConfig(cfg) },
	}
}

func (c *CrossAccountTrustChecker) Name() string { return CheckCrossAccountTrust }

func (c *CrossAccountTrustChecker) Check(ctx context.Context, account models.Account, creds aws.CredentialsProvider, region string) *models.Finding {
	return run(c.Name(), "cross-account trust", account, func(f *models.Finding) error {
		client := c.clients(sessionConfig(ctx, creds, region))

		roles := pagination.All(ctx, func(ctx context.Context, marker *string) (pagination.Page[iamtypes.Role], error) {
			out, err := client.ListRoles(ctx, &iamsvc.ListRolesInput{Marker: marker})
			if err != nil {
				return pagination.Page[iamtypes.Role]{}, err
			}
			return pagination.Page[iamtypes.Role]{
				Items:     out.Roles,
				Next:      out.Marker,
				Truncated: pagination.Truncated(out.IsTruncated),
			}, nil
		})
		for role, err := range roles {
			if err != nil {
				return err
			}
			checkRoleTrust(f, account.ID, role)
		}
		return nil
	})
}

// checkRoleTrust records one message per role at most, the most severe
// condition found in its trust policy.
func checkRoleTrust(f *models.Finding, self string, role iamtypes.Role) {
	name := aws.ToString(role.RoleName)
	doc, err := parsePolicyDocument(aws.ToString(role.AssumeRolePolicyDocument))
	if err != nil {
		f.Warn(fmt.Sprintf("Could not parse trust policy for role '%s': %v", name, err))
		return
	}

	var (
		openUnconditional bool
		openConditional   bool
		external          []string
	)
	for _, s := range doc.Statement {
		if !s.allows() {
			continue
		}
		switch {
		case s.Principal.anyone() && !s.conditional():
			openUnconditional = true
		case s.Principal.anyone():
			openConditional = true
		case !s.conditional():
			external = append(external, s.Principal.externalAccounts(self)...)
		}
	}

	switch {
	case openUnconditional:
		f.Fail(fmt.Sprintf("Role '%s' trust allows any AWS account", name))
	case openConditional:
		f.Warn(fmt.Sprintf("Role '%s' trust allows any AWS account subject to conditions - verify them", name))
	case len(external) > 0:
		f.Warn(fmt.Sprintf("Role '%s' has external trust with no conditions (%s)", name, strings.Join(external, ", ")))
	}
}
