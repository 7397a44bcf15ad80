package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	iamsvc "github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"

	"github.com/pankaj-dahiya-devops/org-posture/internal/models"
	"github.com/pankaj-dahiya-devops/org-posture/internal/pagination"
)

// DefaultMaxAccessKeyAge is the age after which an active access key is reported.
const DefaultMaxAccessKeyAge = 90 * 24 * time.Hour

const adminPolicyName = "AdministratorAccess"

// iamAPIClient is the narrow IAM interface used for the IAM baseline. It
// embeds ListUsersAPIClient so the SDK paginator can be used directly.
type iamAPIClient interface {
	iamsvc.ListUsersAPIClient
	ListAttachedUserPolicies(ctx context.Context, params *iamsvc.ListAttachedUserPoliciesInput, optFns ...func(*iamsvc.Options)) (*iamsvc.ListAttachedUserPoliciesOutput, error)
	ListAccessKeys(ctx context.Context, params *iamsvc.ListAccessKeysInput, optFns ...func(*iamsvc.Options)) (*iamsvc.ListAccessKeysOutput, error)
	ListMFADevices(ctx context.Context, params *iamsvc.ListMFADevicesInput, optFns ...func(*iamsvc.Options)) (*iamsvc.ListMFADevicesOutput, error)
	GetLoginProfile(ctx context.Context, params *iamsvc.GetLoginProfileInput, optFns ...func(*iamsvc.Options)) (*iamsvc.GetLoginProfileOutput, error)
	ListPolicies(ctx context.Context, params *iamsvc.ListPoliciesInput, optFns ...func(*iamsvc.Options)) (*iamsvc.ListPoliciesOutput, error)
	GetPolicyVersion(ctx context.Context, params *iamsvc.GetPolicyVersionInput, optFns ...func(*iamsvc.Options)) (*iamsvc.GetPolicyVersionOutput, error)
}

// IAMBaselineChecker reviews IAM users and customer-managed policies.
type IAMBaselineChecker struct {
	maxKeyAge time.Duration
	clients   func(cfg aws.Config) iamAPIClient
	now       func() time.Time
}

// NewIAMBaselineChecker returns a checker that reports active access keys
// older than maxKeyAge. Zero means DefaultMaxAccessKeyAge.
func NewIAMBaselineChecker(maxKeyAge time.Duration) *IAMBaselineChecker {
	if maxKeyAge <= 0 {
		maxKeyAge = DefaultMaxAccessKeyAge
	}
	return &IAMBaselineChecker{
		maxKeyAge: maxKeyAge,
		clients:   func(cfg aws.Config) iamAPIClient { return iamsvc.NewFromConfig(cfg) },
		now:       time.Now,
	}
}

func (c *IAMBaselineChecker) Name() string { return CheckIAMBaseline }

func (c *IAMBaselineChecker) Check(ctx context.Context, account models.Account, creds aws.CredentialsProvider, region string) *models.Finding {
	return run(c.Name(), "IAM baseline", account, func(f *models.Finding) error {
		client := c.clients(sessionConfig(ctx, creds, region))

		paginator := iamsvc.NewListUsersPaginator(client, &iamsvc.ListUsersInput{})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return err
			}
			for _, u := range page.Users {
				if err := c.checkUser(ctx, client, aws.ToString(u.UserName), f); err != nil {
					return err
				}
			}
		}

		return c.checkLocalPolicies(ctx, client, f)
	})
}

// checkUser applies the admin-policy, key-age and console-MFA tests to one user.
func (c *IAMBaselineChecker) checkUser(ctx context.Context, client iamAPIClient, user string, f *models.Finding) error {
	attached, err := client.ListAttachedUserPolicies(ctx, &iamsvc.ListAttachedUserPoliciesInput{UserName: aws.String(user)})
	if err != nil {
		return err
	}
	for _, p := range attached.AttachedPolicies {
		if aws.ToString(p.PolicyName) == adminPolicyName {
			f.Fail(fmt.Sprintf("IAM user '%s' has AdministratorAccess", user))
		}
	}

	keys, err := client.ListAccessKeys(ctx, &iamsvc.ListAccessKeysInput{UserName: aws.String(user)})
	if err != nil {
		return err
	}
	days := int(c.maxKeyAge / (24 * time.Hour))
	for _, k := range keys.AccessKeyMetadata {
		if k.Status != iamtypes.StatusTypeActive || k.CreateDate == nil {
			continue
		}
		if c.now().Sub(*k.CreateDate) > c.maxKeyAge {
			f.Warn(fmt.Sprintf("IAM key for user '%s' older than %d days", user, days))
		}
	}

	mfa, err := client.ListMFADevices(ctx, &iamsvc.ListMFADevicesInput{UserName: aws.String(user)})
	if err != nil {
		return err
	}
	if len(mfa.MFADevices) > 0 {
		return nil
	}

	// Only users with a console password need MFA.
	_, err = client.GetLoginProfile(ctx, &iamsvc.GetLoginProfileInput{UserName: aws.String(user)})
	switch {
	case err == nil:
		f.Warn(fmt.Sprintf("User '%s' missing MFA", user))
	case isNoSuchEntity(err):
	default:
		f.Warn(fmt.Sprintf("Could not check console access for user '%s': %s", user, errMessage(err)))
	}
	return nil
}

// checkLocalPolicies fails on customer-managed policies whose default
// version allows every action or every resource.
func (c *IAMBaselineChecker) checkLocalPolicies(ctx context.Context, client iamAPIClient, f *models.Finding) error {
	policies, err := pagination.Collect(ctx, func(ctx context.Context, marker *string) (pagination.Page[iamtypes.Policy], error) {
		out, err := client.ListPolicies(ctx, &iamsvc.ListPoliciesInput{
			Scope:  iamtypes.PolicyScopeTypeLocal,
			Marker: marker,
		})
		if err != nil {
			return pagination.Page[iamtypes.Policy]{}, err
		}
		return pagination.Page[iamtypes.Policy]{
			Items:     out.Policies,
			Next:      out.Marker,
			Truncated: pagination.Truncated(out.IsTruncated),
		}, nil
	})
	if err != nil {
		return err
	}

	for _, p := range policies {
		name := aws.ToString(p.PolicyName)
		version, err := client.GetPolicyVersion(ctx, &iamsvc.GetPolicyVersionInput{
			PolicyArn: p.Arn,
			VersionId: p.DefaultVersionId,
		})
		if err != nil {
			f.Warn(fmt.Sprintf("Could not read IAM policy '%s': %s", name, errMessage(err)))
			continue
		}
		if version.PolicyVersion == nil {
			continue
		}
		doc, err := parsePolicyDocument(aws.ToString(version.PolicyVersion.Document))
		if err != nil {
			f.Warn(fmt.Sprintf("Could not parse IAM policy '%s': %v", name, err))
			continue
		}
		if doc.grantsWildcard() {
			f.Fail(fmt.Sprintf("Overly permissive IAM policy: %s", name))
		}
	}
	return nil
}
