package checks

import (
	"context"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	iamsvc "github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	orgtypes "github.com/aws/aws-sdk-go-v2/service/organizations/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pankaj-dahiya-devops/org-posture/internal/models"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeIAM serves the IAM calls of the root, IAM baseline and trust checkers.
// Paged lists are served one page per marker, markers being page indexes.
type fakeIAM struct {
	summary   map[string]int32
	report    []byte
	reportErr error

	users     []string
	attached  map[string][]string
	keys      map[string][]iamtypes.AccessKeyMetadata
	mfa       map[string]bool
	login     map[string]error // nil value = has a login profile
	policies  [][]iamtypes.Policy
	documents map[string]string
	roles     [][]iamtypes.Role
}

func pageIndex(marker *string) int {
	if marker == nil {
		return 0
	}
	i, _ := strconv.Atoi(*marker)
	return i
}

func nextMarker(i, pages int) (*string, bool) {
	if i+1 < pages {
		return aws.String(strconv.Itoa(i + 1)), true
	}
	return nil, false
}

func (f *fakeIAM) GetAccountSummary(context.Context, *iamsvc.GetAccountSummaryInput, ...func(*iamsvc.Options)) (*iamsvc.GetAccountSummaryOutput, error) {
	return &iamsvc.GetAccountSummaryOutput{SummaryMap: f.summary}, nil
}

func (f *fakeIAM) GetCredentialReport(context.Context, *iamsvc.GetCredentialReportInput, ...func(*iamsvc.Options)) (*iamsvc.GetCredentialReportOutput, error) {
	if f.reportErr != nil {
		return nil, f.reportErr
	}
	return &iamsvc.GetCredentialReportOutput{Content: f.report}, nil
}

func (f *fakeIAM) ListUsers(context.Context, *iamsvc.ListUsersInput, ...func(*iamsvc.Options)) (*iamsvc.ListUsersOutput, error) {
	out := &iamsvc.ListUsersOutput{}
	for _, u := range f.users {
		out.Users = append(out.Users, iamtypes.User{UserName: aws.String(u)})
	}
	return out, nil
}

func (f *fakeIAM) ListAttachedUserPolicies(_ context.Context, in *iamsvc.ListAttachedUserPoliciesInput, _ ...func(*iamsvc.Options)) (*iamsvc.ListAttachedUserPoliciesOutput, error) {
	out := &iamsvc.ListAttachedUserPoliciesOutput{}
	for _, p := range f.attached[aws.ToString(in.UserName)] {
		out.AttachedPolicies = append(out.AttachedPolicies, iamtypes.AttachedPolicy{PolicyName: aws.String(p)})
	}
	return out, nil
}

func (f *fakeIAM) ListAccessKeys(_ context.Context, in *iamsvc.ListAccessKeysInput, _ ...func(*iamsvc.Options)) (*iamsvc.ListAccessKeysOutput, error) {
	return &iamsvc.ListAccessKeysOutput{AccessKeyMetadata: f.keys[aws.ToString(in.UserName)]}, nil
}

func (f *fakeIAM) ListMFADevices(_ context.Context, in *iamsvc.ListMFADevicesInput, _ ...func(*iamsvc.Options)) (*iamsvc.ListMFADevicesOutput, error) {
	out := &iamsvc.ListMFADevicesOutput{}
	if f.mfa[aws.ToString(in.UserName)] {
		out.MFADevices = []iamtypes.MFADevice{{SerialNumber: aws.String("arn:mfa")}}
	}
	return out, nil
}

func (f *fakeIAM) GetLoginProfile(_ context.Context, in *iamsvc.GetLoginProfileInput, _ ...func(*iamsvc.Options)) (*iamsvc.GetLoginProfileOutput, error) {
	err, ok := f.login[aws.ToString(in.UserName)]
	if !ok {
		return nil, &iamtypes.NoSuchEntityException{Message: aws.String("no login profile")}
	}
	if err != nil {
		return nil, err
	}
	return &iamsvc.GetLoginProfileOutput{}, nil
}

func (f *fakeIAM) ListPolicies(_ context.Context, in *iamsvc.ListPoliciesInput, _ ...func(*iamsvc.Options)) (*iamsvc.ListPoliciesOutput, error) {
	if len(f.policies) == 0 {
		return &iamsvc.ListPoliciesOutput{}, nil
	}
	i := pageIndex(in.Marker)
	marker, truncated := nextMarker(i, len(f.policies))
	return &iamsvc.ListPoliciesOutput{Policies: f.policies[i], Marker: marker, IsTruncated: truncated}, nil
}

func (f *fakeIAM) GetPolicyVersion(_ context.Context, in *iamsvc.GetPolicyVersionInput, _ ...func(*iamsvc.Options)) (*iamsvc.GetPolicyVersionOutput, error) {
	doc := f.documents[aws.ToString(in.PolicyArn)]
	return &iamsvc.GetPolicyVersionOutput{PolicyVersion: &iamtypes.PolicyVersion{Document: aws.String(url.PathEscape(doc))}}, nil
}

func (f *fakeIAM) ListRoles(_ context.Context, in *iamsvc.ListRolesInput, _ ...func(*iamsvc.Options)) (*iamsvc.ListRolesOutput, error) {
	if len(f.roles) == 0 {
		return &iamsvc.ListRolesOutput{}, nil
	}
	i := pageIndex(in.Marker)
	marker, truncated := nextMarker(i, len(f.roles))
	return &iamsvc.ListRolesOutput{Roles: f.roles[i], Marker: marker, IsTruncated: truncated}, nil
}

func localPolicy(name string) iamtypes.Policy {
	return iamtypes.Policy{
		PolicyName:       aws.String(name),
		Arn:              aws.String("arn:aws:iam::111111111111:policy/" + name),
		DefaultVersionId: aws.String("v1"),
	}
}

// ── ROOT_HYGIENE ──────────────────────────────────────────────────────────────

func newRootChecker(fake *fakeIAM) *RootHygieneChecker {
	c := NewRootHygieneChecker()
	c.clients = func(aws.Config) rootAPIClient { return fake }
	c.now = func() time.Time { return fixedNow }
	return c
}

func TestRootHygiene_Clean(t *testing.T) {
	fake := &fakeIAM{
		summary: map[string]int32{"AccountMFAEnabled": 1, "AccountAccessKeysPresent": 0},
		report:  []byte("user,arn,password_last_used\n<root_account>,arn:aws:iam::1:root,2024-01-01T00:00:00+00:00\n"),
	}

	f := newRootChecker(fake).Check(context.Background(), testAccount, nil, testRegion)

	assert.Equal(t, models.StatusPass, f.Status)
	assert.Empty(t, f.Messages)
}

func TestRootHygiene_NoMFAAndKeysAndRecentUse(t *testing.T) {
	fake := &fakeIAM{
		summary: map[string]int32{"AccountMFAEnabled": 0, "AccountAccessKeysPresent": 1},
		report:  []byte("user,arn,password_last_used\n<root_account>,arn:aws:iam::1:root,2025-05-20T08:00:00+00:00\n"),
	}

	f := newRootChecker(fake).Check(context.Background(), testAccount, nil, testRegion)

	assert.Equal(t, models.StatusFail, f.Status)
	assert.Equal(t, []string{
		"Root MFA not enabled",
		"Root access keys present",
		"Root account used within the last 90 days (last login 2025-05-20)",
	}, f.Messages)
}

func TestRootHygiene_NoCredentialReport(t *testing.T) {
	fake := &fakeIAM{
		summary:   map[string]int32{"AccountMFAEnabled": 1},
		reportErr: apiErr("ReportNotPresent", "no report"),
	}

	f := newRootChecker(fake).Check(context.Background(), testAccount, nil, testRegion)

	assert.Equal(t, models.StatusWarn, f.Status)
	assert.Equal(t, []string{"Root account usage detection requires CloudTrail analysis - verify manually"}, f.Messages)
}

func TestRootPasswordLastUsed_NotAvailable(t *testing.T) {
	_, ok := rootPasswordLastUsed([]byte("user,password_last_used\n<root_account>,no_information\n"))
	assert.False(t, ok)

	_, ok = rootPasswordLastUsed([]byte("garbage"))
	assert.False(t, ok)
}

// ── IAM_BASELINE ──────────────────────────────────────────────────────────────

func newIAMChecker(fake *fakeIAM) *IAMBaselineChecker {
	c := NewIAMBaselineChecker(0)
	c.clients = func(aws.Config) iamAPIClient { return fake }
	c.now = func() time.Time { return fixedNow }
	return c
}

func TestIAMBaseline_Clean(t *testing.T) {
	fake := &fakeIAM{
		users: []string{"alice"},
		mfa:   map[string]bool{"alice": true},
		keys: map[string][]iamtypes.AccessKeyMetadata{
			"alice": {{Status: iamtypes.StatusTypeActive, CreateDate: aws.Time(fixedNow.AddDate(0, 0, -10))}},
		},
		policies:  [][]iamtypes.Policy{{localPolicy("ReadOnly")}},
		documents: map[string]string{"arn:aws:iam::111111111111:policy/ReadOnly": `{"Statement":[{"Effect":"Allow","Action":"s3:GetObject","Resource":"arn:aws:s3:::b/*"}]}`},
	}

	f := newIAMChecker(fake).Check(context.Background(), testAccount, nil, testRegion)

	assert.Equal(t, models.StatusPass, f.Status)
	assert.Empty(t, f.Messages)
}

func TestIAMBaseline_UserFindings(t *testing.T) {
	fake := &fakeIAM{
		users:    []string{"admin", "stale", "console", "broken"},
		attached: map[string][]string{"admin": {"AdministratorAccess"}},
		mfa:      map[string]bool{"admin": true, "stale": true},
		keys: map[string][]iamtypes.AccessKeyMetadata{
			"stale": {
				{Status: iamtypes.StatusTypeActive, CreateDate: aws.Time(fixedNow.AddDate(0, 0, -120))},
				{Status: iamtypes.StatusTypeInactive, CreateDate: aws.Time(fixedNow.AddDate(0, 0, -400))},
			},
		},
		login: map[string]error{
			"console": nil,
			"broken":  apiErr("Throttling", "rate exceeded"),
		},
	}

	f := newIAMChecker(fake).Check(context.Background(), testAccount, nil, testRegion)

	assert.Equal(t, models.StatusFail, f.Status)
	assert.Equal(t, []string{
		"IAM user 'admin' has AdministratorAccess",
		"IAM key for user 'stale' older than 90 days",
		"User 'console' missing MFA",
		"Could not check console access for user 'broken': rate exceeded",
	}, f.Messages)
}

func TestIAMBaseline_WildcardPolicyAcrossPages(t *testing.T) {
	fake := &fakeIAM{
		policies: [][]iamtypes.Policy{{localPolicy("Narrow")}, {localPolicy("Everything")}},
		documents: map[string]string{
			"arn:aws:iam::111111111111:policy/Narrow":     `{"Statement":{"Effect":"Allow","Action":"ec2:Describe*","Resource":"arn:aws:ec2:::x"}}`,
			"arn:aws:iam::111111111111:policy/Everything": `{"Statement":[{"Effect":"Allow","Action":"*","Resource":"*"}]}`,
		},
	}

	f := newIAMChecker(fake).Check(context.Background(), testAccount, nil, testRegion)

	assert.Equal(t, models.StatusFail, f.Status)
	assert.Equal(t, []string{"Overly permissive IAM policy: Everything"}, f.Messages)
}

func TestIAMBaseline_CustomKeyAge(t *testing.T) {
	fake := &fakeIAM{
		users: []string{"bob"},
		mfa:   map[string]bool{"bob": true},
		keys: map[string][]iamtypes.AccessKeyMetadata{
			"bob": {{Status: iamtypes.StatusTypeActive, CreateDate: aws.Time(fixedNow.AddDate(0, 0, -45))}},
		},
	}
	c := newIAMChecker(fake)
	c.maxKeyAge = 30 * 24 * time.Hour

	f := c.Check(context.Background(), testAccount, nil, testRegion)

	assert.Equal(t, []string{"IAM key for user 'bob' older than 30 days"}, f.Messages)
}

// ── CROSS_ACCOUNT_TRUST ───────────────────────────────────────────────────────

func role(name, trust string) iamtypes.Role {
	return iamtypes.Role{RoleName: aws.String(name), AssumeRolePolicyDocument: aws.String(url.PathEscape(trust))}
}

func TestCrossAccountTrust(t *testing.T) {
	fake := &fakeIAM{roles: [][]iamtypes.Role{
		{
			role("service", `{"Statement":[{"Effect":"Allow","Principal":{"Service":"lambda.amazonaws.com"},"Action":"sts:AssumeRole"}]}`),
			role("self", `{"Statement":[{"Effect":"Allow","Principal":{"AWS":"arn:aws:iam::111111111111:root"},"Action":"sts:AssumeRole"}]}`),
			role("open", `{"Statement":[{"Effect":"Allow","Principal":{"AWS":"*"},"Action":"sts:AssumeRole"}]}`),
		},
		{
			role("vendor", `{"Statement":[{"Effect":"Allow","Principal":{"AWS":"arn:aws:iam::999999999999:root"},"Action":"sts:AssumeRole"}]}`),
			role("vendor-ext-id", `{"Statement":[{"Effect":"Allow","Principal":{"AWS":"arn:aws:iam::999999999999:root"},"Action":"sts:AssumeRole",
				"Condition":{"StringEquals":{"sts:ExternalId":"abc"}}}]}`),
		},
	}}
	c := NewCrossAccountTrustChecker()
	c.clients = func(aws.Config) rolesAPIClient { return fake }

	f := c.Check(context.Background(), testAccount, nil, testRegion)

	assert.Equal(t, models.StatusFail, f.Status)
	assert.Equal(t, []string{
		"Role 'open' trust allows any AWS account",
		"Role 'vendor' has external trust with no conditions (999999999999)",
	}, f.Messages)
}

// ── ORG_STRUCTURE ─────────────────────────────────────────────────────────────

type fakeOrgs struct {
	scps    [][]orgtypes.PolicySummary
	parents []orgtypes.Parent
	err     error
}

func (f *fakeOrgs) ListPoliciesForTarget(_ context.Context, in *organizations.ListPoliciesForTargetInput, _ ...func(*organizations.Options)) (*organizations.ListPoliciesForTargetOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.scps) == 0 {
		return &organizations.ListPoliciesForTargetOutput{}, nil
	}
	i := pageIndex(in.NextToken)
	next, _ := nextMarker(i, len(f.scps))
	return &organizations.ListPoliciesForTargetOutput{Policies: f.scps[i], NextToken: next}, nil
}

func (f *fakeOrgs) ListParents(context.Context, *organizations.ListParentsInput, ...func(*organizations.Options)) (*organizations.ListParentsOutput, error) {
	return &organizations.ListParentsOutput{Parents: f.parents}, nil
}

func TestOrgStructure_Clean(t *testing.T) {
	orgs := &fakeOrgs{
		scps:    [][]orgtypes.PolicySummary{{}, {{Name: aws.String("deny-leave")}}},
		parents: []orgtypes.Parent{{Type: orgtypes.ParentTypeOrganizationalUnit}},
	}

	f := NewOrgStructureChecker(orgs).Check(context.Background(), testAccount, nil, testRegion)

	assert.Equal(t, models.StatusPass, f.Status)
	assert.Equal(t, []string{models.DefaultPassMessage}, f.Messages)
}

func TestOrgStructure_NoSCPsAtRoot(t *testing.T) {
	orgs := &fakeOrgs{parents: []orgtypes.Parent{{Type: orgtypes.ParentTypeRoot}}}

	f := NewOrgStructureChecker(orgs).Check(context.Background(), testAccount, nil, testRegion)

	assert.Equal(t, models.StatusWarn, f.Status)
	assert.Equal(t, []string{"No SCPs attached to account", "Account is not placed in an organizational unit"}, f.Messages)
}

func TestOrgStructure_FallsBackToSessionClient(t *testing.T) {
	orgs := &fakeOrgs{err: apiErr("AWSOrganizationsNotInUseException", "not in an organization")}
	c := NewOrgStructureChecker(nil)
	c.clients = func(aws.Config) OrganizationsAPI { return orgs }

	f := c.Check(context.Background(), testAccount, nil, testRegion)

	require.Equal(t, models.StatusFail, f.Status)
	assert.Equal(t, []string{"Error checking org structure: not in an organization"}, f.Messages)
}
