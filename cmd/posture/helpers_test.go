package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	orgtypes "github.com/aws/aws-sdk-go-v2/service/organizations/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	ststypes "github.com/aws/aws-sdk-go-v2/service/sts/types"

	"github.com/pankaj-dahiya-devops/org-posture/internal/checkpacks/baseline"
	"github.com/pankaj-dahiya-devops/org-posture/internal/checks"
	"github.com/pankaj-dahiya-devops/org-posture/internal/config"
	"github.com/pankaj-dahiya-devops/org-posture/internal/models"
	"github.com/pankaj-dahiya-devops/org-posture/internal/output"
	"github.com/pankaj-dahiya-devops/org-posture/internal/providers/aws/common"
)

const testRole = "arn:aws:iam::000000000000:role/SecurityAudit"

// ── AWS fakes ─────────────────────────────────────────────────────────────────

type fakeSTS struct {
	identityErr error
	denyAccount string // AssumeRole fails for role ARNs naming this account
}

func (f *fakeSTS) GetCallerIdentity(_ context.Context, _ *sts.GetCallerIdentityInput, _ ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	if f.identityErr != nil {
		return nil, f.identityErr
	}
	return &sts.GetCallerIdentityOutput{
		Account: aws.String("999999999999"),
		Arn:     aws.String("arn:aws:iam::999999999999:user/auditor"),
		UserId:  aws.String("AIDAEXAMPLE"),
	}, nil
}

func (f *fakeSTS) AssumeRole(_ context.Context, in *sts.AssumeRoleInput, _ ...func(*sts.Options)) (*sts.AssumeRoleOutput, error) {
	if f.denyAccount != "" && strings.Contains(aws.ToString(in.RoleArn), f.denyAccount) {
		return nil, errors.New("AccessDenied: not authorized to perform sts:AssumeRole")
	}
	return &sts.AssumeRoleOutput{Credentials: &ststypes.Credentials{
		AccessKeyId:     aws.String("ASIAEXAMPLE"),
		SecretAccessKey: aws.String("secret"),
		SessionToken:    aws.String("token"),
		Expiration:      aws.Time(time.Now().Add(time.Hour)),
	}}, nil
}

type fakeOrgs struct {
	accounts    []orgtypes.Account
	listErr     error
	describeErr error
	management  string
}

func (f *fakeOrgs) ListAccounts(_ context.Context, _ *organizations.ListAccountsInput, _ ...func(*organizations.Options)) (*organizations.ListAccountsOutput, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &organizations.ListAccountsOutput{Accounts: f.accounts}, nil
}

func (f *fakeOrgs) DescribeOrganization(_ context.Context, _ *organizations.DescribeOrganizationInput, _ ...func(*organizations.Options)) (*organizations.DescribeOrganizationOutput, error) {
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	return &organizations.DescribeOrganizationOutput{Organization: &orgtypes.Organization{
		Id:              aws.String("o-example"),
		MasterAccountId: aws.String(f.management),
	}}, nil
}

// fakeProvider returns a session wired to the fakes without loading any SDK
// configuration.
type fakeProvider struct {
	sts     *fakeSTS
	orgs    *fakeOrgs
	loadErr error
	last    models.BaseCredentials
}

func (p *fakeProvider) LoadSession(_ context.Context, base models.BaseCredentials) (*common.Session, error) {
	p.last = base
	if p.loadErr != nil {
		return nil, p.loadErr
	}
	return &common.Session{
		ProfileName: "test",
		Region:      "us-east-1",
		Clients:     &common.ClientSet{STS: p.sts, Organizations: p.orgs},
	}, nil
}

type fakePutter struct {
	mu     sync.Mutex
	bucket string
	key    string
	body   []byte
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bucket = aws.ToString(in.Bucket)
	f.key = aws.ToString(in.Key)
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

// ── checker fakes ─────────────────────────────────────────────────────────────

type fakeChecker struct {
	name   string
	status models.Status
	msg    string
}

func (c fakeChecker) Name() string { return c.name }

func (c fakeChecker) Check(_ context.Context, account models.Account, _ aws.CredentialsProvider, _ string) *models.Finding {
	f := models.NewFinding(c.name, account)
	switch c.status {
	case models.StatusFail:
		f.Fail(c.msg)
	case models.StatusWarn:
		f.Warn(c.msg)
	default:
		f.Pass()
	}
	return f
}

// ── fixture ───────────────────────────────────────────────────────────────────

type cliFixture struct {
	sts      *fakeSTS
	orgs     *fakeOrgs
	provider *fakeProvider
	putter   *fakePutter
	settings []baseline.Settings
	checkers []checks.Checker
	profiles []string
}

func activeAccount(id, name string) orgtypes.Account {
	return orgtypes.Account{
		Id:     aws.String(id),
		Name:   aws.String(name),
		Email:  aws.String(name + "@example.com"),
		Status: orgtypes.AccountStatusActive,
	}
}

// newFixture runs in an empty working directory so no posture.yaml is picked
// up, with two active accounts and one PASS and one WARN checker.
func newFixture(t *testing.T) *cliFixture {
	t.Helper()
	t.Chdir(t.TempDir())

	stsFake := &fakeSTS{}
	orgs := &fakeOrgs{
		accounts: []orgtypes.Account{
			activeAccount("111111111111", "prod"),
			activeAccount("222222222222", "dev"),
			{Id: aws.String("333333333333"), Name: aws.String("gone"), Status: orgtypes.AccountStatusSuspended},
		},
		management: "999999999999",
	}
	return &cliFixture{
		sts:      stsFake,
		orgs:     orgs,
		provider: &fakeProvider{sts: stsFake, orgs: orgs},
		putter:   &fakePutter{},
		checkers: []checks.Checker{
			fakeChecker{name: "FAKE_PASS", status: models.StatusPass},
			fakeChecker{name: "FAKE_WARN", status: models.StatusWarn, msg: "something to look at"},
		},
		profiles: []string{"default", "audit"},
	}
}

func (f *cliFixture) deps() deps {
	return deps{
		newProvider:    func(*config.Config) common.AWSClientProvider { return f.provider },
		managementOrgs: func(aws.Config) checks.OrganizationsAPI { return nil },
		checkers: func(s baseline.Settings) []checks.Checker {
			f.settings = append(f.settings, s)
			return f.checkers
		},
		newUploader:  func(aws.Config, string) *output.Uploader { return output.NewUploader(f.putter) },
		listProfiles: func() ([]string, error) { return f.profiles, nil },
	}
}

// run executes the root command with args and returns stdout, stderr and the
// command error.
func (f *cliFixture) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmdWith(f.deps())
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}
