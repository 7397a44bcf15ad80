package checks

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/accessanalyzer"
	aatypes "github.com/aws/aws-sdk-go-v2/service/accessanalyzer/types"
	"github.com/aws/aws-sdk-go-v2/service/configservice"
	cfgtypes "github.com/aws/aws-sdk-go-v2/service/configservice/types"
	"github.com/aws/aws-sdk-go-v2/service/guardduty"
	gdtypes "github.com/aws/aws-sdk-go-v2/service/guardduty/types"
	"github.com/aws/aws-sdk-go-v2/service/inspector2"
	i2types "github.com/aws/aws-sdk-go-v2/service/inspector2/types"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/aws/aws-sdk-go-v2/service/securityhub"
	"github.com/stretchr/testify/assert"

	"github.com/pankaj-dahiya-devops/org-posture/internal/models"
)

// ── AWS_CONFIG ────────────────────────────────────────────────────────────────

type fakeConfig struct {
	recorders   int
	recording   bool
	aggregators int
}

func (f *fakeConfig) DescribeConfigurationRecorders(context.Context, *configservice.DescribeConfigurationRecordersInput, ...func(*configservice.Options)) (*configservice.DescribeConfigurationRecordersOutput, error) {
	return &configservice.DescribeConfigurationRecordersOutput{ConfigurationRecorders: make([]cfgtypes.ConfigurationRecorder, f.recorders)}, nil
}

func (f *fakeConfig) DescribeConfigurationRecorderStatus(context.Context, *configservice.DescribeConfigurationRecorderStatusInput, ...func(*configservice.Options)) (*configservice.DescribeConfigurationRecorderStatusOutput, error) {
	return &configservice.DescribeConfigurationRecorderStatusOutput{
		ConfigurationRecordersStatus: []cfgtypes.ConfigurationRecorderStatus{{Recording: f.recording}},
	}, nil
}

func (f *fakeConfig) DescribeConfigurationAggregators(context.Context, *configservice.DescribeConfigurationAggregatorsInput, ...func(*configservice.Options)) (*configservice.DescribeConfigurationAggregatorsOutput, error) {
	return &configservice.DescribeConfigurationAggregatorsOutput{ConfigurationAggregators: make([]cfgtypes.ConfigurationAggregator, f.aggregators)}, nil
}

func TestAWSConfig(t *testing.T) {
	cases := []struct {
		name     string
		fake     fakeConfig
		status   models.Status
		messages []string
	}{
		{"recording with aggregator", fakeConfig{1, true, 1}, models.StatusPass, []string{models.DefaultPassMessage}},
		{"recording without aggregator", fakeConfig{1, true, 0}, models.StatusWarn, []string{"No Config aggregator set up"}},
		{"no recorder", fakeConfig{0, false, 0}, models.StatusFail, []string{"AWS Config recorder disabled", "No Config aggregator set up"}},
		{"recorder stopped", fakeConfig{1, false, 1}, models.StatusFail, []string{"AWS Config recorder is not recording"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fake := tc.fake
			c := NewAWSConfigChecker()
			c.clients = func(aws.Config) configAPIClient { return &fake }

			f := c.Check(context.Background(), testAccount, nil, testRegion)

			assert.Equal(t, tc.status, f.Status)
			assert.Equal(t, tc.messages, f.Messages)
		})
	}
}

// ── SECURITY_SERVICES ─────────────────────────────────────────────────────────

type fakeSecurityServices struct {
	detectors   map[string]gdtypes.DetectorStatus
	detectorErr error
	hubErr      error
	analyzers   []aatypes.AnalyzerSummary
	inspector   i2types.Status
}

func (f *fakeSecurityServices) ListDetectors(context.Context, *guardduty.ListDetectorsInput, ...func(*guardduty.Options)) (*guardduty.ListDetectorsOutput, error) {
	if f.detectorErr != nil {
		return nil, f.detectorErr
	}
	out := &guardduty.ListDetectorsOutput{}
	for id := range f.detectors {
		out.DetectorIds = append(out.DetectorIds, id)
	}
	return out, nil
}

func (f *fakeSecurityServices) GetDetector(_ context.Context, in *guardduty.GetDetectorInput, _ ...func(*guardduty.Options)) (*guardduty.GetDetectorOutput, error) {
	return &guardduty.GetDetectorOutput{Status: f.detectors[aws.ToString(in.DetectorId)]}, nil
}

func (f *fakeSecurityServices) DescribeHub(context.Context, *securityhub.DescribeHubInput, ...func(*securityhub.Options)) (*securityhub.DescribeHubOutput, error) {
	if f.hubErr != nil {
		return nil, f.hubErr
	}
	return &securityhub.DescribeHubOutput{HubArn: aws.String("arn:hub")}, nil
}

func (f *fakeSecurityServices) ListAnalyzers(context.Context, *accessanalyzer.ListAnalyzersInput, ...func(*accessanalyzer.Options)) (*accessanalyzer.ListAnalyzersOutput, error) {
	return &accessanalyzer.ListAnalyzersOutput{Analyzers: f.analyzers}, nil
}

func (f *fakeSecurityServices) BatchGetAccountStatus(_ context.Context, in *inspector2.BatchGetAccountStatusInput, _ ...func(*inspector2.Options)) (*inspector2.BatchGetAccountStatusOutput, error) {
	return &inspector2.BatchGetAccountStatusOutput{Accounts: []i2types.AccountState{{
		AccountId: aws.String(in.AccountIds[0]),
		State:     &i2types.State{Status: f.inspector},
	}}}, nil
}

func newServicesChecker(fake *fakeSecurityServices) *SecurityServicesChecker {
	c := NewSecurityServicesChecker()
	c.guardDuty = func(aws.Config) guardDutyAPIClient { return fake }
	c.securityHub = func(aws.Config) securityHubAPIClient { return fake }
	c.accessAnalyzer = func(aws.Config) accessAnalyzerAPIClient { return fake }
	c.inspector = func(aws.Config) inspectorAPIClient { return fake }
	return c
}

func TestSecurityServices_AllEnabled(t *testing.T) {
	fake := &fakeSecurityServices{
		detectors: map[string]gdtypes.DetectorStatus{"d1": gdtypes.DetectorStatusEnabled},
		analyzers: []aatypes.AnalyzerSummary{{Status: aatypes.AnalyzerStatusActive}},
		inspector: i2types.StatusEnabled,
	}

	f := newServicesChecker(fake).Check(context.Background(), testAccount, nil, testRegion)

	assert.Equal(t, models.StatusPass, f.Status)
	assert.Empty(t, f.Messages)
}

func TestSecurityServices_AllDisabled(t *testing.T) {
	fake := &fakeSecurityServices{
		detectors: map[string]gdtypes.DetectorStatus{"d1": gdtypes.DetectorStatusDisabled},
		hubErr:    apiErr(codeInvalidAccess, "not subscribed"),
		analyzers: []aatypes.AnalyzerSummary{{Status: aatypes.AnalyzerStatusDisabled}},
		inspector: i2types.StatusDisabled,
	}

	f := newServicesChecker(fake).Check(context.Background(), testAccount, nil, testRegion)

	assert.Equal(t, models.StatusWarn, f.Status)
	assert.Equal(t, []string{
		"GuardDuty not enabled",
		"Security Hub not enabled",
		"IAM Access Analyzer not enabled",
		"Amazon Inspector not enabled",
	}, f.Messages)
}

func TestSecurityServices_ProbeFailuresAreIsolated(t *testing.T) {
	fake := &fakeSecurityServices{
		detectorErr: apiErr("AccessDenied", "denied"),
		hubErr:      apiErr("Throttling", "slow down"),
		analyzers:   []aatypes.AnalyzerSummary{{Status: aatypes.AnalyzerStatusActive}},
		inspector:   i2types.StatusEnabled,
	}

	f := newServicesChecker(fake).Check(context.Background(), testAccount, nil, testRegion)

	assert.Equal(t, models.StatusWarn, f.Status)
	assert.Equal(t, []string{"GuardDuty check failed: denied", "Security Hub check failed: slow down"}, f.Messages)
}

// ── KMS_BASELINE ──────────────────────────────────────────────────────────────

type fakeKey struct {
	meta        kmstypes.KeyMetadata
	policy      string
	rotation    bool
	rotationErr error
}

type fakeKMS struct {
	pages [][]string
	keys  map[string]fakeKey
}

func (f *fakeKMS) ListKeys(_ context.Context, in *kms.ListKeysInput, _ ...func(*kms.Options)) (*kms.ListKeysOutput, error) {
	if len(f.pages) == 0 {
		return &kms.ListKeysOutput{}, nil
	}
	i := pageIndex(in.Marker)
	marker, truncated := nextMarker(i, len(f.pages))
	out := &kms.ListKeysOutput{NextMarker: marker, Truncated: truncated}
	for _, id := range f.pages[i] {
		out.Keys = append(out.Keys, kmstypes.KeyListEntry{KeyId: aws.String(id)})
	}
	return out, nil
}

func (f *fakeKMS) DescribeKey(_ context.Context, in *kms.DescribeKeyInput, _ ...func(*kms.Options)) (*kms.DescribeKeyOutput, error) {
	k, ok := f.keys[aws.ToString(in.KeyId)]
	if !ok {
		return nil, apiErr("NotFoundException", "key missing")
	}
	meta := k.meta
	return &kms.DescribeKeyOutput{KeyMetadata: &meta}, nil
}

func (f *fakeKMS) GetKeyPolicy(_ context.Context, in *kms.GetKeyPolicyInput, _ ...func(*kms.Options)) (*kms.GetKeyPolicyOutput, error) {
	return &kms.GetKeyPolicyOutput{Policy: aws.String(f.keys[aws.ToString(in.KeyId)].policy)}, nil
}

func (f *fakeKMS) GetKeyRotationStatus(_ context.Context, in *kms.GetKeyRotationStatusInput, _ ...func(*kms.Options)) (*kms.GetKeyRotationStatusOutput, error) {
	k := f.keys[aws.ToString(in.KeyId)]
	if k.rotationErr != nil {
		return nil, k.rotationErr
	}
	return &kms.GetKeyRotationStatusOutput{KeyRotationEnabled: k.rotation}, nil
}

const rootOnlyKeyPolicy = `{"Statement":[{"Effect":"Allow","Principal":{"AWS":"arn:aws:iam::111111111111:root"},"Action":"kms:*","Resource":"*"}]}`

func customerKey(spec kmstypes.KeySpec) kmstypes.KeyMetadata {
	return kmstypes.KeyMetadata{KeyManager: kmstypes.KeyManagerTypeCustomer, KeyState: kmstypes.KeyStateEnabled, KeySpec: spec}
}

func TestKMSBaseline(t *testing.T) {
	fake := &fakeKMS{
		pages: [][]string{{"good", "aws-managed", "disabled"}, {"broad", "open", "norotate", "rotation-err", "asym", "missing"}},
		keys: map[string]fakeKey{
			"good":        {meta: customerKey(kmstypes.KeySpecSymmetricDefault), policy: rootOnlyKeyPolicy, rotation: true},
			"aws-managed": {meta: kmstypes.KeyMetadata{KeyManager: kmstypes.KeyManagerTypeAws, KeyState: kmstypes.KeyStateEnabled}},
			"disabled":    {meta: kmstypes.KeyMetadata{KeyManager: kmstypes.KeyManagerTypeCustomer, KeyState: kmstypes.KeyStateDisabled}},
			"broad": {meta: customerKey(kmstypes.KeySpecSymmetricDefault), rotation: true,
				policy: `{"Statement":[{"Effect":"Allow","Principal":{"AWS":"arn:aws:iam::111111111111:root"},"Action":"*","Resource":"*"}]}`},
			"open": {meta: customerKey(kmstypes.KeySpecSymmetricDefault), rotation: true,
				policy: `{"Statement":[{"Effect":"Allow","Principal":"*","Action":"kms:Decrypt","Resource":"*"}]}`},
			"norotate":     {meta: customerKey(kmstypes.KeySpecSymmetricDefault), policy: rootOnlyKeyPolicy},
			"rotation-err": {meta: customerKey(kmstypes.KeySpecSymmetricDefault), policy: rootOnlyKeyPolicy, rotationErr: apiErr("AccessDenied", "denied")},
			"asym":         {meta: customerKey(kmstypes.KeySpecRsa2048), policy: rootOnlyKeyPolicy},
		},
	}
	c := NewKMSBaselineChecker()
	c.clients = func(aws.Config) kmsAPIClient { return fake }

	f := c.Check(context.Background(), testAccount, nil, testRegion)

	assert.Equal(t, models.StatusFail, f.Status)
	assert.Equal(t, []string{
		"KMS key has overly broad permissions: broad",
		"KMS key has overly broad permissions: open",
		"KMS key rotation disabled: norotate",
		"Could not check rotation status for key rotation-err: denied",
		"Could not describe KMS key missing: key missing",
	}, f.Messages)
}
