package output_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/pankaj-dahiya-devops/org-posture/internal/models"
	"github.com/pankaj-dahiya-devops/org-posture/internal/output"
)

// ── row mapping ───────────────────────────────────────────────────────────────

func TestNewRow(t *testing.T) {
	r := oneRow(func(f *models.Finding) {
		f.Status = models.StatusWarn
		f.Messages = []string{"Bucket unencrypted: a", "Bucket unencrypted: b"}
	})

	assert.Equal(t, "[WARN] S3_BASELINE - prod (111111111111)", r.Title)
	assert.Equal(t, "Bucket unencrypted: a; Bucket unencrypted: b", r.Details)
	assert.Equal(t, models.StatusWarn, r.Status)
	assert.Equal(t, "111111111111", r.AccountID)
	assert.Equal(t, "prod", r.AccountName)
}

func TestRecommendedFix(t *testing.T) {
	pass := oneFinding(func(f *models.Finding) { f.Status = models.StatusPass })
	assert.Equal(t, "No action required - check passed.", output.RecommendedFix(pass))

	backup := oneFinding(func(f *models.Finding) { f.CheckName = "BACKUP" })
	assert.Equal(t, "Configure backup plans for critical resources. Enable encryption for backup vaults.",
		output.RecommendedFix(backup))

	unknown := oneFinding(func(f *models.Finding) { f.CheckName = "SOMETHING_ELSE" })
	assert.Equal(t, "Review the finding details and consult AWS security best practices documentation.",
		output.RecommendedFix(unknown))
}

func TestRecommendedFix_EveryBaselineCheckHasText(t *testing.T) {
	names := []string{
		"ROOT_HYGIENE", "ORG_STRUCTURE", "IAM_BASELINE", "CROSS_ACCOUNT_TRUST", "CLOUDTRAIL",
		"AWS_CONFIG", "SECURITY_SERVICES", "S3_BASELINE", "KMS_BASELINE", "NETWORK_BASELINE",
		"MONITORING", "BILLING", "TAGGING", "BACKUP", "IAC_GOVERNANCE", "INCIDENT_READINESS",
	}
	generic := output.RecommendedFix(oneFinding(func(f *models.Finding) { f.CheckName = "?" }))
	for _, n := range names {
		fix := output.RecommendedFix(oneFinding(func(f *models.Finding) { f.CheckName = n }))
		assert.NotEqual(t, generic, fix, n)
	}
}

func TestErrorRow(t *testing.T) {
	r := output.ErrorRow(errors.New("AccessDenied"))

	assert.Equal(t, "ASSESSMENT_ERROR", r.Title)
	assert.Equal(t, "Error: AccessDenied", r.Details)
	assert.Equal(t, "Please verify your credentials and permissions, then try again.", r.RecommendedFix)
	assert.Equal(t, models.StatusFail, r.Status)
	assert.Equal(t, "N/A", r.AccountID)
	assert.Equal(t, "N/A", r.AccountName)
}

func TestResultRows(t *testing.T) {
	res := &models.AssessmentResult{Findings: []models.Finding{oneFinding()}}

	assert.Len(t, output.ResultRows(res, nil), 1)
	assert.Equal(t, "ASSESSMENT_ERROR", output.ResultRows(&models.AssessmentResult{}, errors.New("x"))[0].Title)
	assert.Equal(t, "ASSESSMENT_ERROR", output.ResultRows(nil, errors.New("x"))[0].Title)
	// Partial results keep their findings.
	assert.True(t, strings.HasPrefix(output.ResultRows(res, context.Canceled)[0].Title, "[FAIL] S3_BASELINE"))
}

// ── CSV ───────────────────────────────────────────────────────────────────────

func TestWriteCSV_Header(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, output.WriteCSV(&buf, nil))
	assert.Equal(t, "Finding Title,Details,Recommended Fix,Status,Account ID,Account Name\n", buf.String())
}

func TestWriteCSV_EscapesCommaAndQuote(t *testing.T) {
	msg := `Role 'ops' has external trust with no conditions (222222222222,333333333333) "review"`
	rows := []output.Row{oneRow(func(f *models.Finding) { f.Messages = []string{msg} })}

	var buf bytes.Buffer
	require.NoError(t, output.WriteCSV(&buf, rows))

	line := strings.Split(buf.String(), "\n")[1]
	assert.Contains(t, line, `"Role 'ops' has external trust with no conditions (222222222222,333333333333) ""review"""`)

	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Len(t, records[1], 6)
	assert.Equal(t, msg, records[1][1])
	assert.Equal(t, "FAIL", records[1][3])
}

// ── JSON / YAML ───────────────────────────────────────────────────────────────

func TestRender_JSONIsIndentedResult(t *testing.T) {
	res := &models.AssessmentResult{RunID: "run-1", Findings: []models.Finding{oneFinding()}}

	var buf bytes.Buffer
	require.NoError(t, output.Render(&buf, output.FormatJSON, res, nil, output.TableOptions{}))

	assert.Contains(t, buf.String(), "\n  \"run_id\": \"run-1\"")
	var back models.AssessmentResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, "S3_BASELINE", back.Findings[0].CheckName)
}

func TestRender_YAML(t *testing.T) {
	res := &models.AssessmentResult{RunID: "run-1", Findings: []models.Finding{oneFinding()}}

	var buf bytes.Buffer
	require.NoError(t, output.Render(&buf, output.FormatYAML, res, nil, output.TableOptions{}))

	var back map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, "run-1", back["run_id"])
}

func TestRender_CSVIncludesDiscoveryFailure(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, output.Render(&buf, output.FormatCSV, &models.AssessmentResult{}, errors.New("denied"), output.TableOptions{}))
	assert.Contains(t, buf.String(), "ASSESSMENT_ERROR,Error: denied,")
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]output.Format{
		"table": output.FormatTable, "JSON": output.FormatJSON, "csv": output.FormatCSV,
		"yaml": output.FormatYAML, "yml": output.FormatYAML,
	} {
		got, err := output.ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := output.ParseFormat("xml")
	assert.Error(t, err)
}

// ── S3 upload ─────────────────────────────────────────────────────────────────

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, f.err
}

func TestReportKey(t *testing.T) {
	ts := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)

	assert.Equal(t, "aws_security_assessment_20250304_050607.json", output.ReportKey("", ts))
	assert.Equal(t, "reports/aws_security_assessment_20250304_050607.json", output.ReportKey("reports", ts))
	assert.Equal(t, "reports/aws_security_assessment_20250304_050607.json", output.ReportKey("reports/", ts))
}

func TestUploader_Upload(t *testing.T) {
	put := &fakePutter{}
	u := output.NewUploader(put)

	key, err := u.Upload(context.Background(), "audit-bucket", "posture", []models.Finding{oneFinding()})
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^posture/aws_security_assessment_\d{8}_\d{6}\.json$`), key)
	assert.Equal(t, "audit-bucket", aws.ToString(put.input.Bucket))
	assert.Equal(t, key, aws.ToString(put.input.Key))
	assert.Equal(t, "application/json", aws.ToString(put.input.ContentType))

	var back []models.Finding
	require.NoError(t, json.Unmarshal(put.body, &back))
	assert.Equal(t, "S3_BASELINE", back[0].CheckName)
}

func TestUploader_Errors(t *testing.T) {
	u := output.NewUploader(&fakePutter{err: errors.New("AccessDenied")})

	_, err := u.Upload(context.Background(), "", "", nil)
	assert.ErrorContains(t, err, "bucket name is required")

	_, err = u.Upload(context.Background(), "b", "", nil)
	assert.ErrorContains(t, err, "AccessDenied")
}
