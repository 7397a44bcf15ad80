package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	"github.com/spf13/cobra"

	"github.com/pankaj-dahiya-devops/org-posture/internal/config"
	"github.com/pankaj-dahiya-devops/org-posture/internal/policy"
	"github.com/pankaj-dahiya-devops/org-posture/internal/providers/aws/common"
)

// DoctorResult is the structured output of posture doctor. It can be
// serialised to JSON via --format=json or rendered as a human-readable table
// (default).
type DoctorResult struct {
	AWS struct {
		Profile       string `json:"profile,omitempty"`
		Credentials   bool   `json:"credentials_ok"`
		AccountID     string `json:"account_id,omitempty"`
		ARN           string `json:"arn,omitempty"`
		Organizations bool   `json:"organizations_ok"`
		OrgID         string `json:"organization_id,omitempty"`
		Management    bool   `json:"management_account"`
		Error         string `json:"error,omitempty"`
	} `json:"aws"`

	Config struct {
		File   string   `json:"file,omitempty"`
		Valid  bool     `json:"valid"`
		Errors []string `json:"errors,omitempty"`
	} `json:"config"`

	Policy struct {
		Path    string   `json:"path,omitempty"`
		Present bool     `json:"present"`
		Valid   bool     `json:"valid"`
		Errors  []string `json:"errors,omitempty"`
	} `json:"policy"`

	OverallHealthy bool `json:"overall_healthy"`
}

func newDoctorCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run environment diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := runDoctor(cmd.Context(), a.deps.newProvider(a.cfg), a.cfg, a.configFile,
				checkNames(a.deps), cmd.OutOrStdout(), format)
			if err != nil {
				// Rendering failure.
				return err
			}
			if !result.OverallHealthy {
				// The report already says what is wrong.
				return &exitError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", `Output format: "table" or "json"`)
	cmd.Flags().String("policy", "", "Policy file to validate")
	return cmd
}

// runDoctor collects all diagnostic results, renders them to w in the
// requested format, and returns the result.
// The returned error covers only rendering failures (e.g. JSON encode error).
// Callers must inspect result.OverallHealthy to determine whether the
// environment is healthy.
func runDoctor(ctx context.Context, provider common.AWSClientProvider, cfg *config.Config, configFile string, checkNames []string, w io.Writer, format string) (DoctorResult, error) {
	result := collectDoctorResult(ctx, provider, cfg, configFile, checkNames)

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return result, fmt.Errorf("encode doctor result: %w", err)
		}
	default:
		renderDoctorTable(result, w)
	}

	return result, nil
}

// collectDoctorResult runs all environment checks and populates a DoctorResult.
// It performs no rendering; callers decide how to present the result.
func collectDoctorResult(ctx context.Context, provider common.AWSClientProvider, cfg *config.Config, configFile string, checkNames []string) DoctorResult {
	var result DoctorResult

	// AWS: credentials → STS identity → Organizations access.
	result.AWS.Profile = cfg.AWS.Profile
	if err := cfg.ValidateCredentials(); err != nil {
		result.AWS.Error = err.Error()
	} else if sess, err := provider.LoadSession(ctx, cfg.BaseCredentials()); err != nil {
		result.AWS.Error = err.Error()
	} else if id, err := sess.TestConnection(ctx); err != nil {
		result.AWS.Error = err.Error()
	} else {
		result.AWS.Credentials = true
		result.AWS.AccountID = id.AccountID
		result.AWS.ARN = id.ARN

		out, err := sess.Clients.Organizations.DescribeOrganization(ctx, &organizations.DescribeOrganizationInput{})
		if err != nil {
			result.AWS.Error = err.Error()
		} else {
			result.AWS.Organizations = true
			if out.Organization != nil {
				result.AWS.OrgID = aws.ToString(out.Organization.Id)
				result.AWS.Management = aws.ToString(out.Organization.MasterAccountId) == id.AccountID
			}
		}
	}

	// Config: everything an assessment run needs.
	result.Config.File = configFile
	if err := cfg.Validate(); err != nil {
		result.Config.Errors = splitJoined(err)
	} else {
		result.Config.Valid = true
	}

	// Policy: stat → load → validate (file is optional).
	if path := cfg.Policy.Path; path != "" {
		result.Policy.Path = path
		_, statErr := os.Stat(path)
		switch {
		case statErr == nil:
			result.Policy.Present = true
			pol, loadErr := policy.LoadPolicy(path)
			if loadErr != nil {
				result.Policy.Errors = []string{loadErr.Error()}
				break
			}
			errs := policy.Validate(pol, checkNames)
			if len(errs) == 0 {
				result.Policy.Valid = true
			}
			for _, e := range errs {
				result.Policy.Errors = append(result.Policy.Errors, e.Error())
			}
		case os.IsNotExist(statErr):
			// A configured but missing policy file is unhealthy.
			result.Policy.Errors = []string{fmt.Sprintf("policy file %s not found", path)}
		default:
			result.Policy.Present = true
			result.Policy.Errors = []string{statErr.Error()}
		}
	}

	result.OverallHealthy = result.AWS.Credentials &&
		result.AWS.Organizations &&
		result.Config.Valid &&
		len(result.Policy.Errors) == 0

	return result
}

// splitJoined flattens an errors.Join tree into one message per error.
func splitJoined(err error) []string {
	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) {
		return []string{err.Error()}
	}
	var out []string
	for _, e := range joined.Unwrap() {
		out = append(out, splitJoined(e)...)
	}
	return out
}

// renderDoctorTable writes the human-readable diagnostic output from result to w.
func renderDoctorTable(result DoctorResult, w io.Writer) {
	fmt.Fprintln(w, "Environment Diagnostics")

	if result.AWS.Profile != "" {
		fmt.Fprintf(w, "\nAWS (profile: %s):\n", result.AWS.Profile)
	} else {
		fmt.Fprintln(w, "\nAWS:")
	}
	if !result.AWS.Credentials {
		doctorPrint(w, "Credentials", "FAIL", result.AWS.Error)
		doctorPrint(w, "STS Identity", "FAIL", "skipped")
		doctorPrint(w, "Organizations", "FAIL", "skipped")
	} else {
		doctorPrint(w, "Credentials", "OK", "")
		doctorPrint(w, "STS Identity", "OK", "Account: "+result.AWS.AccountID)
		switch {
		case !result.AWS.Organizations:
			doctorPrint(w, "Organizations", "FAIL", result.AWS.Error)
		case result.AWS.Management:
			doctorPrint(w, "Organizations", "OK", result.AWS.OrgID+", management account")
		default:
			doctorPrint(w, "Organizations", "OK", result.AWS.OrgID+", delegated access")
		}
	}

	fmt.Fprintln(w, "\nConfig:")
	if result.Config.File != "" {
		doctorPrint(w, "File", result.Config.File, "")
	} else {
		doctorPrint(w, "File", "Not found (defaults and environment)", "")
	}
	if result.Config.Valid {
		doctorPrint(w, "Config valid", "OK", "")
	} else {
		for _, e := range result.Config.Errors {
			doctorPrint(w, "Config valid", "FAIL", e)
		}
	}

	fmt.Fprintln(w, "\nPolicy:")
	switch {
	case result.Policy.Path == "":
		doctorPrint(w, "Policy file", "Not configured (optional)", "")
	case result.Policy.Valid:
		doctorPrint(w, "Policy file", result.Policy.Path, "")
		doctorPrint(w, "Policy valid", "OK", "")
	default:
		doctorPrint(w, "Policy file", result.Policy.Path, "")
		for _, e := range result.Policy.Errors {
			doctorPrint(w, "Policy valid", "FAIL", e)
		}
	}
}

// doctorPrint writes a single diagnostic check line to w.
// When detail is non-empty it is appended in parentheses.
func doctorPrint(w io.Writer, label, status, detail string) {
	if detail != "" {
		fmt.Fprintf(w, "  %s: %s (%s)\n", label, status, detail)
	} else {
		fmt.Fprintf(w, "  %s: %s\n", label, status)
	}
}
