package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pankaj-dahiya-devops/org-posture/internal/checkpacks/baseline"
	"github.com/pankaj-dahiya-devops/org-posture/internal/checks"
	"github.com/pankaj-dahiya-devops/org-posture/internal/config"
	"github.com/pankaj-dahiya-devops/org-posture/internal/discovery"
	"github.com/pankaj-dahiya-devops/org-posture/internal/engine"
	"github.com/pankaj-dahiya-devops/org-posture/internal/models"
	"github.com/pankaj-dahiya-devops/org-posture/internal/output"
	"github.com/pankaj-dahiya-devops/org-posture/internal/policy"
	"github.com/pankaj-dahiya-devops/org-posture/internal/providers/aws/common"
	"github.com/pankaj-dahiya-devops/org-posture/internal/render"
	"github.com/pankaj-dahiya-devops/org-posture/internal/store"
)

// exitFindings is the exit status when findings reach the --fail-on threshold.
const exitFindings = 2

type assessOptions struct {
	summary    bool
	noColor    bool
	includeFix bool
	hidePassed bool
}

func newAssessCmd(a *app) *cobra.Command {
	var opts assessOptions

	cmd := &cobra.Command{
		Use:   "assess",
		Short: "Assess every active account in the organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAssess(cmd.Context(), a, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	f := cmd.Flags()
	f.String("role-arn", "", "Audit role ARN template; the account id segment is replaced per account")
	f.Int("max-concurrency", 0, "Maximum concurrent checkers per account (0 = unlimited)")
	f.String("format", "", "Output format: table, json, csv or yaml")
	f.String("output", "", "Write the report to this file instead of stdout")
	f.String("fail-on", "", "Exit non-zero when a finding is at or above WARN or FAIL")
	f.String("upload-bucket", "", "Also upload the JSON report to this S3 bucket")
	f.String("upload-prefix", "", "Key prefix for the uploaded report")
	f.String("db", "", "Record the run in this SQLite database")
	f.String("policy", "", "Policy file that disables checks, tunes parameters or sets fail_on")
	f.BoolVar(&opts.summary, "summary", false, "Print a per-account summary instead of every finding")
	f.BoolVar(&opts.noColor, "no-color", false, "Disable ANSI colours in table output")
	f.BoolVar(&opts.includeFix, "fix", false, "Include the recommended fix column in table output")
	f.BoolVar(&opts.hidePassed, "hide-passed", false, "Omit PASS findings from table output")
	return cmd
}

func runAssess(ctx context.Context, a *app, opts assessOptions, stdout, stderr io.Writer) error {
	cfg := a.cfg
	log := zerolog.Ctx(ctx)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	format, err := output.ParseFormat(cfg.Output.Format)
	if err != nil {
		return err
	}
	pol, err := loadPolicy(cfg.Policy.Path, a.deps)
	if err != nil {
		return err
	}

	sess, err := a.session(ctx)
	if err != nil {
		return err
	}

	orch, _, reg := a.wire(sess, pol)

	log.Info().Str("profile", sess.ProfileName).Str("region", sess.Region).Int("checks", reg.Len()).Msg("starting assessment")
	res, runErr := orch.RunAssessment(ctx, cfg.AssessmentConfig(), progressPrinter(stderr))

	if err := writeReport(stdout, cfg.Output.Path, format, res, runErr, opts); err != nil {
		return err
	}
	if cfg.Upload.Bucket != "" && res != nil {
		key, err := a.deps.newUploader(sess.Config, cfg.Upload.Region).Upload(ctx, cfg.Upload.Bucket, cfg.Upload.Prefix, res)
		if err != nil {
			return fmt.Errorf("upload report: %w", err)
		}
		fmt.Fprintf(stderr, "Report uploaded to s3://%s/%s\n", cfg.Upload.Bucket, key)
	}
	if cfg.Store.Path != "" && res != nil {
		if err := saveRun(ctx, cfg.Store.Path, res); err != nil {
			return err
		}
	}

	if runErr != nil {
		return runErr
	}
	threshold := policy.FailOn(cfg.Output.FailOn, pol)
	if policy.ShouldFail(res.Findings, threshold) {
		return &exitError{code: exitFindings, msg: fmt.Sprintf("findings at or above %s detected", threshold)}
	}
	return nil
}

// wire builds the orchestrator for sess with the checkers pol leaves enabled.
func (a *app) wire(sess *common.Session, pol *policy.PolicyConfig) (*engine.Orchestrator, discovery.Discoverer, checks.Registry) {
	settings := assessmentSettings(a.cfg, pol, a.deps.managementOrgs(sess.Config))
	reg := checks.NewDefaultRegistry(policy.EnabledCheckers(a.deps.checkers(settings), pol)...)
	disc := discovery.NewOrganizationDiscoverer(sess.Clients.Organizations)
	return engine.NewOrchestrator(disc, engine.NewExecutor(sess, reg).WithBaseConfig(sess.Config)), disc, reg
}

// loadPolicy reads and validates the policy file at path. An empty path
// means no policy.
func loadPolicy(path string, d deps) (*policy.PolicyConfig, error) {
	if path == "" {
		return nil, nil
	}
	pol, err := policy.LoadPolicy(path)
	if err != nil {
		return nil, err
	}
	if errs := policy.Validate(pol, checkNames(d)); len(errs) > 0 {
		return nil, fmt.Errorf("invalid policy %s: %w", path, errors.Join(errs...))
	}
	return pol, nil
}

// checkNames returns the names of every available checker.
func checkNames(d deps) []string {
	var names []string
	for _, c := range d.checkers(baseline.DefaultSettings()) {
		names = append(names, c.Name())
	}
	return names
}

// assessmentSettings merges config and policy into checker settings.
func assessmentSettings(cfg *config.Config, pol *policy.PolicyConfig, orgs checks.OrganizationsAPI) baseline.Settings {
	s := baseline.DefaultSettings()
	days := policy.GetThreshold(checks.CheckIAMBaseline, "max_access_key_age_days", float64(cfg.Assessment.MaxAccessKeyAgeDays), pol)
	if days > 0 {
		s.MaxAccessKeyAge = time.Duration(days * float64(24*time.Hour))
	}
	if len(cfg.Assessment.RequiredTags) > 0 {
		s.RequiredTags = cfg.Assessment.RequiredTags
	}
	s.Organizations = orgs
	return s
}

// progressPrinter reports each completed account on w.
func progressPrinter(w io.Writer) engine.ProgressFunc {
	return func(p engine.Progress) {
		fmt.Fprintf(w, "[%d/%d] %s (%s) assessed, %d findings so far\n",
			p.Processed, p.Total, p.Account.Name, p.Account.ID, p.FindingsSoFar)
	}
}

// writeReport renders the run to path, or to stdout when path is empty.
func writeReport(stdout io.Writer, path string, format output.Format, res *models.AssessmentResult, runErr error, opts assessOptions) error {
	w := stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create report file %q: %w", path, err)
		}
		defer f.Close()
		w = f
	}

	if opts.summary {
		if format == output.FormatJSON {
			return render.WriteSummaryJSON(w, res)
		}
		render.RenderSummary(w, res)
		if runErr != nil {
			fmt.Fprintf(w, "\nError: %v\n", runErr)
		}
		return nil
	}

	return output.Render(w, format, res, runErr, output.TableOptions{
		Colored:    !opts.noColor && path == "",
		IncludeFix: opts.includeFix,
		HidePassed: opts.hidePassed,
	})
}

// saveRun records res in the SQLite database at path.
func saveRun(ctx context.Context, path string, res *models.AssessmentResult) error {
	st, closeDB, err := openStore(ctx, path)
	if err != nil {
		return err
	}
	defer closeDB()
	if err := st.SaveRun(ctx, res); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// openStore opens the run history database at path.
func openStore(ctx context.Context, path string) (store.Store, func() error, error) {
	db, err := store.NewDB(ctx, store.Settings{DbPath: path})
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	st, err := store.NewStore(db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return st, db.Close, nil
}
