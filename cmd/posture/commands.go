package main

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pankaj-dahiya-devops/org-posture/internal/checkpacks/baseline"
	"github.com/pankaj-dahiya-devops/org-posture/internal/checks"
	"github.com/pankaj-dahiya-devops/org-posture/internal/config"
	"github.com/pankaj-dahiya-devops/org-posture/internal/logging"
	"github.com/pankaj-dahiya-devops/org-posture/internal/output"
	"github.com/pankaj-dahiya-devops/org-posture/internal/providers/aws/common"
	"github.com/pankaj-dahiya-devops/org-posture/internal/version"
)

// deps are the outward-facing constructors used by the commands. Tests swap
// them for fakes.
type deps struct {
	newProvider    func(cfg *config.Config) common.AWSClientProvider
	managementOrgs func(cfg aws.Config) checks.OrganizationsAPI
	checkers       func(s baseline.Settings) []checks.Checker
	newUploader    func(cfg aws.Config, region string) *output.Uploader
	listProfiles   func() ([]string, error)
}

func defaultDeps() deps {
	return deps{
		newProvider: func(cfg *config.Config) common.AWSClientProvider {
			return common.NewDefaultAWSClientProvider(common.WithMaxAttempts(cfg.AWS.MaxAttempts))
		},
		managementOrgs: func(cfg aws.Config) checks.OrganizationsAPI {
			return organizations.NewFromConfig(cfg)
		},
		checkers:     baseline.New,
		newUploader:  output.NewS3Uploader,
		listProfiles: common.ListProfiles,
	}
}

// app is the state shared by every subcommand once the root pre-run has
// loaded configuration.
type app struct {
	deps       deps
	configPath string
	configFile string
	cfg        *config.Config
}

// flagBindings maps config keys to the flag names that override them. A
// command only binds the flags it defines.
var flagBindings = map[string]string{
	"aws.region":                 "region",
	"aws.profile":                "profile",
	"aws.audit_role_arn":         "role-arn",
	"assessment.max_concurrency": "max-concurrency",
	"log.level":                  "log-level",
	"log.format":                 "log-format",
	"output.format":              "format",
	"output.path":                "output",
	"output.fail_on":             "fail-on",
	"upload.bucket":              "upload-bucket",
	"upload.prefix":              "upload-prefix",
	"server.addr":                "addr",
	"store.path":                 "db",
	"policy.path":                "policy",
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(defaultDeps())
}

func newRootCmdWith(d deps) *cobra.Command {
	a := &app{deps: d}

	root := &cobra.Command{
		Use:           "posture",
		Short:         "AWS Organization security posture assessment",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Config file (default: ./posture.yaml when present)")
	pf.String("log-level", "", "Log level: debug, info, warn, error")
	pf.String("log-format", "", "Log format: console or json")
	pf.String("region", "", "Home AWS region")
	pf.String("profile", "", "AWS shared-config profile")

	root.AddCommand(
		newAssessCmd(a),
		newDiscoverCmd(a),
		newDoctorCmd(a),
		newProfilesCmd(a),
		newServeCmd(a),
		newHistoryCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return root
}

// load reads configuration for cmd and puts a logger on its context.
func (a *app) load(cmd *cobra.Command) error {
	l := config.NewLoader(a.configPath)
	if err := l.BindFlags(cmd.Flags(), flagBindings); err != nil {
		return err
	}
	cfg, err := l.Load()
	if err != nil {
		return err
	}
	logger, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}

	a.cfg = cfg
	a.configFile = l.ConfigPath()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(logger.WithContext(ctx))
	return nil
}

// session loads the base credential session from the current config.
func (a *app) session(ctx context.Context) (*common.Session, error) {
	if err := a.cfg.ValidateCredentials(); err != nil {
		return nil, fmt.Errorf("invalid credentials: %w", err)
	}
	return a.deps.newProvider(a.cfg).LoadSession(ctx, a.cfg.BaseCredentials())
}

func newProfilesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List AWS shared-config profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := a.deps.listProfiles()
			if err != nil {
				return fmt.Errorf("list profiles: %w", err)
			}
			w := cmd.OutOrStdout()
			if len(names) == 0 {
				fmt.Fprintln(w, "No profiles found.")
				return nil
			}
			for _, n := range names {
				fmt.Fprintln(w, n)
			}
			return nil
		},
	}
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printConfig(cmd.OutOrStdout(), a.cfg)
		},
	})
	return cmd
}

// printConfig writes cfg as YAML with the secret key masked.
func printConfig(w io.Writer, cfg *config.Config) error {
	masked := *cfg
	if masked.AWS.SecretAccessKey != "" {
		masked.AWS.SecretAccessKey = "********"
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(masked); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		// Version never needs configuration.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(cmd.OutOrStdout(), version.Info())
			return nil
		},
	}
}
