package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pankaj-dahiya-devops/org-posture/internal/server"
	"github.com/pankaj-dahiya-devops/org-posture/internal/store"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the assessment HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := a.cfg
			logger := zerolog.Ctx(ctx)

			pol, err := loadPolicy(cfg.Policy.Path, a.deps)
			if err != nil {
				return err
			}
			sess, err := a.session(ctx)
			if err != nil {
				return err
			}

			var st store.Store
			if cfg.Store.Path != "" {
				s, closeDB, err := openStore(ctx, cfg.Store.Path)
				if err != nil {
					return err
				}
				defer closeDB()
				st = s
			}

			orch, disc, _ := a.wire(sess, pol)

			tracker := server.NewRunTracker(ctx, orch, st)
			h := server.NewHandler(tracker, disc, cfg.AssessmentConfig())
			api := server.NewWebAPI(*logger, server.Config{Addr: cfg.Server.Addr}, h, tracker)

			logger.Debug().Bool("store", st != nil).Msg("assessment API wired")
			return api.Start(ctx)
		},
	}
	f := cmd.Flags()
	f.String("addr", "", "Listen address (default :8080)")
	f.String("role-arn", "", "Default audit role ARN template for new runs")
	f.Int("max-concurrency", 0, "Default maximum concurrent checkers per account")
	f.String("db", "", "Persist runs in this SQLite database")
	f.String("policy", "", "Policy file that disables checks or tunes parameters")
	return cmd
}
