package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pankaj-dahiya-devops/org-posture/internal/models"
	"github.com/pankaj-dahiya-devops/org-posture/internal/output"
	"github.com/pankaj-dahiya-devops/org-posture/internal/store"
)

var errStoreRequired = errors.New("run history is disabled; set store.path or pass --db")

func newHistoryCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded assessment runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if a.cfg.Store.Path == "" {
				return errStoreRequired
			}
			st, closeDB, err := openStore(ctx, a.cfg.Store.Path)
			if err != nil {
				return err
			}
			defer closeDB()

			runs, err := st.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			printRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.PersistentFlags().String("db", "", "SQLite database holding run history")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list (0 = all)")
	cmd.AddCommand(newHistoryShowCmd(a))
	return cmd
}

func newHistoryShowCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print the findings of a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if a.cfg.Store.Path == "" {
				return errStoreRequired
			}
			format, err := output.ParseFormat(a.cfg.Output.Format)
			if err != nil {
				return err
			}
			st, closeDB, err := openStore(ctx, a.cfg.Store.Path)
			if err != nil {
				return err
			}
			defer closeDB()

			run, err := st.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			findings, err := st.GetFindings(ctx, run.ID)
			if err != nil {
				return err
			}
			return output.Render(cmd.OutOrStdout(), format, storedResult(run, findings), nil, output.TableOptions{})
		},
	}
	cmd.Flags().String("format", "", "Output format: table, json, csv or yaml")
	return cmd
}

// storedResult rebuilds an AssessmentResult from a stored run. The account
// roster is not stored; its size is kept in the summary.
func storedResult(run *store.Run, findings []models.Finding) *models.AssessmentResult {
	return &models.AssessmentResult{
		RunID:      run.ID,
		Status:     run.Status,
		Message:    run.Message,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Region:     run.Region,
		Findings:   findings,
		Summary:    run.Summary,
	}
}

// printRuns writes one line per run to w, newest first.
func printRuns(w io.Writer, runs []store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No recorded runs.")
		return
	}
	fmt.Fprintf(w, "%-36s  %-20s  %-10s  %8s  %8s  %4s  %4s\n",
		"RUN ID", "STARTED", "STATUS", "ACCOUNTS", "FINDINGS", "WARN", "FAIL")
	for _, r := range runs {
		fmt.Fprintf(w, "%-36s  %-20s  %-10s  %8d  %8d  %4d  %4d\n",
			r.ID, r.StartedAt.UTC().Format("2006-01-02 15:04:05"), r.Status,
			r.Summary.TotalAccounts, r.Summary.TotalFindings, r.Summary.WarnFindings, r.Summary.FailFindings)
	}
}
