package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pankaj-dahiya-devops/org-posture/internal/discovery"
	"github.com/pankaj-dahiya-devops/org-posture/internal/models"
	"github.com/pankaj-dahiya-devops/org-posture/internal/output"
)

func newDiscoverCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List the organization's active accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := a.session(ctx)
			if err != nil {
				return err
			}
			accounts, err := discovery.NewOrganizationDiscoverer(sess.Clients.Organizations).DiscoverAccounts(ctx)
			if err != nil {
				return err
			}
			switch format {
			case "json":
				return output.WriteJSON(cmd.OutOrStdout(), accounts)
			case "yaml", "yml":
				return output.WriteYAML(cmd.OutOrStdout(), accounts)
			default:
				printAccounts(cmd.OutOrStdout(), accounts)
				return nil
			}
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table, json or yaml")
	return cmd
}

// printAccounts writes one line per account to w.
func printAccounts(w io.Writer, accounts []models.Account) {
	if len(accounts) == 0 {
		fmt.Fprintln(w, "No active accounts found.")
		return
	}
	fmt.Fprintf(w, "%-12s  %-30s  %s\n", "ACCOUNT ID", "NAME", "EMAIL")
	for _, acc := range accounts {
		fmt.Fprintf(w, "%-12s  %-30s  %s\n", acc.ID, acc.Name, acc.Email)
	}
	fmt.Fprintf(w, "\n%d active account(s)\n", len(accounts))
}
