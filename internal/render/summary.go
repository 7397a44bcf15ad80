// Package render provides presentation-layer helpers for posture CLI output.
// It is a pure rendering package: no AWS calls and no check logic.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pankaj-dahiya-devops/org-posture/internal/models"
	"github.com/pankaj-dahiya-devops/org-posture/internal/policy"
)

// CheckGroup is one non-passing check and the accounts it was raised in.
type CheckGroup struct {
	CheckName string           `json:"check_name"`
	Status    models.Status    `json:"status"`
	Accounts  []models.Account `json:"accounts"`
}

// GroupNonPassing groups WARN and FAIL findings by check name. A group's
// status is the worst seen for that check. Groups are sorted FAIL first, then
// by check name; accounts keep first-seen order.
func GroupNonPassing(findings []models.Finding) []CheckGroup {
	index := make(map[string]int)
	var groups []CheckGroup
	for _, f := range findings {
		if f.Status == models.StatusPass {
			continue
		}
		i, ok := index[f.CheckName]
		if !ok {
			i = len(groups)
			index[f.CheckName] = i
			groups = append(groups, CheckGroup{CheckName: f.CheckName, Status: f.Status})
		}
		if f.Status.Rank() > groups[i].Status.Rank() {
			groups[i].Status = f.Status
		}
		groups[i].Accounts = append(groups[i].Accounts, models.Account{ID: f.AccountID, Name: f.AccountName})
	}
	sort.SliceStable(groups, func(a, b int) bool {
		if groups[a].Status != groups[b].Status {
			return groups[a].Status.Rank() > groups[b].Status.Rank()
		}
		return groups[a].CheckName < groups[b].CheckName
	})
	return groups
}

// RenderSummary writes a compact run overview to w.
//
// Example output:
//
//	Run:       6f1c...
//	Status:    COMPLETED
//	Region:    eu-west-1
//	Assessment complete. Found 48 findings across 3 accounts.
//
//	Accounts: 3  Findings: 48  PASS: 47  WARN: 0  FAIL: 1  Errors: 0
//
//	ACCOUNT ID    ACCOUNT NAME          PASS  WARN  FAIL  WORST
//	111111111111  prod                    16     0     0  PASS
//
//	Checks needing attention:
//
//	  ✗ BACKUP (FAIL)
//	    - dev (222222222222)
func RenderSummary(w io.Writer, res *models.AssessmentResult) {
	if res == nil {
		fmt.Fprintln(w, "No assessment result.")
		return
	}
	s := res.Summary

	fmt.Fprintf(w, "Run:       %s\n", res.RunID)
	fmt.Fprintf(w, "Status:    %s\n", res.Status)
	fmt.Fprintf(w, "Region:    %s\n", res.Region)
	if res.Message != "" {
		fmt.Fprintln(w, res.Message)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Accounts: %d  Findings: %d  PASS: %d  WARN: %d  FAIL: %d  Errors: %d\n",
		s.TotalAccounts, s.TotalFindings, s.PassFindings, s.WarnFindings, s.FailFindings, s.AssessmentErrors)

	counts := policy.CountByAccount(res.Findings)
	if len(counts) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%-12s  %-20s  %4s  %4s  %4s  %s\n", "ACCOUNT ID", "ACCOUNT NAME", "PASS", "WARN", "FAIL", "WORST")
		for _, c := range counts {
			fmt.Fprintf(w, "%-12s  %-20s  %4d  %4d  %4d  %s\n",
				c.AccountID, clip(c.AccountName, 20), c.Pass, c.Warn, c.Fail, c.Worst())
		}
	}

	groups := GroupNonPassing(res.Findings)
	if len(groups) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Checks needing attention:")
	for _, g := range groups {
		mark := "!"
		if g.Status == models.StatusFail {
			mark = "✗"
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  %s %s (%s)\n", mark, g.CheckName, g.Status)
		for _, a := range g.Accounts {
			fmt.Fprintf(w, "    - %s (%s)\n", a.Name, a.ID)
		}
	}
}

// WriteSummaryJSON writes the summary, per-account counts and non-passing
// check groups as indented JSON.
func WriteSummaryJSON(w io.Writer, res *models.AssessmentResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if res == nil {
		return enc.Encode(map[string]string{"error": "no assessment result"})
	}
	return enc.Encode(map[string]any{
		"run_id":   res.RunID,
		"status":   res.Status,
		"summary":  res.Summary,
		"accounts": policy.CountByAccount(res.Findings),
		"checks":   GroupNonPassing(res.Findings),
	})
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n-1])) + "…"
}
