package policy

import (
	"strings"

	"github.com/pankaj-dahiya-devops/org-posture/internal/models"
)

// ShouldFail reports whether any finding has a status at or above threshold.
//
// It returns false when:
//   - threshold is empty or an unrecognised value
//   - threshold is PASS (every run would fail)
//   - findings is empty
//
// Ordering: FAIL > WARN > PASS.
func ShouldFail(findings []models.Finding, threshold string) bool {
	limit, ok := models.ParseStatus(strings.ToUpper(strings.TrimSpace(threshold)))
	if !ok || limit == models.StatusPass {
		return false
	}
	for _, f := range findings {
		if f.Status.Rank() >= limit.Rank() {
			return true
		}
	}
	return false
}

// AccountCounts is the per-status tally for one account.
type AccountCounts struct {
	AccountID   string `json:"account_id" yaml:"account_id"`
	AccountName string `json:"account_name" yaml:"account_name"`
	Pass        int    `json:"pass" yaml:"pass"`
	Warn        int    `json:"warn" yaml:"warn"`
	Fail        int    `json:"fail" yaml:"fail"`
}

// Worst returns the highest status seen for the account.
func (c AccountCounts) Worst() models.Status {
	switch {
	case c.Fail > 0:
		return models.StatusFail
	case c.Warn > 0:
		return models.StatusWarn
	default:
		return models.StatusPass
	}
}

// CountByAccount tallies findings per account in first-seen order.
func CountByAccount(findings []models.Finding) []AccountCounts {
	var out []AccountCounts
	index := make(map[string]int)
	for _, f := range findings {
		i, ok := index[f.AccountID]
		if !ok {
			i = len(out)
			index[f.AccountID] = i
			out = append(out, AccountCounts{AccountID: f.AccountID, AccountName: f.AccountName})
		}
		switch f.Status {
		case models.StatusPass:
			out[i].Pass++
		case models.StatusWarn:
			out[i].Warn++
		case models.StatusFail:
			out[i].Fail++
		}
	}
	return out
}
