package models

import "time"

// RunStatus is the lifecycle state of one assessment run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "PENDING"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusCancelled RunStatus = "CANCELLED"
)

// AssessmentSummary aggregates counts across all findings of a run.
type AssessmentSummary struct {
	TotalAccounts int `json:"total_accounts" yaml:"total_accounts"`
	TotalFindings int `json:"total_findings" yaml:"total_findings"`
	PassFindings  int `json:"pass_findings" yaml:"pass_findings"`
	WarnFindings  int `json:"warn_findings" yaml:"warn_findings"`
	FailFindings  int `json:"fail_findings" yaml:"fail_findings"`
	// AssessmentErrors counts accounts whose checks could not run.
	AssessmentErrors int `json:"assessment_errors" yaml:"assessment_errors"`
}

// AssessmentResult is the output of one orchestrated run.
type AssessmentResult struct {
	RunID      string            `json:"run_id" yaml:"run_id"`
	Status     RunStatus         `json:"status" yaml:"status"`
	Message    string            `json:"message" yaml:"message"`
	StartedAt  time.Time         `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time         `json:"finished_at" yaml:"finished_at"`
	Region     string            `json:"region" yaml:"region"`
	Accounts   []Account         `json:"accounts" yaml:"accounts"`
	Findings   []Finding         `json:"findings" yaml:"findings"`
	Summary    AssessmentSummary `json:"summary" yaml:"summary"`
}

// Summarize counts findings by status and returns the summary for accounts.
func Summarize(accounts []Account, findings []Finding) AssessmentSummary {
	s := AssessmentSummary{
		TotalAccounts: len(accounts),
		TotalFindings: len(findings),
	}
	for _, f := range findings {
		switch f.Status {
		case StatusPass:
			s.PassFindings++
		case StatusWarn:
			s.WarnFindings++
		case StatusFail:
			s.FailFindings++
		}
		if f.CheckName == AssessmentErrorCheck {
			s.AssessmentErrors++
		}
	}
	return s
}
