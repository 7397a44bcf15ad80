package models

import "time"

// Status is the outcome of one check against one account.
type Status string

const (
	StatusPass Status = "PASS"
	StatusWarn Status = "WARN"
	StatusFail Status = "FAIL"
)

// statusRank orders statuses along the escalation lattice PASS < WARN < FAIL.
var statusRank = map[Status]int{
	StatusPass: 1,
	StatusWarn: 2,
	StatusFail: 3,
}

// Rank returns the position of s on the escalation lattice.
// Unknown statuses rank 0.
func (s Status) Rank() int {
	return statusRank[s]
}

// ParseStatus maps a case-sensitive status label to a Status.
// The boolean is false for anything other than PASS, WARN or FAIL.
func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	_, ok := statusRank[st]
	return st, ok
}

// DefaultPassMessage is appended by Pass when a Finding has no messages yet.
const DefaultPassMessage = "Check passed"

// AssessmentErrorCheck is the check name of the synthetic Finding emitted when
// an account cannot be assessed at all.
const AssessmentErrorCheck = "ASSESSMENT_ERROR"

// Finding is the result of one checker against one account.
//
// A Finding is owned by the checker that created it until the checker returns;
// it is not safe for concurrent mutation.
type Finding struct {
	AccountID   string    `json:"account_id" yaml:"account_id"`
	AccountName string    `json:"account_name" yaml:"account_name"`
	CheckName   string    `json:"check_name" yaml:"check_name"`
	Status      Status    `json:"status" yaml:"status"`
	Messages    []string  `json:"messages" yaml:"messages"`
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
}

// NewFinding returns a PASS Finding with no messages for account.
func NewFinding(checkName string, account Account) *Finding {
	return &Finding{
		AccountID:   account.ID,
		AccountName: account.Name,
		CheckName:   checkName,
		Status:      StatusPass,
		Messages:    []string{},
		Timestamp:   time.Now().UTC(),
	}
}

// Fail sets the status to FAIL and records msg.
func (f *Finding) Fail(msg string) {
	f.Status = StatusFail
	f.Messages = append(f.Messages, msg)
}

// Warn records msg and raises the status to WARN unless it is already FAIL.
func (f *Finding) Warn(msg string) {
	if f.Status != StatusFail {
		f.Status = StatusWarn
	}
	f.Messages = append(f.Messages, msg)
}

// Pass resets the status to PASS and records DefaultPassMessage when nothing
// has been recorded yet.
//
// Pass erases an earlier Warn or Fail. Callers that only want to mark a
// clean result should check Status first.
func (f *Finding) Pass() {
	f.Status = StatusPass
	if len(f.Messages) == 0 {
		f.Messages = append(f.Messages, DefaultPassMessage)
	}
}

// IsPass reports whether nothing has been raised on f.
func (f *Finding) IsPass() bool {
	return f.Status == StatusPass
}

// NewAssessmentError returns the single FAIL Finding recorded for an account
// whose checks could not run.
func NewAssessmentError(account Account, err error) *Finding {
	f := NewFinding(AssessmentErrorCheck, account)
	f.Fail("Failed to assess account: " + err.Error())
	return f
}
