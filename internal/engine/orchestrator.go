package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pankaj-dahiya-devops/org-posture/internal/discovery"
	"github.com/pankaj-dahiya-devops/org-posture/internal/models"
)

// FailedMessagePrefix starts the message of a run that ended in an error.
const FailedMessagePrefix = "Assessment failed: "

// Progress is reported after each account completes.
type Progress struct {
	Processed     int
	Total         int
	FindingsSoFar int
	Account       models.Account
}

// ProgressFunc observes a running assessment. It is called from the
// goroutine running RunAssessment.
type ProgressFunc func(Progress)

type runIDKey struct{}

// WithRunID returns a context that makes RunAssessment use id as the run id
// instead of generating one. Callers that must hand out the id before the
// run starts use it.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

func runIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey{}).(string)
	return id, ok && id != ""
}

// Orchestrator discovers the organization's active accounts and assesses
// them one at a time.
type Orchestrator struct {
	discoverer discovery.Discoverer
	executor   AccountExecutor
	now        func() time.Time
	newID      func() string
}

// NewOrchestrator returns an Orchestrator backed by d and x.
func NewOrchestrator(d discovery.Discoverer, x AccountExecutor) *Orchestrator {
	return &Orchestrator{
		discoverer: d,
		executor:   x,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// RunAssessment assesses every active account in roster order and returns
// the accumulated Findings. Findings of one account form one contiguous block.
//
// A discovery failure ends the run with a *discovery.DiscoveryError. When ctx
// is cancelled the partial result is returned together with ctx.Err(),
// including the Findings of an account that was only partly assessed. The
// result is never nil.
func (o *Orchestrator) RunAssessment(ctx context.Context, cfg models.AssessmentConfig, progress ProgressFunc) (res *models.AssessmentResult, err error) {
	log := zerolog.Ctx(ctx)
	id, ok := runIDFrom(ctx)
	if !ok {
		id = o.newID()
	}
	res = &models.AssessmentResult{
		RunID:     id,
		Status:    models.RunStatusRunning,
		StartedAt: o.now().UTC(),
		Region:    cfg.EffectiveRegion(),
		Findings:  []models.Finding{},
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("run_id", res.RunID).Msg("assessment panicked")
			err = fmt.Errorf("assessment aborted: %v", r)
			o.finish(res, models.RunStatusFailed, FailedMessagePrefix+err.Error())
		}
	}()

	accounts, err := o.discoverer.DiscoverAccounts(ctx)
	if err != nil {
		log.Error().Err(err).Str("run_id", res.RunID).Msg("account discovery failed")
		o.finish(res, models.RunStatusFailed, FailedMessagePrefix+err.Error())
		return res, err
	}
	res.Accounts = accounts

	total := len(accounts)
	for i, account := range accounts {
		if err := ctx.Err(); err != nil {
			return res, o.cancel(ctx, res, i, total, err)
		}

		log.Info().Str("run_id", res.RunID).Msgf("Assessing account %d/%d: %s (%s)", i+1, total, account.Name, account.ID)
		findings := o.executor.RunAllChecks(ctx, account, cfg)
		res.Findings = append(res.Findings, findings...)

		// Cancelled mid-account: its Findings are partial and it does not
		// count as assessed.
		if err := ctx.Err(); err != nil {
			return res, o.cancel(ctx, res, i, total, err)
		}

		if progress != nil {
			progress(Progress{
				Processed:     i + 1,
				Total:         total,
				FindingsSoFar: len(res.Findings),
				Account:       account,
			})
		}
	}

	msg := fmt.Sprintf("Assessment complete. Found %d findings across %d accounts.", len(res.Findings), total)
	log.Info().Str("run_id", res.RunID).Msg(msg)
	o.finish(res, models.RunStatusCompleted, msg)
	return res, nil
}

// cancel ends res as cancelled after done fully assessed accounts and
// returns err.
func (o *Orchestrator) cancel(ctx context.Context, res *models.AssessmentResult, done, total int, err error) error {
	msg := fmt.Sprintf("Assessment cancelled after %d of %d accounts.", done, total)
	zerolog.Ctx(ctx).Warn().Err(err).Str("run_id", res.RunID).Msg(msg)
	o.finish(res, models.RunStatusCancelled, msg)
	return err
}

func (o *Orchestrator) finish(res *models.AssessmentResult, status models.RunStatus, msg string) {
	res.Status = status
	res.Message = msg
	res.FinishedAt = o.now().UTC()
	res.Summary = models.Summarize(res.Accounts, res.Findings)
}
