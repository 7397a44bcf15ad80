package server

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pankaj-dahiya-devops/org-posture/internal/engine"
	"github.com/pankaj-dahiya-devops/org-posture/internal/models"
	"github.com/pankaj-dahiya-devops/org-posture/internal/store"
)

// Assessor runs one assessment. *engine.Orchestrator implements it.
type Assessor interface {
	RunAssessment(ctx context.Context, cfg models.AssessmentConfig, progress engine.ProgressFunc) (*models.AssessmentResult, error)
}

// ErrRunNotFound is returned for unknown run ids.
var ErrRunNotFound = errors.New("assessment not found")

// RunView is the API representation of one run.
type RunView struct {
	ID         string                    `json:"id"`
	Status     models.RunStatus          `json:"status"`
	Message    string                    `json:"message,omitempty"`
	Error      string                    `json:"error,omitempty"`
	StartedAt  time.Time                 `json:"started_at"`
	FinishedAt *time.Time                `json:"finished_at,omitempty"`
	Processed  int                       `json:"processed_accounts"`
	Total      int                       `json:"total_accounts"`
	Findings   int                       `json:"findings"`
	Summary    *models.AssessmentSummary `json:"summary,omitempty"`
}

type trackedRun struct {
	view     RunView
	result   *models.AssessmentResult
	runErr   error
	cancel   context.CancelFunc
	finished chan struct{}
}

// RunTracker starts assessments in the background and keeps their state in
// memory. When a store is configured, finished runs are written to it and
// then served from it; without one they stay in memory.
type RunTracker struct {
	assessor Assessor
	store    store.Store
	base     context.Context
	newID    func() string
	now      func() time.Time

	mu   sync.RWMutex
	runs map[string]*trackedRun
	wg   sync.WaitGroup
}

// NewRunTracker returns a tracker whose runs inherit base's logger and stop
// when base is cancelled. st may be nil.
func NewRunTracker(base context.Context, a Assessor, st store.Store) *RunTracker {
	return &RunTracker{
		assessor: a,
		store:    st,
		base:     base,
		newID:    uuid.NewString,
		now:      time.Now,
		runs:     make(map[string]*trackedRun),
	}
}

// Start launches an assessment and returns its id immediately.
func (t *RunTracker) Start(cfg models.AssessmentConfig) RunView {
	id := t.newID()
	ctx, cancel := context.WithCancel(engine.WithRunID(t.base, id))
	run := &trackedRun{
		view:     RunView{ID: id, Status: models.RunStatusRunning, StartedAt: t.now().UTC()},
		cancel:   cancel,
		finished: make(chan struct{}),
	}

	t.mu.Lock()
	t.runs[id] = run
	view := run.view
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer close(run.finished)
		defer cancel()
		t.execute(ctx, run, cfg)
	}()
	return view
}

func (t *RunTracker) execute(ctx context.Context, run *trackedRun, cfg models.AssessmentConfig) {
	log := zerolog.Ctx(ctx).With().Str("run_id", run.view.ID).Logger()

	res, err := t.assessor.RunAssessment(ctx, cfg, func(p engine.Progress) {
		t.mu.Lock()
		run.view.Processed = p.Processed
		run.view.Total = p.Total
		run.view.Findings = p.FindingsSoFar
		t.mu.Unlock()
	})

	t.mu.Lock()
	run.result = res
	run.runErr = err
	if res != nil {
		res.RunID = run.view.ID
		run.view.Status = res.Status
		run.view.Message = res.Message
		run.view.Findings = len(res.Findings)
		run.view.Total = len(res.Accounts)
		finished := res.FinishedAt
		run.view.FinishedAt = &finished
		summary := res.Summary
		run.view.Summary = &summary
	}
	if err != nil {
		run.view.Error = err.Error()
		if res == nil {
			run.view.Status = models.RunStatusFailed
		}
	}
	t.mu.Unlock()

	if t.store == nil || res == nil {
		return
	}
	// The run context may already be cancelled; persist regardless.
	if serr := t.store.SaveRun(context.WithoutCancel(ctx), res); serr != nil {
		log.Error().Err(serr).Msg("failed to persist assessment run")
		return
	}
	t.mu.Lock()
	delete(t.runs, run.view.ID)
	t.mu.Unlock()
}

// Get returns the current view of run id.
func (t *RunTracker) Get(ctx context.Context, id string) (RunView, error) {
	t.mu.RLock()
	run, ok := t.runs[id]
	var view RunView
	if ok {
		view = run.view
	}
	t.mu.RUnlock()
	if ok {
		return view, nil
	}

	if t.store == nil {
		return RunView{}, ErrRunNotFound
	}
	stored, err := t.store.GetRun(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return RunView{}, ErrRunNotFound
	}
	if err != nil {
		return RunView{}, err
	}
	return storedView(stored), nil
}

// Findings returns the findings of a finished run, the run error when the run
// failed before producing any, and done=false while it is still running.
func (t *RunTracker) Findings(ctx context.Context, id string) (findings []models.Finding, runErr error, done bool, err error) {
	t.mu.RLock()
	run, ok := t.runs[id]
	t.mu.RUnlock()

	if ok {
		select {
		case <-run.finished:
		default:
			return nil, nil, false, nil
		}
		t.mu.RLock()
		defer t.mu.RUnlock()
		if run.result != nil {
			findings = run.result.Findings
		}
		return findings, run.runErr, true, nil
	}

	if t.store == nil {
		return nil, nil, false, ErrRunNotFound
	}
	findings, err = t.store.GetFindings(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, false, ErrRunNotFound
	}
	if err != nil {
		return nil, nil, false, err
	}
	if len(findings) == 0 {
		stored, err := t.store.GetRun(ctx, id)
		if err != nil {
			return nil, nil, false, err
		}
		runErr = storedError(stored)
	}
	return findings, runErr, true, nil
}

// List returns in-memory runs plus stored history, newest first.
func (t *RunTracker) List(ctx context.Context) ([]RunView, error) {
	t.mu.RLock()
	views := make([]RunView, 0, len(t.runs))
	seen := make(map[string]struct{}, len(t.runs))
	for id, run := range t.runs {
		views = append(views, run.view)
		seen[id] = struct{}{}
	}
	t.mu.RUnlock()

	if t.store != nil {
		stored, err := t.store.ListRuns(ctx, 0)
		if err != nil {
			return nil, err
		}
		for i := range stored {
			if _, dup := seen[stored[i].ID]; dup {
				continue
			}
			views = append(views, storedView(&stored[i]))
		}
	}

	sort.Slice(views, func(i, j int) bool {
		if views[i].StartedAt.Equal(views[j].StartedAt) {
			return views[i].ID < views[j].ID
		}
		return views[i].StartedAt.After(views[j].StartedAt)
	})
	return views, nil
}

// Wait blocks until every started run has finished.
func (t *RunTracker) Wait() {
	t.wg.Wait()
}

// CancelAll cancels every running assessment.
func (t *RunTracker) CancelAll() {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, run := range t.runs {
		run.cancel()
	}
}

func storedView(r *store.Run) RunView {
	v := RunView{
		ID:        r.ID,
		Status:    r.Status,
		Message:   r.Message,
		StartedAt: r.StartedAt,
		Processed: r.Summary.TotalAccounts,
		Total:     r.Summary.TotalAccounts,
		Findings:  r.Summary.TotalFindings,
	}
	if !r.FinishedAt.IsZero() {
		finished := r.FinishedAt
		v.FinishedAt = &finished
	}
	summary := r.Summary
	v.Summary = &summary
	if err := storedError(r); err != nil {
		v.Error = err.Error()
	}
	return v
}

// storedError recovers the run error of a failed stored run from its message.
func storedError(r *store.Run) error {
	if r.Status != models.RunStatusFailed {
		return nil
	}
	return errors.New(strings.TrimPrefix(r.Message, engine.FailedMessagePrefix))
}
