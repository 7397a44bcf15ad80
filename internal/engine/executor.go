// Package engine runs the registered checkers against each account of the
// organization. Executor fans the checkers of one account out concurrently;
// Orchestrator walks the discovered accounts one at a time and accumulates
// the result.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pankaj-dahiya-devops/org-posture/internal/checks"
	"github.com/pankaj-dahiya-devops/org-posture/internal/models"
)

// ErrRoleTemplateRequired is returned for an empty audit role ARN.
var ErrRoleTemplateRequired = errors.New("audit role ARN is required")

// RoleAssumer exchanges the base credential for a session scoped to one
// account. *common.Session implements it.
type RoleAssumer interface {
	AssumeAuditRole(ctx context.Context, roleTemplate, accountID string, duration time.Duration) (aws.CredentialsProvider, error)
}

// AccountExecutor runs every registered checker against one account.
type AccountExecutor interface {
	RunAllChecks(ctx context.Context, account models.Account, cfg models.AssessmentConfig) []models.Finding
}

// executionState is the per-account state of RunAllChecks.
type executionState string

const (
	stateStart         executionState = "START"
	stateRoleAssumed   executionState = "ROLE_ASSUMED"
	stateChecksRunning executionState = "CHECKS_RUNNING"
	stateDone          executionState = "DONE"
	stateError         executionState = "ERROR"
)

// Executor assumes the audit role in an account and fans the registered
// checkers out against the resulting session.
type Executor struct {
	assumer  RoleAssumer
	registry checks.Registry
	base     *aws.Config
}

// NewExecutor returns an Executor that assumes roles through assumer and
// runs the checkers held by registry.
func NewExecutor(assumer RoleAssumer, registry checks.Registry) *Executor {
	return &Executor{assumer: assumer, registry: registry}
}

// WithBaseConfig makes every checker client start from a copy of cfg, the
// operator session's SDK configuration, so its retryer settings apply to
// the per-account calls too.
func (e *Executor) WithBaseConfig(cfg aws.Config) *Executor {
	e.base = &cfg
	return e
}

// RunAllChecks returns one Finding per registered checker, in completion
// order. When the audit role cannot be assumed it returns a single
// ASSESSMENT_ERROR Finding and runs nothing.
//
// Checkers are never cancelled by a sibling's failure. Once ctx is done no
// further checker is started; Findings of checkers that already finished
// are returned.
func (e *Executor) RunAllChecks(ctx context.Context, account models.Account, cfg models.AssessmentConfig) []models.Finding {
	log := zerolog.Ctx(ctx).With().
		Str("account_id", account.ID).
		Str("account_name", account.Name).
		Logger()
	state := stateStart

	creds, err := e.assume(ctx, account, cfg)
	if err != nil {
		state = stateError
		log.Warn().Err(err).Str("state", string(state)).Msg("role assumption failed")
		return []models.Finding{*models.NewAssessmentError(account, err)}
	}
	state = stateRoleAssumed
	log.Debug().Str("state", string(state)).Msg("role assumed")

	region := cfg.EffectiveRegion()
	all := e.registry.All()
	if e.base != nil {
		ctx = checks.WithBaseConfig(ctx, *e.base)
	}

	var (
		mu       sync.Mutex
		findings = make([]models.Finding, 0, len(all))
		g        errgroup.Group
	)
	if cfg.MaxConcurrency > 0 {
		g.SetLimit(cfg.MaxConcurrency)
	}

	state = stateChecksRunning
	log.Debug().Str("state", string(state)).Int("checkers", len(all)).Msg("running checks")

	for _, c := range all {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// A slot may free up only after ctx is done.
			if ctx.Err() != nil {
				return nil
			}
			f := runChecker(ctx, c, account, creds, region)
			mu.Lock()
			findings = append(findings, *f)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	state = stateDone
	log.Debug().Str("state", string(state)).Int("findings", len(findings)).Msg("checks finished")
	return findings
}

func (e *Executor) assume(ctx context.Context, account models.Account, cfg models.AssessmentConfig) (aws.CredentialsProvider, error) {
	if cfg.AuditRoleARN == "" {
		return nil, ErrRoleTemplateRequired
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.assumer.AssumeAuditRole(ctx, cfg.AuditRoleARN, account.ID, cfg.EffectiveSessionDuration())
}

// runChecker invokes c and guarantees a non-nil Finding for it, whatever c
// does.
func runChecker(ctx context.Context, c checks.Checker, account models.Account, creds aws.CredentialsProvider, region string) (f *models.Finding) {
	name := c.Name()
	defer func() {
		if r := recover(); r != nil {
			zerolog.Ctx(ctx).Error().
				Str("account_id", account.ID).
				Str("check", name).
				Interface("panic", r).
				Msg("checker panicked")
			f = models.NewFinding(name, account)
			f.Fail(fmt.Sprintf("Error checking %s: %v", name, r))
		}
	}()

	f = c.Check(ctx, account, creds, region)
	if f == nil {
		f = models.NewFinding(name, account)
		f.Fail(fmt.Sprintf("Error checking %s: checker returned no finding", name))
	}
	return f
}
