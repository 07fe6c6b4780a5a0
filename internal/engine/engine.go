// Package engine drives the application pipeline: discovery, matching,
// content generation, form fill, and submission, one job at a time.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"autoapply/internal/board"
	"autoapply/internal/formfill"
	"autoapply/internal/ledger"
	"autoapply/internal/matcher"
	"autoapply/internal/profile"
	"autoapply/internal/utils"
)

// Pipeline states a job moves through. Recorded in logs, not persisted;
// the ledger keeps only the terminal statuses.
const (
	StateDiscovered = "discovered"
	StateChecked    = "checked"
	StateMatching   = "matching"
	StateSkipped    = "skipped"
	StateFilling    = "filling"
	StateSubmitting = "submitting"
	StateApplied    = "applied"
	StateFailed     = "failed"
)

const (
	defaultSubmitTimeout = 30 * time.Second
	ledgerWriteTimeout   = 5 * time.Second

	reasonNoMatch              = "no-match"
	reasonFormUnstable         = "form-unstable"
	reasonUnverifiedSubmission = "unverified-submission"
)

type Source interface {
	Search(ctx context.Context, params *board.SearchParams) (*board.Postings, error)
}

type Ledger interface {
	Lookup(ctx context.Context, jobID string) (*ledger.Record, error)
	Upsert(ctx context.Context, rec *ledger.Record) error
	MarkApplied(ctx context.Context, jobID, coverLetterRef string) (bool, error)
}

type Matcher interface {
	Evaluate(ctx context.Context, posting *board.Posting, candidate *profile.Candidate) (*matcher.Decision, error)
}

type Filler interface {
	Fill(ctx context.Context, action *board.ApplyAction, posting *board.Posting, candidate *profile.Candidate) (*formfill.Outcome, error)
	Submit(ctx context.Context, action *board.ApplyAction) (*board.SubmissionResult, error)
}

type Opener interface {
	OpenApplyAction(ctx context.Context, posting *board.Posting) (*board.ApplyAction, error)
}

type Config struct {
	PacingDelay   time.Duration
	PacingJitter  time.Duration
	SubmitTimeout time.Duration
}

type Deps struct {
	Source    Source
	Opener    Opener
	Ledger    Ledger
	Matcher   Matcher
	Filler    Filler
	Candidate *profile.Candidate
	Logger    *zap.Logger
}

// Summary reports what a run did. Failures map job IDs to the reason the
// job was marked failed.
type Summary struct {
	Discovered     int
	ShortCircuited int
	Skipped        int
	Applied        int
	Failed         int
	Stopped        bool
	Failures       map[string]string
}

type Engine struct {
	cfg  Config
	deps Deps
}

func New(cfg Config, deps Deps) *Engine {
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = defaultSubmitTimeout
	}

	return &Engine{cfg: cfg, deps: deps}
}

// Run searches for postings and processes them sequentially. Cancellation
// is honoured between jobs; a job already past its submit call finishes
// before the engine stops.
func (e *Engine) Run(ctx context.Context, params *board.SearchParams) (*Summary, error) {
	postings, err := e.deps.Source.Search(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("search postings: %w", err)
	}

	summary := &Summary{
		Discovered: postings.Len(),
		Failures:   make(map[string]string),
	}

	e.deps.Logger.Info("discovered postings", zap.Int("count", postings.Len()))

	for i, posting := range postings.Items {
		if ctx.Err() != nil {
			summary.Stopped = true
			break
		}

		e.processJob(ctx, posting, summary)

		if ctx.Err() != nil {
			summary.Stopped = true
			break
		}

		// Pace requests toward the platform between jobs.
		if i < postings.Len()-1 && e.cfg.PacingDelay > 0 {
			delay := e.cfg.PacingDelay + utils.Jitter(e.cfg.PacingJitter)
			if err := utils.WaitFor(ctx, delay); err != nil {
				summary.Stopped = true
				break
			}
		}
	}

	return summary, nil
}

func (e *Engine) processJob(ctx context.Context, posting *board.Posting, summary *Summary) {
	logger := e.deps.Logger.With(
		zap.String("job_id", posting.ID),
		zap.String("title", posting.Name),
		zap.String("employer", posting.Employer.Name),
	)
	logger.Debug(StateDiscovered)

	prior, err := e.deps.Ledger.Lookup(ctx, posting.ID)
	if err != nil {
		e.fail(ctx, logger, summary, posting.ID, fmt.Sprintf("ledger lookup: %v", err))
		return
	}

	// Applied and skipped are settled across runs; failed jobs get another
	// attempt.
	if prior != nil && prior.Status != ledger.StatusFailed && prior.Status != ledger.StatusSeen {
		logger.Info("already settled, short-circuiting", zap.String("status", string(prior.Status)))
		summary.ShortCircuited++
		return
	}
	logger.Debug(StateChecked)

	if err := e.deps.Ledger.Upsert(ctx, &ledger.Record{JobID: posting.ID, Status: ledger.StatusSeen}); err != nil {
		e.fail(ctx, logger, summary, posting.ID, fmt.Sprintf("ledger write: %v", err))
		return
	}

	logger.Debug(StateMatching)
	decision, err := e.deps.Matcher.Evaluate(ctx, posting, e.deps.Candidate)
	if err != nil {
		e.fail(ctx, logger, summary, posting.ID, fmt.Sprintf("match evaluation: %v", err))
		return
	}

	if !decision.Match {
		reason := decision.Rationale
		if reason == "" {
			reason = reasonNoMatch
		}
		e.skip(ctx, logger, summary, posting.ID, reason, decision.Score)
		return
	}

	logger.Info("posting matched",
		zap.Float64("score", decision.Score),
		zap.String("rationale", decision.Rationale),
	)

	action, err := e.deps.Opener.OpenApplyAction(ctx, posting)
	if err != nil {
		e.fail(ctx, logger, summary, posting.ID, fmt.Sprintf("open application: %v", err))
		return
	}

	logger.Debug(StateFilling)
	outcome, err := e.deps.Filler.Fill(ctx, action, posting, e.deps.Candidate)
	if err != nil {
		e.fail(ctx, logger, summary, posting.ID, fillFailureReason(err))
		return
	}

	logger.Debug(StateSubmitting, zap.Int("fields_filled", outcome.Filled), zap.Int("passes", outcome.Passes))

	// Once submission starts it runs to completion even if the run is being
	// stopped, so the ledger can record what actually happened.
	submitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.SubmitTimeout)
	defer cancel()

	result, err := e.deps.Filler.Submit(submitCtx, action)
	if err != nil {
		e.fail(submitCtx, logger, summary, posting.ID, fmt.Sprintf("submit: %v", err))
		return
	}

	if !result.Acknowledged {
		// The platform may or may not have accepted it. Never assume applied.
		e.fail(submitCtx, logger, summary, posting.ID, reasonUnverifiedSubmission)
		return
	}

	first, err := e.deps.Ledger.MarkApplied(submitCtx, posting.ID, coverLetterRef(outcome.CoverLetter))
	if err != nil {
		e.fail(submitCtx, logger, summary, posting.ID, fmt.Sprintf("ledger write: %v", err))
		return
	}
	if !first {
		logger.Warn("submission acknowledged but job was already marked applied")
		summary.ShortCircuited++
		return
	}

	logger.Info(StateApplied, zap.String("receipt", result.Receipt))
	summary.Applied++
}

func (e *Engine) skip(ctx context.Context, logger *zap.Logger, summary *Summary, jobID, reason string, score float64) {
	logger.Info(StateSkipped, zap.String("reason", reason), zap.Float64("score", score))

	if err := e.record(ctx, &ledger.Record{JobID: jobID, Status: ledger.StatusSkipped, Reason: reason}); err != nil {
		logger.Error("recording skip failed", zap.Error(err))
	}
	summary.Skipped++
}

func (e *Engine) fail(ctx context.Context, logger *zap.Logger, summary *Summary, jobID, reason string) {
	logger.Error(StateFailed, zap.String("reason", reason))

	if err := e.record(ctx, &ledger.Record{JobID: jobID, Status: ledger.StatusFailed, Reason: reason}); err != nil {
		logger.Error("recording failure failed", zap.Error(err))
	}
	summary.Failed++
	summary.Failures[jobID] = reason
}

// record writes a terminal outcome with its own deadline. The job's context
// may already be expired by the time its outcome is recorded, such as after
// a submit timeout, and the record must still land.
func (e *Engine) record(ctx context.Context, rec *ledger.Record) error {
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerWriteTimeout)
	defer cancel()

	return e.deps.Ledger.Upsert(recordCtx, rec)
}

func fillFailureReason(err error) string {
	var missing *formfill.MissingFieldsError

	switch {
	case errors.Is(err, formfill.ErrFormUnstable):
		return reasonFormUnstable
	case errors.As(err, &missing):
		return missing.Error()
	default:
		return fmt.Sprintf("form fill: %v", err)
	}
}

// coverLetterRef derives a short stable reference for the letter text so the
// ledger never stores the letter itself.
func coverLetterRef(letter string) string {
	if letter == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(letter))
	return hex.EncodeToString(sum[:8])
}
