// Package bulk drives a full research cycle across a cohort of subjects with
// pause/resume, durable checkpointing, and per-item failure isolation.
package bulk

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/research"
	"github.com/sells-group/prospect-cli/internal/store"
)

// Runner executes one subject-cycle. *research.Researcher satisfies it.
type Runner interface {
	Run(ctx context.Context, subject model.Subject) (*research.Outcome, error)
}

// ResultWriter writes a finished outcome back to the CRM record. Failures
// are soft: the orchestrator records a warning and moves on.
type ResultWriter interface {
	WriteResult(ctx context.Context, subject model.Subject, outcome *research.Outcome) error
}

// Options tunes the orchestrator loop.
type Options struct {
	// CheckpointEvery persists the session after this many subjects.
	// Pause and completion always checkpoint regardless.
	CheckpointEvery int
	// DefaultItemTime seeds the remaining-time estimate before the first
	// subject completes.
	DefaultItemTime time.Duration
	Writer          ResultWriter
	OnProgress      func(ProgressEvent)
}

func (o Options) withDefaults() Options {
	if o.CheckpointEvery <= 0 {
		o.CheckpointEvery = 5
	}
	if o.DefaultItemTime <= 0 {
		o.DefaultItemTime = 45 * time.Second
	}
	return o
}

// Orchestrator runs bulk sessions. The loop mutates the session serially;
// no cross-iteration locking is needed.
type Orchestrator struct {
	runner Runner
	store  store.Store
	opts   Options
}

// New creates an Orchestrator.
func New(runner Runner, st store.Store, opts Options) *Orchestrator {
	return &Orchestrator{runner: runner, store: st, opts: opts.withDefaults()}
}

// Start begins processing a ready session from the top.
func (o *Orchestrator) Start(ctx context.Context, sess *model.BulkSession, token *PauseToken) error {
	if sess.Status != model.SessionStatusReady {
		return eris.Errorf("bulk: session %s is %s, not ready", sess.ID, sess.Status)
	}
	now := time.Now().UTC()
	sess.StartedAt = &now
	return o.run(ctx, sess, token)
}

// Resume re-enters the loop at the persisted index with the same
// accumulators. Only valid from paused.
func (o *Orchestrator) Resume(ctx context.Context, sess *model.BulkSession, token *PauseToken) error {
	if sess.Status != model.SessionStatusPaused {
		return eris.Errorf("bulk: session %s is %s, only paused sessions can resume", sess.ID, sess.Status)
	}
	return o.run(ctx, sess, token)
}

// Cancel marks a session cancelled. Unlike pause, this is terminal.
func (o *Orchestrator) Cancel(ctx context.Context, sess *model.BulkSession) error {
	if sess.Status.Terminal() {
		return eris.Errorf("bulk: session %s is already %s", sess.ID, sess.Status)
	}
	now := time.Now().UTC()
	sess.Status = model.SessionStatusCancelled
	sess.CompletedAt = &now
	return o.store.Checkpoint(ctx, sess)
}

func (o *Orchestrator) run(ctx context.Context, sess *model.BulkSession, token *PauseToken) error {
	log := zap.L().With(zap.String("session_id", sess.ID))

	sess.Status = model.SessionStatusResearching
	if err := o.store.Checkpoint(ctx, sess); err != nil {
		return err
	}

	loopStart := time.Now()
	sinceCheckpoint := 0

	for i := sess.CurrentIndex; i < len(sess.Subjects); i++ {
		if token.Requested() || ctx.Err() != nil {
			sess.CurrentIndex = i
			sess.Status = model.SessionStatusPaused
			token.Clear()
			log.Info("bulk: paused", zap.Int("current_index", i))
			return o.store.Checkpoint(context.WithoutCancel(ctx), sess)
		}

		subject := sess.Subjects[i]
		o.processSubject(ctx, sess, subject, log)

		sess.Processed++
		sess.CurrentIndex = i + 1

		if o.opts.OnProgress != nil {
			o.opts.OnProgress(progressFor(sess, subject.Name, time.Since(loopStart), o.opts.DefaultItemTime))
		}

		sinceCheckpoint++
		if sinceCheckpoint >= o.opts.CheckpointEvery {
			if err := o.store.Checkpoint(ctx, sess); err != nil {
				return err
			}
			sinceCheckpoint = 0
		}
	}

	now := time.Now().UTC()
	sess.Status = model.SessionStatusResearchComplete
	sess.CompletedAt = &now
	log.Info("bulk: session complete",
		zap.Int("succeeded", sess.SuccessCount()),
		zap.Int("failed", sess.FailureCount()),
		zap.Float64("total_cost_usd", sess.TotalCostUSD),
	)
	return o.store.Checkpoint(ctx, sess)
}

// processSubject runs one subject-cycle and records its result. A cycle
// failure never aborts the batch; a CRM write failure never fails the item.
func (o *Orchestrator) processSubject(ctx context.Context, sess *model.BulkSession, subject model.Subject, log *zap.Logger) {
	itemStart := time.Now()

	outcome, err := o.runner.Run(ctx, subject)
	elapsed := time.Since(itemStart)
	sess.TotalTimeMS += elapsed.Milliseconds()

	if err != nil {
		log.Warn("bulk: subject research failed", zap.String("subject", subject.Name), zap.Error(err))
		sess.Results[subject.ID] = model.CompanyResult{
			SubjectID:   subject.ID,
			SubjectName: subject.Name,
			Success:     false,
			DurationMS:  elapsed.Milliseconds(),
			Error:       err.Error(),
			CompletedAt: time.Now().UTC(),
		}
		sess.Errors = append(sess.Errors, model.SessionError{
			SubjectID: subject.ID,
			Message:   err.Error(),
			Severity:  model.SeverityError,
			At:        time.Now().UTC(),
		})
		return
	}

	sess.TotalCostUSD += outcome.CostUSD
	sess.Results[subject.ID] = model.CompanyResult{
		SubjectID:   subject.ID,
		SubjectName: subject.Name,
		Success:     true,
		Hypotheses:  outcome.Hypotheses,
		Confidence:  &outcome.Confidence,
		CostUSD:     outcome.CostUSD,
		DurationMS:  elapsed.Milliseconds(),
		CompletedAt: time.Now().UTC(),
	}

	if o.opts.Writer == nil {
		return
	}
	if err := o.opts.Writer.WriteResult(ctx, subject, outcome); err != nil {
		log.Warn("bulk: CRM write-back failed", zap.String("subject", subject.Name), zap.Error(err))
		sess.Errors = append(sess.Errors, model.SessionError{
			SubjectID: subject.ID,
			Message:   "CRM write-back failed: " + err.Error(),
			Severity:  model.SeverityWarning,
			At:        time.Now().UTC(),
		})
	}
}
