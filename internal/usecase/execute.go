package usecase

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"pdfcache/internal/domain"
	"pdfcache/internal/task"
	"pdfcache/pkg/backoff"
)

// Handler performs the expensive computation for one task. The report
// callback publishes progress and returns false once the task has been
// cancelled; handlers should stop work when it does.
type Handler func(ctx context.Context, t domain.Task, report func(progress float64) bool) (map[string]string, error)

// Executor polls pending tasks, runs them through the handler and records
// the outcome. Retries stay inside one claim with exponential-jitter delays;
// cancellation is cooperative via the report callback.
type Executor struct {
	Tasks        *task.Manager
	Handle       Handler
	PollInterval time.Duration
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
}

func (e Executor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !e.RunOnce(ctx) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.PollInterval):
			}
		}
	}
}

// RunOnce claims and executes at most one pending task, reporting whether
// one was found.
func (e Executor) RunOnce(ctx context.Context) bool {
	t := e.nextPending(ctx)
	if t == nil {
		return false
	}
	e.execute(ctx, *t)
	return true
}

// nextPending picks the oldest pending task of the highest waiting priority.
func (e Executor) nextPending(ctx context.Context) *domain.Task {
	pending, err := e.Tasks.ByStatus(ctx, domain.StatusPending)
	if err != nil || len(pending) == 0 {
		return nil
	}
	sort.Slice(pending, func(i, j int) bool {
		pi, pj := rank(pending[i].Priority), rank(pending[j].Priority)
		if pi != pj {
			return pi < pj
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return &pending[0]
}

func rank(p domain.Priority) int {
	switch p {
	case domain.PriorityHigh:
		return 0
	case domain.PriorityNormal:
		return 1
	}
	return 2
}

func (e Executor) execute(ctx context.Context, t domain.Task) {
	running := domain.StatusRunning
	started, err := e.Tasks.UpdateProgress(ctx, t.ID, 0, &running)
	if err != nil || !started {
		// Lost the claim or the task was cancelled underneath us.
		return
	}

	report := func(p float64) bool {
		if e.cancelled(ctx, t.ID) {
			return false
		}
		_, err := e.Tasks.UpdateProgress(ctx, t.ID, p, nil)
		return err == nil
	}

	for attempt := 1; ; attempt++ {
		result, err := e.Handle(ctx, t, report)
		if err == nil {
			if _, err := e.Tasks.Complete(ctx, t.ID, result); err != nil {
				log.Ctx(ctx).Error().Err(err).Str("task_id", t.ID).Msg("failed to record task completion")
			}
			return
		}
		if e.cancelled(ctx, t.ID) {
			log.Ctx(ctx).Info().Str("task_id", t.ID).Msg("task cancelled, abandoning")
			return
		}

		retrying, _ := e.Tasks.NoteRetry(ctx, t.ID)
		if !retrying {
			if _, ferr := e.Tasks.Fail(ctx, t.ID, err.Error()); ferr != nil {
				log.Ctx(ctx).Error().Err(ferr).Str("task_id", t.ID).Msg("failed to record task failure")
			}
			return
		}

		delay := backoff.ExponentialJitter(e.BaseBackoff, e.MaxBackoff, attempt)
		log.Ctx(ctx).Warn().Err(err).Str("task_id", t.ID).Int("attempt", attempt).Dur("retry_in", delay).Msg("task attempt failed, retrying")
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (e Executor) cancelled(ctx context.Context, id string) bool {
	t, ok := e.Tasks.Get(ctx, id)
	return ok && t.Status == domain.StatusCancelled
}
