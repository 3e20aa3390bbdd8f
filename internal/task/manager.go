// Package task tracks the lifecycle of asynchronous jobs in the durable
// store. It shares the cache engine's resilience shape (breaker plus local
// fallback) but owns a separate breaker, key namespace and statistics.
package task

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"pdfcache/internal/config"
	"pdfcache/internal/domain"
	"pdfcache/internal/ports"
	"pdfcache/pkg/breaker"
)

type Manager struct {
	store   ports.Store
	local   ports.Store
	breaker *breaker.Breaker
	cfg     config.Task

	healthMu        sync.Mutex
	available       bool
	lastHealthCheck time.Time
}

func NewManager(store, local ports.Store, br *breaker.Breaker, cfg config.Task) *Manager {
	return &Manager{store: store, local: local, breaker: br, cfg: cfg}
}

func (m *Manager) storageKey(id string) string {
	return m.cfg.KeyPrefix + ":" + id
}

// Create allocates a new pending task. Storage trouble routes the record to
// the fallback store; the call fails only when the task itself is malformed.
func (m *Manager) Create(ctx context.Context, kind string, payload map[string]string, priority domain.Priority, owner string) (*domain.Task, error) {
	if kind == "" {
		return nil, domain.Invalid("kind", "empty task kind")
	}
	if priority == "" {
		priority = domain.PriorityNormal
	}
	if !priority.Valid() {
		return nil, domain.Invalid("priority", "unknown priority "+string(priority))
	}

	t := &domain.Task{
		ID:         uuid.NewString(),
		Kind:       kind,
		Payload:    payload,
		Status:     domain.StatusPending,
		Priority:   priority,
		Owner:      owner,
		MaxRetries: m.cfg.MaxRetries,
		CreatedAt:  time.Now().UTC(),
	}
	if err := m.write(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateProgress moves progress within [0,100] and may move a pending task to
// running. Terminal transitions go through Complete, Fail or Cancel so the
// result/error exclusivity invariant cannot be sidestepped here. Returns
// false without error when the task is not found: callers decide severity.
func (m *Manager) UpdateProgress(ctx context.Context, id string, progress float64, status *domain.TaskStatus) (bool, error) {
	if progress < 0 || progress > 100 {
		return false, domain.Invalid("progress", "outside [0,100]")
	}
	if status != nil {
		if !status.Valid() {
			return false, domain.Invalid("status", "unknown status "+string(*status))
		}
		if status.Terminal() {
			return false, domain.Invalid("status", "terminal transitions use Complete, Fail or Cancel")
		}
	}

	t, ok := m.read(ctx, id)
	if !ok {
		return false, nil
	}
	if t.Status.Terminal() {
		return false, domain.ErrInvalidTransition
	}
	if status != nil && *status != t.Status {
		if !t.Status.CanTransitionTo(*status) {
			return false, domain.ErrInvalidTransition
		}
		t.Status = *status
		if *status == domain.StatusRunning && t.StartedAt == nil {
			now := time.Now().UTC()
			t.StartedAt = &now
		}
	}
	t.Progress = progress

	// Progress is non-critical bookkeeping: write degrades to the fallback
	// silently and only a marshalling failure would surface.
	if err := m.write(ctx, t); err != nil {
		return false, err
	}
	return true, nil
}

// Complete records a successful terminal transition. A second terminal call
// is a no-op reported as false, not an error storm.
func (m *Manager) Complete(ctx context.Context, id string, result map[string]string) (bool, error) {
	return m.finish(ctx, id, domain.StatusSuccess, result, "")
}

// Fail records a failed terminal transition with the worker's error message.
func (m *Manager) Fail(ctx context.Context, id string, errMsg string) (bool, error) {
	return m.finish(ctx, id, domain.StatusFailure, nil, errMsg)
}

func (m *Manager) finish(ctx context.Context, id string, status domain.TaskStatus, result map[string]string, errMsg string) (bool, error) {
	t, ok := m.read(ctx, id)
	if !ok {
		return false, nil
	}
	if t.Status.Terminal() {
		return false, nil
	}
	if !t.Status.CanTransitionTo(status) {
		return false, domain.ErrInvalidTransition
	}

	now := time.Now().UTC()
	t.Status = status
	t.CompletedAt = &now
	if status == domain.StatusSuccess {
		t.Progress = 100
		t.Result = result
	} else {
		t.Error = errMsg
	}
	// Losing a terminal write corrupts job semantics, so this one surfaces.
	if err := m.write(ctx, t); err != nil {
		return false, err
	}
	return true, nil
}

// NoteRetry bumps the retry counter of a running task. Returns false once
// retries are exhausted or the task left the running state.
func (m *Manager) NoteRetry(ctx context.Context, id string) (bool, error) {
	t, ok := m.read(ctx, id)
	if !ok {
		return false, nil
	}
	if t.Status != domain.StatusRunning || t.RetryCount >= t.MaxRetries {
		return false, nil
	}
	t.RetryCount++
	if err := m.write(ctx, t); err != nil {
		return false, err
	}
	return true, nil
}

// Cancel transitions a pending or running task to cancelled. Only the owner
// or an administrator may cancel. Cancellation does not interrupt an
// in-flight worker; workers poll Get and abort cooperatively.
func (m *Manager) Cancel(ctx context.Context, id, requester string, admin bool) error {
	t, ok := m.read(ctx, id)
	if !ok {
		return ports.ErrNotFound
	}
	if !admin && requester != t.Owner {
		return domain.ErrForbidden
	}
	if !t.Status.CanTransitionTo(domain.StatusCancelled) {
		return domain.ErrInvalidTransition
	}

	now := time.Now().UTC()
	t.Status = domain.StatusCancelled
	t.CompletedAt = &now
	return m.write(ctx, t)
}

// Get returns the task and whether it was found. Degraded storage reads as
// not-found rather than an error.
func (m *Manager) Get(ctx context.Context, id string) (*domain.Task, bool) {
	return m.read(ctx, id)
}

// ByStatus lists tasks in the given status. Set semantics: no ordering is
// guaranteed, callers sort if they need to.
func (m *Manager) ByStatus(ctx context.Context, status domain.TaskStatus) ([]domain.Task, error) {
	if !status.Valid() {
		return nil, domain.Invalid("status", "unknown status "+string(status))
	}
	all, _ := m.listAll(ctx)
	var out []domain.Task
	for _, t := range all {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out, nil
}

// ReapExpired deletes terminal tasks whose completion is older than the
// retention window. Run periodically by the Reaper, not by callers.
func (m *Manager) ReapExpired(ctx context.Context) int {
	all, available := m.listAll(ctx)
	if !available {
		return 0
	}
	cutoff := time.Now().UTC().Add(-m.cfg.Retention)
	reaped := 0
	for _, t := range all {
		if !t.Status.Terminal() || t.CompletedAt == nil || t.CompletedAt.After(cutoff) {
			continue
		}
		sk := m.storageKey(t.ID)
		m.local.Delete(ctx, sk)
		if _, err := m.store.Delete(ctx, sk); err != nil {
			if ports.IsTransient(err) {
				m.breaker.RecordFailure()
				break
			}
			continue
		}
		m.breaker.RecordSuccess()
		reaped++
	}
	if reaped > 0 {
		log.Ctx(ctx).Info().Int("reaped", reaped).Msg("reaped expired tasks")
	}
	return reaped
}

// write persists the task through the resilience path.
func (m *Manager) write(ctx context.Context, t *domain.Task) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return domain.Invalid("task", err.Error())
	}
	sk := m.storageKey(t.ID)

	if err := m.breaker.Allow(); err != nil {
		return m.local.Set(ctx, sk, raw, m.cfg.DefaultTTL)
	}
	if err := m.store.Set(ctx, sk, raw, m.cfg.DefaultTTL); err != nil {
		if ports.IsTransient(err) {
			m.breaker.RecordFailure()
			log.Ctx(ctx).Warn().Err(err).Str("task_id", t.ID).Msg("durable task write failed, writing to fallback")
			return m.local.Set(ctx, sk, raw, m.cfg.DefaultTTL)
		}
		return err
	}
	m.breaker.RecordSuccess()
	return nil
}

// read loads a task, falling through to the local store both when the
// breaker denies and on a clean primary miss: a task written to the fallback
// during an outage must stay trackable after recovery.
func (m *Manager) read(ctx context.Context, id string) (*domain.Task, bool) {
	sk := m.storageKey(id)

	if err := m.breaker.Allow(); err == nil {
		raw, err := m.store.Get(ctx, sk)
		switch {
		case err == nil:
			m.breaker.RecordSuccess()
			return decodeTask(ctx, raw)
		case err == ports.ErrNotFound:
			m.breaker.RecordSuccess()
		case ports.IsTransient(err):
			m.breaker.RecordFailure()
			log.Ctx(ctx).Warn().Err(err).Str("task_id", id).Msg("durable task read failed, trying fallback")
		}
	}

	raw, err := m.local.Get(ctx, sk)
	if err != nil {
		return nil, false
	}
	return decodeTask(ctx, raw)
}

func decodeTask(ctx context.Context, raw []byte) (*domain.Task, bool) {
	var t domain.Task
	if err := json.Unmarshal(raw, &t); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("corrupt task record, treating as absent")
		return nil, false
	}
	return &t, true
}

// listAll returns every task in the namespace and whether the durable store
// answered. Local outage-era records are merged in.
func (m *Manager) listAll(ctx context.Context) ([]domain.Task, bool) {
	pattern := m.cfg.KeyPrefix + ":*"
	seen := map[string]bool{}
	var out []domain.Task

	available := false
	if err := m.breaker.Allow(); err == nil {
		keys, err := m.store.Keys(ctx, pattern)
		if err != nil {
			if ports.IsTransient(err) {
				m.breaker.RecordFailure()
			}
			log.Ctx(ctx).Warn().Err(err).Msg("task scan failed, listing fallback only")
		} else {
			m.breaker.RecordSuccess()
			available = true
			for _, k := range keys {
				raw, err := m.store.Get(ctx, k)
				if err != nil {
					continue
				}
				if t, ok := decodeTask(ctx, raw); ok {
					seen[t.ID] = true
					out = append(out, *t)
				}
			}
		}
	}

	if localKeys, err := m.local.Keys(ctx, pattern); err == nil {
		for _, k := range localKeys {
			raw, err := m.local.Get(ctx, k)
			if err != nil {
				continue
			}
			if t, ok := decodeTask(ctx, raw); ok && !seen[t.ID] {
				out = append(out, *t)
			}
		}
	}
	return out, available
}
