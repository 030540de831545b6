// ABOUTME: Tracks live actors per task, enforces single-writer, and rehydrates evicted ones
// ABOUTME: Central coordinator between the HTTP front door and individual actor goroutines

package actor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/hive-orchestrator/internal/store"
	"github.com/2389/hive-orchestrator/internal/task"
)

// Registry owns the task-id→actor map. At most one live actor exists per
// task; commands for evicted tasks rehydrate an actor from its persisted
// state before applying.
type Registry struct {
	mu     sync.RWMutex
	actors map[string]*Actor

	base        context.Context
	deps        Deps
	cfg         Config
	idleTimeout time.Duration
	logger      *slog.Logger
}

// NewRegistry creates an empty registry. ctx bounds the lifetime of every
// actor goroutine the registry launches: actors run until they finish or
// ctx is cancelled, never until the request that started them returns.
// idleTimeout bounds how long a paused actor stays resident before being
// evicted to the store.
func NewRegistry(ctx context.Context, deps Deps, cfg Config, idleTimeout time.Duration, logger *slog.Logger) *Registry {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		actors:      make(map[string]*Actor),
		base:        ctx,
		deps:        deps,
		cfg:         cfg,
		idleTimeout: idleTimeout,
		logger:      logger.With("component", "registry"),
	}
}

// Start spawns an actor for the task. Returns ErrAlreadyRunning if an
// actor for the task is live, or if the task has prior persisted state:
// a paused task is resumed, not restarted, and a finished one needs a
// new task.
func (r *Registry) Start(ctx context.Context, t task.Task) error {
	if t.ID == "" {
		return fmt.Errorf("task id is required")
	}

	r.mu.Lock()
	if _, exists := r.actors[t.ID]; exists {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	// Hold the map slot before the store check so two concurrent starts
	// cannot both pass it.
	a := New(t, r.deps, r.cfg)
	r.actors[t.ID] = a
	r.mu.Unlock()

	if _, err := r.deps.Store.GetAgentState(ctx, t.ID); err == nil {
		r.remove(t.ID)
		return ErrAlreadyRunning
	} else if !errors.Is(err, store.ErrNotFound) {
		r.remove(t.ID)
		return fmt.Errorf("checking prior state for task %s: %w", t.ID, err)
	}

	// The loop goroutine runs on the registry's base context, not the
	// caller's: the command request returns long before the agent is done.
	if err := a.Start(r.base); err != nil {
		r.remove(t.ID)
		return err
	}

	r.logger.Info("actor started", "task_id", t.ID, "owner_id", t.OwnerID, "mode", t.Mode)
	return nil
}

// Pause delivers a pause command, rehydrating the actor if needed.
func (r *Registry) Pause(ctx context.Context, taskID string, reason PauseReason) error {
	a, err := r.ensure(ctx, taskID)
	if err != nil {
		return err
	}
	a.Pause(reason)
	return nil
}

// Resume delivers a resume command, rehydrating the actor if needed.
func (r *Registry) Resume(ctx context.Context, taskID string) error {
	a, err := r.ensure(ctx, taskID)
	if err != nil {
		return err
	}
	a.Resume()
	return nil
}

// Stop delivers a stop command, rehydrating the actor if needed.
func (r *Registry) Stop(ctx context.Context, taskID string) error {
	a, err := r.ensure(ctx, taskID)
	if err != nil {
		return err
	}
	a.Stop()
	return nil
}

// Status reports the task's agent state, from the live actor when one is
// resident or from the store otherwise. Returns ErrUnknownTask for tasks
// that were never started.
func (r *Registry) Status(ctx context.Context, taskID string) (Summary, error) {
	r.mu.RLock()
	a, exists := r.actors[taskID]
	r.mu.RUnlock()
	if exists {
		return a.Status(), nil
	}

	data, err := r.deps.Store.GetAgentState(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		return Summary{}, ErrUnknownTask
	}
	if err != nil {
		return Summary{}, fmt.Errorf("loading state for task %s: %w", taskID, err)
	}
	st, err := decodeState(data)
	if err != nil {
		return Summary{}, err
	}
	return summarize(st), nil
}

// Count reports the number of resident actors.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actors)
}

// ensure returns the live actor for the task, rehydrating from persisted
// state when the actor was evicted.
func (r *Registry) ensure(ctx context.Context, taskID string) (*Actor, error) {
	r.mu.RLock()
	a, exists := r.actors[taskID]
	r.mu.RUnlock()
	if exists {
		return a, nil
	}

	data, err := r.deps.Store.GetAgentState(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnknownTask
	}
	if err != nil {
		return nil, fmt.Errorf("loading state for task %s: %w", taskID, err)
	}
	st, err := decodeState(data)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if racing, exists := r.actors[taskID]; exists {
		r.mu.Unlock()
		return racing, nil
	}
	a = newFromState(st, r.deps, r.cfg)
	if !st.Status.Terminal() {
		r.actors[taskID] = a
		a.launch(r.base)
		r.logger.Info("actor rehydrated", "task_id", taskID, "status", st.Status)
	}
	r.mu.Unlock()
	return a, nil
}

// remove drops the actor from the map.
func (r *Registry) remove(taskID string) {
	r.mu.Lock()
	delete(r.actors, taskID)
	r.mu.Unlock()
}

// RunEviction periodically evicts idle actors until ctx is cancelled.
// Terminal actors leave immediately on the next sweep; paused actors
// persist their state and leave after the idle timeout.
func (r *Registry) RunEviction(ctx context.Context) {
	interval := r.idleTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// sweep runs one eviction pass.
func (r *Registry) sweep() {
	now := time.Now().UTC()

	r.mu.Lock()
	var evict []*Actor
	for taskID, a := range r.actors {
		sum := a.Status()
		switch {
		case sum.Status.Terminal():
			delete(r.actors, taskID)
			r.logger.Debug("terminal actor removed", "task_id", taskID, "status", sum.Status)
		case sum.Status == StatusPaused && now.Sub(a.idleSince()) > r.idleTimeout:
			delete(r.actors, taskID)
			evict = append(evict, a)
		}
	}
	r.mu.Unlock()

	for _, a := range evict {
		a.evict()
		r.logger.Info("idle actor evicted", "task_id", a.taskID())
	}
}
