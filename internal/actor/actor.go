// ABOUTME: The per-task agent actor: a single goroutine owning one task's execution loop
// ABOUTME: Commands arrive over a channel and are observed at loop boundaries, never mid-action

package actor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/hive-orchestrator/internal/event"
	"github.com/2389/hive-orchestrator/internal/guardrail"
	"github.com/2389/hive-orchestrator/internal/provider"
	"github.com/2389/hive-orchestrator/internal/store"
	"github.com/2389/hive-orchestrator/internal/task"
)

// Config tunes the execution loop. Zero fields fall back to defaults.
type Config struct {
	CheckpointEvery  int
	RetryCeiling     int
	ProgressInterval time.Duration
	ProviderTimeout  time.Duration
	ToolTimeout      time.Duration
	BackoffBase      time.Duration
}

func (c Config) withDefaults() Config {
	if c.CheckpointEvery <= 0 {
		c.CheckpointEvery = 10
	}
	if c.RetryCeiling <= 0 {
		c.RetryCeiling = 3
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = 30 * time.Second
	}
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = 60 * time.Second
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = 120 * time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	return c
}

// Deps are the collaborators every actor needs.
type Deps struct {
	Provider provider.Client
	Tools    ToolRunner
	Tasks    task.Service
	Guard    *guardrail.Evaluator
	Store    store.Store
	Bus      event.Publisher
	Logger   *slog.Logger
}

type commandKind int

const (
	cmdPause commandKind = iota
	cmdResume
	cmdStop
	cmdEvict
)

type command struct {
	kind   commandKind
	reason PauseReason
}

func (k commandKind) String() string {
	switch k {
	case cmdPause:
		return "pause"
	case cmdResume:
		return "resume"
	case cmdStop:
		return "stop"
	case cmdEvict:
		return "evict"
	}
	return "unknown"
}

// errorTypeExecution classifies recoverable loop failures (provider,
// tool, or subtask-service errors) in agent.failed events.
const errorTypeExecution = "EXECUTION_ERROR"

// historyWindow bounds how many past steps are sent to the provider.
const historyWindow = 32

// maxDetailLen caps the stored detail of one action record.
const maxDetailLen = 512

// Actor runs one task's agent. All state mutation happens on the actor's
// own goroutine; Status reads a consistent snapshot under the mutex.
type Actor struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger

	correlationID string
	cmds          chan command
	done          chan struct{}

	leaving bool

	mu         sync.Mutex
	state      *AgentState
	lastActive time.Time
}

// New creates an idle actor for the task. Start launches it.
func New(t task.Task, deps Deps, cfg Config) *Actor {
	return newActor(&AgentState{
		Task:     t,
		Status:   StatusIdle,
		Provider: deps.Provider.Name(),
	}, deps, cfg)
}

// newFromState rehydrates an actor from a persisted snapshot. A state
// that was RUNNING when persisted comes back PAUSED: the interrupted
// action never completed, so the owner decides whether to resume.
func newFromState(st *AgentState, deps Deps, cfg Config) *Actor {
	if st.Status == StatusRunning {
		st.Status = StatusPaused
		st.PauseReason = PauseError
		st.UpdatedAt = time.Now().UTC()
	}
	return newActor(st, deps, cfg)
}

func newActor(st *AgentState, deps Deps, cfg Config) *Actor {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Actor{
		cfg:           cfg.withDefaults(),
		deps:          deps,
		logger:        logger.With("component", "actor", "task_id", st.Task.ID),
		correlationID: uuid.New().String(),
		cmds:          make(chan command, 8),
		done:          make(chan struct{}),
		state:         st,
		lastActive:    time.Now().UTC(),
	}
}

// Start transitions IDLE→RUNNING and launches the execution loop.
func (a *Actor) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.state.Status != StatusIdle {
		a.mu.Unlock()
		return ErrAlreadyRunning
	}
	now := time.Now().UTC()
	a.state.Status = StatusRunning
	a.state.StartedAt = now
	a.state.UpdatedAt = now
	a.lastActive = now
	a.mu.Unlock()

	a.persist(ctx)
	a.publish(ctx, event.TypeAgentSpawned, a.startedData())
	a.publish(ctx, event.TypeAgentStarted, a.startedData())
	a.logger.Info("agent started", "provider", a.deps.Provider.Name())

	go a.run(ctx)
	return nil
}

// launch starts the loop goroutine for a rehydrated (paused) actor.
func (a *Actor) launch(ctx context.Context) {
	go a.run(ctx)
}

// Pause asks the actor to pause at the next loop boundary. A no-op
// unless the actor is RUNNING.
func (a *Actor) Pause(reason PauseReason) {
	a.send(command{kind: cmdPause, reason: reason})
}

// Resume asks a paused actor to continue from its persisted state.
func (a *Actor) Resume() {
	a.send(command{kind: cmdResume})
}

// Stop terminally stops the actor at the next loop boundary.
func (a *Actor) Stop() {
	a.send(command{kind: cmdStop})
}

// evict asks the loop goroutine to persist and exit, leaving the state
// PAUSED for later rehydration.
func (a *Actor) evict() {
	a.send(command{kind: cmdEvict})
}

// send queues a command for the loop goroutine. Stop is never dropped:
// when the queue is full it waits for a slot, giving up only once the
// loop goroutine has exited.
func (a *Actor) send(cmd command) {
	select {
	case a.cmds <- cmd:
		return
	default:
	}
	if cmd.kind == cmdStop {
		select {
		case a.cmds <- cmd:
		case <-a.done:
			// terminal actors no longer drain the channel; dropping is
			// equivalent to the command arriving after exit
		}
		return
	}
	a.logger.Warn("command queue full, dropping", "command", cmd.kind)
}

// Status returns a snapshot of the actor's state.
func (a *Actor) Status() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	return summarize(a.state)
}

// Done is closed when the loop goroutine exits.
func (a *Actor) Done() <-chan struct{} {
	return a.done
}

func (a *Actor) status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.Status
}

// idleSince reports the last time the actor did or was told anything.
func (a *Actor) idleSince() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastActive
}

func (a *Actor) touch() {
	a.mu.Lock()
	a.lastActive = time.Now().UTC()
	a.mu.Unlock()
}

// run is the goroutine owning all state mutation. Commands are observed
// between actions; an in-flight provider or tool call always finishes
// first.
func (a *Actor) run(ctx context.Context) {
	defer close(a.done)

	go a.progressLoop(ctx)

	for {
		select {
		case cmd := <-a.cmds:
			a.handleCommand(ctx, cmd)
			continue
		default:
		}

		if a.leaving {
			return
		}

		switch st := a.status(); {
		case st.Terminal():
			return
		case st == StatusPaused:
			select {
			case cmd := <-a.cmds:
				a.handleCommand(ctx, cmd)
			case <-ctx.Done():
				a.persist(context.WithoutCancel(ctx))
				return
			}
			continue
		}

		a.step(ctx)
	}
}

// progressLoop emits progress events on a fixed cadence while the actor
// is RUNNING, including while the loop is inside a long provider or tool
// call. Paused actors emit nothing. Exits with the loop goroutine.
func (a *Actor) progressLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.ProgressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if a.status() == StatusRunning {
				a.emitProgress(ctx)
			}
		}
	}
}

func (a *Actor) handleCommand(ctx context.Context, cmd command) {
	a.touch()
	switch cmd.kind {
	case cmdPause:
		if a.status() != StatusRunning {
			return
		}
		a.pause(ctx, cmd.reason)
	case cmdResume:
		a.mu.Lock()
		if a.state.Status != StatusPaused {
			a.mu.Unlock()
			return
		}
		a.state.Status = StatusRunning
		a.state.PauseReason = ""
		a.state.UpdatedAt = time.Now().UTC()
		a.mu.Unlock()
		a.persist(ctx)
		a.logger.Info("agent resumed", "checkpoint_id", a.Status().LastCheckpoint)
	case cmdStop:
		a.stop(ctx)
	case cmdEvict:
		a.persist(ctx)
		a.leaving = true
	}
}

// pause checkpoints, transitions to PAUSED, and announces it.
func (a *Actor) pause(ctx context.Context, reason PauseReason) {
	cpID := a.checkpoint(ctx)

	a.mu.Lock()
	if err := a.state.transition(StatusPaused); err != nil {
		a.mu.Unlock()
		return
	}
	a.state.PauseReason = reason
	taskID := a.state.Task.ID
	a.mu.Unlock()

	a.persist(ctx)
	a.publish(ctx, event.TypeAgentPaused, event.PausedData{
		TaskID:       taskID,
		AgentID:      a.agentID(),
		Reason:       string(reason),
		CheckpointID: cpID,
	})
	a.logger.Info("agent paused", "reason", reason, "checkpoint_id", cpID)
}

// stop moves the actor to STOPPED from any non-terminal status.
func (a *Actor) stop(ctx context.Context) {
	a.mu.Lock()
	if a.state.Status.Terminal() {
		a.mu.Unlock()
		return
	}
	if err := a.state.transition(StatusStopped); err != nil {
		a.mu.Unlock()
		return
	}
	taskID := a.state.Task.ID
	cpID := a.state.lastCheckpointID()
	a.mu.Unlock()

	a.persist(ctx)
	a.publish(ctx, event.TypeAgentFailed, event.FailedData{
		TaskID:       taskID,
		AgentID:      a.agentID(),
		ErrorType:    event.ErrorTypeUserStopped,
		Message:      "stopped by user command",
		Recoverable:  false,
		CheckpointID: cpID,
	})
	a.logger.Info("agent stopped")
}

// step runs one iteration: guardrail check, provider call, validation,
// dispatch, record, checkpoint.
func (a *Actor) step(ctx context.Context) {
	a.mu.Lock()
	usage := a.state.usage(time.Now().UTC())
	owner := a.state.Task.OwnerID
	a.mu.Unlock()

	result, err := a.deps.Guard.Evaluate(owner, usage)
	if err != nil {
		a.recoverableFailure(ctx, fmt.Errorf("guardrail evaluation: %w", err))
		return
	}
	if !result.Allowed {
		a.logger.Warn("guardrail violation", "violations", result.Violations)
		a.pause(ctx, PauseLimitExceeded)
		return
	}

	decision, err := a.nextDecision(ctx)
	if err != nil {
		a.recoverableFailure(ctx, fmt.Errorf("provider call: %w", err))
		return
	}

	action := decision.Action
	if err := action.Validate(a.deps.Tools.Known); err != nil {
		// invalid proposals are recorded and re-looped, never retried
		a.logger.Warn("invalid action proposed", "type", action.Type, "error", err)
		a.appendRecord(ctx, ActionRecord{
			Type:    action.Type,
			Tool:    action.ToolName,
			Status:  "error",
			Detail:  err.Error(),
			Tokens:  decision.TokensUsed,
			CostUSD: decision.CostUSD,
		})
		return
	}

	switch action.Type {
	case provider.ActionToolCall:
		res, err := a.invokeTool(ctx, action)
		if err != nil {
			a.recoverableFailure(ctx, fmt.Errorf("tool %q: %w", action.ToolName, err))
			return
		}
		status := "ok"
		if res.IsError {
			status = "error"
		}
		a.publish(ctx, event.TypeToolCalled, event.ToolCalledData{
			TaskID:  a.taskID(),
			AgentID: a.agentID(),
			Tool:    action.ToolName,
			Status:  status,
		})
		a.appendRecord(ctx, ActionRecord{
			Type:      action.Type,
			Tool:      action.ToolName,
			Signature: action.Signature(),
			Status:    status,
			Detail:    truncateDetail(res.Output),
			Tokens:    decision.TokensUsed,
			CostUSD:   decision.CostUSD,
		})

	case provider.ActionCreateSubtask:
		a.mu.Lock()
		parent := a.state.Task
		a.mu.Unlock()
		subtaskID, err := a.deps.Tasks.CreateSubtask(ctx, parent, action.SubtaskTitle, action.SubtaskDescription)
		if err != nil {
			a.recoverableFailure(ctx, fmt.Errorf("creating subtask: %w", err))
			return
		}
		a.publish(ctx, event.TypeSubtaskCreated, event.SubtaskCreatedData{
			TaskID:    parent.ID,
			AgentID:   a.agentID(),
			SubtaskID: subtaskID,
			Title:     action.SubtaskTitle,
		})
		a.appendRecord(ctx, ActionRecord{
			Type:    action.Type,
			Status:  "ok",
			Detail:  subtaskID,
			Tokens:  decision.TokensUsed,
			CostUSD: decision.CostUSD,
		})

	case provider.ActionReasoning:
		a.mu.Lock()
		a.state.Context = append(a.state.Context, action.Thought)
		a.mu.Unlock()
		a.appendRecord(ctx, ActionRecord{
			Type:    action.Type,
			Status:  "ok",
			Detail:  truncateDetail(action.Thought),
			Tokens:  decision.TokensUsed,
			CostUSD: decision.CostUSD,
		})

	case provider.ActionComplete:
		a.appendRecord(ctx, ActionRecord{
			Type:    action.Type,
			Status:  "ok",
			Detail:  truncateDetail(action.Summary),
			Tokens:  decision.TokensUsed,
			CostUSD: decision.CostUSD,
		})
		a.complete(ctx, action)
	}
}

// nextDecision asks the provider for the next action under a timeout.
func (a *Actor) nextDecision(ctx context.Context) (provider.Decision, error) {
	a.mu.Lock()
	goal := a.state.Task.Description
	if goal == "" {
		goal = a.state.Task.Title
	}
	req := provider.Request{
		TaskID:  a.state.Task.ID,
		Goal:    goal,
		Context: append([]string(nil), a.state.Context...),
	}
	start := len(a.state.Actions) - historyWindow
	if start < 0 {
		start = 0
	}
	for _, rec := range a.state.Actions[start:] {
		req.History = append(req.History, provider.Step{
			Type:   rec.Type,
			Tool:   rec.Tool,
			Status: rec.Status,
		})
	}
	a.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, a.cfg.ProviderTimeout)
	defer cancel()
	return a.deps.Provider.Next(cctx, req)
}

func (a *Actor) invokeTool(ctx context.Context, action provider.Action) (ToolResult, error) {
	cctx, cancel := context.WithTimeout(ctx, a.cfg.ToolTimeout)
	defer cancel()
	return a.deps.Tools.Invoke(cctx, action.ToolName, action.ToolArgs)
}

// appendRecord appends one action record, charges its usage, clears the
// consecutive-failure count, and persists. Every appended record counts
// toward the checkpoint cadence, error records included.
func (a *Actor) appendRecord(ctx context.Context, rec ActionRecord) {
	a.mu.Lock()
	rec.Seq = len(a.state.Actions) + 1
	rec.Timestamp = time.Now().UTC()
	a.state.Actions = append(a.state.Actions, rec)
	a.state.Tokens += rec.Tokens
	a.state.CostUSD += rec.CostUSD
	a.state.RetryCount = 0
	a.state.UpdatedAt = rec.Timestamp
	a.lastActive = rec.Timestamp
	a.mu.Unlock()

	a.persist(ctx)
	a.maybeCheckpoint(ctx)
}

// complete finalizes a successful run.
func (a *Actor) complete(ctx context.Context, action provider.Action) {
	a.mu.Lock()
	if err := a.state.transition(StatusCompleted); err != nil {
		a.mu.Unlock()
		return
	}
	a.state.Result = action.Summary
	a.state.ModifiedResources = append(a.state.ModifiedResources, action.ModifiedResources...)
	data := event.CompletedData{
		TaskID:            a.state.Task.ID,
		AgentID:           "agent:" + a.state.Task.ID,
		Tokens:            a.state.Tokens,
		CostUSD:           a.state.CostUSD,
		DurationSeconds:   time.Since(a.state.StartedAt).Seconds(),
		ActionsTaken:      len(a.state.Actions),
		ModifiedResources: append([]string(nil), a.state.ModifiedResources...),
	}
	a.mu.Unlock()

	a.persist(ctx)
	a.publish(ctx, event.TypeAgentCompleted, data)
	a.logger.Info("agent completed",
		"actions", data.ActionsTaken,
		"tokens", data.Tokens,
		"cost_usd", data.CostUSD,
	)
}

// recoverableFailure charges one retry, and either backs off or fails
// the actor once the ceiling is reached.
func (a *Actor) recoverableFailure(ctx context.Context, cause error) {
	a.mu.Lock()
	a.state.RetryCount++
	retries := a.state.RetryCount
	a.state.LastError = cause.Error()
	a.state.UpdatedAt = time.Now().UTC()
	taskID := a.state.Task.ID
	cpID := a.state.lastCheckpointID()
	a.mu.Unlock()

	if retries >= a.cfg.RetryCeiling {
		a.mu.Lock()
		err := a.state.transition(StatusFailed)
		a.mu.Unlock()
		if err != nil {
			return
		}
		a.persist(ctx)
		a.publish(ctx, event.TypeAgentFailed, event.FailedData{
			TaskID:       taskID,
			AgentID:      a.agentID(),
			ErrorType:    errorTypeExecution,
			Message:      cause.Error(),
			Recoverable:  false,
			CheckpointID: cpID,
		})
		a.logger.Error("agent failed", "retries", retries, "error", cause)
		return
	}

	a.persist(ctx)
	a.publish(ctx, event.TypeAgentFailed, event.FailedData{
		TaskID:       taskID,
		AgentID:      a.agentID(),
		ErrorType:    errorTypeExecution,
		Message:      cause.Error(),
		Recoverable:  true,
		CheckpointID: cpID,
	})
	a.logger.Warn("recoverable failure", "retry", retries, "error", cause)
	a.backoff(ctx, retries)
}

// backoff sleeps 2^n of the base interval, interruptible by commands.
func (a *Actor) backoff(ctx context.Context, retries int) {
	d := a.cfg.BackoffBase * time.Duration(1<<retries)
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case cmd := <-a.cmds:
		a.handleCommand(ctx, cmd)
	case <-ctx.Done():
	}
}

// checkpoint snapshots the full state and records the new id. Returns ""
// if the snapshot could not be saved; execution continues either way.
func (a *Actor) checkpoint(ctx context.Context) string {
	a.mu.Lock()
	data, err := a.state.encode()
	seq := len(a.state.Actions)
	taskID := a.state.Task.ID
	a.mu.Unlock()
	if err != nil {
		a.logger.Error("encoding checkpoint failed", "error", err)
		return ""
	}

	cp := &store.Checkpoint{
		ID:        "ck-" + uuid.New().String(),
		TaskID:    taskID,
		Seq:       seq,
		State:     data,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.deps.Store.SaveCheckpoint(ctx, cp); err != nil {
		a.logger.Error("saving checkpoint failed", "checkpoint_id", cp.ID, "error", err)
		return ""
	}

	a.mu.Lock()
	a.state.CheckpointIDs = append(a.state.CheckpointIDs, cp.ID)
	a.mu.Unlock()
	a.persist(ctx)

	a.logger.Debug("checkpoint saved", "checkpoint_id", cp.ID, "seq", seq)
	return cp.ID
}

func (a *Actor) maybeCheckpoint(ctx context.Context) {
	a.mu.Lock()
	due := len(a.state.Actions)%a.cfg.CheckpointEvery == 0
	a.mu.Unlock()
	if due {
		a.checkpoint(ctx)
	}
}

// persist writes the latest state snapshot. Persistence failures are
// logged; the in-memory actor remains the source of truth.
func (a *Actor) persist(ctx context.Context) {
	a.mu.Lock()
	data, err := a.state.encode()
	status := a.state.Status
	taskID := a.state.Task.ID
	a.lastActive = time.Now().UTC()
	a.mu.Unlock()
	if err != nil {
		a.logger.Error("encoding agent state failed", "error", err)
		return
	}
	if err := a.deps.Store.SaveAgentState(ctx, taskID, string(status), data); err != nil {
		a.logger.Error("persisting agent state failed", "error", err)
	}
}

func (a *Actor) emitProgress(ctx context.Context) {
	a.mu.Lock()
	data := event.ProgressData{
		TaskID:  a.state.Task.ID,
		AgentID: "agent:" + a.state.Task.ID,
		Actions: len(a.state.Actions),
		Tokens:  a.state.Tokens,
		CostUSD: a.state.CostUSD,
	}
	a.mu.Unlock()
	a.publish(ctx, event.TypeAgentProgress, data)
}

func (a *Actor) publish(ctx context.Context, t event.Type, data any) {
	a.deps.Bus.Publish(ctx, event.New(t, a.agentID(), "task:"+a.taskID(), a.correlationID, data))
}

func (a *Actor) startedData() event.StartedData {
	a.mu.Lock()
	defer a.mu.Unlock()
	return event.StartedData{
		TaskID:   a.state.Task.ID,
		AgentID:  "agent:" + a.state.Task.ID,
		Provider: a.state.Provider,
		Mode:     string(a.state.Task.Mode),
	}
}

func (a *Actor) taskID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.Task.ID
}

func (a *Actor) agentID() string {
	return "agent:" + a.taskID()
}

func truncateDetail(s string) string {
	if len(s) <= maxDetailLen {
		return s
	}
	return s[:maxDetailLen]
}
