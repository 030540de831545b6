// ABOUTME: HTTP front door routing lifecycle commands to agent actors
// ABOUTME: All task endpoints require auth; discovery and health do not

package orchestrator

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/hive-orchestrator/internal/actor"
	"github.com/2389/hive-orchestrator/internal/auth"
	"github.com/2389/hive-orchestrator/internal/store"
	"github.com/2389/hive-orchestrator/internal/task"
)

// Options configures the front door.
type Options struct {
	Registry *actor.Registry
	Gateway  *auth.Gateway
	Store    store.Store
	Metrics  *Metrics // nil disables the metrics endpoint

	// Discovery document inputs
	Issuer  string
	JWKSURL string

	MetricsPath string
	Logger      *slog.Logger
}

// Server is the orchestrator's HTTP surface.
type Server struct {
	registry    *actor.Registry
	gateway     *auth.Gateway
	store       store.Store
	metrics     *Metrics
	discovery   discoveryDocument
	metricsPath string
	logger      *slog.Logger
}

// NewServer builds the front door from its collaborators.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metricsPath := opts.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	return &Server{
		registry:    opts.Registry,
		gateway:     opts.Gateway,
		store:       opts.Store,
		metrics:     opts.Metrics,
		discovery:   buildDiscovery(opts.Issuer, opts.JWKSURL),
		metricsPath: metricsPath,
		logger:      logger.With("component", "frontdoor"),
	}
}

// Routes assembles the HTTP handler tree.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	authed := auth.Middleware(s.gateway)

	mux.Handle("POST /api/tasks/{id}/start", authed(http.HandlerFunc(s.handleStart)))
	mux.Handle("POST /api/tasks/{id}/pause", authed(http.HandlerFunc(s.handlePause)))
	mux.Handle("POST /api/tasks/{id}/resume", authed(http.HandlerFunc(s.handleResume)))
	mux.Handle("POST /api/tasks/{id}/stop", authed(http.HandlerFunc(s.handleStop)))
	mux.Handle("GET /api/tasks/{id}/status", authed(http.HandlerFunc(s.handleStatus)))
	mux.Handle("GET /api/tasks/{id}/events", authed(http.HandlerFunc(s.handleEvents)))

	mux.HandleFunc("GET /.well-known/oauth-authorization-server", s.handleDiscovery)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	if s.metrics != nil {
		mux.Handle("GET "+s.metricsPath, s.metrics.Handler())
	}
	return mux
}

// StartTaskRequest is the JSON request body for POST /api/tasks/{id}/start.
type StartTaskRequest struct {
	OwnerID     string `json:"owner_id,omitempty"`
	AssigneeID  string `json:"assignee_id,omitempty"`
	Mode        string `json:"mode,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// PauseTaskRequest is the JSON request body for POST /api/tasks/{id}/pause.
type PauseTaskRequest struct {
	Reason string `json:"reason,omitempty"`
}

// CommandResponse acknowledges an accepted lifecycle command.
type CommandResponse struct {
	TaskID  string `json:"task_id"`
	Command string `json:"command"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")

	var req StartTaskRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	// the authenticated caller owns the task unless the body says otherwise
	if req.OwnerID == "" {
		if id := auth.FromContext(r.Context()); id != nil {
			req.OwnerID = id.Subject
		}
	}
	mode := task.Mode(req.Mode)
	if mode == "" {
		mode = task.ModeAutonomous
	}

	t := task.Task{
		ID:          taskID,
		OwnerID:     req.OwnerID,
		AssigneeID:  req.AssigneeID,
		Mode:        mode,
		Title:       req.Title,
		Description: req.Description,
	}

	err := s.registry.Start(r.Context(), t)
	switch {
	case errors.Is(err, actor.ErrAlreadyRunning):
		s.countCommand("start", "conflict")
		s.writeError(w, http.StatusConflict, "agent already running for task")
		return
	case err != nil:
		s.countCommand("start", "error")
		s.logger.Error("start failed", "task_id", taskID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to start agent")
		return
	}

	s.countCommand("start", "accepted")
	// fire-and-forget: the outcome is observable via events and status
	s.writeJSON(w, http.StatusAccepted, CommandResponse{TaskID: taskID, Command: "start"})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")

	var req PauseTaskRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	reason := actor.PauseReason(req.Reason)
	switch reason {
	case "":
		reason = actor.PauseUserRequest
	case actor.PauseUserRequest, actor.PauseLimitExceeded, actor.PauseError:
	default:
		s.writeError(w, http.StatusBadRequest, "unknown pause reason")
		return
	}

	s.command(w, r, "pause", func() error {
		return s.registry.Pause(r.Context(), taskID, reason)
	})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, "resume", func() error {
		return s.registry.Resume(r.Context(), r.PathValue("id"))
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, "stop", func() error {
		return s.registry.Stop(r.Context(), r.PathValue("id"))
	})
}

// command runs a pause/resume/stop against the registry and maps the
// outcome to an HTTP status.
func (s *Server) command(w http.ResponseWriter, r *http.Request, name string, fn func() error) {
	taskID := r.PathValue("id")
	err := fn()
	switch {
	case errors.Is(err, actor.ErrUnknownTask):
		s.countCommand(name, "not_found")
		s.writeError(w, http.StatusNotFound, "unknown task")
		return
	case err != nil:
		s.countCommand(name, "error")
		s.logger.Error("command failed", "command", name, "task_id", taskID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "command failed")
		return
	}
	s.countCommand(name, "accepted")
	s.writeJSON(w, http.StatusAccepted, CommandResponse{TaskID: taskID, Command: name})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")

	sum, err := s.registry.Status(r.Context(), taskID)
	switch {
	case errors.Is(err, actor.ErrUnknownTask):
		s.writeError(w, http.StatusNotFound, "unknown task")
		return
	case err != nil:
		s.logger.Error("status failed", "task_id", taskID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load status")
		return
	}
	s.writeJSON(w, http.StatusOK, sum)
}

// EventResponse is one audit event as served over HTTP.
type EventResponse struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Subject       string          `json:"subject"`
	CorrelationID string          `json:"correlation_id"`
	Time          time.Time       `json:"time"`
	Data          json.RawMessage `json:"data"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	evs, err := s.store.ListEventsByTask(r.Context(), "task:"+taskID, limit)
	if err != nil {
		s.logger.Error("listing events failed", "task_id", taskID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	out := make([]EventResponse, 0, len(evs))
	for _, ev := range evs {
		out = append(out, EventResponse{
			ID:            ev.ID,
			Type:          ev.Type,
			Source:        ev.Source,
			Subject:       ev.Subject,
			CorrelationID: ev.CorrelationID,
			Time:          ev.Time,
			Data:          ev.Data,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"task_id": taskID, "events": out})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"actors": s.registry.Count(),
	})
}

func (s *Server) countCommand(name, outcome string) {
	if s.metrics != nil {
		s.metrics.CommandsTotal.WithLabelValues(name, outcome).Inc()
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
