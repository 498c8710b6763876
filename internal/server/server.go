// Package server exposes the agent over a small local HTTP API: submit
// goals, inspect state and history, and resolve pending approvals.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/Aladin147/FlowCode-sub002/internal/agent"
	"github.com/Aladin147/FlowCode-sub002/internal/coordinator"
	"github.com/Aladin147/FlowCode-sub002/internal/logger"
	"github.com/Aladin147/FlowCode-sub002/internal/planner"
	"github.com/Aladin147/FlowCode-sub002/internal/state"
)

// Server wires the planner, coordinator and store behind HTTP handlers.
type Server struct {
	addr    string
	store   *state.Store
	planner *planner.Planner
	coord   *coordinator.Coordinator
	broker  *ApprovalBroker
	log     *logger.Logger

	httpServer *http.Server
}

// New builds the server. The broker should also be installed as the
// coordinator's approver so API clients see its pending requests.
func New(addr string, store *state.Store, pl *planner.Planner, coord *coordinator.Coordinator, broker *ApprovalBroker, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Global()
	}
	return &Server{
		addr:    addr,
		store:   store,
		planner: pl,
		coord:   coord,
		broker:  broker,
		log:     log.WithPrefix("server"),
	}
}

func (s *Server) routes() *httprouter.Router {
	router := httprouter.New()
	router.GET("/v1/state", s.handleState)
	router.GET("/v1/queue", s.handleQueue)
	router.GET("/v1/history", s.handleHistory)
	router.GET("/v1/stats", s.handleStats)
	router.GET("/v1/tasks/:id", s.handleGetTask)
	router.POST("/v1/tasks", s.handleSubmitTask)
	router.POST("/v1/tasks/:id/adapt", s.handleAdaptTask)
	router.POST("/v1/tasks/:id/cancel", s.handleCancelTask)
	router.GET("/v1/approvals", s.handleListApprovals)
	router.POST("/v1/approvals/:id", s.handleResolveApproval)
	return router
}

// Start begins serving in the background.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		s.log.Info("listening on %s", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server: %v", err)
		}
	}()
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

type stateResponse struct {
	CurrentTask  *agent.Task           `json:"current_task"`
	QueueLength  int                   `json:"queue_length"`
	Preferences  agent.UserPreferences `json:"preferences"`
	HistoryCount int                   `json:"history_count"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, stateResponse{
		CurrentTask:  s.store.CurrentTask(),
		QueueLength:  len(s.store.Queue()),
		Preferences:  s.store.Preferences(),
		HistoryCount: len(s.store.History()),
	})
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, s.store.Queue())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, s.store.History())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, s.store.GetStatistics())
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	task, err := s.store.Task(ps.ByName("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

type submitTaskRequest struct {
	Goal string `json:"goal"`
}

func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req submitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	task, err := s.planner.DecomposeGoal(r.Context(), req.Goal)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, planner.ErrEmptyGoal) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}

	if err := s.store.AddToQueue(task); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.log.Info("queued task %s: %s", task.ID, task.Goal)
	writeJSON(w, http.StatusAccepted, task)
}

type adaptTaskRequest struct {
	Feedback string `json:"feedback"`
}

func (s *Server) handleAdaptTask(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req adaptTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	task, err := s.store.Task(ps.ByName("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	adapted, err := s.planner.AdaptPlan(task, req.Feedback)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, adapted)
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if s.coord == nil || !s.coord.Cancel(id) {
		writeError(w, http.StatusNotFound, errors.New("task "+id+" is not running"))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": id, "status": "cancelling"})
}

func (s *Server) handleListApprovals(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, s.broker.Pending())
}

type resolveApprovalRequest struct {
	Approved     bool   `json:"approved"`
	Intervention string `json:"intervention,omitempty"`
}

func (s *Server) handleResolveApproval(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req resolveApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	id := ps.ByName("id")
	err := s.broker.Resolve(id, coordinator.ApprovalDecision{
		Approved:     req.Approved,
		Intervention: strings.TrimSpace(req.Intervention),
	})
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "approved": req.Approved})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
