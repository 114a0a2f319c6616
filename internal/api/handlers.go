package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/LeventeLantos/message-relay/internal/cache"
	"github.com/LeventeLantos/message-relay/internal/model"
	"github.com/LeventeLantos/message-relay/internal/repo"
	"github.com/LeventeLantos/message-relay/internal/scheduler"
	"github.com/LeventeLantos/message-relay/internal/service"
)

// Intake is the write side the webhooks and the create endpoint talk to.
type Intake interface {
	Receive(ctx context.Context, msg service.InboundMessage) (*model.Message, error)
	Send(ctx context.Context, req service.OutboundRequest) (*model.Message, error)
}

type Handler struct {
	sched    *scheduler.Scheduler
	intake   Intake
	messages repo.MessageRepository
	statuses cache.StatusCache
	log      *slog.Logger
}

// NewHandler wires the HTTP surface. statuses may be nil, in which case status
// reads go straight to the store.
func NewHandler(s *scheduler.Scheduler, intake Intake, messages repo.MessageRepository, statuses cache.StatusCache, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		sched:    s,
		intake:   intake,
		messages: messages,
		statuses: statuses,
		log:      logger.With("component", "api"),
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sched.Status())
}

func (h *Handler) SchedulerStart(w http.ResponseWriter, r *http.Request) {
	h.sched.Start()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) SchedulerStop(w http.ResponseWriter, r *http.Request) {
	h.sched.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

// writeError maps domain errors to status codes; anything unknown is a 500
// whose detail stays in the log.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidArgument):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
	case errors.Is(err, repo.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
	default:
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
	}
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
