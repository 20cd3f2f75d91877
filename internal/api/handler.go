package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ndemidova/callline/internal/calltask"
	"github.com/ndemidova/callline/internal/service"
)

// ownerHeader carries the authenticated user id, set by the auth gateway in
// front of this service.
const ownerHeader = "X-User-ID"

type Handler struct {
	create   *service.CreateService
	query    *service.QueryService
	ingestor *service.Ingestor
	log      *zap.SugaredLogger
}

func NewHandler(create *service.CreateService, query *service.QueryService, ingestor *service.Ingestor, log *zap.SugaredLogger) *Handler {
	return &Handler{create: create, query: query, ingestor: ingestor, log: log}
}

type CreateTaskRequest struct {
	RawInstruction string  `json:"raw_instruction"`
	ContactID      string  `json:"contact_id,omitempty"`
	PhoneNumber    string  `json:"phone_number,omitempty"`
	MaxPrice       float64 `json:"max_price,omitempty"`
	Tone           string  `json:"tone,omitempty"`
	Priority       string  `json:"priority,omitempty"`
}

type CreateTaskResponse struct {
	Task                  *calltask.Task      `json:"task"`
	Plan                  calltask.Plan       `json:"plan"`
	Status                calltask.TaskStatus `json:"status"`
	RequiresClarification bool                `json:"requires_clarification"`
	MissingInfo           []string            `json:"missing_info"`
}

type ListTasksResponse struct {
	Tasks  []*calltask.Task `json:"tasks"`
	Total  int              `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.create.CreateTask(r.Context(), r.Header.Get(ownerHeader), service.CreateRequest{
		Instruction: req.RawInstruction,
		ContactID:   req.ContactID,
		PhoneNumber: req.PhoneNumber,
		MaxPrice:    req.MaxPrice,
		Tone:        req.Tone,
		Priority:    req.Priority,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, CreateTaskResponse{
		Task:                  result.Task,
		Plan:                  result.Plan,
		Status:                result.Status,
		RequiresClarification: result.RequiresClarification,
		MissingInfo:           result.MissingInfo,
	})
}

func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := service.ListFilter{
		Status:   q.Get("status"),
		Priority: q.Get("priority"),
		Limit:    intParam(q.Get("limit"), service.DefaultListLimit),
		Offset:   intParam(q.Get("offset"), 0),
	}

	tasks, total, err := h.query.ListTasks(r.Context(), r.Header.Get(ownerHeader), filter)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, ListTasksResponse{
		Tasks:  tasks,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.query.GetTask(r.Context(), r.Header.Get(ownerHeader), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, task)
}

func (h *Handler) CancelTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.create.CancelTask(r.Context(), r.Header.Get(ownerHeader), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, task)
}

// ProviderEvent ingests an asynchronous session status event. The provider is
// always acknowledged with success: surfacing internal errors here would only
// feed its redelivery loop, and diagnostics live in the logs and the stored
// failure reasons.
func (h *Handler) ProviderEvent(w http.ResponseWriter, r *http.Request) {
	var ev service.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		h.log.Warnw("undecodable provider event", "error", err)
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	if err := h.ingestor.Ingest(r.Context(), ev); err != nil {
		h.log.Errorw("event ingestion failed", "key", ev.CorrelationKey, "error", err)
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUnauthenticated):
		respondError(w, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, service.ErrNotFound):
		respondError(w, http.StatusNotFound, "task not found")
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	if v, err := strconv.Atoi(raw); err == nil {
		return v
	}
	return fallback
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}
