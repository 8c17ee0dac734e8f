package stream

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kandra-sh/kandra/internal/job"
	"github.com/kandra-sh/kandra/internal/orchestrator"
)

// Handler is the thin HTTP binding the CLI's serve command mounts. Per
// spec §1's "Out of scope: HTTP surface...", this is deliberately the
// smallest possible glue between chi's router and the Orchestrator's Go
// API — no auth, no sessions, no middleware beyond what chi ships by
// default; anything resembling a product-grade web surface belongs to an
// external caller, not this module.
type Handler struct {
	orch *orchestrator.Orchestrator
}

// NewHandler builds a Handler over orch.
func NewHandler(orch *orchestrator.Orchestrator) *Handler {
	return &Handler{orch: orch}
}

// Routes returns the mountable chi router: plain REST endpoints for the Job
// State Machine's transitions, and the duplex stream endpoint.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/jobs", h.createJob)
	r.Get("/jobs/{id}", h.getJob)
	r.Post("/jobs/{id}/start-planning", h.startPlanning)
	r.Post("/jobs/{id}/plan", h.recordPlan)
	r.Post("/jobs/{id}/approve", h.approve)
	r.Post("/jobs/{id}/reject", h.reject)
	r.Get("/jobs/{id}/stream", h.stream)
	return r
}

type createJobRequest struct {
	SourceRepoURL string `json:"source_repo_url"`
	ShortName     string `json:"short_name"`
	TargetStack   string `json:"target_stack"`
}

func (h *Handler) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, err)
		return
	}
	j, err := h.orch.CreateJob(r.Context(), req.SourceRepoURL, req.ShortName, req.TargetStack)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, j)
}

func (h *Handler) getJob(w http.ResponseWriter, r *http.Request) {
	j, err := h.orch.Job(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (h *Handler) startPlanning(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id string) (*job.Job, error) {
		return h.orch.StartPlanning(r.Context(), id)
	})
}

func (h *Handler) recordPlan(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httpError(w, http.StatusBadRequest, err)
		return
	}
	h.transition(w, r, func(id string) (*job.Job, error) {
		return h.orch.RecordPlan(r.Context(), id, body)
	})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id string) (*job.Job, error) {
		return h.orch.Approve(r.Context(), id)
	})
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id string) (*job.Job, error) {
		return h.orch.Reject(r.Context(), id)
	})
}

// transition runs a Job State Machine transition and maps its errors onto
// the status codes spec §4.7 calls out: ErrInvalidTransition and
// orchestrator.ErrNoPlan are client errors (400), everything else is 500.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(id string) (*job.Job, error)) {
	j, err := fn(chi.URLParam(r, "id"))
	if err != nil {
		var transErr *job.ErrInvalidTransition
		if errors.As(err, &transErr) || errors.Is(err, orchestrator.ErrNoPlan) {
			httpError(w, http.StatusBadRequest, err)
			return
		}
		httpError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// stream implements spec §4.8 over a hijacked connection: once hijacked,
// Serve owns the socket and speaks newline-delimited JSON envelopes in both
// directions, independent of the request/response framing chi otherwise
// provides.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if _, err := h.orch.Job(r.Context(), jobID); err != nil {
		httpError(w, http.StatusNotFound, err)
		return
	}

	hj, ok := w.(http.Hijacker)
	if !ok {
		httpError(w, http.StatusInternalServerError, errors.New("stream: response writer does not support hijacking"))
		return
	}
	conn, rw, err := hj.Hijack()
	if err != nil {
		httpError(w, http.StatusInternalServerError, err)
		return
	}
	defer conn.Close()

	if _, err := rw.WriteString("HTTP/1.1 200 OK\r\nContent-Type: application/x-ndjson\r\nConnection: close\r\n\r\n"); err != nil {
		return
	}
	if err := rw.Flush(); err != nil {
		return
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := rw.ReadString('\n')
			if line = strings.TrimSpace(line); line != "" {
				select {
				case lines <- line:
				case <-r.Context().Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	if err := Serve(r.Context(), h.orch, jobID, rw.Writer, lines); err != nil {
		log.Printf("stream: job %s: %v", jobID, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
