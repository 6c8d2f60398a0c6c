package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/store"
	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/textutil"
)

type abortResponse struct {
	Success       bool   `json:"success"`
	SessionID     string `json:"sessionId"`
	PartialOutput string `json:"partialOutput"`
	WordCount     int    `json:"wordCount"`
}

func (h *Handler) handleAbort(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid session id"})
		return
	}

	job, ok := h.engine.Abort(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Message: "unknown session"})
		return
	}

	partial := job.PartialOutput()
	writeJSON(w, http.StatusOK, abortResponse{
		Success:       true,
		SessionID:     id.String(),
		PartialOutput: partial,
		WordCount:     textutil.CountWords(partial),
	})
}

type sessionView struct {
	SessionID       string    `json:"sessionId"`
	Strategy        string    `json:"strategy"`
	Status          string    `json:"status"`
	ChunksProcessed int       `json:"chunksProcessed"`
	TotalChunks     int       `json:"totalChunks"`
	PartialOutput   string    `json:"partialOutput,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid session id"})
		return
	}

	if job, ok := h.registry.Get(id); ok {
		writeJSON(w, http.StatusOK, sessionView{
			SessionID:       job.ID.String(),
			Strategy:        job.Strategy,
			Status:          string(job.Status()),
			ChunksProcessed: job.ChunksProcessed(),
			TotalChunks:     job.TotalChunks(),
			PartialOutput:   job.PartialOutput(),
			CreatedAt:       job.CreatedAt(),
			UpdatedAt:       job.UpdatedAt(),
		})
		return
	}

	// Not in memory; fall back to the persisted snapshot.
	if h.store != nil {
		rec, err := h.store.GetSession(r.Context(), id)
		if err == nil {
			writeJSON(w, http.StatusOK, sessionView{
				SessionID:       rec.ID.String(),
				Strategy:        rec.Strategy,
				Status:          rec.Status,
				ChunksProcessed: rec.ChunksProcessed,
				TotalChunks:     rec.TotalChunks,
				PartialOutput:   rec.Output,
				CreatedAt:       rec.CreatedAt,
				UpdatedAt:       rec.UpdatedAt,
			})
			return
		}
		if !errors.Is(err, store.ErrNotFound) {
			writeError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, errorResponse{Message: "unknown session"})
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	jobs := h.registry.List()
	views := make([]sessionView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, sessionView{
			SessionID:       job.ID.String(),
			Strategy:        job.Strategy,
			Status:          string(job.Status()),
			ChunksProcessed: job.ChunksProcessed(),
			TotalChunks:     job.TotalChunks(),
			CreatedAt:       job.CreatedAt(),
			UpdatedAt:       job.UpdatedAt(),
		})
	}
	writeJSON(w, http.StatusOK, views)
}
