package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/event"
	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/session"
	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/strategy"
)

func (h *Handler) handleReconstruct(w http.ResponseWriter, r *http.Request) {
	var req reconstructRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid JSON body"})
		return
	}

	task, err := h.engine.Prepare(r.Context(), req.toEngine())
	if err != nil {
		writeError(w, err)
		return
	}

	if req.Stream {
		h.streamTask(w, r, task)
		return
	}

	result := h.engine.Execute(r.Context(), task)
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, toResponse(result))
}

func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid session id"})
		return
	}

	var req reconstructRequest
	if r.Body != nil {
		// Body is optional on resume; only provider and stream matter.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	task, err := h.engine.Resume(r.Context(), id, req.Provider)
	if err != nil {
		writeError(w, err)
		return
	}

	if req.Stream {
		h.streamTask(w, r, task)
		return
	}

	result := h.engine.Execute(r.Context(), task)
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, toResponse(result))
}

// streamTask executes a prepared task in the background and forwards its
// progress events to the client as SSE. The subscription is in place
// before execution starts, so no event is missed. A client disconnect
// raises the job's abort flag; the orchestrator stops at the next chunk
// boundary and the partial output stays retrievable.
func (h *Handler) streamTask(w http.ResponseWriter, r *http.Request, task *strategy.Task) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "streaming unsupported"})
		return
	}

	jobID := task.Job.ID
	ch, sub := event.SubscribeChannel(h.bus, 64, func(e session.ProgressEvent) bool {
		return e.SessionID == jobID
	})
	defer sub.Unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeSSE(w, "session", map[string]string{"sessionId": jobID.String()})
	flusher.Flush()

	// The job must outlive this request's context: an SSE disconnect is
	// an abort signal, not a hard cancellation of the provider call.
	go h.engine.Execute(context.Background(), task)

	for {
		select {
		case <-r.Context().Done():
			task.Job.RequestAbort()
			slog.DebugContext(r.Context(), "stream client disconnected, abort requested",
				"session_id", jobID,
			)
			return
		case e, open := <-ch:
			if !open {
				return
			}
			writeSSE(w, string(e.Kind), toPayload(e))
			flusher.Flush()
			if e.Kind != session.KindProgress {
				return
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, eventName string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventName, data)
}
