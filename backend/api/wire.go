package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/session"
	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/strategy"
	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/shared"
)

// reconstructRequest is the inbound JSON body.
type reconstructRequest struct {
	Text               string `json:"text"`
	CustomInstructions string `json:"customInstructions,omitempty"`
	FidelityLevel      string `json:"fidelityLevel,omitempty"`
	TargetDomain       string `json:"targetDomain,omitempty"`
	Provider           string `json:"provider,omitempty"`
	Stream             bool   `json:"stream,omitempty"`
}

func (r reconstructRequest) toEngine() strategy.Request {
	// An omitted fidelity level stays empty so each strategy applies its
	// own default: expansion runs aggressive unless the caller asks for
	// conservative, diagnostic runs conservative unless asked otherwise.
	return strategy.Request{
		Text:               r.Text,
		CustomInstructions: r.CustomInstructions,
		Fidelity:           strategy.Fidelity(r.FidelityLevel),
		Provider:           r.Provider,
	}
}

// reconstructResponse is the single-shot JSON reply; strategy-specific
// fields are omitted when zero.
type reconstructResponse struct {
	Success         bool   `json:"success"`
	SessionID       string `json:"sessionId"`
	Mode            string `json:"mode"`
	Status          string `json:"status"`
	Output          string `json:"output"`
	Message         string `json:"message,omitempty"`
	InputWordCount  int    `json:"inputWordCount"`
	OutputWordCount int    `json:"outputWordCount"`

	Diagnosis string `json:"diagnosis,omitempty"`

	SectionsGenerated int  `json:"sectionsGenerated,omitempty"`
	TargetWords       int  `json:"targetWords,omitempty"`
	Shortfall         bool `json:"shortfall,omitempty"`

	PositionsProcessed int `json:"positionsProcessed,omitempty"`
	PositionsSelected  int `json:"positionsSelected,omitempty"`
	TotalPositions     int `json:"totalPositions,omitempty"`

	ChunksProcessed int `json:"chunksProcessed,omitempty"`
	TotalChunks     int `json:"totalChunks,omitempty"`

	ProcessingTimeMs int64 `json:"processingTimeMs"`
}

func toResponse(res *strategy.Result) reconstructResponse {
	return reconstructResponse{
		Success:            res.Success,
		SessionID:          res.SessionID.String(),
		Mode:               string(res.Mode),
		Status:             res.Status,
		Output:             res.Output,
		Message:            res.Message,
		InputWordCount:     res.InputWordCount,
		OutputWordCount:    res.OutputWordCount,
		Diagnosis:          res.Diagnosis,
		SectionsGenerated:  res.SectionsGenerated,
		TargetWords:        res.TargetWords,
		Shortfall:          res.Shortfall,
		PositionsProcessed: res.PositionsProcessed,
		PositionsSelected:  res.PositionsSelected,
		TotalPositions:     res.TotalPositions,
		ChunksProcessed:    res.ChunksProcessed,
		TotalChunks:        res.TotalChunks,
		ProcessingTimeMs:   res.ProcessingTime.Milliseconds(),
	}
}

// progressPayload is the SSE data body for every event kind.
type progressPayload struct {
	SessionID           string `json:"sessionId"`
	Strategy            string `json:"strategy,omitempty"`
	ChunkIndex          int    `json:"chunkIndex"`
	TotalChunks         int    `json:"totalChunks"`
	ChunksProcessed     int    `json:"chunksProcessed"`
	SectionTitle        string `json:"sectionTitle,omitempty"`
	CumulativeWordCount int    `json:"cumulativeWordCount"`
	Text                string `json:"text,omitempty"`
	Message             string `json:"message,omitempty"`
	Shortfall           bool   `json:"shortfall,omitempty"`
}

func toPayload(e session.ProgressEvent) progressPayload {
	return progressPayload{
		SessionID:           e.SessionID.String(),
		Strategy:            e.Strategy,
		ChunkIndex:          e.ChunkIndex,
		TotalChunks:         e.TotalChunks,
		ChunksProcessed:     e.ChunksProcessed,
		SectionTitle:        e.SectionTitle,
		CumulativeWordCount: e.CumulativeWords,
		Text:                e.Text,
		Message:             e.Message,
		Shortfall:           e.Shortfall,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// writeError maps error origin to status: caller mistakes are 400s,
// everything else is a 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var ne *shared.NeuroError
	if errors.As(err, &ne) && ne.Source == shared.ErrorSourceInput {
		status = http.StatusBadRequest
	}
	if errors.Is(err, strategy.ErrInvalidInput) {
		status = http.StatusBadRequest
	}

	writeJSON(w, status, errorResponse{Success: false, Message: err.Error()})
}
