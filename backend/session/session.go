package session

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/event"
)

type Status string

const (
	StatusCreated    Status = "created"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusAborted    Status = "aborted"
	StatusFailed     Status = "failed"
)

// Terminal reports whether a job in this status accepts further mutation.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAborted || s == StatusFailed
}

type EventKind string

const (
	KindProgress EventKind = "progress"
	KindComplete EventKind = "complete"
	KindAborted  EventKind = "aborted"
	KindError    EventKind = "error"
)

// ProgressEvent is the tagged union a running job emits: progress while
// chunks complete, then exactly one of complete, aborted or error.
type ProgressEvent struct {
	SessionID       uuid.UUID
	Kind            EventKind
	Strategy        string
	ChunkIndex      int
	TotalChunks     int
	ChunksProcessed int
	SectionTitle    string
	CumulativeWords int
	Text            string
	Message         string
	Shortfall       bool
}

func (ProgressEvent) Event() {}

// Job tracks one reconstruction run. Chunk outputs accumulate by index so
// partial output is retrievable in any state, including after an abort.
type Job struct {
	ID       uuid.UUID
	Strategy string

	mu              sync.Mutex
	status          Status
	totalChunks     int
	parts           map[int]string
	cumulativeWords int
	createdAt       time.Time
	updatedAt       time.Time
	abortRequested  bool

	bus *event.Bus
}

func (j *Job) emit(e ProgressEvent) {
	if j.bus == nil {
		return
	}
	e.SessionID = j.ID
	e.Strategy = j.Strategy
	event.Publish(j.bus, e)
}

// Start moves the job into processing and records the expected chunk count.
func (j *Job) Start(totalChunks int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return
	}
	j.status = StatusProcessing
	j.totalChunks = totalChunks
	j.updatedAt = time.Now()
}

// GrowTotal raises the expected chunk count when a run discovers it needs
// more units of work than first estimated. Never shrinks the total and is
// a no-op on terminal jobs.
func (j *Job) GrowTotal(total int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() || total <= j.totalChunks {
		return
	}
	j.totalChunks = total
	j.updatedAt = time.Now()
}

// RecordChunkComplete stores one chunk's output and emits a progress event.
// Recording the same index twice overwrites: last write wins, which keeps
// crash-and-resume races harmless.
func (j *Job) RecordChunkComplete(index int, text string) {
	j.mu.Lock()
	if j.status.Terminal() {
		j.mu.Unlock()
		return
	}
	j.parts[index] = text
	j.cumulativeWords = countPartWords(j.parts)
	j.updatedAt = time.Now()
	e := ProgressEvent{
		Kind:            KindProgress,
		ChunkIndex:      index,
		TotalChunks:     j.totalChunks,
		ChunksProcessed: len(j.parts),
		CumulativeWords: j.cumulativeWords,
		Text:            text,
	}
	j.mu.Unlock()

	j.emit(e)
}

// RecordSection stores one generated section under its index and emits a
// progress event carrying the section title, for strategies that stream
// titled sections rather than anonymous chunks.
func (j *Job) RecordSection(index int, title, text string) {
	j.mu.Lock()
	if j.status.Terminal() {
		j.mu.Unlock()
		return
	}
	j.parts[index] = text
	j.cumulativeWords = countPartWords(j.parts)
	j.updatedAt = time.Now()
	e := ProgressEvent{
		Kind:            KindProgress,
		ChunkIndex:      index,
		TotalChunks:     j.totalChunks,
		ChunksProcessed: len(j.parts),
		CumulativeWords: j.cumulativeWords,
		SectionTitle:    title,
		Text:            text,
	}
	j.mu.Unlock()

	j.emit(e)
}

// Progress emits an informational progress event without storing output.
func (j *Job) Progress(e ProgressEvent) {
	e.Kind = KindProgress
	j.emit(e)
}

// RequestAbort raises the abort flag checked at chunk boundaries. It does
// not transition the job; the processing loop does that when it observes
// the flag. Idempotent, and a no-op for terminal jobs.
func (j *Job) RequestAbort() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return
	}
	j.abortRequested = true
}

// AbortRequested reports whether an abort signal has been raised.
func (j *Job) AbortRequested() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.abortRequested
}

// MarkAborted transitions the job to its aborted terminal state, keeping
// accumulated output retrievable. No-op when already terminal.
func (j *Job) MarkAborted() {
	j.mu.Lock()
	if j.status.Terminal() {
		j.mu.Unlock()
		return
	}
	j.status = StatusAborted
	j.updatedAt = time.Now()
	e := ProgressEvent{
		Kind:            KindAborted,
		TotalChunks:     j.totalChunks,
		ChunksProcessed: len(j.parts),
		CumulativeWords: j.cumulativeWords,
		Text:            partialOutputLocked(j.parts),
	}
	j.mu.Unlock()

	j.emit(e)
}

// Complete transitions to completed with the stitched final output.
func (j *Job) Complete(output string) {
	j.mu.Lock()
	if j.status.Terminal() {
		j.mu.Unlock()
		return
	}
	j.status = StatusCompleted
	j.updatedAt = time.Now()
	e := ProgressEvent{
		Kind:            KindComplete,
		TotalChunks:     j.totalChunks,
		ChunksProcessed: len(j.parts),
		CumulativeWords: j.cumulativeWords,
		Text:            output,
	}
	j.mu.Unlock()

	j.emit(e)
}

// Fail transitions to failed with a human-readable message. Partial output
// stays retrievable.
func (j *Job) Fail(message string) {
	j.mu.Lock()
	if j.status.Terminal() {
		j.mu.Unlock()
		return
	}
	j.status = StatusFailed
	j.updatedAt = time.Now()
	e := ProgressEvent{
		Kind:            KindError,
		TotalChunks:     j.totalChunks,
		ChunksProcessed: len(j.parts),
		Message:         message,
	}
	j.mu.Unlock()

	j.emit(e)
}

// PartialOutput returns accumulated chunk outputs concatenated in index
// order. Valid in every state; empty string when nothing has completed.
func (j *Job) PartialOutput() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return partialOutputLocked(j.parts)
}

func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

func (j *Job) ChunksProcessed() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.parts)
}

func (j *Job) TotalChunks() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.totalChunks
}

func (j *Job) CreatedAt() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.createdAt
}

func (j *Job) UpdatedAt() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.updatedAt
}

func partialOutputLocked(parts map[int]string) string {
	if len(parts) == 0 {
		return ""
	}
	indices := make([]int, 0, len(parts))
	for i := range parts {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	out := make([]string, 0, len(indices))
	for _, i := range indices {
		out = append(out, parts[i])
	}
	return strings.Join(out, "\n\n")
}

func countPartWords(parts map[int]string) int {
	n := 0
	for _, p := range parts {
		n += len(strings.Fields(p))
	}
	return n
}
