package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/config"
	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/prompt"
	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/provider"
	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/session"
	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/store"
	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/textutil"
	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/shared"
)

// Engine owns strategy selection and execution. One engine serves all
// requests; each run gets its own Task and Job and shares nothing with
// other runs.
type Engine struct {
	gateways        map[string]provider.Gateway
	defaultProvider string
	registry        *session.Registry
	store           *store.Store
	prompts         *prompt.Library
	tuning          config.Tuning
	metrics         *engineMetrics
}

type EngineOptions struct {
	Gateways        map[string]provider.Gateway
	DefaultProvider string
	Registry        *session.Registry
	Store           *store.Store
	Prompts         *prompt.Library
	Tuning          config.Tuning
	Metrics         *prometheus.Registry
}

func NewEngine(opts EngineOptions) *Engine {
	prompts := opts.Prompts
	if prompts == nil {
		prompts = prompt.DefaultLibrary()
	}
	return &Engine{
		gateways:        opts.Gateways,
		defaultProvider: opts.DefaultProvider,
		registry:        opts.Registry,
		store:           opts.Store,
		prompts:         prompts,
		tuning:          opts.Tuning,
		metrics:         newEngineMetrics(opts.Metrics),
	}
}

// Task is a prepared reconstruction run: validated request, chosen
// strategy, registered job.
type Task struct {
	Job       *session.Job
	Selection Selection

	req        Request
	gateway    provider.Gateway
	inputWords int

	// resume state, only set for resumed cross-chunk runs
	resumed        bool
	completedParts map[int]string
	resumeState    *GlobalState
}

// Prepare validates a request, selects a strategy and registers the job.
// Invalid input is reported here, synchronously, before any provider call.
func (e *Engine) Prepare(ctx context.Context, req Request) (*Task, error) {
	inputWords := textutil.CountWords(req.Text)

	selection, err := Select(inputWords, req.CustomInstructions, req.Text, req.Fidelity, e.tuning)
	if err != nil {
		return nil, shared.Wrap(shared.ErrorSourceInput, err, "strategy selection")
	}

	gateway, err := e.gateway(req.Provider)
	if err != nil {
		return nil, err
	}

	job := e.registry.Create(string(selection.Kind))

	if e.store != nil {
		err := e.store.CreateSession(ctx, store.SessionRecord{
			ID:           job.ID,
			Strategy:     string(selection.Kind),
			Status:       string(session.StatusCreated),
			SourceText:   req.Text,
			Instructions: req.CustomInstructions,
		})
		if err != nil {
			e.registry.Remove(job.ID)
			return nil, err
		}
	}

	return &Task{
		Job:        job,
		Selection:  selection,
		req:        req,
		gateway:    gateway,
		inputWords: inputWords,
	}, nil
}

// Resume rebuilds a cross-chunk task from persisted state. Completed
// chunks are not recomputed; processing continues after the highest
// completed index with the persisted global state.
func (e *Engine) Resume(ctx context.Context, sessionID uuid.UUID, providerName string) (*Task, error) {
	if e.store == nil {
		return nil, shared.Errorf(shared.ErrorSourceSystem, "resume requires persistence")
	}

	rec, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if rec.Strategy != string(KindCrossChunk) {
		return nil, shared.Errorf(shared.ErrorSourceInput, "session %s used strategy %s, only %s jobs resume", sessionID, rec.Strategy, KindCrossChunk)
	}
	if rec.Status == string(session.StatusCompleted) {
		return nil, shared.Errorf(shared.ErrorSourceInput, "session %s already completed", sessionID)
	}

	completed, err := e.store.ChunkOutputs(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var state *GlobalState
	raw, err := e.store.GlobalState(ctx, sessionID)
	switch {
	case err == nil:
		state = &GlobalState{}
		if jerr := unmarshalLenient(raw, state); jerr != nil {
			return nil, shared.Wrap(shared.ErrorSourceStorage, jerr, "decode persisted global state")
		}
	case errors.Is(err, store.ErrNotFound):
		// No state persisted yet; the run restarts from chunk 0 with a
		// fresh accumulator but keeps any completed outputs.
	default:
		return nil, err
	}

	gateway, err := e.gateway(providerName)
	if err != nil {
		return nil, err
	}

	job := e.registry.Attach(sessionID, rec.Strategy, completed)

	return &Task{
		Job:            job,
		Selection:      Selection{Kind: KindCrossChunk},
		req:            Request{Text: rec.SourceText, CustomInstructions: rec.Instructions},
		gateway:        gateway,
		inputWords:     textutil.CountWords(rec.SourceText),
		resumed:        true,
		completedParts: completed,
		resumeState:    state,
	}, nil
}

// Execute runs a prepared task to its terminal state. Strategy errors
// never escape: they become a failed result and an error event, and the
// process keeps serving other jobs.
func (e *Engine) Execute(ctx context.Context, t *Task) *Result {
	start := time.Now()
	logger := slog.With("session_id", t.Job.ID, "strategy", t.Selection.Kind)
	logger.InfoContext(ctx, "reconstruction started", "input_words", t.inputWords)

	d := deps{
		gateway: t.gateway,
		prompts: e.prompts,
		tuning:  e.tuning,
		store:   e.store,
	}

	var result *Result
	var err error

	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("strategy panic: %v", r)
				logger.ErrorContext(ctx, "strategy panicked", "error", r)
			}
		}()

		switch t.Selection.Kind {
		case KindDirectInstruction:
			result, err = runDirect(ctx, d, t)
		case KindDiagnostic:
			result, err = runDiagnostic(ctx, d, t)
		case KindOutlineFirst:
			result, err = runOutlineFirst(ctx, d, t)
		case KindCrossChunk:
			result, err = runCrossChunk(ctx, d, t)
		case KindUniversalExpansion:
			result, err = runExpansion(ctx, d, t)
		case KindPositionList:
			result, err = runPositionList(ctx, d, t)
		default:
			err = fmt.Errorf("unknown strategy %q", t.Selection.Kind)
		}
	}()

	elapsed := time.Since(start)

	switch {
	case errors.Is(err, errAborted):
		t.Job.MarkAborted()
		result = &Result{
			Success: true,
			Status:  string(session.StatusAborted),
			Output:  t.Job.PartialOutput(),
		}
		logger.InfoContext(ctx, "reconstruction aborted",
			"chunks_processed", t.Job.ChunksProcessed(),
			"duration", elapsed,
		)
	case err != nil:
		t.Job.Fail(err.Error())
		result = &Result{
			Success: false,
			Status:  string(session.StatusFailed),
			Message: err.Error(),
			Output:  t.Job.PartialOutput(),
		}
		logger.ErrorContext(ctx, "reconstruction failed", "error", err, "duration", elapsed)
	default:
		t.Job.Complete(result.Output)
		result.Success = true
		result.Status = string(session.StatusCompleted)
		logger.InfoContext(ctx, "reconstruction completed",
			"output_words", textutil.CountWords(result.Output),
			"duration", elapsed,
		)
	}

	result.SessionID = t.Job.ID
	result.Mode = t.Selection.Kind
	result.InputWordCount = t.inputWords
	result.OutputWordCount = textutil.CountWords(result.Output)
	result.ChunksProcessed = t.Job.ChunksProcessed()
	if result.TotalChunks == 0 {
		result.TotalChunks = t.Job.TotalChunks()
	}
	result.ProcessingTime = elapsed

	e.persistOutcome(t, result)
	e.metrics.observe(string(t.Selection.Kind), result.Status, elapsed)

	return result
}

// Run prepares and executes in one call, for non-streaming requests.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	t, err := e.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, t), nil
}

// Abort raises the abort flag for a session. Returns false when the
// session is unknown. Aborting a terminal session is a no-op.
func (e *Engine) Abort(id uuid.UUID) (*session.Job, bool) {
	job := e.registry.Abort(id)
	return job, job != nil
}

func (e *Engine) Registry() *session.Registry {
	return e.registry
}

func (e *Engine) gateway(name string) (provider.Gateway, error) {
	if name == "" {
		name = e.defaultProvider
	}
	gw, ok := e.gateways[name]
	if !ok {
		return nil, shared.Errorf(shared.ErrorSourceInput, "unknown provider %q", name)
	}
	return gw, nil
}

// persistOutcome writes the terminal session snapshot. Persistence errors
// are logged, not surfaced; the client already has its result.
func (e *Engine) persistOutcome(t *Task, result *Result) {
	if e.store == nil {
		return
	}
	// The run's context may already be canceled; the snapshot write gets
	// its own deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := e.store.UpdateSession(ctx, t.Job.ID, string(t.Job.Status()),
		t.Job.TotalChunks(), t.Job.ChunksProcessed(), result.Output)
	if err != nil {
		slog.ErrorContext(ctx, "failed to persist session outcome",
			"session_id", t.Job.ID,
			"error", err,
		)
	}
}

// deps is what a strategy run needs; everything is request-scoped except
// the shared prompt library and tuning.
type deps struct {
	gateway provider.Gateway
	prompts *prompt.Library
	tuning  config.Tuning
	store   *store.Store
}

func (d deps) callOpts() []provider.CompleteOption {
	return []provider.CompleteOption{
		provider.WithTimeout(d.tuning.CallTimeout),
	}
}

// persistChunk writes one completed chunk; storage trouble mid-run is
// logged and tolerated so a transient disk error does not kill a
// multi-minute job.
func (d deps) persistChunk(ctx context.Context, sessionID uuid.UUID, index int, text string) {
	if d.store == nil {
		return
	}
	err := d.store.SaveChunkOutput(ctx, sessionID, index, text, textutil.CountWords(text))
	if err != nil {
		slog.ErrorContext(ctx, "failed to persist chunk output",
			"session_id", sessionID,
			"chunk_index", index,
			"error", err,
		)
	}
}

type engineMetrics struct {
	jobs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newEngineMetrics(registry *prometheus.Registry) *engineMetrics {
	if registry == nil {
		return nil
	}
	m := &engineMetrics{
		jobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconstruction_jobs_total",
				Help: "Reconstruction jobs by strategy and terminal status",
			},
			[]string{"strategy", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reconstruction_job_seconds",
				Help:    "Reconstruction job duration by strategy",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"strategy"},
		),
	}
	registry.MustRegister(m.jobs, m.duration)
	return m
}

func (m *engineMetrics) observe(strategy, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(strategy, status).Inc()
	m.duration.WithLabelValues(strategy).Observe(elapsed.Seconds())
}
