package strategy

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/chunker"
	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/provider"
	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/shared/resilience"
)

// crossChunkReply is the provider's per-chunk contract: the rewritten
// segment plus the updated global state that later chunks must respect.
type crossChunkReply struct {
	Section string      `json:"section"`
	State   GlobalState `json:"state"`
}

// runCrossChunk processes a long document chunk by chunk, threading the
// rolling global state through each provider call so terminology and
// claims stay consistent across the whole output. Chunks are strictly
// sequential; the state produced by chunk i is input to chunk i+1. The
// abort flag is checked before every provider call, and both the chunk
// output and the updated state are persisted after every chunk, so an
// abort or crash leaves a resumable snapshot.
func runCrossChunk(ctx context.Context, d deps, t *Task) (*Result, error) {
	chunks := chunker.Split(t.req.Text, d.tuning.MaxWordsPerChunk)
	t.Job.Start(len(chunks))

	state := GlobalState{}
	startIndex := 0
	outputs := make([]string, len(chunks))

	if t.resumed {
		// Skip chunks the previous run already finished and pick up its
		// accumulator instead of recomputing anything.
		for i, text := range t.completedParts {
			if i < len(chunks) {
				outputs[i] = text
				if i >= startIndex {
					startIndex = i + 1
				}
			}
		}
		if t.resumeState != nil {
			state = *t.resumeState
		}
		slog.InfoContext(ctx, "resuming cross-chunk job",
			"session_id", t.Job.ID,
			"start_chunk", startIndex,
			"total_chunks", len(chunks),
		)
	}

	retryCfg := resilience.RetryConfig{
		MaxAttempts:        d.tuning.ChunkRetries + 1,
		InitialDelay:       time.Second,
		MaxDelay:           20 * time.Second,
		BackoffMultiplier:  2,
		UseProviderBackoff: true,
	}

	for i := startIndex; i < len(chunks); i++ {
		if t.Job.AbortRequested() {
			return nil, errAborted
		}

		stateJSON, err := json.Marshal(state)
		if err != nil {
			return nil, err
		}

		system, user := d.prompts.CrossChunk(chunks[i].Text, string(stateJSON), t.req.CustomInstructions)

		var reply crossChunkReply
		err = resilience.Do(ctx, retryCfg, nil, func(ctx context.Context) error {
			raw, cerr := d.gateway.Complete(ctx, system, user, d.callOpts()...)
			if cerr != nil {
				return cerr
			}
			reply = crossChunkReply{}
			if jerr := unmarshalLenient([]byte(raw), &reply); jerr != nil {
				return provider.NewError(d.gateway.Name(), provider.ErrorKindMalformed, jerr)
			}
			if strings.TrimSpace(reply.Section) == "" {
				return provider.NewError(d.gateway.Name(), provider.ErrorKindMalformed, nil)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		outputs[i] = strings.TrimSpace(reply.Section)
		state = reply.State

		t.Job.RecordChunkComplete(i, outputs[i])
		d.persistChunk(ctx, t.Job.ID, i, outputs[i])
		if d.store != nil {
			if raw, merr := json.Marshal(state); merr == nil {
				if serr := d.store.SaveGlobalState(ctx, t.Job.ID, raw); serr != nil {
					slog.ErrorContext(ctx, "failed to persist global state",
						"session_id", t.Job.ID,
						"chunk_index", i,
						"error", serr,
					)
				}
			}
		}
	}

	return &Result{
		Output:      strings.Join(outputs, "\n\n"),
		TotalChunks: len(chunks),
	}, nil
}
