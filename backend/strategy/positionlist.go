package strategy

import (
	"context"
	"strings"

	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/textutil"
	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/shared"
)

// runPositionList transforms a pipe-delimited list of discrete positions
// item by item, preserving original relative order. Malformed lines were
// already counted and skipped by the parser; a provider reply of SKIP
// excludes a position from the output without failing anything.
func runPositionList(ctx context.Context, d deps, t *Task) (*Result, error) {
	positions, malformed := textutil.ParsePositionList(t.req.Text)
	if len(positions) == 0 {
		return nil, shared.Wrap(shared.ErrorSourceInput, ErrInvalidInput,
			"position list has no well-formed lines (%d malformed)", malformed)
	}

	t.Job.Start(len(positions))

	var kept []string
	selected := 0

	for i, pos := range positions {
		if t.Job.AbortRequested() {
			return nil, errAborted
		}

		system, user := d.prompts.Position(pos.Fields, t.req.CustomInstructions)
		raw, err := d.gateway.Complete(ctx, system, user, d.callOpts()...)
		if err != nil {
			return nil, err
		}

		reply := strings.TrimSpace(raw)
		if strings.EqualFold(reply, "SKIP") {
			continue
		}

		kept = append(kept, reply)
		selected++
		t.Job.RecordChunkComplete(i, reply)
		d.persistChunk(ctx, t.Job.ID, i, reply)
	}

	return &Result{
		Output:             strings.Join(kept, "\n"),
		PositionsProcessed: len(positions),
		PositionsSelected:  selected,
		TotalPositions:     len(positions) + malformed,
	}, nil
}
