package strategy

import (
	"context"
	"strings"
)

// runDirect performs the single-pass transformation that obeys explicit
// user instructions verbatim. One provider call; any provider error fails
// the job immediately.
func runDirect(ctx context.Context, d deps, t *Task) (*Result, error) {
	t.Job.Start(1)

	system, user := d.prompts.Direct(t.req.Text, t.req.CustomInstructions)
	output, err := d.gateway.Complete(ctx, system, user, d.callOpts()...)
	if err != nil {
		return nil, err
	}

	output = strings.TrimSpace(output)
	t.Job.RecordChunkComplete(0, output)
	d.persistChunk(ctx, t.Job.ID, 0, output)

	return &Result{Output: output}, nil
}
