package strategy

import (
	"context"
	"fmt"
	"strings"

	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/provider"
	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/textutil"
)

// runExpansion grows the source toward a target word count one titled
// section at a time, emitting a progress event after every section. The
// loop is bounded at twice the estimated section count: when the provider
// cannot be coerced past the target within that budget the run completes
// with the shortfall flag raised instead of looping or failing.
func runExpansion(ctx context.Context, d deps, t *Task) (*Result, error) {
	target := t.Selection.TargetWords
	if target <= 0 {
		target = d.tuning.DefaultExpansionTarget
	}

	perSection := d.tuning.WordsPerSection
	estimated := max(1, (target+perSection-1)/perSection)
	maxAttempts := 2 * estimated

	t.Job.Start(estimated)

	temperature := 0.6
	if t.Selection.Aggressive {
		temperature = 0.8
	}
	opts := append(d.callOpts(), provider.WithTemperature(temperature))

	var titles []string
	sections := 0
	cumulative := 0

	for attempts := 0; cumulative < target && attempts < maxAttempts; attempts++ {
		if t.Job.AbortRequested() {
			return nil, errAborted
		}

		askWords := min(perSection, max(200, target-cumulative))
		system, user := d.prompts.ExpansionSection(
			t.req.Text, t.req.CustomInstructions, sections, askWords, target-cumulative, titles,
		)

		raw, err := d.gateway.Complete(ctx, system, user, opts...)
		if err != nil {
			return nil, err
		}

		content := strings.TrimSpace(raw)
		if content == "" {
			// Burned an attempt; the bound above keeps this finite.
			continue
		}

		title := sectionTitle(content, sections)
		titles = append(titles, title)
		cumulative += textutil.CountWords(content)

		// Short provider sections can push the run past the estimate;
		// grow the reported total so processed never exceeds it.
		t.Job.GrowTotal(sections + 1)
		t.Job.RecordSection(sections, title, content)
		d.persistChunk(ctx, t.Job.ID, sections, content)
		sections++
	}

	return &Result{
		Output:            t.Job.PartialOutput(),
		SectionsGenerated: sections,
		TargetWords:       target,
		Shortfall:         cumulative < target,
		TotalChunks:       t.Job.TotalChunks(),
	}, nil
}

// sectionTitle pulls the markdown heading the prompt asks each section to
// open with, falling back to a positional name.
func sectionTitle(content string, index int) string {
	line, _, _ := strings.Cut(content, "\n")
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "#") {
		return strings.TrimSpace(strings.TrimLeft(line, "# "))
	}
	return fmt.Sprintf("Section %d", index+1)
}
