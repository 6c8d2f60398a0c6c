package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/provider"
	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/textutil"
	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/shared/resilience"
)

// runOutlineFirst is the two-phase medium-document strategy: extract the
// outline once, regenerate one section per key point with the outline as
// fixed shared context, then stitch in outline order. Section calls run
// concurrently up to the configured limit; outputs are collected by index
// so stitching order never depends on completion order.
func runOutlineFirst(ctx context.Context, d deps, t *Task) (*Result, error) {
	retryCfg := resilience.RetryConfig{
		MaxAttempts:        d.tuning.SectionRetries + 1,
		InitialDelay:       time.Second,
		MaxDelay:           20 * time.Second,
		BackoffMultiplier:  2,
		UseProviderBackoff: true,
	}

	// Phase 1: no outline, no job. Failure here is fatal.
	outline, outlineJSON, err := extractOutline(ctx, d, retryCfg, t.req.Text)
	if err != nil {
		return nil, err
	}

	n := len(outline.KeyPoints)
	t.Job.Start(n)

	regions := sourceRegions(t.req.Text, n)
	sections := make([]string, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, d.tuning.SectionConcurrency))

	for i, point := range outline.KeyPoints {
		if t.Job.AbortRequested() {
			break
		}

		g.Go(func() error {
			system, user := d.prompts.Section(outlineJSON, i, point, regions[i])

			var text string
			err := resilience.Do(gctx, retryCfg, nil, func(ctx context.Context) error {
				var cerr error
				text, cerr = d.gateway.Complete(ctx, system, user, d.callOpts()...)
				return cerr
			})
			if err != nil {
				return err
			}

			sections[i] = strings.TrimSpace(text)
			t.Job.RecordChunkComplete(i, sections[i])
			d.persistChunk(gctx, t.Job.ID, i, sections[i])
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if t.Job.AbortRequested() {
		return nil, errAborted
	}

	// Stitch in outline order with a single blank line between sections.
	output := strings.Join(sections, "\n\n")

	return &Result{
		Output:            output,
		SectionsGenerated: n,
		TotalChunks:       n,
	}, nil
}

func extractOutline(ctx context.Context, d deps, retryCfg resilience.RetryConfig, text string) (*Outline, string, error) {
	system, user := d.prompts.OutlineExtract(text)

	var outline Outline
	err := resilience.Do(ctx, retryCfg, nil, func(ctx context.Context) error {
		raw, cerr := d.gateway.Complete(ctx, system, user, d.callOpts()...)
		if cerr != nil {
			return cerr
		}
		outline = Outline{}
		if jerr := unmarshalLenient([]byte(raw), &outline); jerr != nil {
			return provider.NewError(d.gateway.Name(), provider.ErrorKindMalformed, jerr)
		}
		if len(outline.KeyPoints) == 0 {
			return provider.NewError(d.gateway.Name(), provider.ErrorKindMalformed, errors.New("outline has no key points"))
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	encoded, err := json.Marshal(outline)
	if err != nil {
		return nil, "", err
	}
	return &outline, string(encoded), nil
}

// sourceRegions cuts the source into n contiguous paragraph groups of
// roughly equal word weight, one per outline key point, in document order.
func sourceRegions(text string, n int) []string {
	regions := make([]string, n)
	if n == 0 {
		return regions
	}

	paras := strings.Split(text, "\n\n")
	totalWords := textutil.CountWords(text)
	perRegion := max(1, totalWords/n)

	region := 0
	var current []string
	words := 0

	for _, p := range paras {
		current = append(current, p)
		words += textutil.CountWords(p)
		if words >= perRegion && region < n-1 {
			regions[region] = strings.Join(current, "\n\n")
			region++
			current = nil
			words = 0
		}
	}
	regions[region] = strings.Join(current, "\n\n")

	// Leftover empty regions reuse the full text as context rather than
	// handing a section writer nothing.
	for i := range regions {
		if strings.TrimSpace(regions[i]) == "" {
			regions[i] = text
		}
	}
	return regions
}
