package strategy_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/config"
	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/provider"
	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/session"
	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/store"
	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/strategy"
)

func newEngine(t *testing.T, gw provider.Gateway, tuning config.Tuning, s *store.Store) *strategy.Engine {
	t.Helper()
	return strategy.NewEngine(strategy.EngineOptions{
		Gateways:        map[string]provider.Gateway{gw.Name(): gw},
		DefaultProvider: gw.Name(),
		Registry:        session.NewRegistry(nil),
		Store:           s,
		Tuning:          tuning,
	})
}

func prose(words int) string {
	parts := make([]string, words)
	for i := range parts {
		parts[i] = fmt.Sprintf("word%d", i)
	}
	return strings.Join(parts, " ")
}

func TestRunRejectsEmptyRequest(t *testing.T) {
	t.Parallel()

	engine := newEngine(t, provider.NewFakeStatic("never called"), config.DefaultTuning(), nil)
	_, err := engine.Run(context.Background(), strategy.Request{})
	if !errors.Is(err, strategy.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestRunRejectsUnknownProvider(t *testing.T) {
	t.Parallel()

	engine := newEngine(t, provider.NewFakeStatic("never called"), config.DefaultTuning(), nil)
	_, err := engine.Run(context.Background(), strategy.Request{
		Text:     prose(300),
		Provider: "nonexistent",
	})
	if err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestDiagnosticRun(t *testing.T) {
	t.Parallel()

	repaired := "The argument, restated with its missing premise made explicit, now holds."
	fake := provider.NewFakeStatic("DIAGNOSIS: vague-claim\n\n" + repaired)
	engine := newEngine(t, fake, config.DefaultTuning(), nil)

	result, err := engine.Run(context.Background(), strategy.Request{Text: prose(300)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !result.Success {
		t.Errorf("Success = false, message: %s", result.Message)
	}
	if result.Mode != strategy.KindDiagnostic {
		t.Errorf("Mode = %s, want diagnostic", result.Mode)
	}
	if result.Diagnosis != "vague-claim" {
		t.Errorf("Diagnosis = %q, want vague-claim", result.Diagnosis)
	}
	if result.Output != repaired {
		t.Errorf("Output = %q", result.Output)
	}
	if result.InputWordCount != 300 {
		t.Errorf("InputWordCount = %d, want 300", result.InputWordCount)
	}
	if fake.CallCount() != 1 {
		t.Errorf("provider calls = %d, want 1", fake.CallCount())
	}
}

func TestDiagnosticMalformedReplyFailsJob(t *testing.T) {
	t.Parallel()

	fake := provider.NewFakeStatic("I could not decide on a diagnosis.")
	engine := newEngine(t, fake, config.DefaultTuning(), nil)

	result, err := engine.Run(context.Background(), strategy.Request{Text: prose(300)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Success {
		t.Error("Success = true for malformed diagnosis")
	}
	if result.Status != string(session.StatusFailed) {
		t.Errorf("Status = %s, want failed", result.Status)
	}
	if result.Message == "" {
		t.Error("failed result carries no message")
	}
}

func TestDiagnosticUnknownLabelFailsJob(t *testing.T) {
	t.Parallel()

	fake := provider.NewFakeStatic("DIAGNOSIS: made-up-label\n\nsome text")
	engine := newEngine(t, fake, config.DefaultTuning(), nil)

	result, err := engine.Run(context.Background(), strategy.Request{Text: prose(300)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Success {
		t.Error("Success = true for unknown diagnosis label")
	}
}

func TestDiagnosticRejectsUnchangedText(t *testing.T) {
	t.Parallel()

	// A well-formed reply that echoes the input verbatim repaired nothing
	// and must fail the job.
	text := prose(300)
	fake := provider.NewFakeStatic("DIAGNOSIS: vague-claim\n\n" + text)
	engine := newEngine(t, fake, config.DefaultTuning(), nil)

	result, err := engine.Run(context.Background(), strategy.Request{Text: text})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Success {
		t.Error("Success = true although the repaired text is identical to the input")
	}
	if result.Status != string(session.StatusFailed) {
		t.Errorf("Status = %s, want failed", result.Status)
	}
}

func TestDirectInstructionRun(t *testing.T) {
	t.Parallel()

	fake := provider.NewFakeStatic("The transformed text.")
	engine := newEngine(t, fake, config.DefaultTuning(), nil)

	result, err := engine.Run(context.Background(), strategy.Request{
		Text:               prose(200),
		CustomInstructions: "rewrite this in plain English",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Mode != strategy.KindDirectInstruction {
		t.Errorf("Mode = %s, want direct_instruction", result.Mode)
	}
	if result.Output != "The transformed text." {
		t.Errorf("Output = %q", result.Output)
	}

	calls := fake.Calls()
	if len(calls) != 1 {
		t.Fatalf("provider calls = %d, want 1", len(calls))
	}
	if !strings.Contains(calls[0].Prompt, "rewrite this in plain English") {
		t.Error("instructions missing from prompt")
	}
}

func TestProviderFailureFailsJob(t *testing.T) {
	t.Parallel()

	fake := provider.NewFake(func(int, string, string) (string, error) {
		return "", provider.NewError("fake", provider.ErrorKindUnavailable, errors.New("connection refused"))
	})
	engine := newEngine(t, fake, config.DefaultTuning(), nil)

	result, err := engine.Run(context.Background(), strategy.Request{Text: prose(300)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Success {
		t.Error("Success = true after provider failure")
	}
	if result.Status != string(session.StatusFailed) {
		t.Errorf("Status = %s, want failed", result.Status)
	}
}

func outlineFake() *provider.Fake {
	points := map[string]string{
		"point-alpha": "Alpha section.",
		"point-beta":  "Beta section.",
		"point-gamma": "Gamma section.",
	}
	return provider.NewFake(func(call int, system, prompt string) (string, error) {
		if strings.Contains(prompt, "Extract the structural outline") {
			return `{"thesis":"t","keyPoints":["point-alpha","point-beta","point-gamma"],"keyTerms":[],"constraints":[]}`, nil
		}
		for marker, text := range points {
			if strings.Contains(prompt, marker) {
				return text, nil
			}
		}
		return "", fmt.Errorf("unexpected prompt")
	})
}

func TestOutlineFirstRun(t *testing.T) {
	t.Parallel()

	fake := outlineFake()
	engine := newEngine(t, fake, config.DefaultTuning(), nil)

	result, err := engine.Run(context.Background(), strategy.Request{Text: prose(1500)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Mode != strategy.KindOutlineFirst {
		t.Fatalf("Mode = %s, want outline_first", result.Mode)
	}
	if !result.Success {
		t.Fatalf("Success = false, message: %s", result.Message)
	}
	// Stitched in outline order regardless of section completion order.
	want := "Alpha section.\n\nBeta section.\n\nGamma section."
	if result.Output != want {
		t.Errorf("Output = %q, want %q", result.Output, want)
	}
	if result.SectionsGenerated != 3 {
		t.Errorf("SectionsGenerated = %d, want 3", result.SectionsGenerated)
	}
	if fake.CallCount() != 4 {
		t.Errorf("provider calls = %d, want 4 (outline + 3 sections)", fake.CallCount())
	}
}

func TestOutlineFirstIsDeterministicAcrossRuns(t *testing.T) {
	t.Parallel()

	engine := newEngine(t, outlineFake(), config.DefaultTuning(), nil)
	text := prose(1500)

	first, err := engine.Run(context.Background(), strategy.Request{Text: text})
	if err != nil {
		t.Fatal(err)
	}
	second, err := engine.Run(context.Background(), strategy.Request{Text: text})
	if err != nil {
		t.Fatal(err)
	}
	if first.Output != second.Output {
		t.Errorf("outputs differ across runs with a fixed provider:\n%q\n%q", first.Output, second.Output)
	}
}

func TestOutlineFirstRetriesMalformedOutline(t *testing.T) {
	t.Parallel()

	fake := provider.NewFake(func(call int, system, prompt string) (string, error) {
		if strings.Contains(prompt, "Extract the structural outline") {
			if call == 0 {
				return "not json at all", nil
			}
			return `{"thesis":"t","keyPoints":["point-alpha"],"keyTerms":[],"constraints":[]}`, nil
		}
		return "The only section.", nil
	})

	tuning := config.DefaultTuning()
	tuning.SectionRetries = 2
	engine := newEngine(t, fake, tuning, nil)

	result, err := engine.Run(context.Background(), strategy.Request{Text: prose(1500)})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Errorf("Success = false after recoverable outline failure: %s", result.Message)
	}
	if result.Output != "The only section." {
		t.Errorf("Output = %q", result.Output)
	}
}

func crossChunkText(segments int) string {
	paras := make([]string, segments)
	for i := range paras {
		words := make([]string, 10)
		words[0] = fmt.Sprintf("seg%d", i)
		for j := 1; j < 10; j++ {
			words[j] = fmt.Sprintf("s%dw%d", i, j)
		}
		paras[i] = strings.Join(words, " ")
	}
	return strings.Join(paras, "\n\n")
}

func crossChunkTuning() config.Tuning {
	tuning := config.DefaultTuning()
	tuning.MediumMinWords = 5
	tuning.MediumMaxWords = 30
	tuning.MaxWordsPerChunk = 10
	return tuning
}

func TestCrossChunkAbortAndResume(t *testing.T) {
	t.Parallel()

	s, err := store.Open(filepath.Join(t.TempDir(), "resume.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	var task *strategy.Task
	served := make(map[int]int)

	fake := provider.NewFake(func(call int, system, prompt string) (string, error) {
		for i := range 5 {
			if !strings.Contains(prompt, fmt.Sprintf("seg%d ", i)) {
				continue
			}
			served[i]++
			if i == 2 {
				// Raised mid-chunk: this chunk still completes, the next
				// boundary observes the flag.
				task.Job.RequestAbort()
			}
			return fmt.Sprintf(`{"section":"out-%d","state":{"thesis":"t","keyTerms":[],"decisions":[],"summary":"after-%d"}}`, i, i), nil
		}
		return "", fmt.Errorf("no segment marker in prompt")
	})

	engine := newEngine(t, fake, crossChunkTuning(), s)
	ctx := context.Background()

	task, err = engine.Prepare(ctx, strategy.Request{Text: crossChunkText(5)})
	if err != nil {
		t.Fatal(err)
	}
	if task.Selection.Kind != strategy.KindCrossChunk {
		t.Fatalf("Kind = %s, want cross_chunk", task.Selection.Kind)
	}

	result := engine.Execute(ctx, task)
	if !result.Success {
		t.Fatalf("aborted run not reported successful: %s", result.Message)
	}
	if result.Status != string(session.StatusAborted) {
		t.Fatalf("Status = %s, want aborted", result.Status)
	}
	if want := "out-0\n\nout-1\n\nout-2"; result.Output != want {
		t.Errorf("partial output = %q, want %q", result.Output, want)
	}
	if result.ChunksProcessed != 3 {
		t.Errorf("ChunksProcessed = %d, want 3", result.ChunksProcessed)
	}

	// Resume: completed chunks must not be recomputed and the persisted
	// global state must thread into the next chunk's prompt.
	resumed, err := engine.Resume(ctx, task.Job.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	task = resumed

	result = engine.Execute(ctx, resumed)
	if !result.Success || result.Status != string(session.StatusCompleted) {
		t.Fatalf("resumed run: success=%v status=%s message=%s", result.Success, result.Status, result.Message)
	}
	if want := "out-0\n\nout-1\n\nout-2\n\nout-3\n\nout-4"; result.Output != want {
		t.Errorf("resumed output = %q, want %q", result.Output, want)
	}

	for i := range 5 {
		if served[i] != 1 {
			t.Errorf("segment %d served %d times, want exactly once", i, served[i])
		}
	}

	var seg3Prompt string
	for _, c := range fake.Calls() {
		if strings.Contains(c.Prompt, "seg3 ") {
			seg3Prompt = c.Prompt
		}
	}
	if !strings.Contains(seg3Prompt, "after-2") {
		t.Error("resumed chunk did not receive the persisted global state")
	}
}

func TestCrossChunkThreadsStateSequentially(t *testing.T) {
	t.Parallel()

	fake := provider.NewFake(func(call int, system, prompt string) (string, error) {
		for i := range 5 {
			if strings.Contains(prompt, fmt.Sprintf("seg%d ", i)) {
				if i > 0 && !strings.Contains(prompt, fmt.Sprintf("after-%d", i-1)) {
					return "", fmt.Errorf("chunk %d missing state from chunk %d", i, i-1)
				}
				return fmt.Sprintf(`{"section":"out-%d","state":{"thesis":"t","keyTerms":[],"decisions":[],"summary":"after-%d"}}`, i, i), nil
			}
		}
		return "", fmt.Errorf("no segment marker in prompt")
	})

	engine := newEngine(t, fake, crossChunkTuning(), nil)
	result, err := engine.Run(context.Background(), strategy.Request{Text: crossChunkText(5)})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("run failed: %s", result.Message)
	}
	if result.TotalChunks != 5 {
		t.Errorf("TotalChunks = %d, want 5", result.TotalChunks)
	}
}

func expansionSection(words int) string {
	filler := make([]string, words-2)
	for i := range filler {
		filler[i] = fmt.Sprintf("e%d", i)
	}
	return "# Segment\n" + strings.Join(filler, " ")
}

func TestExpansionReachesTarget(t *testing.T) {
	t.Parallel()

	fake := provider.NewFakeStatic(expansionSection(250))
	engine := newEngine(t, fake, config.DefaultTuning(), nil)

	result, err := engine.Run(context.Background(), strategy.Request{
		Text:               prose(50),
		CustomInstructions: "expand to 1000 words",
	})
	if err != nil {
		t.Fatal(err)
	}

	if result.Mode != strategy.KindUniversalExpansion {
		t.Fatalf("Mode = %s, want universal_expansion", result.Mode)
	}
	if !result.Success || result.Status != string(session.StatusCompleted) {
		t.Fatalf("success=%v status=%s", result.Success, result.Status)
	}
	if result.TargetWords != 1000 {
		t.Errorf("TargetWords = %d, want 1000", result.TargetWords)
	}
	// 250 words per section against a 1000-word target: exactly four
	// sections, inside the 2x-estimate attempt bound.
	if result.SectionsGenerated != 4 {
		t.Errorf("SectionsGenerated = %d, want 4", result.SectionsGenerated)
	}
	if result.OutputWordCount < 1000 {
		t.Errorf("OutputWordCount = %d, want >= 1000", result.OutputWordCount)
	}
	if result.Shortfall {
		t.Error("Shortfall raised although the target was reached")
	}
}

func TestExpansionShortfallCompletesWithFlag(t *testing.T) {
	t.Parallel()

	fake := provider.NewFakeStatic(expansionSection(100))
	engine := newEngine(t, fake, config.DefaultTuning(), nil)

	result, err := engine.Run(context.Background(), strategy.Request{
		Text:               prose(50),
		CustomInstructions: "expand to 1000 words",
	})
	if err != nil {
		t.Fatal(err)
	}

	if !result.Success || result.Status != string(session.StatusCompleted) {
		t.Fatalf("shortfall must complete, got success=%v status=%s", result.Success, result.Status)
	}
	if !result.Shortfall {
		t.Error("Shortfall flag not raised")
	}
	// ceil(1000/600) = 2 estimated sections, so at most 4 attempts.
	if result.SectionsGenerated != 4 {
		t.Errorf("SectionsGenerated = %d, want 4", result.SectionsGenerated)
	}
	if result.OutputWordCount >= 1000 {
		t.Errorf("OutputWordCount = %d, expected under target", result.OutputWordCount)
	}
	// The run outgrew its 2-section estimate; the reported total must have
	// grown with it so processed never exceeds total.
	if result.TotalChunks != 4 {
		t.Errorf("TotalChunks = %d, want 4", result.TotalChunks)
	}
	if result.ChunksProcessed > result.TotalChunks {
		t.Errorf("ChunksProcessed = %d exceeds TotalChunks = %d",
			result.ChunksProcessed, result.TotalChunks)
	}
}

func TestPositionListRun(t *testing.T) {
	t.Parallel()

	text := strings.Join([]string{
		"1 | mind equals brain | identity",
		"2 | mind is function | functionalism",
		"broken line without fields",
		"3 | mind is separate | dualism",
	}, "\n")

	fake := provider.NewFake(func(call int, system, prompt string) (string, error) {
		if strings.Contains(prompt, "dualism") {
			return "SKIP", nil
		}
		return "kept position", nil
	})
	engine := newEngine(t, fake, config.DefaultTuning(), nil)

	result, err := engine.Run(context.Background(), strategy.Request{
		Text:               text,
		CustomInstructions: "keep only the materialist positions",
	})
	if err != nil {
		t.Fatal(err)
	}

	if result.Mode != strategy.KindPositionList {
		t.Fatalf("Mode = %s, want position_list", result.Mode)
	}
	if !result.Success {
		t.Fatalf("run failed: %s", result.Message)
	}
	if result.PositionsProcessed != 3 {
		t.Errorf("PositionsProcessed = %d, want 3", result.PositionsProcessed)
	}
	if result.PositionsSelected != 2 {
		t.Errorf("PositionsSelected = %d, want 2", result.PositionsSelected)
	}
	if result.TotalPositions != 4 {
		t.Errorf("TotalPositions = %d, want 4 (3 well-formed + 1 malformed)", result.TotalPositions)
	}
	if got := strings.Count(result.Output, "kept position"); got != 2 {
		t.Errorf("output has %d kept positions, want 2", got)
	}
}

func TestAbortUnknownSession(t *testing.T) {
	t.Parallel()

	engine := newEngine(t, provider.NewFakeStatic("x"), config.DefaultTuning(), nil)
	if _, ok := engine.Abort(uuid.New()); ok {
		t.Error("Abort on unknown session reported success")
	}
}
