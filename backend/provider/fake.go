package provider

import (
	"context"
	"strings"
	"sync"
)

// FakeCall records one request the fake gateway served.
type FakeCall struct {
	SystemPrompt string
	Prompt       string
}

// Fake is a scripted in-memory Gateway used by strategy tests. The respond
// function receives the zero-based call number and both prompts; whatever it
// returns is the completion.
type Fake struct {
	mu      sync.Mutex
	respond func(call int, systemPrompt, prompt string) (string, error)
	calls   []FakeCall
}

func NewFake(respond func(call int, systemPrompt, prompt string) (string, error)) *Fake {
	return &Fake{respond: respond}
}

// NewFakeStatic always answers with the same text.
func NewFakeStatic(text string) *Fake {
	return NewFake(func(int, string, string) (string, error) {
		return text, nil
	})
}

func (f *Fake) Name() string {
	return "fake"
}

func (f *Fake) Complete(ctx context.Context, systemPrompt, prompt string, opts ...CompleteOption) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", classify(f.Name(), err)
	}

	f.mu.Lock()
	call := len(f.calls)
	f.calls = append(f.calls, FakeCall{SystemPrompt: systemPrompt, Prompt: prompt})
	f.mu.Unlock()

	return f.respond(call, systemPrompt, prompt)
}

func (f *Fake) CompleteStreaming(ctx context.Context, systemPrompt, prompt string, onToken func(ctx context.Context, token string), opts ...CompleteOption) (string, error) {
	text, err := f.Complete(ctx, systemPrompt, prompt, opts...)
	if err != nil {
		return "", err
	}
	if onToken != nil {
		for _, word := range strings.Fields(text) {
			onToken(ctx, word+" ")
		}
	}
	return text, nil
}

// Calls returns a copy of all recorded requests.
func (f *Fake) Calls() []FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns how many requests the fake has served.
func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
