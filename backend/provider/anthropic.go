package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/shared/resilience"
)

const anthropicDefaultModel = "claude-3-7-sonnet-20250219"

type Anthropic struct {
	client  *anthropic.Client
	model   string
	breaker *resilience.CircuitBreaker
	metrics *gatewayMetrics
}

func NewAnthropic(apiKey, model string, registry *prometheus.Registry) (*Anthropic, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if model == "" {
		model = anthropicDefaultModel
	}

	return &Anthropic{
		client:  anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		breaker: resilience.NewCircuitBreaker("anthropic", 5, 30*time.Second),
		metrics: newGatewayMetrics(registry),
	}, nil
}

func (p *Anthropic) Name() string {
	return "anthropic"
}

func (p *Anthropic) Complete(ctx context.Context, systemPrompt, prompt string, opts ...CompleteOption) (string, error) {
	return p.CompleteStreaming(ctx, systemPrompt, prompt, nil, opts...)
}

func (p *Anthropic) CompleteStreaming(ctx context.Context, systemPrompt, prompt string, onToken func(ctx context.Context, token string), opts ...CompleteOption) (string, error) {
	o := ResolveOptions(opts...)
	if !p.breaker.Allow() {
		return "", NewError(p.Name(), ErrorKindUnavailable, errors.New("circuit open"))
	}

	ctx, cancel := callContext(ctx, o)
	defer cancel()

	model := o.Model
	if model == "" {
		model = p.model
	}

	start := time.Now()
	stream := p.client.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
		Model:       anthropic.F(model),
		MaxTokens:   anthropic.F(int64(o.MaxTokens)),
		Temperature: anthropic.F(o.Temperature),
		System: anthropic.F([]anthropic.TextBlockParam{
			{
				Type: anthropic.F(anthropic.TextBlockParamTypeText),
				Text: anthropic.F(systemPrompt),
			},
		}),
		Messages: anthropic.F([]anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		}),
	})
	defer stream.Close()

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		message.Accumulate(event)

		switch delta := event.Delta.(type) {
		case anthropic.ContentBlockDeltaEventDelta:
			if delta.Text != "" && onToken != nil {
				onToken(ctx, delta.Text)
			}
		}
	}

	err := stream.Err()
	p.breaker.RecordResult(err)
	p.metrics.observe(p.Name(), start, err)
	if err != nil {
		return "", p.classifyAPIError(err)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", NewError(p.Name(), ErrorKindMalformed, errors.New("completion contained no text"))
	}
	return sb.String(), nil
}

func (p *Anthropic) classifyAPIError(err error) *Error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		switch apierr.StatusCode {
		case 429:
			pe := NewError(p.Name(), ErrorKindRateLimited, err)
			pe.RetryAfter = 20 * time.Second
			return pe
		case 529:
			return NewError(p.Name(), ErrorKindUnavailable, err)
		}
	}
	return classify(p.Name(), err)
}
