package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/shared/resilience"
)

const openaiDefaultModel = "gpt-4o"

type OpenAI struct {
	client  *openai.Client
	model   string
	breaker *resilience.CircuitBreaker
	metrics *gatewayMetrics
}

func NewOpenAI(apiKey, model string, registry *prometheus.Registry) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	if model == "" {
		model = openaiDefaultModel
	}

	return &OpenAI{
		client:  openai.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		breaker: resilience.NewCircuitBreaker("openai", 5, 30*time.Second),
		metrics: newGatewayMetrics(registry),
	}, nil
}

func (p *OpenAI) Name() string {
	return "openai"
}

func (p *OpenAI) params(systemPrompt, prompt string, o *CompleteOptions) openai.ChatCompletionNewParams {
	model := o.Model
	if model == "" {
		model = p.model
	}

	return openai.ChatCompletionNewParams{
		Model: openai.F(openai.ChatModel(model)),
		Messages: openai.F([]openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		}),
		MaxTokens:   openai.F(int64(o.MaxTokens)),
		Temperature: openai.F(o.Temperature),
	}
}

func (p *OpenAI) Complete(ctx context.Context, systemPrompt, prompt string, opts ...CompleteOption) (string, error) {
	o := ResolveOptions(opts...)
	if !p.breaker.Allow() {
		return "", NewError(p.Name(), ErrorKindUnavailable, errors.New("circuit open"))
	}

	ctx, cancel := callContext(ctx, o)
	defer cancel()

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, p.params(systemPrompt, prompt, o))
	p.breaker.RecordResult(err)
	p.metrics.observe(p.Name(), start, err)
	if err != nil {
		return "", p.classifyAPIError(err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", NewError(p.Name(), ErrorKindMalformed, errors.New("completion contained no text"))
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAI) CompleteStreaming(ctx context.Context, systemPrompt, prompt string, onToken func(ctx context.Context, token string), opts ...CompleteOption) (string, error) {
	o := ResolveOptions(opts...)
	if !p.breaker.Allow() {
		return "", NewError(p.Name(), ErrorKindUnavailable, errors.New("circuit open"))
	}

	ctx, cancel := callContext(ctx, o)
	defer cancel()

	start := time.Now()
	stream := p.client.Chat.Completions.NewStreaming(ctx, p.params(systemPrompt, prompt, o))
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" && onToken != nil {
			onToken(ctx, chunk.Choices[0].Delta.Content)
		}
	}

	err := stream.Err()
	p.breaker.RecordResult(err)
	p.metrics.observe(p.Name(), start, err)
	if err != nil {
		return "", p.classifyAPIError(err)
	}

	if len(acc.Choices) == 0 || acc.Choices[0].Message.Content == "" {
		return "", NewError(p.Name(), ErrorKindMalformed, errors.New("completion contained no text"))
	}
	return acc.Choices[0].Message.Content, nil
}

func (p *OpenAI) classifyAPIError(err error) *Error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		if apierr.StatusCode == 429 {
			pe := NewError(p.Name(), ErrorKindRateLimited, err)
			pe.RetryAfter = 20 * time.Second
			return pe
		}
	}
	return classify(p.Name(), err)
}
