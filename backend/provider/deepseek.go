package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	deepseek "github.com/cohesion-org/deepseek-go"
	"github.com/cohesion-org/deepseek-go/constants"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/shared/resilience"
)

type DeepSeek struct {
	client  *deepseek.Client
	model   string
	breaker *resilience.CircuitBreaker
	metrics *gatewayMetrics
}

func NewDeepSeek(apiKey, model string, registry *prometheus.Registry) (*DeepSeek, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("deepseek API key is required")
	}
	if model == "" {
		model = deepseek.DeepSeekChat
	}

	return &DeepSeek{
		client:  deepseek.NewClient(apiKey),
		model:   model,
		breaker: resilience.NewCircuitBreaker("deepseek", 5, 30*time.Second),
		metrics: newGatewayMetrics(registry),
	}, nil
}

func (p *DeepSeek) Name() string {
	return "deepseek"
}

func (p *DeepSeek) messages(systemPrompt, prompt string) []deepseek.ChatCompletionMessage {
	return []deepseek.ChatCompletionMessage{
		{Role: constants.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: constants.ChatMessageRoleUser, Content: prompt},
	}
}

func (p *DeepSeek) Complete(ctx context.Context, systemPrompt, prompt string, opts ...CompleteOption) (string, error) {
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
	resp, err := p.client.CreateChatCompletion(ctx, &deepseek.ChatCompletionRequest{
		Model:       model,
		Messages:    p.messages(systemPrompt, prompt),
		MaxTokens:   o.MaxTokens,
		Temperature: float32(o.Temperature),
	})
	p.breaker.RecordResult(err)
	p.metrics.observe(p.Name(), start, err)
	if err != nil {
		return "", classify(p.Name(), err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", NewError(p.Name(), ErrorKindMalformed, errors.New("completion contained no text"))
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *DeepSeek) CompleteStreaming(ctx context.Context, systemPrompt, prompt string, onToken func(ctx context.Context, token string), opts ...CompleteOption) (string, error) {
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
	stream, err := p.client.CreateChatCompletionStream(ctx, &deepseek.StreamChatCompletionRequest{
		Model:       model,
		Messages:    p.messages(systemPrompt, prompt),
		MaxTokens:   o.MaxTokens,
		Temperature: float32(o.Temperature),
		Stream:      true,
	})
	if err != nil {
		p.breaker.RecordResult(err)
		p.metrics.observe(p.Name(), start, err)
		return "", classify(p.Name(), err)
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			p.breaker.RecordResult(err)
			p.metrics.observe(p.Name(), start, err)
			return "", classify(p.Name(), err)
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			sb.WriteString(choice.Delta.Content)
			if onToken != nil {
				onToken(ctx, choice.Delta.Content)
			}
		}
	}

	p.breaker.RecordResult(nil)
	p.metrics.observe(p.Name(), start, nil)
	if sb.Len() == 0 {
		return "", NewError(p.Name(), ErrorKindMalformed, errors.New("completion contained no text"))
	}
	return sb.String(), nil
}
