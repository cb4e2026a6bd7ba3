package analytics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"FuturesCast/internal/domain/models"
	applogger "FuturesCast/pkg/logger"
)

// ChatCompleter is the subset of *openai.Client the analyzers use.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

var _ ChatCompleter = (*openai.Client)(nil)

// LLMOptions tunes LLMBase.
type LLMOptions struct {
	Model           string
	Temperature     float32
	MaxTokens       int
	Timeout         time.Duration
	Attempts        int
	Backoff         time.Duration
	BreakerName     string
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// LLMBase centralizes chat completion calls: per-attempt timeout, retry with linear
// backoff and a circuit breaker shared by every call made through it.
type LLMBase struct {
	client  ChatCompleter
	opts    LLMOptions
	breaker *gobreaker.CircuitBreaker
	log     *applogger.Logger
}

func NewLLMBase(client ChatCompleter, opts LLMOptions, log *applogger.Logger) *LLMBase {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = 30 * time.Second
	}
	if opts.BreakerName == "" {
		opts.BreakerName = "openai"
	}
	if log == nil {
		log = applogger.Nop()
	}
	failures := opts.BreakerFailures
	return &LLMBase{
		client: client,
		opts:   opts,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        opts.BreakerName,
			MaxRequests: 1,
			Timeout:     opts.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
		}),
		log: log,
	}
}

// Complete sends one prompt and returns the first choice's content. jsonMode requests
// a JSON object response. Errors wrap models.ErrProviderUnavailable.
func (b *LLMBase) Complete(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	if b == nil || b.client == nil {
		return "", fmt.Errorf("%w: llm client not configured", models.ErrProviderUnavailable)
	}

	req := openai.ChatCompletionRequest{
		Model:       b.opts.Model,
		Temperature: b.opts.Temperature,
		MaxTokens:   b.opts.MaxTokens,
		Messages:    make([]openai.ChatCompletionMessage, 0, 2),
	}
	if system != "" {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: user})
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	var err error
	for attempt := 1; attempt <= b.opts.Attempts; attempt++ {
		var content string
		content, err = b.once(ctx, req)
		if err == nil {
			return content, nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) || ctx.Err() != nil {
			break
		}
		b.log.Warn("llm call failed",
			applogger.String("model", b.opts.Model),
			applogger.Int("attempt", attempt),
			applogger.Error(err))
		if attempt == b.opts.Attempts {
			break
		}
		select {
		case <-time.After(time.Duration(attempt) * b.opts.Backoff):
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", models.ErrProviderUnavailable, ctx.Err())
		}
	}
	return "", fmt.Errorf("%w: %s: %v", models.ErrProviderUnavailable, b.opts.Model, err)
}

func (b *LLMBase) once(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	out, err := b.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
		defer cancel()

		start := time.Now()
		resp, err := b.client.CreateChatCompletion(callCtx, req)
		if err != nil {
			return nil, err
		}
		b.log.Debug("llm call complete",
			applogger.String("model", req.Model),
			applogger.Duration("duration_ms", time.Since(start)),
			applogger.Int("total_tokens", resp.Usage.TotalTokens))
		if len(resp.Choices) == 0 {
			return nil, errors.New("empty completion")
		}
		content := strings.TrimSpace(resp.Choices[0].Message.Content)
		if content == "" {
			return nil, errors.New("empty completion content")
		}
		return content, nil
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}
