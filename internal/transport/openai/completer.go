package openai

import (
	"context"
	"fmt"
	"math"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/lostmatch/internal/domain"
	"github.com/kailas-cloud/lostmatch/internal/metrics"
)

const driverName = "openai"

// Completer sends prompts to an OpenAI-compatible chat completions endpoint.
type Completer struct {
	client       *openai.Client
	model        string
	systemPrompt string
	maxTokens    int
	logger       *zap.Logger
}

// CompleterConfig holds the chat completion settings.
type CompleterConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	MaxTokens    int
	Logger       *zap.Logger
}

// NewCompleter creates an OpenAI-compatible chat completer.
func NewCompleter(cfg *CompleterConfig) *Completer {
	return &Completer{
		client:       newClient(cfg.APIKey, cfg.BaseURL),
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		maxTokens:    cfg.MaxTokens,
		logger:       loggerOrNop(cfg.Logger),
	}
}

// Complete implements domain.Completer.
func (c *Completer) Complete(ctx context.Context, prompt string, temperature float64) (domain.Completion, error) {
	var messages []openai.ChatCompletionMessage
	if c.systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: c.systemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: wireTemperature(temperature),
	}
	if c.maxTokens > 0 {
		req.MaxTokens = c.maxTokens
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	duration := time.Since(start)

	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(driverName, c.model, "error").Inc()
		return domain.Completion{}, parseAPIError("completion", err, domain.ErrGenerationProviderError)
	}
	if len(resp.Choices) == 0 {
		metrics.GenerationRequestsTotal.WithLabelValues(driverName, c.model, "error").Inc()
		return domain.Completion{}, fmt.Errorf("empty completion response: %w", domain.ErrGenerationProviderError)
	}

	metrics.GenerationRequestsTotal.WithLabelValues(driverName, c.model, "success").Inc()
	metrics.GenerationRequestDuration.WithLabelValues(driverName, c.model).Observe(duration.Seconds())
	metrics.GenerationTokensTotal.WithLabelValues(driverName, c.model, "prompt").Add(float64(resp.Usage.PromptTokens))
	metrics.GenerationTokensTotal.WithLabelValues(driverName, c.model, "completion").Add(float64(resp.Usage.CompletionTokens))

	c.logger.Debug("Completion received",
		zap.String("model", c.model),
		zap.Duration("duration", duration),
		zap.String("finish_reason", string(resp.Choices[0].FinishReason)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	return domain.Completion{
		Text:             resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (c *Completer) HealthCheck(ctx context.Context) error {
	if _, err := c.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// wireTemperature keeps an explicit zero on the wire: go-openai drops a zero
// temperature via omitempty and the server would fall back to its default of 1.
func wireTemperature(t float64) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}
