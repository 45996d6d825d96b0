// Package langchain adapts langchaingo chat models to the domain.Completer contract.
package langchain

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/lostmatch/internal/domain"
	"github.com/kailas-cloud/lostmatch/internal/metrics"
)

const driverName = "langchaingo"

// Completer sends prompts through a langchaingo llms.Model.
type Completer struct {
	model        llms.Model
	modelName    string
	systemPrompt string
	maxTokens    int
	logger       *zap.Logger
}

// Config holds the langchaingo completer settings.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	MaxTokens    int
	Logger       *zap.Logger
}

// NewCompleter creates a completer backed by langchaingo's OpenAI-compatible client.
// Local gateways that ignore auth still need a non-empty token.
func NewCompleter(cfg *Config) (*Completer, error) {
	token := cfg.APIKey
	if token == "" {
		token = "none"
	}
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create langchaingo client: %w", err)
	}
	return NewWithModel(llm, cfg), nil
}

// NewWithModel wraps an existing llms.Model.
func NewWithModel(model llms.Model, cfg *Config) *Completer {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Completer{
		model:        model,
		modelName:    cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		maxTokens:    cfg.MaxTokens,
		logger:       logger,
	}
}

// Complete implements domain.Completer.
func (c *Completer) Complete(ctx context.Context, prompt string, temperature float64) (domain.Completion, error) {
	var content []llms.MessageContent
	if c.systemPrompt != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, c.systemPrompt))
	}
	content = append(content, llms.TextParts(llms.ChatMessageTypeHuman, prompt))

	opts := []llms.CallOption{llms.WithTemperature(temperature)}
	if c.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.maxTokens))
	}

	start := time.Now()
	resp, err := c.model.GenerateContent(ctx, content, opts...)
	duration := time.Since(start)

	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(driverName, c.modelName, "error").Inc()
		return domain.Completion{}, fmt.Errorf("langchaingo generate: %w: %w", domain.ErrGenerationProviderError, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		metrics.GenerationRequestsTotal.WithLabelValues(driverName, c.modelName, "error").Inc()
		return domain.Completion{}, fmt.Errorf("empty completion response: %w", domain.ErrGenerationProviderError)
	}

	choice := resp.Choices[0]
	out := domain.Completion{
		Text:             choice.Content,
		PromptTokens:     intInfo(choice.GenerationInfo, "PromptTokens"),
		CompletionTokens: intInfo(choice.GenerationInfo, "CompletionTokens"),
	}

	metrics.GenerationRequestsTotal.WithLabelValues(driverName, c.modelName, "success").Inc()
	metrics.GenerationRequestDuration.WithLabelValues(driverName, c.modelName).Observe(duration.Seconds())
	metrics.GenerationTokensTotal.WithLabelValues(driverName, c.modelName, "prompt").Add(float64(out.PromptTokens))
	metrics.GenerationTokensTotal.WithLabelValues(driverName, c.modelName, "completion").Add(float64(out.CompletionTokens))

	c.logger.Debug("Completion received",
		zap.String("driver", driverName),
		zap.String("model", c.modelName),
		zap.Duration("duration", duration),
		zap.String("stop_reason", choice.StopReason),
	)
	return out, nil
}

func intInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
