// Package generation decorates domain.Completer with rate limiting and usage accounting.
package generation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/lostmatch/internal/domain"
)

// InstrumentedCompleter wraps a Completer. Transport metrics live in the driver packages.
type InstrumentedCompleter struct {
	inner   domain.Completer
	driver  string
	model   string
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewInstrumentedCompleter wraps a completer. A nil limiter disables rate limiting.
func NewInstrumentedCompleter(
	inner domain.Completer, driver, model string,
	limiter *rate.Limiter, logger *zap.Logger,
) *InstrumentedCompleter {
	return &InstrumentedCompleter{
		inner:   inner,
		driver:  driver,
		model:   model,
		limiter: limiter,
		logger:  logger,
	}
}

// Complete waits for the limiter, delegates, and records usage on the request context.
func (c *InstrumentedCompleter) Complete(
	ctx context.Context, prompt string, temperature float64,
) (domain.Completion, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			c.logger.Warn("Generation rate limit wait aborted",
				zap.String("driver", c.driver),
				zap.Error(err),
			)
			return domain.Completion{}, fmt.Errorf("generation rate limit: %w: %w", domain.ErrRateLimited, limitErr(ctx, err))
		}
	}

	start := time.Now()
	out, err := c.inner.Complete(ctx, prompt, temperature)
	duration := time.Since(start)
	if err != nil {
		c.logger.Error("Generation request failed",
			zap.String("driver", c.driver),
			zap.String("model", c.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.Completion{}, fmt.Errorf("complete: %w", err)
	}

	domain.UsageFromContext(ctx).AddGenerationTokens(out.PromptTokens + out.CompletionTokens)

	c.logger.Debug("Generation request completed",
		zap.String("driver", c.driver),
		zap.String("model", c.model),
		zap.Duration("duration", duration),
		zap.Int("prompt_chars", len(prompt)),
		zap.Int("completion_chars", len(out.Text)),
	)
	return out, nil
}

// HealthCheck delegates to the inner completer when it supports health checks.
func (c *InstrumentedCompleter) HealthCheck(ctx context.Context) error {
	if hc, ok := c.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

// limitErr reports a wait the deadline cannot cover as context.DeadlineExceeded.
// rate.Limiter.Wait returns its own error in that case, before the deadline passes.
func limitErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return err
	}
	if _, ok := ctx.Deadline(); ok {
		return fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
	}
	return err
}
