package generation

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/lostmatch/internal/domain"
)

type stubCompleter struct {
	out       domain.Completion
	err       error
	healthErr error
	prompts   []string
	temps     []float64
}

func (s *stubCompleter) Complete(_ context.Context, prompt string, temperature float64) (domain.Completion, error) {
	s.prompts = append(s.prompts, prompt)
	s.temps = append(s.temps, temperature)
	return s.out, s.err
}

func (s *stubCompleter) HealthCheck(context.Context) error { return s.healthErr }

func TestInstrumentedCompleter_Success(t *testing.T) {
	inner := &stubCompleter{out: domain.Completion{Text: "[]", PromptTokens: 7, CompletionTokens: 3}}
	c := NewInstrumentedCompleter(inner, "openai", "gpt-4o-mini", nil, zap.NewNop())

	ctx, usage := domain.NewContextWithUsage(context.Background())
	out, err := c.Complete(ctx, "prompt", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Text != "[]" {
		t.Errorf("unexpected text %q", out.Text)
	}
	if _, gen, _ := usage.Snapshot(); gen != 10 {
		t.Errorf("expected 10 generation tokens, got %d", gen)
	}
	if inner.temps[0] != 0 {
		t.Errorf("temperature must pass through, got %f", inner.temps[0])
	}
}

func TestInstrumentedCompleter_Error(t *testing.T) {
	inner := &stubCompleter{err: domain.ErrGenerationProviderError}
	c := NewInstrumentedCompleter(inner, "openai", "m", nil, zap.NewNop())

	_, err := c.Complete(context.Background(), "p", 0)
	if !errors.Is(err, domain.ErrGenerationProviderError) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestInstrumentedCompleter_RateLimited(t *testing.T) {
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	limiter.Allow()
	inner := &stubCompleter{}
	c := NewInstrumentedCompleter(inner, "openai", "m", limiter, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Complete(ctx, "p", 0)
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("a wait the deadline cannot cover must report a timeout, got %v", err)
	}
	if len(inner.prompts) != 0 {
		t.Error("backend must not be called when the limiter rejects")
	}
}

func TestInstrumentedCompleter_RateLimitCancelledIsNotTimeout(t *testing.T) {
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	limiter.Allow()
	c := NewInstrumentedCompleter(&stubCompleter{}, "openai", "m", limiter, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Complete(ctx, "p", 0)
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("cancellation must not be reported as a timeout, got %v", err)
	}
}

func TestInstrumentedCompleter_HealthCheck(t *testing.T) {
	down := errors.New("down")
	c := NewInstrumentedCompleter(&stubCompleter{healthErr: down}, "openai", "m", nil, zap.NewNop())
	if err := c.HealthCheck(context.Background()); !errors.Is(err, down) {
		t.Errorf("expected delegated health error, got %v", err)
	}
}
