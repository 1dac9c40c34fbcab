package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Bluesun-Networks/VOS/internal/provider"
	"github.com/Bluesun-Networks/VOS/internal/storage"
)

// Invoker runs one provider call for one persona against one document
// snapshot. It owns the per-call timeout and the retry policy for
// that single call, and nothing else: no shared state, no metrics.
type Invoker struct {
	gen provider.Generator

	// Timeout bounds one invocation including its retry.
	Timeout time.Duration
	// RetryBackoff is the pause before the single transient retry.
	RetryBackoff time.Duration
}

const (
	defaultInvokeTimeout = 2 * time.Minute
	defaultRetryBackoff  = 2 * time.Second
)

// NewInvoker creates an invoker over the given provider.
func NewInvoker(gen provider.Generator) *Invoker {
	return &Invoker{
		gen:          gen,
		Timeout:      defaultInvokeTimeout,
		RetryBackoff: defaultRetryBackoff,
	}
}

// Invoke calls the provider with the persona's prompt and parses the
// raw comments. Transient failures (rate limit, connection) get one
// retry after a short backoff; auth and bad-request failures are
// fatal for the persona immediately.
func (inv *Invoker) Invoke(ctx context.Context, p storage.Persona, snap *storage.Snapshot) ([]RawComment, error) {
	if p.SystemPrompt == "" {
		return nil, fmt.Errorf("persona %q has empty system prompt", p.Name)
	}
	if snap == nil || snap.Content == "" {
		return nil, fmt.Errorf("document snapshot is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, inv.Timeout)
	defer cancel()

	output, err := inv.gen.Generate(ctx, p.SystemPrompt, snap.Content)
	if err != nil {
		var pe *provider.Error
		if !errors.As(err, &pe) || !pe.Retryable() {
			return nil, fmt.Errorf("persona %s: %w", p.Name, err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("persona %s: %w", p.Name, ctx.Err())
		case <-time.After(inv.RetryBackoff):
		}

		output, err = inv.gen.Generate(ctx, p.SystemPrompt, snap.Content)
		if err != nil {
			return nil, fmt.Errorf("persona %s (after retry): %w", p.Name, err)
		}
	}

	raws, err := ParseRawComments(output)
	if err != nil {
		return nil, fmt.Errorf("persona %s: %w", p.Name, err)
	}
	return raws, nil
}
