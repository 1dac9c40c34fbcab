package provider

import (
	"context"
	"sync"
	"time"
)

// Script is a provider for tests that returns queued responses in
// order. Each call pops the next step; the last step repeats once the
// queue is exhausted.
type Script struct {
	mu    sync.Mutex
	steps []ScriptStep
	calls int

	// Delay simulates provider latency before each response.
	Delay time.Duration
}

// ScriptStep is one scripted response.
type ScriptStep struct {
	Output string
	Err    error
}

// NewScript creates a scripted provider from the given steps.
func NewScript(steps ...ScriptStep) *Script {
	return &Script{steps: steps}
}

func (s *Script) Name() string { return "script" }

// Calls returns how many times Generate has been invoked.
func (s *Script) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *Script) Generate(ctx context.Context, systemPrompt, content string) (string, error) {
	if s.Delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.Delay):
		}
	} else if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.steps) == 0 {
		return "", &Error{Kind: KindOther, Message: "script has no steps"}
	}
	idx := s.calls
	if idx >= len(s.steps) {
		idx = len(s.steps) - 1
	}
	s.calls++
	step := s.steps[idx]
	return step.Output, step.Err
}
