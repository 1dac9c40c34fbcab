package review

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Bluesun-Networks/VOS/internal/provider"
	"github.com/Bluesun-Networks/VOS/internal/storage"
)

func testSnapshot() *storage.Snapshot {
	return &storage.Snapshot{
		DocumentID: "d1",
		Version:    1,
		Content:    "line one\nline two\nline three\n",
		LineCount:  3,
	}
}

func invokerPersona() storage.Persona {
	return storage.Persona{
		ID:           "p1",
		Name:         "Critic",
		SystemPrompt: "You are a harsh critic.",
	}
}

const validOutput = `[{"content":"weak opening","start_line":1,"end_line":1,"severity":"high"}]`

func TestInvokeSuccess(t *testing.T) {
	script := provider.NewScript(provider.ScriptStep{Output: validOutput})
	inv := NewInvoker(script)

	raws, err := inv.Invoke(context.Background(), invokerPersona(), testSnapshot())
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(raws) != 1 || raws[0].Content != "weak opening" {
		t.Errorf("unexpected raws: %+v", raws)
	}
	if script.Calls() != 1 {
		t.Errorf("calls = %d, want 1", script.Calls())
	}
}

func TestInvokeRetriesTransientOnce(t *testing.T) {
	for _, kind := range []provider.ErrorKind{provider.KindRateLimit, provider.KindConnection} {
		t.Run(string(kind), func(t *testing.T) {
			script := provider.NewScript(
				provider.ScriptStep{Err: &provider.Error{Kind: kind, Message: "try later"}},
				provider.ScriptStep{Output: validOutput},
			)
			inv := NewInvoker(script)
			inv.RetryBackoff = time.Millisecond

			raws, err := inv.Invoke(context.Background(), invokerPersona(), testSnapshot())
			if err != nil {
				t.Fatalf("Invoke: %v", err)
			}
			if len(raws) != 1 {
				t.Errorf("got %d raws, want 1", len(raws))
			}
			if script.Calls() != 2 {
				t.Errorf("calls = %d, want 2 (one retry)", script.Calls())
			}
		})
	}
}

func TestInvokeRetryOnlyOnce(t *testing.T) {
	script := provider.NewScript(
		provider.ScriptStep{Err: &provider.Error{Kind: provider.KindRateLimit, Message: "busy"}},
	)
	inv := NewInvoker(script)
	inv.RetryBackoff = time.Millisecond

	_, err := inv.Invoke(context.Background(), invokerPersona(), testSnapshot())
	if err == nil {
		t.Fatal("expected error after exhausted retry")
	}
	if script.Calls() != 2 {
		t.Errorf("calls = %d, want exactly 2", script.Calls())
	}
	if provider.KindOf(err) != provider.KindRateLimit {
		t.Errorf("kind = %s, want rate_limit preserved through wrap", provider.KindOf(err))
	}
}

func TestInvokeNoRetryOnFatalKinds(t *testing.T) {
	for _, kind := range []provider.ErrorKind{provider.KindAuth, provider.KindBadRequest, provider.KindOther} {
		t.Run(string(kind), func(t *testing.T) {
			script := provider.NewScript(
				provider.ScriptStep{Err: &provider.Error{Kind: kind, Message: "no"}},
				provider.ScriptStep{Output: validOutput},
			)
			inv := NewInvoker(script)
			inv.RetryBackoff = time.Millisecond

			_, err := inv.Invoke(context.Background(), invokerPersona(), testSnapshot())
			if err == nil {
				t.Fatal("expected error")
			}
			if script.Calls() != 1 {
				t.Errorf("calls = %d, want 1 (no retry)", script.Calls())
			}
		})
	}
}

func TestInvokeUnparseableOutput(t *testing.T) {
	script := provider.NewScript(provider.ScriptStep{Output: "I think it reads well overall."})
	inv := NewInvoker(script)

	_, err := inv.Invoke(context.Background(), invokerPersona(), testSnapshot())
	if err == nil {
		t.Fatal("expected parse error")
	}
	if script.Calls() != 1 {
		t.Errorf("calls = %d, want 1 (parse failure is not retried)", script.Calls())
	}
}

func TestInvokeEmptyPromptRejected(t *testing.T) {
	script := provider.NewScript(provider.ScriptStep{Output: validOutput})
	inv := NewInvoker(script)

	p := invokerPersona()
	p.SystemPrompt = ""
	if _, err := inv.Invoke(context.Background(), p, testSnapshot()); err == nil {
		t.Fatal("expected error for empty prompt")
	}
	if script.Calls() != 0 {
		t.Errorf("provider called %d times before validation", script.Calls())
	}
}

func TestInvokeTimeout(t *testing.T) {
	script := provider.NewScript(provider.ScriptStep{Output: validOutput})
	script.Delay = 200 * time.Millisecond
	inv := NewInvoker(script)
	inv.Timeout = 10 * time.Millisecond

	_, err := inv.Invoke(context.Background(), invokerPersona(), testSnapshot())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestInvokeCanceledContext(t *testing.T) {
	script := provider.NewScript(provider.ScriptStep{Output: validOutput})
	inv := NewInvoker(script)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := inv.Invoke(ctx, invokerPersona(), testSnapshot())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want canceled", err)
	}
}
