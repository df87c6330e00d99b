package permission

import (
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"
)

// inlinePoster runs posted work immediately.
type inlinePoster struct{}

func (inlinePoster) Post(fn func()) bool {
	fn()
	return true
}

type recordingListener struct {
	results []bool
	codes   []int
}

func (r *recordingListener) OnPermissionResult(code int, granted bool) {
	r.codes = append(r.codes, code)
	r.results = append(r.results, granted)
}

func TestManager_Modes(t *testing.T) {
	logger := zaptest.NewLogger(t)

	granted := NewManager(ModeGranted, logger)
	if !granted.Granted() {
		t.Fatal("granted mode should start granted")
	}

	denied := NewManager(ModeDenied, logger)
	var answer *bool
	denied.Request(123, func(code int, ok bool) { answer = &ok })
	if answer == nil || *answer {
		t.Fatal("denied mode should answer false immediately")
	}

	prompt := NewManager(ModePrompt, logger)
	answer = nil
	prompt.Request(123, func(code int, ok bool) { answer = &ok })
	if answer != nil || !prompt.Pending() {
		t.Fatal("prompt mode should wait for an answer")
	}
	if err := prompt.Resolve(true); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if answer == nil || !*answer || !prompt.Granted() {
		t.Fatal("resolve(true) should grant")
	}
	if err := prompt.Resolve(true); !errors.Is(err, ErrNoPendingRequest) {
		t.Fatalf("expected ErrNoPendingRequest, got %v", err)
	}
}

func TestManager_ReplacedRequestIsDenied(t *testing.T) {
	m := NewManager(ModePrompt, zaptest.NewLogger(t))

	var first, second []bool
	m.Request(1, func(code int, ok bool) { first = append(first, ok) })
	m.Request(2, func(code int, ok bool) { second = append(second, ok) })

	if len(first) != 1 || first[0] {
		t.Fatalf("replaced request answers = %v, want [false]", first)
	}
	if err := m.Resolve(true); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("replaced request answered again: %v", first)
	}
	if len(second) != 1 || !second[0] {
		t.Fatalf("pending request answers = %v, want [true]", second)
	}
}

func TestParseMode(t *testing.T) {
	if _, err := ParseMode("sometimes"); err == nil {
		t.Fatal("expected error")
	}
	if m, err := ParseMode("prompt"); err != nil || m != ModePrompt {
		t.Fatalf("got %v, %v", m, err)
	}
}

func TestGate_AlreadyGranted(t *testing.T) {
	l := &recordingListener{}
	g := NewGate(NewManager(ModeGranted, zaptest.NewLogger(t)), inlinePoster{}, l, 123, zaptest.NewLogger(t))

	if !g.Check() {
		t.Fatal("expected granted")
	}
	if len(l.results) != 0 {
		t.Fatal("no request should be issued")
	}
}

func TestGate_RequestAndEvaluateOnce(t *testing.T) {
	m := NewManager(ModePrompt, zaptest.NewLogger(t))
	l := &recordingListener{}
	g := NewGate(m, inlinePoster{}, l, 123, zaptest.NewLogger(t))

	if g.Check() {
		t.Fatal("expected not granted")
	}
	// A second check while waiting must not issue another request.
	g.Check()

	if err := m.Resolve(false); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(l.results) != 1 || l.codes[0] != 123 || l.results[0] {
		t.Fatalf("listener got codes=%v results=%v", l.codes, l.results)
	}

	if d := g.HandleResult(123, false); d != Denied {
		t.Fatalf("decision = %s", d)
	}
	if d := g.HandleResult(123, true); d != Ignored {
		t.Fatalf("repeated answer decision = %s", d)
	}
}

func TestGate_IgnoresOtherRequestCodes(t *testing.T) {
	m := NewManager(ModePrompt, zaptest.NewLogger(t))
	g := NewGate(m, inlinePoster{}, &recordingListener{}, 123, zaptest.NewLogger(t))
	g.Check()

	if d := g.HandleResult(7, true); d != Ignored {
		t.Fatalf("decision = %s", d)
	}
	if d := g.HandleResult(123, true); d != Granted {
		t.Fatalf("decision = %s", d)
	}
}
