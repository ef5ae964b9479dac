package observer

import (
	"context"
	"errors"
	"testing"

	parley "github.com/nevindra/parley"
)

// ---------------------------------------------------------------------------
// Mock implementations
// ---------------------------------------------------------------------------

// mockModel for observer tests.
type mockModel struct {
	name   string
	chunks []parley.ChatResponse
	err    error
}

func (m *mockModel) Name() string { return m.name }
func (m *mockModel) Stream(ctx context.Context, _ parley.ChatRequest, ch chan<- parley.ChatResponse) error {
	for _, c := range m.chunks {
		select {
		case ch <- c:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.err
}

// mockTool for observer tests.
type mockTool struct {
	resp *parley.ToolResponse
	err  error
}

func (m *mockTool) Name() string               { return "search" }
func (m *mockTool) Description() string        { return "web search" }
func (m *mockTool) Parameters() map[string]any { return map[string]any{"type": "object"} }
func (m *mockTool) Call(_ context.Context, _ map[string]any) (*parley.ToolResponse, error) {
	return m.resp, m.err
}

// mockAgent for observer tests.
type mockAgent struct {
	name        string
	reply       parley.Msg
	err         error
	streamCalls int
	observed    []parley.Msg
}

func (m *mockAgent) Name() string { return m.name }
func (m *mockAgent) Reply(_ context.Context, _ ...parley.Msg) (parley.Msg, error) {
	return m.reply, m.err
}
func (m *mockAgent) Stream(_ context.Context, _ ...parley.Msg) *parley.ReplyStream {
	m.streamCalls++
	return nil
}
func (m *mockAgent) Observe(_ context.Context, msgs ...parley.Msg) error {
	m.observed = append(m.observed, msgs...)
	return nil
}

// testInstruments creates a no-op Instruments using the global OTEL providers
// (which are no-ops by default). This is safe for testing delegation behavior
// without any real OTEL backend.
func testInstruments(t *testing.T) *Instruments {
	t.Helper()
	inst, err := newInstruments()
	if err != nil {
		t.Fatalf("newInstruments: %v", err)
	}
	return inst
}

// ---------------------------------------------------------------------------
// ObservedModel tests
// ---------------------------------------------------------------------------

func TestObservedModelName(t *testing.T) {
	inner := &mockModel{name: "test-model"}
	om := WrapModel(inner, testInstruments(t))

	got := om.Name()
	if got != "test-model" {
		t.Errorf("Name() = %q, want %q", got, "test-model")
	}
}

func TestObservedModelStream(t *testing.T) {
	usage := &parley.ChatUsage{InputTokens: 8, OutputTokens: 2}
	inner := &mockModel{name: "m", chunks: []parley.ChatResponse{
		{Content: []parley.ContentBlock{&parley.TextBlock{Text: "hello"}}},
		{Content: []parley.ContentBlock{&parley.TextBlock{Text: " world"}}, Usage: usage},
	}}
	om := WrapModel(inner, testInstruments(t))

	req := parley.ChatRequest{Tools: []parley.ToolSchema{{Name: "search"}}}
	ch := make(chan parley.ChatResponse, 10)
	if err := om.Stream(context.Background(), req, ch); err != nil {
		t.Fatalf("Stream returned unexpected error: %v", err)
	}

	// The forwarder drains before Stream returns, so the buffered channel
	// holds every chunk by now.
	if got := len(ch); got != 2 {
		t.Fatalf("received %d chunks, want 2", got)
	}
	first := <-ch
	if text, ok := first.Content[0].(*parley.TextBlock); !ok || text.Text != "hello" {
		t.Errorf("first chunk = %+v, want text %q", first.Content[0], "hello")
	}
	second := <-ch
	if second.Usage == nil || second.Usage.InputTokens != 8 || second.Usage.OutputTokens != 2 {
		t.Errorf("Usage = %+v, want input 8 output 2", second.Usage)
	}

	// The wrapper must leave the caller's channel open.
	select {
	case _, ok := <-ch:
		if !ok {
			t.Error("wrapper closed the caller's channel")
		} else {
			t.Error("unexpected extra chunk")
		}
	default:
	}
}

func TestObservedModelStreamError(t *testing.T) {
	wantErr := errors.New("provider unavailable")
	inner := &mockModel{name: "m", err: wantErr, chunks: []parley.ChatResponse{
		{Content: []parley.ContentBlock{&parley.TextBlock{Text: "partial"}}},
	}}
	om := WrapModel(inner, testInstruments(t))

	ch := make(chan parley.ChatResponse, 10)
	err := om.Stream(context.Background(), parley.ChatRequest{}, ch)
	if !errors.Is(err, wantErr) {
		t.Errorf("Stream error = %v, want %v", err, wantErr)
	}
	if got := len(ch); got != 1 {
		t.Errorf("received %d chunks before the error, want 1", got)
	}
}

// ---------------------------------------------------------------------------
// ObservedTool tests
// ---------------------------------------------------------------------------

func TestObservedToolDelegation(t *testing.T) {
	inner := &mockTool{}
	ot := WrapTool(inner, testInstruments(t))

	if got := ot.Name(); got != "search" {
		t.Errorf("Name() = %q, want %q", got, "search")
	}
	if got := ot.Description(); got != "web search" {
		t.Errorf("Description() = %q, want %q", got, "web search")
	}
	if got := ot.Parameters(); got["type"] != "object" {
		t.Errorf("Parameters() = %v, want type object", got)
	}
}

func TestObservedToolCall(t *testing.T) {
	want := parley.NewToolResponse(&parley.TextBlock{Text: "result data"})
	inner := &mockTool{resp: want}
	ot := WrapTool(inner, testInstruments(t))

	got, err := ot.Call(context.Background(), map[string]any{"q": "test"})
	if err != nil {
		t.Fatalf("Call returned unexpected error: %v", err)
	}
	if got != want {
		t.Errorf("Call response = %p, want the inner response %p", got, want)
	}
}

func TestObservedToolCallError(t *testing.T) {
	wantErr := errors.New("tool broken")
	inner := &mockTool{err: wantErr}
	ot := WrapTool(inner, testInstruments(t))

	resp, err := ot.Call(context.Background(), nil)
	if !errors.Is(err, wantErr) {
		t.Errorf("Call error = %v, want %v", err, wantErr)
	}
	if resp != nil {
		t.Errorf("Call response = %v, want nil", resp)
	}
}

// ---------------------------------------------------------------------------
// ObservedAgent tests
// ---------------------------------------------------------------------------

func TestObservedAgentName(t *testing.T) {
	inner := &mockAgent{name: "assistant"}
	oa := WrapAgent(inner, testInstruments(t))

	if got := oa.Name(); got != "assistant" {
		t.Errorf("Name() = %q, want %q", got, "assistant")
	}
}

func TestObservedAgentReply(t *testing.T) {
	want := parley.TextMsg("assistant", parley.RoleAssistant, "done")
	inner := &mockAgent{name: "assistant", reply: want}
	oa := WrapAgent(inner, testInstruments(t))

	got, err := oa.Reply(context.Background(), parley.TextMsg("user", parley.RoleUser, "hi"))
	if err != nil {
		t.Fatalf("Reply returned unexpected error: %v", err)
	}
	if got.ID != want.ID {
		t.Errorf("Reply msg ID = %q, want %q", got.ID, want.ID)
	}
	if got.Text() != "done" {
		t.Errorf("Reply text = %q, want %q", got.Text(), "done")
	}
}

func TestObservedAgentReplyError(t *testing.T) {
	wantErr := errors.New("model down")
	inner := &mockAgent{name: "assistant", err: wantErr}
	oa := WrapAgent(inner, testInstruments(t))

	_, err := oa.Reply(context.Background(), parley.TextMsg("user", parley.RoleUser, "hi"))
	if !errors.Is(err, wantErr) {
		t.Errorf("Reply error = %v, want %v", err, wantErr)
	}
}

func TestObservedAgentDelegation(t *testing.T) {
	inner := &mockAgent{name: "assistant"}
	oa := WrapAgent(inner, testInstruments(t))

	oa.Stream(context.Background(), parley.TextMsg("user", parley.RoleUser, "hi"))
	if inner.streamCalls != 1 {
		t.Errorf("Stream calls = %d, want 1", inner.streamCalls)
	}

	msg := parley.TextMsg("user", parley.RoleUser, "note this")
	if err := oa.Observe(context.Background(), msg); err != nil {
		t.Fatalf("Observe returned unexpected error: %v", err)
	}
	if len(inner.observed) != 1 || inner.observed[0].ID != msg.ID {
		t.Errorf("observed = %v, want the forwarded message", inner.observed)
	}
}

func TestDetectAgentType(t *testing.T) {
	react := parley.NewReActAgent("bot", &mockModel{name: "m"})
	if got := detectAgentType(react); got != "ReActAgent" {
		t.Errorf("detectAgentType(ReActAgent) = %q, want %q", got, "ReActAgent")
	}
	if got := detectAgentType(&mockAgent{}); got != "*observer.mockAgent" {
		t.Errorf("detectAgentType(mockAgent) = %q, want %q", got, "*observer.mockAgent")
	}
}

// ---------------------------------------------------------------------------
// Tracer tests
// ---------------------------------------------------------------------------

func TestNewTracerSpan(t *testing.T) {
	tr := NewTracer()

	ctx, span := tr.Start(context.Background(), "test.operation",
		parley.StringAttr("kind", "unit"),
		parley.IntAttr("count", 3),
		parley.BoolAttr("flag", true),
		parley.Float64Attr("score", 0.5),
	)
	if ctx == nil {
		t.Fatal("Start returned nil context")
	}
	if span == nil {
		t.Fatal("Start returned nil span")
	}

	// Exercise the span surface against the default no-op provider.
	span.SetAttr(parley.SpanAttr{Key: "late", Value: int64(7)})
	span.Event("checkpoint", parley.StringAttr("state", "mid"))
	span.Error(errors.New("boom"))
	span.End()
}
