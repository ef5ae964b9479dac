package parley

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// scriptedModel replays one chunk slice per Stream call. Calls beyond the
// script replay the last entry, so looping agents can run against a single
// scripted round.
type scriptedModel struct {
	mu     sync.Mutex
	script [][]ChatResponse
	reqs   []ChatRequest
}

func (m *scriptedModel) Name() string { return "scripted" }

func (m *scriptedModel) Stream(ctx context.Context, req ChatRequest, ch chan<- ChatResponse) error {
	m.mu.Lock()
	idx := len(m.reqs)
	m.reqs = append(m.reqs, req)
	if idx >= len(m.script) {
		idx = len(m.script) - 1
	}
	chunks := m.script[idx]
	m.mu.Unlock()

	for _, chunk := range chunks {
		select {
		case ch <- chunk:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (m *scriptedModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reqs)
}

func (m *scriptedModel) request(i int) ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reqs[i]
}

func textChunk(id, text string) ChatResponse {
	return ChatResponse{ID: id, Content: []ContentBlock{&TextBlock{Text: text}}}
}

func thinkingChunk(id, text string) ChatResponse {
	return ChatResponse{ID: id, Content: []ContentBlock{&ThinkingBlock{Text: text}}}
}

func toolChunk(id string, block *ToolUseBlock) ChatResponse {
	return ChatResponse{ID: id, Content: []ContentBlock{block}}
}

func TestReplyPlainText(t *testing.T) {
	model := &scriptedModel{script: [][]ChatResponse{
		{textChunk("m1", "Hi"), textChunk("m1", "!")},
	}}
	agent := NewReActAgent("helper", model)

	reply, err := agent.Reply(context.Background(), TextMsg("user", RoleUser, "Hello"))
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if reply.Text() != "Hi!" {
		t.Errorf("reply text = %q, want %q", reply.Text(), "Hi!")
	}
	if reply.Role != RoleAssistant || reply.Name != "helper" {
		t.Errorf("reply attribution = %s/%s, want assistant/helper", reply.Role, reply.Name)
	}
	if model.callCount() != 1 {
		t.Errorf("model calls = %d, want 1", model.callCount())
	}

	history := agent.Memory().Messages()
	if len(history) != 2 {
		t.Fatalf("memory size = %d, want 2 (user + aggregated assistant)", len(history))
	}
	if history[1].Text() != "Hi!" {
		t.Errorf("aggregated memory text = %q, want %q", history[1].Text(), "Hi!")
	}
}

func TestReplySystemPromptLeadsConversation(t *testing.T) {
	model := &scriptedModel{script: [][]ChatResponse{
		{textChunk("m1", "ok")},
	}}
	agent := NewReActAgent("helper", model, WithSysPrompt("be brief"))

	if _, err := agent.Reply(context.Background(), TextMsg("user", RoleUser, "hi")); err != nil {
		t.Fatalf("Reply: %v", err)
	}

	req := model.request(0)
	if len(req.Messages) != 2 {
		t.Fatalf("wire messages = %d, want 2", len(req.Messages))
	}
	if req.Messages[0].Role() != "system" || req.Messages[0].ContentString() != "be brief" {
		t.Errorf("leading wire message = %s %q, want system prompt",
			req.Messages[0].Role(), req.Messages[0].ContentString())
	}
}

func TestReplyFragmentedToolCall(t *testing.T) {
	var gotZone string
	getTime := NewTool("get_time", "Current time for a zone", nil,
		func(_ context.Context, input map[string]any) (*ToolResponse, error) {
			gotZone, _ = input["zone"].(string)
			return TextResponse("12:00:00"), nil
		})

	model := &scriptedModel{script: [][]ChatResponse{
		{
			toolChunk("m1", &ToolUseBlock{ID: "call_1", Name: "get_time", Raw: `{"zone":`}),
			toolChunk("m1", &ToolUseBlock{Name: FragmentName, Raw: `"UTC"}`}),
		},
		{textChunk("m2", "It is 12:00:00 UTC.")},
	}}
	agent := NewReActAgent("helper", model, WithTools(getTime))

	reply, err := agent.Reply(context.Background(), TextMsg("user", RoleUser, "What time is it?"))
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if reply.Text() != "It is 12:00:00 UTC." {
		t.Errorf("reply text = %q, want the final model text", reply.Text())
	}
	if gotZone != "UTC" {
		t.Errorf("tool saw zone = %q, want %q from reassembled arguments", gotZone, "UTC")
	}

	history := agent.Memory().Messages()
	if len(history) != 4 {
		t.Fatalf("memory size = %d, want user/tool-use/tool-result/assistant", len(history))
	}
	tu, ok := history[1].ToolUse()
	if !ok || tu.ID != "call_1" || tu.Name != "get_time" {
		t.Fatalf("memory[1] = %+v, want assembled get_time call call_1", history[1].Content)
	}
	if zone, _ := tu.Input["zone"].(string); zone != "UTC" {
		t.Errorf("assembled input zone = %q, want %q", zone, "UTC")
	}
	result, ok := history[2].Content.(*ToolResultBlock)
	if !ok || result.ID != "call_1" || result.Name != "get_time" {
		t.Fatalf("memory[2] = %+v, want tool result echoing call_1", history[2].Content)
	}
	if history[2].Role != RoleTool {
		t.Errorf("tool result role = %s, want tool", history[2].Role)
	}
	if text := blockText(result.Output); text != "12:00:00" {
		t.Errorf("tool result output = %q, want %q", text, "12:00:00")
	}
}

func TestReplyParallelBatchOrder(t *testing.T) {
	model := &scriptedModel{script: [][]ChatResponse{
		{
			toolChunk("m1", &ToolUseBlock{ID: "a", Name: "echo", Input: map[string]any{"text": "A"}}),
			toolChunk("m1", &ToolUseBlock{ID: "b", Name: "echo", Input: map[string]any{"text": "B"}}),
		},
		{textChunk("m2", "done")},
	}}
	agent := NewReActAgent("helper", model,
		WithTools(echoTool()), WithParallelTools(true))

	reply, err := agent.Reply(context.Background(), TextMsg("user", RoleUser, "echo twice"))
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if reply.Text() != "done" {
		t.Errorf("reply text = %q, want %q", reply.Text(), "done")
	}

	// user, call a, call b, result a, result b, assistant text.
	history := agent.Memory().Messages()
	if len(history) != 6 {
		t.Fatalf("memory size = %d, want 6", len(history))
	}
	var results []*ToolResultBlock
	for _, m := range history {
		if tr, ok := m.Content.(*ToolResultBlock); ok {
			results = append(results, tr)
		}
	}
	if len(results) != 2 {
		t.Fatalf("tool results = %d, want 2", len(results))
	}
	if results[0].ID != "a" || results[1].ID != "b" {
		t.Errorf("result order = %s,%s, want a,b (input order)", results[0].ID, results[1].ID)
	}
	if blockText(results[0].Output) != "A" || blockText(results[1].Output) != "B" {
		t.Errorf("result texts = %q,%q, want A,B", blockText(results[0].Output), blockText(results[1].Output))
	}
}

func TestReplyUnregisteredToolFinishes(t *testing.T) {
	model := &scriptedModel{script: [][]ChatResponse{
		{toolChunk("m1", &ToolUseBlock{ID: "f1", Name: "generate_response",
			Input: map[string]any{"response": "bye"}})},
	}}
	agent := NewReActAgent("helper", model, WithTools(echoTool()))

	reply, err := agent.Reply(context.Background(), TextMsg("user", RoleUser, "wrap up"))
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if reply.Text() != "" {
		t.Errorf("reply text = %q, want empty (finish call input is not rendered)", reply.Text())
	}
	if model.callCount() != 1 {
		t.Errorf("model calls = %d, want 1 (no round after the finish call)", model.callCount())
	}
	for _, m := range agent.Memory().Messages() {
		if m.Role == RoleTool {
			t.Fatalf("memory has a tool result %+v, want none (no acting phase)", m.Content)
		}
	}
}

func TestReplyIterationCap(t *testing.T) {
	loopTool := NewTool("loop", "always succeeds", nil,
		func(_ context.Context, _ map[string]any) (*ToolResponse, error) {
			return TextResponse("ok"), nil
		})
	model := &scriptedModel{script: [][]ChatResponse{
		{toolChunk("m", &ToolUseBlock{Name: "loop"})},
	}}
	agent := NewReActAgent("helper", model, WithTools(loopTool), WithMaxIters(3))

	reply, err := agent.Reply(context.Background(), TextMsg("user", RoleUser, "go"))
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if reply.Text() != "" {
		t.Errorf("reply text = %q, want empty after cap exhaustion", reply.Text())
	}
	if model.callCount() != 3 {
		t.Errorf("model calls = %d, want exactly 3", model.callCount())
	}

	var results int
	for _, m := range agent.Memory().Messages() {
		if m.Role == RoleTool {
			results++
		}
	}
	if results != 3 {
		t.Errorf("tool results in memory = %d, want exactly 3", results)
	}
}

func TestReplyThinkingExcluded(t *testing.T) {
	model := &scriptedModel{script: [][]ChatResponse{
		{thinkingChunk("m1", "let me see"), textChunk("m1", "answer")},
	}}
	agent := NewReActAgent("helper", model)

	reply, err := agent.Reply(context.Background(), TextMsg("user", RoleUser, "q"))
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if reply.Text() != "answer" {
		t.Errorf("reply text = %q, want thinking stripped", reply.Text())
	}
}

func TestStreamEmitsIntermediates(t *testing.T) {
	getTime := NewTool("get_time", "Current time", nil,
		func(_ context.Context, _ map[string]any) (*ToolResponse, error) {
			return TextResponse("12:00:00"), nil
		})
	model := &scriptedModel{script: [][]ChatResponse{
		{
			toolChunk("m1", &ToolUseBlock{ID: "call_1", Name: "get_time", Raw: `{"zone":`}),
			toolChunk("m1", &ToolUseBlock{Name: FragmentName, Raw: `"UTC"}`}),
		},
		{textChunk("m2", "It is noon.")},
	}}
	agent := NewReActAgent("helper", model, WithTools(getTime))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var kinds []BlockType
	var texts []string
	stream := agent.Stream(ctx, TextMsg("user", RoleUser, "time?"))
	for msg := range stream.Ch() {
		kinds = append(kinds, msg.Content.Type())
		texts = append(texts, msg.ContentText())
	}
	if err := stream.Err(); err != nil {
		t.Fatalf("stream error: %v", err)
	}

	want := []BlockType{BlockToolUse, BlockToolResult, BlockText}
	if len(kinds) != len(want) {
		t.Fatalf("stream emitted %d messages (%v %q), want %d", len(kinds), kinds, texts, len(want))
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("stream[%d] = %s, want %s", i, kinds[i], want[i])
		}
	}
	if texts[2] != "It is noon." {
		t.Errorf("streamed text = %q, want final model text", texts[2])
	}
}

func TestStreamCancellation(t *testing.T) {
	model := &blockingModel{}
	agent := NewReActAgent("helper", model)

	ctx, cancel := context.WithCancel(context.Background())
	stream := agent.Stream(ctx, TextMsg("user", RoleUser, "hi"))

	select {
	case msg := <-stream.Ch():
		if msg.Text() != "first" {
			t.Fatalf("first streamed msg = %q, want %q", msg.Text(), "first")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for first message")
	}
	cancel()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-stream.Ch():
			if !ok {
				if !errors.Is(stream.Err(), context.Canceled) {
					t.Fatalf("stream error = %v, want context.Canceled", stream.Err())
				}
				return
			}
		case <-deadline:
			t.Fatal("stream did not terminate after cancellation")
		}
	}
}

// blockingModel emits one text chunk, then holds the stream open until the
// context is cancelled.
type blockingModel struct{}

func (m *blockingModel) Name() string { return "blocking" }

func (m *blockingModel) Stream(ctx context.Context, _ ChatRequest, ch chan<- ChatResponse) error {
	select {
	case ch <- textChunk("m1", "first"):
	case <-ctx.Done():
		return ctx.Err()
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestReplyHookIsolation(t *testing.T) {
	model := &scriptedModel{script: [][]ChatResponse{
		{textChunk("m1", "raw reply")},
	}}
	agent := NewReActAgent("helper", model)

	agent.OnPreReply("panics", func(_ context.Context, _ []Msg) ([]Msg, error) {
		panic("pre hook exploded")
	})
	agent.OnPreReply("tags", func(_ context.Context, msgs []Msg) ([]Msg, error) {
		out := append([]Msg(nil), msgs...)
		out = append(out, TextMsg("user", RoleUser, "tagged"))
		return out, nil
	})
	agent.OnPostReply("fails", func(_ context.Context, _ Msg) (*Msg, error) {
		return nil, errors.New("post hook failed")
	})
	agent.OnPostReply("rewrites", func(_ context.Context, reply Msg) (*Msg, error) {
		out := TextMsg(reply.Name, reply.Role, strings.ToUpper(reply.Text()))
		return &out, nil
	})

	reply, err := agent.Reply(context.Background(), TextMsg("user", RoleUser, "hi"))
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if reply.Text() != "RAW REPLY" {
		t.Errorf("reply text = %q, want post-hook rewrite to survive earlier failures", reply.Text())
	}

	// The panicking pre hook must not have swallowed the tagging hook's
	// extra message.
	req := model.request(0)
	var tagged bool
	for _, m := range req.Messages {
		if strings.Contains(m.ContentString(), "tagged") {
			tagged = true
		}
	}
	if !tagged {
		t.Error("pre-hook rewrite missing from wire messages")
	}
}

func TestHookRemoveAndClear(t *testing.T) {
	model := &scriptedModel{script: [][]ChatResponse{
		{textChunk("m1", "plain")},
	}}
	agent := NewReActAgent("helper", model)

	agent.OnPostReply("shout", func(_ context.Context, reply Msg) (*Msg, error) {
		out := TextMsg(reply.Name, reply.Role, strings.ToUpper(reply.Text()))
		return &out, nil
	})
	if !agent.RemoveHook("shout") {
		t.Fatal("RemoveHook returned false for a registered hook")
	}
	if agent.RemoveHook("shout") {
		t.Fatal("RemoveHook returned true for an absent hook")
	}

	reply, err := agent.Reply(context.Background(), TextMsg("user", RoleUser, "hi"))
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if reply.Text() != "plain" {
		t.Errorf("reply text = %q, want hook removed before reply", reply.Text())
	}
}

func TestObserveSkipsGeneration(t *testing.T) {
	model := &scriptedModel{script: [][]ChatResponse{
		{textChunk("m1", "unused")},
	}}
	agent := NewReActAgent("helper", model)

	err := agent.Observe(context.Background(),
		TextMsg("alice", RoleUser, "for the record"),
		TextMsg("bot", RoleAssistant, "noted"))
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if model.callCount() != 0 {
		t.Errorf("model calls = %d, want 0", model.callCount())
	}
	if size := agent.Memory().Size(); size != 2 {
		t.Errorf("memory size = %d, want 2", size)
	}
}

func TestAgentStateRoundTrip(t *testing.T) {
	model := &scriptedModel{script: [][]ChatResponse{
		{textChunk("m1", "sure")},
	}}
	agent := NewReActAgent("helper", model)
	if _, err := agent.Reply(context.Background(), TextMsg("user", RoleUser, "remember me")); err != nil {
		t.Fatalf("Reply: %v", err)
	}

	state, err := agent.StateDict()
	if err != nil {
		t.Fatalf("StateDict: %v", err)
	}

	restored := NewReActAgent("helper", model)
	if err := restored.LoadStateDict(state, true); err != nil {
		t.Fatalf("LoadStateDict: %v", err)
	}
	want := agent.Memory().Messages()
	got := restored.Memory().Messages()
	if len(got) != len(want) {
		t.Fatalf("restored memory size = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Text() != want[i].Text() || got[i].Role != want[i].Role {
			t.Errorf("restored[%d] = %s %q, want %s %q",
				i, got[i].Role, got[i].Text(), want[i].Role, want[i].Text())
		}
	}

	if err := restored.LoadStateDict(map[string]any{}, true); err == nil {
		t.Error("strict load of empty state should fail")
	}
	if err := restored.LoadStateDict(map[string]any{}, false); err != nil {
		t.Errorf("lenient load of empty state: %v", err)
	}
}

func TestMaxItersCoercion(t *testing.T) {
	model := &scriptedModel{script: [][]ChatResponse{
		{textChunk("m1", "hi")},
	}}
	agent := NewReActAgent("helper", model, WithMaxIters(0))
	if agent.maxIters != 1 {
		t.Errorf("maxIters = %d, want coerced to 1", agent.maxIters)
	}
	if agent.FinishFunction() != "generate_response" {
		t.Errorf("finish function = %q, want default", agent.FinishFunction())
	}
}
