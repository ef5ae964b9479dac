package parley

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
)

const defaultMaxIters = 10

// defaultFinishFunction is the conventional tool name a model calls to
// deliver its final answer. It is never registered, so calling it ends the
// loop; prompts may advertise it to models that insist on calling a tool
// every turn.
const defaultFinishFunction = "generate_response"

// Agent is the conversational surface shared by the ReAct loop, human
// proxies, and pipeline stages.
type Agent interface {
	// Name identifies the agent in message attribution and logs.
	Name() string
	// Reply runs a full exchange over the input batch and returns the
	// final assistant message.
	Reply(ctx context.Context, msgs ...Msg) (Msg, error)
	// Stream runs the same exchange and delivers every intermediate
	// message as it is produced. Work starts immediately; the returned
	// stream must be drained or ctx cancelled.
	Stream(ctx context.Context, msgs ...Msg) *ReplyStream
	// Observe appends messages to the agent's memory without generating
	// a reply.
	Observe(ctx context.Context, msgs ...Msg) error
}

// agentConfig collects option values before construction.
type agentConfig struct {
	sysPrompt      string
	formatter      Formatter
	memory         Memory
	toolkit        *Toolkit
	tools          []Tool
	maxIters       int
	finishFunction string
	parallelTools  bool
	toolTimeout    time.Duration
	genOpts        *GenerateOptions
	logger         *slog.Logger
	hookLogger     *slog.Logger
	tracer         Tracer
}

// Option configures a ReActAgent.
type Option func(*agentConfig)

// WithSysPrompt sets the system prompt prepended to every model call.
func WithSysPrompt(prompt string) Option {
	return func(c *agentConfig) { c.sysPrompt = prompt }
}

// WithFormatter sets the wire formatter. The default is NewChatFormatter;
// use NewMultiAgentFormatter when several named speakers share the
// conversation.
func WithFormatter(f Formatter) Option {
	return func(c *agentConfig) { c.formatter = f }
}

// WithMemory sets the conversation memory (default NewInMemory).
func WithMemory(m Memory) Option {
	return func(c *agentConfig) { c.memory = m }
}

// WithTools registers tools with the agent's toolkit.
func WithTools(tools ...Tool) Option {
	return func(c *agentConfig) { c.tools = append(c.tools, tools...) }
}

// WithToolkit replaces the agent's toolkit. Tools given via WithTools are
// registered on top of it.
func WithToolkit(kit *Toolkit) Option {
	return func(c *agentConfig) { c.toolkit = kit }
}

// WithMaxIters caps the number of model rounds per reply (default 10).
// Values below 1 are coerced to 1.
func WithMaxIters(n int) Option {
	return func(c *agentConfig) { c.maxIters = n }
}

// WithFinishFunction renames the conventional finish call (default
// "generate_response"). The name must stay unregistered; a real tool under
// it would keep the loop running.
func WithFinishFunction(name string) Option {
	return func(c *agentConfig) { c.finishFunction = name }
}

// WithParallelTools dispatches each round's tool calls concurrently
// instead of one after another.
func WithParallelTools(parallel bool) Option {
	return func(c *agentConfig) { c.parallelTools = parallel }
}

// WithToolTimeout bounds each tool dispatch batch. On expiry every call in
// the batch reports a timeout to the model.
func WithToolTimeout(d time.Duration) Option {
	return func(c *agentConfig) { c.toolTimeout = d }
}

// WithGenerateOptions sets sampling knobs sent on every model call.
func WithGenerateOptions(opts *GenerateOptions) Option {
	return func(c *agentConfig) { c.genOpts = opts }
}

// WithLogger sets the structured logger. If not set, log output is
// discarded.
func WithLogger(l *slog.Logger) Option {
	return func(c *agentConfig) { c.logger = l }
}

// WithHookLogger routes hook failure logs separately from the agent
// logger. Defaults to the agent logger.
func WithHookLogger(l *slog.Logger) Option {
	return func(c *agentConfig) { c.hookLogger = l }
}

// WithTracer sets the tracer for reply, reasoning, and acting spans. Use
// observer.NewTracer() for an OTEL-backed implementation.
func WithTracer(t Tracer) Option {
	return func(c *agentConfig) { c.tracer = t }
}

// ReActAgent alternates model reasoning with tool execution until the
// model stops calling registered tools or the round budget runs out.
//
// Each reply appends the input to memory, then loops: the reasoning phase
// formats the conversation and streams one model call, reassembling
// fragmented tool calls; the acting phase dispatches the requested tools
// and feeds their results back into memory. A round whose last message
// carries no call to a registered tool ends the loop, so models finish
// either by answering in plain text or by calling the unregistered finish
// function. When the budget runs out the loop stops where it is; no extra
// synthesis call is made.
//
// Memory is owned by the agent and written only by the loop. The toolkit
// and hook registries may be mutated between replies; an in-flight reply
// works on stable snapshots.
type ReActAgent struct {
	name           string
	sysPrompt      string
	model          Model
	formatter      Formatter
	memory         Memory
	toolkit        *Toolkit
	executor       *Executor
	hooks          *hookManager
	maxIters       int
	finishFunction string
	genOpts        *GenerateOptions
	logger         *slog.Logger
	tracer         Tracer
}

var (
	_ Agent       = (*ReActAgent)(nil)
	_ StateModule = (*ReActAgent)(nil)
)

// NewReActAgent creates an agent around model. The zero configuration uses
// chat formatting, in-process memory, an empty toolkit, and ten rounds.
func NewReActAgent(name string, model Model, opts ...Option) *ReActAgent {
	cfg := agentConfig{
		maxIters:       defaultMaxIters,
		finishFunction: defaultFinishFunction,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.formatter == nil {
		cfg.formatter = NewChatFormatter()
	}
	if cfg.memory == nil {
		cfg.memory = NewInMemory()
	}
	if cfg.toolkit == nil {
		cfg.toolkit = NewToolkit()
	}
	cfg.toolkit.Register(cfg.tools...)
	if cfg.maxIters < 1 {
		cfg.maxIters = 1
	}
	if cfg.logger == nil {
		cfg.logger = nopLogger
	}
	if cfg.hookLogger == nil {
		cfg.hookLogger = cfg.logger
	}
	return &ReActAgent{
		name:           name,
		sysPrompt:      cfg.sysPrompt,
		model:          model,
		formatter:      cfg.formatter,
		memory:         cfg.memory,
		toolkit:        cfg.toolkit,
		executor:       &Executor{Kit: cfg.toolkit, Parallel: cfg.parallelTools, Timeout: cfg.toolTimeout},
		hooks:          newHookManager(cfg.hookLogger),
		maxIters:       cfg.maxIters,
		finishFunction: cfg.finishFunction,
		genOpts:        cfg.genOpts,
		logger:         cfg.logger,
		tracer:         cfg.tracer,
	}
}

// Name returns the agent's display name.
func (a *ReActAgent) Name() string { return a.name }

// Memory returns the agent's conversation memory.
func (a *ReActAgent) Memory() Memory { return a.memory }

// Toolkit returns the agent's tool registry.
func (a *ReActAgent) Toolkit() *Toolkit { return a.toolkit }

// FinishFunction returns the tool name models are expected to call when
// done. Any unregistered name terminates the loop; this is the one
// advertised in prompts.
func (a *ReActAgent) FinishFunction() string { return a.finishFunction }

// RegisterTools adds tools to the agent's toolkit. Registration during an
// in-flight reply takes effect on the next reasoning round at the
// earliest.
func (a *ReActAgent) RegisterTools(tools ...Tool) {
	a.toolkit.Register(tools...)
}

// OnPreReply registers a named hook that may rewrite the input batch
// before Reply processes it. Re-registering a name swaps the hook in
// place.
func (a *ReActAgent) OnPreReply(name string, hook PreReplyHook) {
	a.hooks.registerPre(name, hook)
}

// OnPostReply registers a named hook that may rewrite the final reply
// before Reply returns it. Re-registering a name swaps the hook in place.
func (a *ReActAgent) OnPostReply(name string, hook PostReplyHook) {
	a.hooks.registerPost(name, hook)
}

// RemoveHook drops the named hook from both chains and reports whether
// anything was removed.
func (a *ReActAgent) RemoveHook(name string) bool {
	return a.hooks.remove(name)
}

// ClearHooks removes every registered hook.
func (a *ReActAgent) ClearHooks() {
	a.hooks.clear()
}

// Reply runs the loop to completion and returns the final assistant
// message: the text produced after the last tool call, with thinking left
// out. Pre-reply hooks may rewrite the input batch and post-reply hooks
// the returned message. Transport failures surface as errors; tool
// failures stay inside the conversation as error-text results.
func (a *ReActAgent) Reply(ctx context.Context, msgs ...Msg) (Msg, error) {
	batch := a.hooks.applyPre(ctx, msgs)

	var collected []Msg
	err := a.run(ctx, batch, func(m Msg) bool {
		collected = append(collected, m)
		return true
	})
	if err != nil {
		return Msg{}, err
	}

	reply := a.mergeReply(collected)
	return a.hooks.applyPost(ctx, reply), nil
}

// Stream runs a reply and delivers every intermediate message as it is
// produced: assistant text and thinking chunks, assembled tool calls, and
// tool results. Work starts immediately; consumers must drain the stream
// or cancel ctx. Hooks wrap Reply only; Stream delivers the loop's raw
// output.
func (a *ReActAgent) Stream(ctx context.Context, msgs ...Msg) *ReplyStream {
	s := newReplyStream()
	go func() {
		s.finish(a.run(ctx, msgs, func(m Msg) bool {
			return s.emit(ctx, m)
		}))
	}()
	return s
}

// Observe appends messages to memory without generating a reply.
func (a *ReActAgent) Observe(ctx context.Context, msgs ...Msg) error {
	a.memory.Add(msgs...)
	return nil
}

// StateDict snapshots the agent's restorable state.
func (a *ReActAgent) StateDict() (map[string]any, error) {
	mem, ok := a.memory.(StateModule)
	if !ok {
		return map[string]any{}, nil
	}
	state, err := mem.StateDict()
	if err != nil {
		return nil, err
	}
	return map[string]any{"memory": state}, nil
}

// LoadStateDict restores state captured by StateDict. In strict mode a
// missing or malformed memory entry is an error; otherwise it is skipped.
func (a *ReActAgent) LoadStateDict(state map[string]any, strict bool) error {
	mem, ok := a.memory.(StateModule)
	if !ok {
		return nil
	}
	sub, ok := state["memory"].(map[string]any)
	if !ok {
		if strict {
			return fmt.Errorf("agent state missing %q", "memory")
		}
		return nil
	}
	return mem.LoadStateDict(sub, strict)
}

// emitFunc receives each intermediate message of a reply in production
// order. Returning false aborts the loop; it means the consumer's context
// ended.
type emitFunc func(Msg) bool

// run drives the reason/act loop over the input batch. Every intermediate
// message goes through emit; the terminal error is nil for a normal
// finish, including one forced by the iteration cap.
func (a *ReActAgent) run(ctx context.Context, input []Msg, emit emitFunc) (err error) {
	ctx, span := a.startSpan(ctx, "agent.reply", StringAttr("agent.name", a.name))
	a.logger.Info("agent started", "agent", a.name, "messages", len(input))

	a.memory.Add(input...)

	var total ChatUsage
	rounds := 0
	defer func() {
		if span != nil {
			span.SetAttr(
				IntAttr("tokens.input", total.InputTokens),
				IntAttr("tokens.output", total.OutputTokens),
				IntAttr("agent.rounds", rounds))
		}
		endSpan(span, err)
		a.logger.Info("agent completed", "agent", a.name,
			"status", statusStr(err), "rounds", rounds,
			"tokens.input", total.InputTokens,
			"tokens.output", total.OutputTokens)
	}()

	for iter := 0; iter < a.maxIters; iter++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rounds = iter + 1

		last, usage, rerr := a.reasoning(ctx, iter, emit)
		total.InputTokens += usage.InputTokens
		total.OutputTokens += usage.OutputTokens
		if rerr != nil {
			return rerr
		}

		if a.finished(last) {
			return nil
		}
		if aerr := a.acting(ctx, iter, emit); aerr != nil {
			return aerr
		}
	}
	a.logger.Debug("iteration cap reached", "agent", a.name, "max_iters", a.maxIters)
	return nil
}

// reasoning runs one model round: format the conversation, stream the
// model, emit text and thinking as they arrive, and reassemble tool-call
// fragments. The round's memory entry is the assembled tool call (or
// calls) when the model asked for tools, otherwise one assistant message
// aggregating the round's text. Returns the last message appended to
// memory; a zero Msg means the round produced nothing.
func (a *ReActAgent) reasoning(ctx context.Context, round int, emit emitFunc) (Msg, ChatUsage, error) {
	ctx, span := a.startSpan(ctx, "agent.reasoning",
		StringAttr("agent.name", a.name), IntAttr("agent.round", round))

	req := ChatRequest{
		Messages: a.formatter.Format(a.promptMessages()),
		Tools:    a.toolkit.Schemas(),
		Options:  a.genOpts,
	}
	a.logger.Debug("reasoning round", "agent", a.name, "round", round,
		"messages", len(req.Messages), "tools", len(req.Tools))

	chunks := make(chan ChatResponse, 8)
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.model.Stream(ctx, req, chunks)
		close(chunks)
	}()

	acc := newToolCallAccumulator()
	var (
		collected []Msg // text and thinking, in arrival order
		toolMsgs  []Msg // assembled calls, in arrival order
		usage     ChatUsage
	)
	for chunk := range chunks {
		if chunk.Usage != nil {
			usage = *chunk.Usage
		}
		for _, block := range chunk.Content {
			switch b := block.(type) {
			case *ToolUseBlock:
				if acc.startsNewCall(b) {
					if m, ok := acc.buildIfPresent(a.name); ok {
						toolMsgs = append(toolMsgs, m)
					}
					acc.reset()
				}
				acc.mergeResponse(chunk)
				acc.merge(b)
			case *TextBlock, *ThinkingBlock:
				m := NewMsg(a.name, RoleAssistant, block)
				collected = append(collected, m)
				if !emit(m) {
					// Consumer gone. Drain so the model goroutine can
					// finish; its ctx is already done.
					for range chunks {
					}
					<-errCh
					endSpan(span, ctx.Err())
					return Msg{}, usage, ctx.Err()
				}
			}
		}
	}
	if err := <-errCh; err != nil {
		endSpan(span, err)
		return Msg{}, usage, err
	}
	if m, ok := acc.buildIfPresent(a.name); ok {
		toolMsgs = append(toolMsgs, m)
	}

	last, err := a.commitRound(ctx, collected, toolMsgs, emit)
	if span != nil {
		span.SetAttr(
			IntAttr("tokens.input", usage.InputTokens),
			IntAttr("tokens.output", usage.OutputTokens),
			IntAttr("tools.requested", len(toolMsgs)))
	}
	endSpan(span, err)
	return last, usage, err
}

// commitRound appends the round's outcome to memory: every assembled tool
// call when the model asked for tools, otherwise one assistant message
// aggregating the streamed text. Assembled calls are emitted here since
// they only complete at stream end.
func (a *ReActAgent) commitRound(ctx context.Context, collected, toolMsgs []Msg, emit emitFunc) (Msg, error) {
	if len(toolMsgs) > 0 {
		for _, m := range toolMsgs {
			if !emit(m) {
				return Msg{}, ctx.Err()
			}
		}
		a.memory.Add(toolMsgs...)
		return toolMsgs[len(toolMsgs)-1], nil
	}
	agg, ok := aggregateRound(a.name, collected)
	if !ok {
		return Msg{}, nil
	}
	a.memory.Add(agg)
	return agg, nil
}

// aggregateRound folds a round's streamed messages into the assistant
// message memory keeps: the concatenated text when any text arrived,
// otherwise the last message as-is (a thinking-only round keeps its
// thinking). ok is false when the round produced nothing.
func aggregateRound(name string, msgs []Msg) (Msg, bool) {
	if len(msgs) == 0 {
		return Msg{}, false
	}
	var sb strings.Builder
	for _, m := range msgs {
		if tb, ok := m.Content.(*TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	if sb.Len() == 0 {
		return msgs[len(msgs)-1], true
	}
	return TextMsg(name, RoleAssistant, sb.String()), true
}

// finished reports whether the loop should stop after this round: the
// round's last message carries no call to a registered tool. An unknown
// name is the finish-function convention, so it terminates rather than
// erroring.
func (a *ReActAgent) finished(last Msg) bool {
	tu, ok := last.ToolUse()
	if !ok {
		return true
	}
	return !a.toolkit.Has(tu.Name)
}

// acting dispatches the current turn's tool calls and appends each result
// to memory as a tool-role message, in call order.
func (a *ReActAgent) acting(ctx context.Context, round int, emit emitFunc) error {
	calls := a.pendingCalls()
	if len(calls) == 0 {
		return nil
	}
	ctx, span := a.startSpan(ctx, "agent.acting",
		StringAttr("agent.name", a.name), IntAttr("agent.round", round),
		IntAttr("tools.count", len(calls)))
	a.logger.Debug("dispatching tool calls", "agent", a.name,
		"round", round, "count", len(calls))

	responses := a.executor.Execute(ctx, calls)
	for i, resp := range responses {
		result := ToolResultMsg(a.name, &ToolResultBlock{
			ID:     calls[i].ID,
			Name:   calls[i].Name,
			Output: &TextBlock{Text: resp.Text()},
		})
		a.memory.Add(result)
		if !emit(result) {
			endSpan(span, ctx.Err())
			return ctx.Err()
		}
	}
	endSpan(span, nil)
	return nil
}

// pendingCalls returns the tool calls of the current assistant turn: the
// trailing run of consecutive assistant tool-call messages in memory,
// oldest first. The loop usually appends exactly one per round, but a
// single turn carries several when the model streams more than one
// complete call.
func (a *ReActAgent) pendingCalls() []*ToolUseBlock {
	history := a.memory.Messages()
	var calls []*ToolUseBlock
	for i := len(history) - 1; i >= 0; i-- {
		tu, ok := history[i].ToolUse()
		if !ok || history[i].Role != RoleAssistant {
			break
		}
		calls = append(calls, tu)
	}
	slices.Reverse(calls)
	return calls
}

// promptMessages is the conversation the model sees: the system prompt,
// when set, ahead of the full memory.
func (a *ReActAgent) promptMessages() []Msg {
	history := a.memory.Messages()
	if a.sysPrompt == "" {
		return history
	}
	msgs := make([]Msg, 0, len(history)+1)
	msgs = append(msgs, TextMsg(a.name, RoleSystem, a.sysPrompt))
	return append(msgs, history...)
}

// mergeReply folds the loop's emitted messages into the final reply: the
// concatenated assistant text after the last tool call. Thinking is
// commentary, not the answer, so it stays out.
func (a *ReActAgent) mergeReply(collected []Msg) Msg {
	start := 0
	for i, m := range collected {
		if _, ok := m.ToolUse(); ok {
			start = i
		}
	}
	var sb strings.Builder
	for _, m := range collected[start:] {
		if tb, ok := m.Content.(*TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	return TextMsg(a.name, RoleAssistant, sb.String())
}

// startSpan opens a span when a tracer is configured; otherwise the span
// is nil and ctx passes through.
func (a *ReActAgent) startSpan(ctx context.Context, name string, attrs ...SpanAttr) (context.Context, Span) {
	if a.tracer == nil {
		return ctx, nil
	}
	return a.tracer.Start(ctx, name, attrs...)
}

// endSpan records the outcome on a span and ends it. Safe on nil.
func endSpan(span Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.Error(err)
		span.SetAttr(StringAttr("agent.status", "error"))
	} else {
		span.SetAttr(StringAttr("agent.status", "ok"))
	}
	span.End()
}

func statusStr(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
