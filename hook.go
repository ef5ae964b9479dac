package parley

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// PreReplyHook runs before the reply loop sees the input batch and may
// rewrite it. Returning a nil slice keeps the current batch. A failing hook
// is logged and its change discarded; later hooks and the loop observe the
// batch as it was before the failure.
type PreReplyHook func(ctx context.Context, msgs []Msg) ([]Msg, error)

// PostReplyHook runs on the produced reply and may replace it. Returning
// nil passes the current message through unchanged, as does failing.
type PostReplyHook func(ctx context.Context, reply Msg) (*Msg, error)

type namedPreHook struct {
	name string
	hook PreReplyHook
}

type namedPostHook struct {
	name string
	hook PostReplyHook
}

// hookManager holds one agent's hook chains. Execution order is
// registration order; re-registering an existing name swaps the hook
// without moving its position. Each reply runs against a stable snapshot,
// so concurrent register/remove never affects an in-flight chain.
type hookManager struct {
	mu     sync.Mutex
	logger *slog.Logger
	pre    []namedPreHook
	post   []namedPostHook
}

func newHookManager(logger *slog.Logger) *hookManager {
	if logger == nil {
		logger = nopLogger
	}
	return &hookManager{logger: logger}
}

func (h *hookManager) registerPre(name string, hook PreReplyHook) {
	if name == "" || hook == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.pre {
		if h.pre[i].name == name {
			h.pre[i].hook = hook
			return
		}
	}
	h.pre = append(h.pre, namedPreHook{name: name, hook: hook})
}

func (h *hookManager) registerPost(name string, hook PostReplyHook) {
	if name == "" || hook == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.post {
		if h.post[i].name == name {
			h.post[i].hook = hook
			return
		}
	}
	h.post = append(h.post, namedPostHook{name: name, hook: hook})
}

// remove drops the named hook from both chains and reports whether
// anything was removed.
func (h *hookManager) remove(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	removed := false
	for i := range h.pre {
		if h.pre[i].name == name {
			h.pre = append(h.pre[:i], h.pre[i+1:]...)
			removed = true
			break
		}
	}
	for i := range h.post {
		if h.post[i].name == name {
			h.post = append(h.post[:i], h.post[i+1:]...)
			removed = true
			break
		}
	}
	return removed
}

func (h *hookManager) clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pre = nil
	h.post = nil
}

func (h *hookManager) snapshot() ([]namedPreHook, []namedPostHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	pre := append([]namedPreHook(nil), h.pre...)
	post := append([]namedPostHook(nil), h.post...)
	return pre, post
}

// applyPre runs the pre chain over the input batch and returns the batch
// the loop should use.
func (h *hookManager) applyPre(ctx context.Context, msgs []Msg) []Msg {
	pre, _ := h.snapshot()
	current := msgs
	for _, entry := range pre {
		if ctx.Err() != nil {
			return current
		}
		next, err := runPreHook(ctx, entry.hook, current)
		if err != nil {
			h.logger.Warn("pre-reply hook failed", "hook", entry.name, "error", err)
			continue
		}
		if next != nil {
			current = next
		}
	}
	return current
}

// applyPost runs the post chain over a produced reply and returns the
// message the caller should see.
func (h *hookManager) applyPost(ctx context.Context, reply Msg) Msg {
	_, post := h.snapshot()
	current := reply
	for _, entry := range post {
		if ctx.Err() != nil {
			return current
		}
		next, err := runPostHook(ctx, entry.hook, current)
		if err != nil {
			h.logger.Warn("post-reply hook failed", "hook", entry.name, "error", err)
			continue
		}
		if next != nil {
			current = *next
		}
	}
	return current
}

func runPreHook(ctx context.Context, hook PreReplyHook, msgs []Msg) (out []Msg, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return hook(ctx, msgs)
}

func runPostHook(ctx context.Context, hook PostReplyHook, reply Msg) (out *Msg, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return hook(ctx, reply)
}

// nopLogger drops everything; it stands in when no logger is configured so
// call sites never nil-check.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
