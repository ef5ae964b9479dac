package parley

import (
	"context"
	"errors"
	"sync"
	"time"
)

// maxParallelDispatch caps the number of concurrent tool call goroutines
// per batch.
const maxParallelDispatch = 10

// Executor runs batches of tool calls against a Toolkit. Responses are
// positionally aligned with the input calls regardless of completion order,
// and one call's failure never aborts its siblings.
type Executor struct {
	// Kit resolves tool names. Required.
	Kit *Toolkit
	// Parallel runs batch members concurrently on a bounded worker pool
	// instead of one after another.
	Parallel bool
	// Timeout bounds the whole batch; zero means no limit. On expiry every
	// response in the batch becomes a timed-out error.
	Timeout time.Duration
}

// NewExecutor creates a sequential executor with no batch timeout.
func NewExecutor(kit *Toolkit) *Executor {
	return &Executor{Kit: kit}
}

// Execute runs the batch and returns one response per call, in call order.
// Cancellation of ctx turns unfinished slots into interrupted responses.
func (e *Executor) Execute(ctx context.Context, calls []*ToolUseBlock) []*ToolResponse {
	if len(calls) == 0 {
		return nil
	}
	if e.Timeout > 0 {
		return e.executeWithTimeout(ctx, calls)
	}
	return e.run(ctx, calls)
}

// executeWithTimeout runs the batch under a deadline. The whole batch
// degrades together: if the budget expires, every slot reports the timeout,
// even calls that finished in time.
func (e *Executor) executeWithTimeout(ctx context.Context, calls []*ToolUseBlock) []*ToolResponse {
	tctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	done := make(chan []*ToolResponse, 1)
	go func() { done <- e.run(tctx, calls) }()

	select {
	case res := <-done:
		if errors.Is(tctx.Err(), context.DeadlineExceeded) {
			return timeoutResponses(calls)
		}
		return res
	case <-tctx.Done():
		// A tool ignoring ctx can still be running; it is abandoned, not
		// killed.
		if errors.Is(tctx.Err(), context.DeadlineExceeded) {
			return timeoutResponses(calls)
		}
		return interruptedResponses(calls)
	}
}

func (e *Executor) run(ctx context.Context, calls []*ToolUseBlock) []*ToolResponse {
	if e.Parallel {
		return e.runParallel(ctx, calls)
	}
	return e.runSequential(ctx, calls)
}

func (e *Executor) runSequential(ctx context.Context, calls []*ToolUseBlock) []*ToolResponse {
	results := make([]*ToolResponse, len(calls))
	for i, call := range calls {
		if ctx.Err() != nil {
			results[i] = interruptedResponse(call)
			continue
		}
		results[i] = e.Kit.Call(ctx, call)
	}
	return results
}

// indexedResponse pairs a response with its position in the original call
// slice, allowing channel-based collection in order.
type indexedResponse struct {
	idx  int
	resp *ToolResponse
}

// runParallel runs all calls concurrently and returns responses in input
// order. Single calls run inline (no goroutine). Multiple calls use a fixed
// worker pool of min(len(calls), maxParallelDispatch) goroutines pulling
// from a shared work channel, avoiding unbounded goroutine creation.
//
// The collection loop is context-aware: if ctx is cancelled while calls are
// still in-flight, unfinished slots become interrupted responses instead of
// blocking indefinitely.
func (e *Executor) runParallel(ctx context.Context, calls []*ToolUseBlock) []*ToolResponse {
	// Fast path: single call, no goroutine needed.
	if len(calls) == 1 {
		return []*ToolResponse{e.Kit.Call(ctx, calls[0])}
	}

	resultCh := make(chan indexedResponse, len(calls))

	type workItem struct {
		idx  int
		call *ToolUseBlock
	}
	workCh := make(chan workItem, len(calls))
	for i, call := range calls {
		workCh <- workItem{idx: i, call: call}
	}
	close(workCh)

	numWorkers := min(len(calls), maxParallelDispatch)
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for range numWorkers {
		go func() {
			defer wg.Done()
			for w := range workCh {
				if ctx.Err() != nil {
					resultCh <- indexedResponse{w.idx, interruptedResponse(w.call)}
					continue
				}
				resultCh <- indexedResponse{w.idx, e.Kit.Call(ctx, w.call)}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make([]*ToolResponse, len(calls))
	seen := make([]bool, len(calls))
collect:
	for received := 0; received < len(calls); received++ {
		select {
		case r, ok := <-resultCh:
			if !ok {
				break collect
			}
			results[r.idx] = r.resp
			seen[r.idx] = true
		case <-ctx.Done():
			for i := range results {
				if !seen[i] {
					results[i] = interruptedResponse(calls[i])
				}
			}
			return results
		}
	}
	// Fill any unseen results (e.g. channel closed early) with error markers.
	for i := range results {
		if !seen[i] {
			results[i] = errorResponseFor(calls[i], "Tool execution failed: result not received")
		}
	}
	return results
}

func interruptedResponse(call *ToolUseBlock) *ToolResponse {
	resp := InterruptedResponse()
	if call.ID != "" {
		resp.ID = call.ID
	}
	return resp
}

func errorResponseFor(call *ToolUseBlock, msg string) *ToolResponse {
	resp := ErrorResponse(msg)
	if call.ID != "" {
		resp.ID = call.ID
	}
	return resp
}

func timeoutResponses(calls []*ToolUseBlock) []*ToolResponse {
	out := make([]*ToolResponse, len(calls))
	for i, call := range calls {
		out[i] = errorResponseFor(call, "Tool execution timed out")
	}
	return out
}

func interruptedResponses(calls []*ToolUseBlock) []*ToolResponse {
	out := make([]*ToolResponse, len(calls))
	for i, call := range calls {
		out[i] = interruptedResponse(call)
	}
	return out
}
