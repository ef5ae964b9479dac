package parley

import (
	"context"
	"sync"
)

// Sequential chains agents: the first receives the input batch and each
// later agent receives the previous agent's reply. Returns the last reply.
// An empty agent list returns a zero Msg and no error; the first failing
// agent aborts the chain.
func Sequential(ctx context.Context, agents []Agent, input ...Msg) (Msg, error) {
	var out Msg
	batch := input
	for _, agent := range agents {
		reply, err := agent.Reply(ctx, batch...)
		if err != nil {
			return Msg{}, err
		}
		out = reply
		batch = []Msg{reply}
	}
	return out, nil
}

// Fanout sends the same input batch to every agent and returns the replies
// in agent order. With parallel set, agents run concurrently on a bounded
// worker pool. Every agent runs to completion either way; the first error
// (in agent order) is reported after all have finished, with the
// successful replies still filled in.
func Fanout(ctx context.Context, agents []Agent, parallel bool, input ...Msg) ([]Msg, error) {
	if len(agents) == 0 {
		return nil, nil
	}

	results := make([]Msg, len(agents))
	errs := make([]error, len(agents))

	if parallel {
		work := make(chan int, len(agents))
		for i := range agents {
			work <- i
		}
		close(work)

		var wg sync.WaitGroup
		numWorkers := min(len(agents), maxParallelDispatch)
		wg.Add(numWorkers)
		for range numWorkers {
			go func() {
				defer wg.Done()
				for i := range work {
					results[i], errs[i] = agents[i].Reply(ctx, input...)
				}
			}()
		}
		wg.Wait()
	} else {
		for i, agent := range agents {
			results[i], errs[i] = agent.Reply(ctx, input...)
		}
	}

	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}
	return results, nil
}
