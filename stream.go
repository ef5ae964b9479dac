package parley

import "context"

// ReplyStream delivers the intermediate messages of one agent reply as they
// are produced: assistant text and thinking chunks, assembled tool calls,
// and tool results. Work begins when the stream is created; each Stream
// call is an independent execution.
//
// Consume with Next or by ranging over Ch, then check Err. The producer
// blocks on an abandoned stream until the reply context is cancelled, so
// callers must drain the channel or cancel the context.
type ReplyStream struct {
	ch  chan Msg
	err error
}

func newReplyStream() *ReplyStream {
	return &ReplyStream{ch: make(chan Msg)}
}

// emit delivers one message to the consumer. It reports false when the
// context ended before the message could be handed off.
func (s *ReplyStream) emit(ctx context.Context, msg Msg) bool {
	select {
	case s.ch <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

// finish records the terminal error and closes the stream. Called exactly
// once by the producer; the error write is ordered before the close, so
// consumers may read Err after the channel is drained.
func (s *ReplyStream) finish(err error) {
	s.err = err
	close(s.ch)
}

// Next returns the next message, blocking until one is available. ok is
// false once the stream is exhausted; check Err then.
func (s *ReplyStream) Next() (Msg, bool) {
	msg, ok := <-s.ch
	return msg, ok
}

// Ch exposes the message channel for range loops. The channel is closed
// when the reply completes.
func (s *ReplyStream) Ch() <-chan Msg {
	return s.ch
}

// Err reports the error the reply ended with, if any. Valid only after the
// channel is drained.
func (s *ReplyStream) Err() error {
	return s.err
}
