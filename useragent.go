package parley

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// InputPrompt describes what the conversation needs from the human.
type InputPrompt struct {
	// AgentName is the asking agent's display name.
	AgentName string
	// Hint is printed before reading, e.g. "User Input: ". Empty keeps the
	// reader's own default.
	Hint string
}

// InputResponse is the human's reply, usually a single text block.
type InputResponse struct {
	Blocks []ContentBlock
}

// InputReader delivers a prompt to a human and returns their response.
// Implementations bridge to the actual channel (terminal, web UI, chat
// frontend) and must block until a response arrives or ctx is cancelled.
type InputReader interface {
	ReadInput(ctx context.Context, prompt InputPrompt) (InputResponse, error)
}

// UserAgent brings a human into a conversation as a regular Agent. Reply
// ignores the incoming batch (the human has already seen it through
// whatever surface hosts the conversation) and reads the human's next
// input; the produced user message is recorded in memory like any other
// turn.
type UserAgent struct {
	name   string
	memory Memory
	reader InputReader
}

var _ Agent = (*UserAgent)(nil)

// NewUserAgent creates a human proxy. A nil memory gets a fresh InMemory;
// a nil reader reads from the terminal.
func NewUserAgent(name string, memory Memory, reader InputReader) *UserAgent {
	if memory == nil {
		memory = NewInMemory()
	}
	if reader == nil {
		reader = NewTerminalInput()
	}
	return &UserAgent{name: name, memory: memory, reader: reader}
}

// Name returns the agent's display name.
func (u *UserAgent) Name() string { return u.name }

// Memory returns the agent's conversation memory.
func (u *UserAgent) Memory() Memory { return u.memory }

// Reply reads one input from the human and returns it as a user message.
func (u *UserAgent) Reply(ctx context.Context, _ ...Msg) (Msg, error) {
	resp, err := u.reader.ReadInput(ctx, InputPrompt{AgentName: u.name})
	if err != nil {
		return Msg{}, err
	}
	msg := NewMsg(u.name, RoleUser, inputContent(resp))
	u.memory.Add(msg)
	return msg, nil
}

// Stream reads one input and delivers it as a single-message stream.
func (u *UserAgent) Stream(ctx context.Context, msgs ...Msg) *ReplyStream {
	s := newReplyStream()
	go func() {
		msg, err := u.Reply(ctx, msgs...)
		if err != nil {
			s.finish(err)
			return
		}
		if !s.emit(ctx, msg) {
			s.finish(ctx.Err())
			return
		}
		s.finish(nil)
	}()
	return s
}

// Observe appends messages to memory without asking the human anything.
func (u *UserAgent) Observe(ctx context.Context, msgs ...Msg) error {
	u.memory.Add(msgs...)
	return nil
}

// inputContent picks the message content from a response: a single block
// is used directly, extras are dropped, and no content becomes empty text.
func inputContent(resp InputResponse) ContentBlock {
	if len(resp.Blocks) == 0 {
		return &TextBlock{Text: ""}
	}
	return resp.Blocks[0]
}

const defaultInputHint = "User Input: "

// lineResult is one line from the reader loop.
type lineResult struct {
	text string
	err  error
}

// TerminalInput reads one line per prompt, from stdin by default. Lines
// are read on a dedicated goroutine so a cancelled context abandons the
// wait instead of blocking the caller; a line typed for an abandoned
// prompt is delivered to the next one.
type TerminalInput struct {
	src   io.Reader
	out   io.Writer
	hint  string
	once  sync.Once
	lines chan lineResult
}

var _ InputReader = (*TerminalInput)(nil)

// NewTerminalInput reads prompts from stdin and prints hints to stdout.
func NewTerminalInput() *TerminalInput {
	return newLineInput(os.Stdin, os.Stdout, defaultInputHint)
}

func newLineInput(src io.Reader, out io.Writer, hint string) *TerminalInput {
	return &TerminalInput{src: src, out: out, hint: hint}
}

// start launches the reader loop on first use.
func (t *TerminalInput) start() {
	t.once.Do(func() {
		t.lines = make(chan lineResult)
		go func() {
			scanner := bufio.NewScanner(t.src)
			for scanner.Scan() {
				t.lines <- lineResult{text: scanner.Text()}
			}
			err := scanner.Err()
			if err == nil {
				err = io.EOF
			}
			t.lines <- lineResult{err: err}
			close(t.lines)
		}()
	})
}

// ReadInput prints the hint and waits for the next line or ctx.
func (t *TerminalInput) ReadInput(ctx context.Context, prompt InputPrompt) (InputResponse, error) {
	t.start()

	hint := prompt.Hint
	if hint == "" {
		hint = t.hint
	}
	fmt.Fprint(t.out, hint)

	select {
	case line, ok := <-t.lines:
		if !ok {
			return InputResponse{}, io.EOF
		}
		if line.err != nil {
			return InputResponse{}, line.err
		}
		return InputResponse{Blocks: []ContentBlock{&TextBlock{Text: line.text}}}, nil
	case <-ctx.Done():
		return InputResponse{}, ctx.Err()
	}
}
