package parley

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

// stubAgent replies with a fixed transformation of its input text.
type stubAgent struct {
	name    string
	reply   func(msgs []Msg) (Msg, error)
	started chan struct{}
	release <-chan struct{}
}

func (a *stubAgent) Name() string { return a.name }

func (a *stubAgent) Reply(ctx context.Context, msgs ...Msg) (Msg, error) {
	if a.started != nil {
		a.started <- struct{}{}
		select {
		case <-a.release:
		case <-ctx.Done():
			return Msg{}, ctx.Err()
		}
	}
	return a.reply(msgs)
}

func (a *stubAgent) Stream(ctx context.Context, msgs ...Msg) *ReplyStream {
	s := newReplyStream()
	go func() {
		msg, err := a.Reply(ctx, msgs...)
		if err == nil {
			s.emit(ctx, msg)
		}
		s.finish(err)
	}()
	return s
}

func (a *stubAgent) Observe(ctx context.Context, msgs ...Msg) error { return nil }

func appendAgent(name, suffix string) *stubAgent {
	return &stubAgent{name: name, reply: func(msgs []Msg) (Msg, error) {
		var sb strings.Builder
		for _, m := range msgs {
			sb.WriteString(m.Text())
		}
		sb.WriteString(suffix)
		return TextMsg(name, RoleAssistant, sb.String()), nil
	}}
}

func failingAgent(name string) *stubAgent {
	return &stubAgent{name: name, reply: func([]Msg) (Msg, error) {
		return Msg{}, fmt.Errorf("%s broke", name)
	}}
}

func TestSequentialChains(t *testing.T) {
	agents := []Agent{appendAgent("a", "-a"), appendAgent("b", "-b"), appendAgent("c", "-c")}

	out, err := Sequential(context.Background(), agents, TextMsg("user", RoleUser, "x"))
	if err != nil {
		t.Fatalf("Sequential: %v", err)
	}
	if out.Text() != "x-a-b-c" {
		t.Errorf("chained output = %q, want each agent fed the previous reply", out.Text())
	}
}

func TestSequentialEmpty(t *testing.T) {
	out, err := Sequential(context.Background(), nil, TextMsg("user", RoleUser, "x"))
	if err != nil {
		t.Fatalf("Sequential: %v", err)
	}
	if out != (Msg{}) {
		t.Errorf("empty chain output = %+v, want zero Msg", out)
	}
}

func TestSequentialStopsOnError(t *testing.T) {
	var reached bool
	after := &stubAgent{name: "after", reply: func(msgs []Msg) (Msg, error) {
		reached = true
		return TextMsg("after", RoleAssistant, "nope"), nil
	}}
	agents := []Agent{appendAgent("a", "-a"), failingAgent("bad"), after}

	_, err := Sequential(context.Background(), agents, TextMsg("user", RoleUser, "x"))
	if err == nil || !strings.Contains(err.Error(), "bad broke") {
		t.Fatalf("Sequential error = %v, want the failing agent's error", err)
	}
	if reached {
		t.Error("agent after the failure still ran")
	}
}

func TestFanoutOrder(t *testing.T) {
	agents := []Agent{appendAgent("a", "-a"), appendAgent("b", "-b"), appendAgent("c", "-c")}

	replies, err := Fanout(context.Background(), agents, false, TextMsg("user", RoleUser, "x"))
	if err != nil {
		t.Fatalf("Fanout: %v", err)
	}
	want := []string{"x-a", "x-b", "x-c"}
	if len(replies) != len(want) {
		t.Fatalf("replies = %d, want %d", len(replies), len(want))
	}
	for i, w := range want {
		if replies[i].Text() != w {
			t.Errorf("replies[%d] = %q, want %q", i, replies[i].Text(), w)
		}
	}
}

func TestFanoutParallelRunsConcurrently(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	mk := func(name string) *stubAgent {
		a := appendAgent(name, "-"+name)
		a.started = started
		a.release = release
		return a
	}
	agents := []Agent{mk("a"), mk("b")}

	done := make(chan struct{})
	var replies []Msg
	var err error
	go func() {
		replies, err = Fanout(context.Background(), agents, true, TextMsg("user", RoleUser, "x"))
		close(done)
	}()

	// Both agents must start before either is released; sequential
	// execution would deadlock here and trip the test timeout.
	<-started
	<-started
	close(release)
	<-done

	if err != nil {
		t.Fatalf("Fanout: %v", err)
	}
	if replies[0].Text() != "x-a" || replies[1].Text() != "x-b" {
		t.Errorf("replies = %q,%q, want input order preserved", replies[0].Text(), replies[1].Text())
	}
}

func TestFanoutReportsFirstErrorAfterAllFinish(t *testing.T) {
	var cRan bool
	last := &stubAgent{name: "c", reply: func(msgs []Msg) (Msg, error) {
		cRan = true
		return TextMsg("c", RoleAssistant, "x-c"), nil
	}}
	agents := []Agent{failingAgent("a"), appendAgent("b", "-b"), last}

	replies, err := Fanout(context.Background(), agents, false, TextMsg("user", RoleUser, "x"))
	if err == nil || !strings.Contains(err.Error(), "a broke") {
		t.Fatalf("Fanout error = %v, want first agent's error", err)
	}
	if !cRan {
		t.Error("later agent skipped; every agent should run to completion")
	}
	if replies[1].Text() != "x-b" {
		t.Errorf("successful reply lost: %q", replies[1].Text())
	}
}

func TestFanoutEmpty(t *testing.T) {
	replies, err := Fanout(context.Background(), nil, true, TextMsg("user", RoleUser, "x"))
	if err != nil || replies != nil {
		t.Fatalf("empty fanout = %v, %v; want nil, nil", replies, err)
	}
}
