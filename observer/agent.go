package observer

import (
	"context"
	"fmt"
	"time"

	parley "github.com/nevindra/parley"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedAgent wraps any Agent to emit OTEL lifecycle spans, metrics, and
// logs. The wrapper creates a parent span for each Reply call that contains
// all inner operations (model streams, tool calls, loop iterations) as child
// spans via context propagation. Pair it with parley.WithTracer(NewTracer())
// on the inner agent for the loop-internal spans.
type ObservedAgent struct {
	inner parley.Agent
	inst  *Instruments
}

// WrapAgent returns an instrumented Agent that emits lifecycle telemetry.
func WrapAgent(inner parley.Agent, inst *Instruments) *ObservedAgent {
	return &ObservedAgent{inner: inner, inst: inst}
}

func (o *ObservedAgent) Name() string { return o.inner.Name() }

// Reply wraps the inner agent's Reply, emitting an agent.reply span that
// serves as the parent for all inner operations.
func (o *ObservedAgent) Reply(ctx context.Context, msgs ...parley.Msg) (parley.Msg, error) {
	agentType := detectAgentType(o.inner)

	ctx, span := o.inst.Tracer.Start(ctx, "agent.reply", trace.WithAttributes(
		AttrAgentName.String(o.inner.Name()),
		AttrAgentType.String(agentType),
	))
	defer span.End()
	start := time.Now()

	span.AddEvent("agent.started")

	reply, err := o.inner.Reply(ctx, msgs...)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"

	if ctx.Err() != nil && err != nil {
		status = "cancelled"
		span.AddEvent("agent.cancelled")
		span.SetStatus(codes.Error, "cancelled")
	} else if err != nil {
		status = "error"
		span.AddEvent("agent.failed", trace.WithAttributes(
			attribute.String("error", err.Error()),
		))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.AddEvent("agent.completed")
	}

	span.SetAttributes(AttrAgentStatus.String(status))

	// Metrics
	o.inst.Replies.Add(ctx, 1, metric.WithAttributes(
		AttrAgentName.String(o.inner.Name()),
		attribute.String("status", status),
	))
	o.inst.ReplyDuration.Record(ctx, durationMs, metric.WithAttributes(
		AttrAgentName.String(o.inner.Name()),
	))

	// Structured log
	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("agent reply completed"))
	rec.AddAttributes(
		otellog.String("agent.name", o.inner.Name()),
		otellog.String("agent.type", agentType),
		otellog.String("agent.status", status),
		otellog.Float64("duration_ms", durationMs),
	)
	o.inst.Logger.Emit(ctx, rec)

	return reply, err
}

// Stream delegates to the inner agent. A stream's lifetime belongs to its
// consumer, so per-reply telemetry comes from Reply; configure the inner
// agent with parley.WithTracer(NewTracer()) to trace streamed replies.
func (o *ObservedAgent) Stream(ctx context.Context, msgs ...parley.Msg) *parley.ReplyStream {
	return o.inner.Stream(ctx, msgs...)
}

// Observe delegates to the inner agent.
func (o *ObservedAgent) Observe(ctx context.Context, msgs ...parley.Msg) error {
	return o.inner.Observe(ctx, msgs...)
}

// detectAgentType returns a string identifier for the agent's concrete type.
func detectAgentType(a parley.Agent) string {
	switch a.(type) {
	case *parley.ReActAgent:
		return "ReActAgent"
	case *parley.UserAgent:
		return "UserAgent"
	default:
		return fmt.Sprintf("%T", a)
	}
}

// compile-time check
var _ parley.Agent = (*ObservedAgent)(nil)
