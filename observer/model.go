package observer

import (
	"context"
	"time"

	parley "github.com/nevindra/parley"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedModel wraps a parley.Model with OTEL instrumentation.
type ObservedModel struct {
	inner parley.Model
	inst  *Instruments
}

// WrapModel returns an instrumented model that emits traces, metrics, and logs.
func WrapModel(inner parley.Model, inst *Instruments) *ObservedModel {
	return &ObservedModel{inner: inner, inst: inst}
}

func (o *ObservedModel) Name() string { return o.inner.Name() }

// Stream wraps the inner model's Stream, emitting a model.stream span with
// chunk and token counts. Chunks pass through unchanged; the caller's
// channel is never closed here, per the Model contract.
func (o *ObservedModel) Stream(ctx context.Context, req parley.ChatRequest, ch chan<- parley.ChatResponse) error {
	spanAttrs := []trace.SpanStartOption{
		trace.WithAttributes(AttrLLMProvider.String(o.inner.Name())),
	}
	if len(req.Tools) > 0 {
		toolNames := make([]string, len(req.Tools))
		for i, t := range req.Tools {
			toolNames[i] = t.Name
		}
		spanAttrs = append(spanAttrs, trace.WithAttributes(
			AttrToolCount.Int(len(req.Tools)),
			AttrToolNames.StringSlice(toolNames),
		))
	}

	ctx, span := o.inst.Tracer.Start(ctx, "model.stream", spanAttrs...)
	defer span.End()
	start := time.Now()

	// Forward chunks through an inner channel to count them and capture
	// usage. Buffer it generously so the inner model never blocks on send
	// while the forwarding goroutine waits on a full ch.
	bufSize := max(cap(ch), 64)
	inner := make(chan parley.ChatResponse, bufSize)
	chunks := 0
	var usage parley.ChatUsage
	done := make(chan struct{})
	go func() {
		defer close(done)
		for resp := range inner {
			chunks++
			if resp.Usage != nil {
				usage = *resp.Usage
			}
			select {
			case ch <- resp:
			case <-ctx.Done():
				return
			}
		}
	}()

	err := o.inner.Stream(ctx, req, inner)
	close(inner)
	<-done // wait for the forwarder before reading chunks and usage

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		AttrStreamChunks.Int(chunks),
		AttrTokensInput.Int(usage.InputTokens),
		AttrTokensOutput.Int(usage.OutputTokens),
	)
	o.record(ctx, status, durationMs, usage, chunks)
	return err
}

func (o *ObservedModel) record(ctx context.Context, status string, durationMs float64, usage parley.ChatUsage, chunks int) {
	provider := AttrLLMProvider.String(o.inner.Name())

	o.inst.TokenUsage.Add(ctx, int64(usage.InputTokens), metric.WithAttributes(
		provider,
		attribute.String("direction", "input"),
	))
	o.inst.TokenUsage.Add(ctx, int64(usage.OutputTokens), metric.WithAttributes(
		provider,
		attribute.String("direction", "output"),
	))
	o.inst.ModelRequests.Add(ctx, 1, metric.WithAttributes(
		provider,
		attribute.String("status", status),
	))
	o.inst.ModelDuration.Record(ctx, durationMs, metric.WithAttributes(provider))

	// Structured log
	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("model stream completed"))
	rec.AddAttributes(
		otellog.String("llm.provider", o.inner.Name()),
		otellog.Int("llm.stream_chunks", chunks),
		otellog.Int("llm.tokens.input", usage.InputTokens),
		otellog.Int("llm.tokens.output", usage.OutputTokens),
		otellog.Float64("llm.duration_ms", durationMs),
		otellog.String("status", status),
	)
	o.inst.Logger.Emit(ctx, rec)
}

// compile-time check
var _ parley.Model = (*ObservedModel)(nil)
