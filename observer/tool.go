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

// ObservedTool wraps a parley.Tool with OTEL instrumentation.
type ObservedTool struct {
	inner parley.Tool
	inst  *Instruments
}

// WrapTool returns an instrumented tool.
func WrapTool(inner parley.Tool, inst *Instruments) *ObservedTool {
	return &ObservedTool{inner: inner, inst: inst}
}

func (o *ObservedTool) Name() string               { return o.inner.Name() }
func (o *ObservedTool) Description() string        { return o.inner.Description() }
func (o *ObservedTool) Parameters() map[string]any { return o.inner.Parameters() }

func (o *ObservedTool) Call(ctx context.Context, input map[string]any) (*parley.ToolResponse, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "tool.call", trace.WithAttributes(
		AttrToolName.String(o.inner.Name()),
	))
	defer span.End()
	start := time.Now()

	resp, err := o.inner.Call(ctx, input)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	blocks := 0
	if resp != nil {
		blocks = len(resp.Content)
	}

	span.SetAttributes(
		AttrToolStatus.String(status),
		AttrToolResultBlocks.Int(blocks),
	)

	o.inst.ToolCalls.Add(ctx, 1, metric.WithAttributes(
		AttrToolName.String(o.inner.Name()),
		attribute.String("status", status),
	))
	o.inst.ToolDuration.Record(ctx, durationMs, metric.WithAttributes(
		AttrToolName.String(o.inner.Name()),
	))

	// Structured log
	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("tool call completed"))
	rec.AddAttributes(
		otellog.String("tool.name", o.inner.Name()),
		otellog.String("tool.status", status),
		otellog.Int("tool.result_blocks", blocks),
		otellog.Float64("tool.duration_ms", durationMs),
	)
	o.inst.Logger.Emit(ctx, rec)

	return resp, err
}

// compile-time check
var _ parley.Tool = (*ObservedTool)(nil)
