package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type spanTracer struct {
	ctx      context.Context
	tracer   trace.Tracer
	spanName string
	span     trace.Span
}

func newSpanTracer(ctx context.Context, tracer trace.Tracer, spanName string) *spanTracer {
	return &spanTracer{ctx: ctx, tracer: tracer, spanName: spanName}
}

func (t *spanTracer) Start() {
	t.ctx, t.span = t.tracer.Start(t.ctx, t.spanName)
}

func (t *spanTracer) WithAttributes(attributes *SpanAttributes) Tracer {
	if t.span != nil {
		t.span.SetAttributes(attributes.attrs...)
	}
	return t
}

func (t *spanTracer) AddEvent(name string, attributes EventAttributes) {
	if t.span == nil {
		return
	}
	kvs := make([]attribute.KeyValue, 0, len(attributes))
	for k, v := range attributes {
		kvs = append(kvs, anyAttribute(k, v))
	}
	t.span.AddEvent(name, trace.WithAttributes(kvs...))
}

func (t *spanTracer) SetStatus(code codes.Code, message string) {
	if t.span != nil {
		t.span.SetStatus(code, message)
	}
}

// Spawn creates a child tracer under this tracer's span context.
func (t *spanTracer) Spawn(spanName string) Tracer {
	return newSpanTracer(t.ctx, t.tracer, spanName)
}

func (t *spanTracer) End() {
	if t.span != nil {
		t.span.End()
	}
}

// ActionCategory labels what a span was doing, for dashboard filtering.
type ActionCategory string

const (
	Collection ActionCategory = "collection" // artifact discovery and reading
	Analysis   ActionCategory = "analysis"   // normalization through reporting
)

type SpanAttributes struct {
	attrs []attribute.KeyValue
}

type EventAttributes map[string]any

func EmptySpanAttributes() *SpanAttributes {
	return &SpanAttributes{}
}

func NewSpanAttributes(category ActionCategory) *SpanAttributes {
	return &SpanAttributes{attrs: []attribute.KeyValue{
		attribute.String("bench.action.category", string(category)),
	}}
}

func (s *SpanAttributes) WithSubject(subject string) *SpanAttributes {
	s.attrs = append(s.attrs, attribute.String("bench.subject", subject))
	return s
}

func (s *SpanAttributes) WithFuzzer(fuzzer string) *SpanAttributes {
	s.attrs = append(s.attrs, attribute.String("bench.fuzzer", fuzzer))
	return s
}

func (s *SpanAttributes) WithTrialCount(trials int) *SpanAttributes {
	s.attrs = append(s.attrs, attribute.Int("bench.trials", trials))
	return s
}

func (s *SpanAttributes) WithExtraAttribute(key string, value any) *SpanAttributes {
	s.attrs = append(s.attrs, anyAttribute(key, value))
	return s
}

func anyAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case string:
		return attribute.String(key, v)
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}
