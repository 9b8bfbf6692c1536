package telemetry

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/entrhq/autopilot/pkg/automation"
)

const tracerName = "github.com/entrhq/autopilot/pkg/automation"

// Span attribute keys
var (
	AttrSessionID   = attribute.Key("autopilot.session.id")
	AttrTargetID    = attribute.Key("autopilot.target.id")
	AttrTargetKind  = attribute.Key("autopilot.target.kind")
	AttrAction      = attribute.Key("autopilot.action")
	AttrErrorKind   = attribute.Key("autopilot.error.kind")
	AttrStep        = attribute.Key("autopilot.error.step")
	AttrPayloadKind = attribute.Key("autopilot.payload.kind")
)

// NewStdoutTracerProvider creates a tracer provider exporting spans as JSON
// to w, and installs it as the global provider.
func NewStdoutTracerProvider(serviceName string, w io.Writer) (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(w),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(provider)
	return provider, nil
}

// Tracer opens one span per dispatched action.
type Tracer struct {
	tracer trace.Tracer
}

var _ automation.Observer = (*Tracer)(nil)

// NewTracer creates an observer using provider, or the global provider when
// provider is nil.
func NewTracer(provider trace.TracerProvider) *Tracer {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &Tracer{tracer: provider.Tracer(tracerName)}
}

type spanKey struct{}

func (t *Tracer) DiscoveryCompleted(automation.Discovery)    {}
func (t *Tracer) SessionBound(*automation.Session)           {}
func (t *Tracer) SessionReleased(*automation.Session, error) {}

func (t *Tracer) ActionStarted(ctx context.Context, s *automation.Session, req automation.ActionRequest) context.Context {
	attrs := []attribute.KeyValue{AttrAction.String(req.Action)}
	if s != nil {
		attrs = append(attrs,
			AttrSessionID.String(s.ID()),
			AttrTargetID.String(s.Target().ID),
			AttrTargetKind.String(string(s.Target().Kind)),
		)
	}

	ctx, span := t.tracer.Start(ctx, "automation."+req.Action,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	return context.WithValue(ctx, spanKey{}, span)
}

func (t *Tracer) ActionFinished(ctx context.Context, _ *automation.Session, result automation.ActionResult) {
	span, ok := ctx.Value(spanKey{}).(trace.Span)
	if !ok {
		return
	}
	defer span.End()

	span.SetAttributes(AttrPayloadKind.String(string(result.Payload.Kind)))
	if result.Success {
		span.SetStatus(codes.Ok, "")
		return
	}
	span.SetAttributes(AttrErrorKind.String(string(result.ErrorKind)))
	if result.Step != "" {
		span.SetAttributes(AttrStep.String(result.Step))
	}
	span.RecordError(fmt.Errorf("%s", result.Error))
	span.SetStatus(codes.Error, result.Error)
}

func (t *Tracer) CleanupFailed(ctx context.Context, _ *automation.Session, action, step string, err error) {
	trace.SpanFromContext(ctx).AddEvent("cleanup failed", trace.WithAttributes(
		AttrAction.String(action),
		AttrStep.String(step),
		attribute.String("error", err.Error()),
	))
}
