package tracer

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/go-logr/stdr"
	"go.opentelemetry.io/contrib/propagators/aws/xray"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const instrumentationName = "hfserverless"

type TracerArgs struct {
	OtlpEndpoint string `arg:"--otlp-endpoint,env:OTLP_ENDPOINT" default:""`
}

type Span struct {
	c    context.Context
	span oteltrace.Span
}

func (s Span) Context() context.Context {
	return s.c
}

func (s Span) GetXrayTraceID() string {
	xrayTraceID := s.span.SpanContext().TraceID().String()
	return fmt.Sprintf("1-%s-%s", xrayTraceID[0:8], xrayTraceID[8:])
}

func (s Span) SetStringAttribute(attrName string, val string) {
	s.span.SetAttributes(attribute.String(attrName, val))
}

func (s Span) SetFloatAttribute(attrName string, val float64) {
	s.span.SetAttributes(attribute.Float64(attrName, val))
}

// Fail marks the span as errored; a nil err is ignored.
func (s Span) Fail(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func (s Span) End() {
	s.span.End()
}

func StartSpan(ctx context.Context, name string) Span {
	tracer := otel.Tracer(instrumentationName)
	cCtx, span := tracer.Start(ctx, name)
	return Span{
		c:    cCtx,
		span: span,
	}
}

// Provider flushes spans before a function instance freezes.
type Provider struct {
	tp *sdktrace.TracerProvider
}

func (p Provider) Flush(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	return p.tp.ForceFlush(ctx)
}

func (p Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

// InitProvider installs an OTLP exporter with X-Ray ids. An empty endpoint
// leaves the global no-op provider in place.
func InitProvider(ctx context.Context, args TracerArgs) (Provider, error) {
	if args.OtlpEndpoint == "" {
		return Provider{}, nil
	}
	traceExporter, err := otlptracegrpc.New(
		ctx, otlptracegrpc.WithInsecure(), otlptracegrpc.WithEndpoint(args.OtlpEndpoint))
	if err != nil {
		return Provider{}, fmt.Errorf("failed to create trace exporter, err: %v", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithIDGenerator(xray.NewIDGenerator()))

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(xray.Propagator{})

	// Debug messages of the otel SDK are logged at V-level 5.
	stdr.SetVerbosity(5)
	otel.SetLogger(stdr.New(log.New(os.Stderr, "", log.LstdFlags|log.Lshortfile)))
	return Provider{tp: tp}, nil
}
