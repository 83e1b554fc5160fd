package otelx

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// OTLP transports.
const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http"
)

type Options struct {
	Enabled  bool
	Endpoint string
	// grpc (default) or http
	Protocol  string
	Insecure  bool
	Sample    float64
	Service   string
	Component string
	Version   string
	// request paths traced regardless of Sample, e.g. CMS webhooks
	AlwaysSample []string
}

// Init installs the global tracer provider and W3C propagators. Disabled
// tracing still hands out trace ids for log correlation but exports nothing.
func Init(ctx context.Context, o Options) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	if !o.Enabled {
		otel.SetTracerProvider(sdktrace.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	// the collector runs next to us; do not block startup on a dead one
	dialCtx, dialCancel := context.WithTimeout(ctx, 3*time.Second)
	defer dialCancel()
	exp, err := newExporter(dialCtx, o)
	if err != nil {
		return nil, err
	}

	res, _ := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithOS(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(o.Service+"."+o.Component),
			semconv.ServiceVersionKey.String(o.Version),
		),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(Sampler(o.Sample, o.AlwaysSample...)),
		sdktrace.WithBatcher(exp,
			sdktrace.WithMaxQueueSize(2048),
			sdktrace.WithBatchTimeout(5*time.Second),
		),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Sampler samples root spans at ratio, except those whose url.path starts
// with one of always, which are kept. Child spans follow their parent.
func Sampler(ratio float64, always ...string) sdktrace.Sampler {
	return sdktrace.ParentBased(pathSampler{
		ratio:  sdktrace.TraceIDRatioBased(ratio),
		always: always,
	})
}

type pathSampler struct {
	ratio  sdktrace.Sampler
	always []string
}

func (s pathSampler) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	if len(s.always) > 0 {
		for _, kv := range p.Attributes {
			if kv.Key != semconv.URLPathKey {
				continue
			}
			path := kv.Value.AsString()
			for _, prefix := range s.always {
				if strings.HasPrefix(path, prefix) {
					return sdktrace.SamplingResult{
						Decision:   sdktrace.RecordAndSample,
						Tracestate: trace.SpanContextFromContext(p.ParentContext).TraceState(),
					}
				}
			}
		}
	}
	return s.ratio.ShouldSample(p)
}

func (s pathSampler) Description() string {
	return fmt.Sprintf("PathSampler{always=%v,%s}", s.always, s.ratio.Description())
}

func newExporter(ctx context.Context, o Options) (sdktrace.SpanExporter, error) {
	switch o.Protocol {
	case "", ProtocolGRPC:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(o.Endpoint)}
		if o.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	case ProtocolHTTP:
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(o.Endpoint)}
		if o.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("otelx: unknown OTLP protocol %q", o.Protocol)
	}
}
