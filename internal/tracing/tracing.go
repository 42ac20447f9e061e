// Package tracing wires the process-wide TracerProvider that
// engine.InitConnectionSpan spans attach to. The control surface installs
// it once at startup; one-shot CLI runs keep OpenTelemetry's default
// no-op provider, which is enough for engine.InitConnectionSpan to stay cheap
// when nothing is listening for spans.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Init installs an SDK TracerProvider that samples every span, with no
// span processor or exporter registered, and returns its shutdown
// function for the caller to run before exit.
func Init() (shutdown func(context.Context) error) {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}
