// Package observability wires OpenTelemetry tracing and RED metrics (rate,
// errors, duration) around turns and actions.
//
// Initialize at startup and pass the provider to the dispatch loop:
//
//	p, err := observability.New(ctx, &observability.Config{
//		ServiceName:  "sdnguard",
//		OTLPEndpoint: "otel-collector:4317",
//		SampleRate:   1.0,
//		Enabled:      true,
//	})
//	defer p.Shutdown(ctx)
//
//	loop := &dispatch.Loop{Engine: engine, Catalog: cat, Telemetry: p}
//
// Each turn is a "turn" span with one child span per executed action
// ("action.<name>"). The counters sdnguard.requests.total and
// sdnguard.errors.total, the histogram sdnguard.request.duration and the
// gauge sdnguard.operations.active carry an "operation" attribute. A
// disabled provider is a no-op.
package observability
