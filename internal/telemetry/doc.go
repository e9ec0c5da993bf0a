// Package telemetry provides OpenTelemetry instrumentation for takeoffd.
//
// # Overview
//
// This package implements distributed tracing and metrics collection using the
// OpenTelemetry Go SDK. It exports telemetry data to an OTEL Collector over
// OTLP (gRPC by default, http/protobuf optional).
//
// # Usage
//
// Create telemetry instance:
//
//	cfg := telemetry.NewDefaultConfig()
//	tel, err := telemetry.New(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(ctx)
//
// Use tracer and meter:
//
//	tracer := tel.Tracer("takeoffd.pipeline")
//	ctx, span := tracer.Start(ctx, "pipeline.run")
//	defer span.End()
//
//	meter := tel.Meter("takeoffd.pipeline")
//	counter, _ := meter.Int64Counter("pipeline.runs")
//	counter.Add(ctx, 1)
//
// # Configuration
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  protocol: "grpc"
//	  service_name: "takeoffd"
//	  sampling:
//	    rate: 1.0  # 100% in dev, lower in prod
//	  metrics:
//	    enabled: true
//	    export_interval: "15s"
//
// # Error Handling
//
// Telemetry failures do not crash the daemon. If a provider cannot be
// initialized, the instance degrades gracefully, serves no-op providers,
// and reports the failure through Health.
//
// # Testing
//
// Use TestTelemetry for tests:
//
//	tt := telemetry.NewTestTelemetry()
//	tracer := tt.Tracer("test")
//	_, span := tracer.Start(ctx, "test-span")
//	span.End()
//	tt.AssertSpanExists(t, "test-span")
package telemetry
