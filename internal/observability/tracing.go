// Package observability configures OpenTelemetry tracing for pixelctx.
package observability

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// DefaultServiceName is the service name attached to every span
const DefaultServiceName = "pixelctx"

var (
	mu             sync.RWMutex
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
)

// Config holds tracing configuration
type Config struct {
	// Enabled controls whether spans are exported
	Enabled bool `yaml:"enabled"`

	// ServiceName defaults to "pixelctx"
	ServiceName string `yaml:"service_name"`

	// Exporter is "otlp", "stdout" or "none"
	Exporter string `yaml:"exporter"`

	// Endpoint is the OTLP/HTTP host:port
	Endpoint string `yaml:"endpoint"`

	// Headers are sent with every OTLP request
	Headers map[string]string `yaml:"headers"`

	// Writer receives stdout exporter output (defaults to os.Stdout)
	Writer io.Writer `yaml:"-"`
}

// ApplyEnv overrides fields from the standard OpenTelemetry variables:
// OTEL_SERVICE_NAME, OTEL_TRACES_EXPORTER, OTEL_EXPORTER_OTLP_ENDPOINT and
// OTEL_EXPORTER_OTLP_HEADERS ("k1=v1,k2=v2").
func (c *Config) ApplyEnv() {
	if v := os.Getenv("OTEL_SERVICE_NAME"); v != "" {
		c.ServiceName = v
	}
	if v := os.Getenv("OTEL_TRACES_EXPORTER"); v != "" {
		c.Exporter = v
		c.Enabled = v != "none"
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Endpoint = v
	}
	if headers := parseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")); len(headers) > 0 {
		if c.Headers == nil {
			c.Headers = make(map[string]string)
		}
		for k, v := range headers {
			c.Headers[k] = v
		}
	}
}

// Init installs a global tracer provider for the given configuration.
func Init(config Config) error {
	if config.ServiceName == "" {
		config.ServiceName = DefaultServiceName
	}

	if !config.Enabled || config.Exporter == "" || config.Exporter == "none" {
		log.Println("[Tracing] disabled")
		mu.Lock()
		tracer = otel.GetTracerProvider().Tracer(config.ServiceName)
		mu.Unlock()
		return nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(semconv.ServiceName(config.ServiceName)),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch config.Exporter {
	case "otlp":
		exporter, err = createOTLPExporter(config)
		if err != nil {
			return fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		log.Printf("[Tracing] OTLP exporter (endpoint: %s)", config.Endpoint)

	case "stdout":
		w := config.Writer
		if w == nil {
			w = os.Stdout
		}
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		log.Println("[Tracing] stdout exporter")

	default:
		return fmt.Errorf("unknown exporter type: %s", config.Exporter)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	mu.Lock()
	tracerProvider = tp
	tracer = tp.Tracer(config.ServiceName)
	mu.Unlock()
	return nil
}

// Shutdown flushes and stops the tracer provider
func Shutdown(ctx context.Context) error {
	mu.Lock()
	tp := tracerProvider
	tracerProvider = nil
	mu.Unlock()
	if tp == nil {
		return nil
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	return tp.Shutdown(ctx)
}

// StartSpan starts a span on the configured tracer, falling back to the
// global provider when Init has not run.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	mu.RLock()
	tr := tracer
	mu.RUnlock()
	if tr == nil {
		tr = otel.GetTracerProvider().Tracer(DefaultServiceName)
	}
	return tr.Start(ctx, name, opts...)
}

func createOTLPExporter(config Config) (sdktrace.SpanExporter, error) {
	var opts []otlptracehttp.Option
	if config.Endpoint != "" {
		endpoint := config.Endpoint
		if strings.HasPrefix(endpoint, "http://") {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")
		opts = append(opts, otlptracehttp.WithEndpoint(endpoint))
	}
	if len(config.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(config.Headers))
	}

	client := otlptracehttp.NewClient(opts...)
	return otlptrace.New(context.Background(), client)
}

func parseHeaders(s string) map[string]string {
	if s == "" {
		return nil
	}
	headers := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(k) == "" {
			continue
		}
		headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return headers
}
