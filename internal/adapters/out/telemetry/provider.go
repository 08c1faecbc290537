// Package telemetry provides OpenTelemetry initialization for berth.
// It configures a metric provider that exports via OTLP/HTTP.
package telemetry

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Config holds telemetry configuration.
type Config struct {
	Enabled   bool          `mapstructure:"enabled"`
	Endpoint  string        `mapstructure:"endpoint"`   // OTLP HTTP endpoint, e.g. "http://localhost:4318"
	AuthToken string        `mapstructure:"auth_token"` // Basic auth token (base64 encoded user:pass)
	Interval  time.Duration `mapstructure:"interval"`   // export interval, default 60s
}

// Provider holds the initialized OTel providers.
type Provider struct {
	MeterProvider *metric.MeterProvider
}

// endpointConfig holds parsed endpoint details.
type endpointConfig struct {
	host     string
	basePath string
	insecure bool
	headers  map[string]string
}

// NewProvider creates and configures the meter provider based on the given config.
// Returns a noop provider if telemetry is disabled.
// The returned shutdown function must be called on application exit.
func NewProvider(ctx context.Context, cfg Config, serviceName, version string) (*Provider, func(context.Context), error) {
	noop := func(context.Context) {}

	if !cfg.Enabled || cfg.Endpoint == "" {
		return &Provider{}, noop, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", version),
		),
		resource.WithOS(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, noop, fmt.Errorf("create resource: %w", err)
	}

	ep, err := parseEndpoint(cfg)
	if err != nil {
		return nil, noop, err
	}

	metricOpts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(ep.host),
		otlpmetrichttp.WithHeaders(ep.headers),
	}
	if ep.basePath != "" {
		metricOpts = append(metricOpts, otlpmetrichttp.WithURLPath(ep.basePath+"/v1/metrics"))
	}
	if ep.insecure {
		metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
	}

	metricExp, err := otlpmetrichttp.New(ctx, metricOpts...)
	if err != nil {
		return nil, noop, fmt.Errorf("create metric exporter: %w", err)
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	mp := metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(metricExp, metric.WithInterval(interval))),
		metric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	shutdown := func(ctx context.Context) {
		_ = mp.Shutdown(ctx)
	}

	return &Provider{MeterProvider: mp}, shutdown, nil
}

// parseEndpoint extracts host, path, and scheme from the configured endpoint URL.
func parseEndpoint(cfg Config) (*endpointConfig, error) {
	parsedURL, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint URL: %w", err)
	}
	if parsedURL.Host == "" {
		return nil, fmt.Errorf("endpoint %q has no host", cfg.Endpoint)
	}

	headers := make(map[string]string)
	if cfg.AuthToken != "" {
		headers["Authorization"] = "Basic " + cfg.AuthToken
	}

	return &endpointConfig{
		host:     parsedURL.Host,
		basePath: strings.TrimSuffix(parsedURL.Path, "/"),
		insecure: parsedURL.Scheme == "http",
		headers:  headers,
	}, nil
}
