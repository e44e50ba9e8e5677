// Package infrastructure wires the bridge's logger and metrics pipeline into Fx.
package infrastructure

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/go-sip-realtime-bridge/internal/config"
	"github.com/Raikerian/go-sip-realtime-bridge/internal/observe"
)

// LoggerModule provides the process-wide zap logger.
var LoggerModule = fx.Module("logger",
	fx.Provide(NewZapLogger),
)

// MetricsModule provides the bridge instruments backed by a Prometheus registry.
var MetricsModule = fx.Module("metrics",
	fx.Provide(
		NewPrometheusRegistry,
		NewMetrics,
	),
)

// NewZapLoggerParams holds dependencies for NewZapLogger.
type NewZapLoggerParams struct {
	fx.In
	Cfg *config.Config
	LC  fx.Lifecycle
}

// NewZapLogger builds a zap logger for the configured log level.
func NewZapLogger(params NewZapLoggerParams) (*zap.Logger, error) {
	var zapConfig zap.Config
	switch params.Cfg.LogLevel {
	case "debug":
		zapConfig = zap.NewDevelopmentConfig()
	case "warn":
		zapConfig = zap.NewProductionConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapConfig = zap.NewProductionConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapConfig = zap.NewProductionConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create zap logger: %w", err)
	}

	params.LC.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			// Sync on stderr returns EINVAL on some platforms.
			_ = logger.Sync()
			return nil
		},
	})

	return logger, nil
}

// NewPrometheusRegistry returns a private registry so the /metrics endpoint
// only exposes bridge instruments and Go runtime collectors.
func NewPrometheusRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewMetricsParams holds dependencies for NewMetrics.
type NewMetricsParams struct {
	fx.In
	Registry *prometheus.Registry
	LC       fx.Lifecycle
	Logger   *zap.Logger
}

// NewMetrics wires an OTel meter provider to the Prometheus registry and
// creates the bridge instruments on it.
func NewMetrics(params NewMetricsParams) (*observe.Metrics, error) {
	exporter, err := promexporter.New(promexporter.WithRegisterer(params.Registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))

	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		return nil, err
	}

	params.LC.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := mp.Shutdown(ctx); err != nil {
				params.Logger.Warn("Failed to shut down meter provider", zap.Error(err))
			}
			return nil
		},
	})

	return metrics, nil
}
