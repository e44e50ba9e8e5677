package infrastructure

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/Raikerian/go-sip-realtime-bridge/internal/config"
	"github.com/Raikerian/go-sip-realtime-bridge/internal/observe"
)

func TestNewZapLogger_Levels(t *testing.T) {
	tests := map[string]struct {
		level   string
		enabled zapcore.Level
		blocked zapcore.Level
	}{
		"debug": {level: "debug", enabled: zapcore.DebugLevel},
		"info":  {level: "info", enabled: zapcore.InfoLevel, blocked: zapcore.DebugLevel},
		"warn":  {level: "warn", enabled: zapcore.WarnLevel, blocked: zapcore.InfoLevel},
		"error": {level: "error", enabled: zapcore.ErrorLevel, blocked: zapcore.WarnLevel},
		"empty": {level: "", enabled: zapcore.InfoLevel, blocked: zapcore.DebugLevel},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			lc := fxtest.NewLifecycle(t)
			logger, err := NewZapLogger(NewZapLoggerParams{
				Cfg: &config.Config{LogLevel: tt.level},
				LC:  lc,
			})
			require.NoError(t, err)

			assert.True(t, logger.Core().Enabled(tt.enabled))
			if tt.level != "debug" {
				assert.False(t, logger.Core().Enabled(tt.blocked))
			}

			lc.RequireStart().RequireStop()
		})
	}
}

func TestMetricsModule_ExportsToRegistry(t *testing.T) {
	var (
		reg     *prometheus.Registry
		metrics *observe.Metrics
	)

	app := fxtest.New(t,
		fx.Supply(zaptest.NewLogger(t)),
		MetricsModule,
		fx.Populate(&reg, &metrics),
	)
	app.RequireStart()
	defer app.RequireStop()

	ctx := context.Background()
	metrics.RecordCallStarted(ctx)
	metrics.RecordChunk(ctx, "accepted")

	families, err := reg.Gather()
	require.NoError(t, err)

	var names []string
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	joined := strings.Join(names, " ")
	assert.Contains(t, joined, "bridge_calls_started")
	assert.Contains(t, joined, "bridge_ingress_chunks")
	assert.Contains(t, joined, "go_goroutines")
}

func TestLoggerModule_Provides(t *testing.T) {
	var logger *zap.Logger

	app := fxtest.New(t,
		fx.Supply(&config.Config{LogLevel: "warn"}),
		LoggerModule,
		fx.Populate(&logger),
	)
	app.RequireStart().RequireStop()

	require.NotNil(t, logger)
}
