package bridge

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/go-sip-realtime-bridge/internal/config"
	"github.com/Raikerian/go-sip-realtime-bridge/internal/media"
	"github.com/Raikerian/go-sip-realtime-bridge/internal/observe"
	"github.com/Raikerian/go-sip-realtime-bridge/internal/realtime"
)

// Module provides the call registry and its worker.
var Module = fx.Module("bridge",
	fx.Provide(
		NewWorkerFromConfig,
		NewRegistryFromConfig,
	),
)

type NewWorkerParams struct {
	fx.In

	Cfg     *config.Config
	Dialer  realtime.Dialer
	Metrics *observe.Metrics
	Logger  *zap.Logger
}

func NewWorkerFromConfig(p NewWorkerParams) *Worker {
	return NewWorker(p.Cfg, p.Dialer, p.Metrics, p.Logger.Named("worker"))
}

type NewRegistryParams struct {
	fx.In

	Cfg     *config.Config
	Worker  *Worker
	Pacer   *media.Pacer
	Framer  *media.Framer
	Metrics *observe.Metrics
	Logger  *zap.Logger
	LC      fx.Lifecycle
}

// NewRegistryFromConfig creates the registry and ends every call on stop.
func NewRegistryFromConfig(p NewRegistryParams) *Registry {
	r := NewRegistry(p.Cfg.Bridge, p.Worker, p.Pacer, p.Framer, p.Metrics, p.Logger.Named("registry"))

	p.LC.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return r.Shutdown(ctx)
		},
	})
	return r
}
