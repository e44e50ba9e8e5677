package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/go-sip-realtime-bridge/internal/bridge"
	"github.com/Raikerian/go-sip-realtime-bridge/internal/config"
)

// Module provides the HTTP ingress server. Its lifecycle is owned by the app.
var Module = fx.Module("server",
	fx.Provide(NewServerFromConfig),
)

type NewServerParams struct {
	fx.In

	Cfg      *config.Config
	Registry *bridge.Registry
	Gatherer *prometheus.Registry `optional:"true"`
	Logger   *zap.Logger
}

func NewServerFromConfig(p NewServerParams) *Server {
	var gatherer prometheus.Gatherer
	if p.Gatherer != nil {
		gatherer = p.Gatherer
	}
	return NewServer(p.Cfg.Server, p.Registry, gatherer, p.Logger.Named("http"))
}
