package media

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/go-sip-realtime-bridge/internal/config"
	"github.com/Raikerian/go-sip-realtime-bridge/internal/observe"
)

// Module provides the RTP framer, the shared UDP socket and the pacer.
var Module = fx.Module("media",
	fx.Provide(
		NewFramerFromConfig,
		NewUDPTransportFromConfig,
		asTransport,
		NewPacerFromConfig,
	),
)

// NewFramerFromConfig sizes the sequence-state table at twice the session
// limit so active calls are never evicted.
func NewFramerFromConfig(cfg *config.Config) (*Framer, error) {
	return NewFramer(cfg.RTP.PayloadType, cfg.RTP.SSRC, 2*cfg.Bridge.MaxConcurrentSessions)
}

type NewUDPTransportParams struct {
	fx.In

	Cfg    *config.Config
	LC     fx.Lifecycle
	Logger *zap.Logger
}

// NewUDPTransportFromConfig binds the RTP socket and closes it on stop.
func NewUDPTransportFromConfig(p NewUDPTransportParams) (*UDPTransport, error) {
	t, err := NewUDPTransport(p.Cfg.RTP.LocalAddr)
	if err != nil {
		return nil, err
	}

	p.Logger.Info("RTP socket bound", zap.Stringer("local_addr", t.LocalAddr()))

	p.LC.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return t.Close()
		},
	})
	return t, nil
}

func asTransport(t *UDPTransport) Transport { return t }

type NewPacerParams struct {
	fx.In

	Cfg       *config.Config
	Framer    *Framer
	Transport Transport
	Metrics   *observe.Metrics
	Logger    *zap.Logger
}

func NewPacerFromConfig(p NewPacerParams) *Pacer {
	return NewPacer(p.Framer, p.Transport, p.Cfg.RTP.FrameInterval, p.Metrics, p.Logger.Named("pacer"))
}
