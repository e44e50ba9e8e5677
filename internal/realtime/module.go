package realtime

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/go-sip-realtime-bridge/internal/config"
	pricing "github.com/Raikerian/go-sip-realtime-bridge/pkg/openai"
)

// Module provides the speech channel dialer.
var Module = fx.Module("realtime",
	fx.Provide(NewDialer),
	fx.Invoke(registerModelCheck),
)

// NewDialer provides the OpenAI Realtime dialer as a Dialer. A configured
// pricing file replaces the built-in price table.
func NewDialer(cfg *config.Config, logger *zap.Logger) (Dialer, error) {
	d := NewOpenAIDialer(cfg.Realtime, logger.Named("realtime"))

	if path := cfg.Realtime.PricingFile; path != "" {
		table, err := pricing.LoadPricingTable(path)
		if err != nil {
			return nil, err
		}
		d.pricing = table
	}

	return d, nil
}

// registerModelCheck runs the model lookup on start when verify_model is set.
func registerModelCheck(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) {
	if !cfg.Realtime.VerifyModel {
		return
	}

	checker := NewModelChecker(cfg.Realtime, logger.Named("realtime"))
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return checker.Check(ctx)
		},
	})
}
