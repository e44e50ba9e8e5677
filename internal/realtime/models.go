package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/Raikerian/go-sip-realtime-bridge/internal/config"
)

// ErrModelUnavailable is returned when the configured model cannot be used
// with the configured API key.
var ErrModelUnavailable = errors.New("realtime model unavailable")

// ModelChecker looks the configured realtime model up over the REST API so a
// bad model name or key fails at startup instead of on the first call.
type ModelChecker struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewModelChecker creates a checker from cfg. APIBaseURL overrides the REST
// endpoint.
func NewModelChecker(cfg config.RealtimeConfig, logger *zap.Logger) *ModelChecker {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.APIBaseURL != "" {
		clientCfg.BaseURL = cfg.APIBaseURL
	}

	return &ModelChecker{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: logger,
	}
}

// Check fetches the model. Not-found and auth failures wrap
// ErrModelUnavailable; anything else is returned as is.
func (c *ModelChecker) Check(ctx context.Context) error {
	model, err := c.client.GetModel(ctx, c.model)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.HTTPStatusCode {
			case http.StatusNotFound, http.StatusUnauthorized, http.StatusForbidden:
				return fmt.Errorf("%w: %s: %s", ErrModelUnavailable, c.model, apiErr.Message)
			}
		}
		return fmt.Errorf("failed to look up model %s: %w", c.model, err)
	}

	c.logger.Info("Realtime model available",
		zap.String("model", model.ID),
		zap.String("owned_by", model.OwnedBy))
	return nil
}
