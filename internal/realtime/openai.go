package realtime

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	openairt "github.com/WqyJh/go-openai-realtime"
	"github.com/coder/websocket"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/Raikerian/go-sip-realtime-bridge/internal/config"
	pricing "github.com/Raikerian/go-sip-realtime-bridge/pkg/openai"
)

// readLimit bounds a single server event. Audio deltas are small, but
// session events can carry the full instructions.
const readLimit = 4 << 20

// OpenAIDialer opens OpenAI Realtime sessions.
type OpenAIDialer struct {
	client  *openairt.Client
	cfg     config.RealtimeConfig
	pricing pricing.PricingTable
	logger  *zap.Logger
}

// NewOpenAIDialer creates a dialer from cfg. BaseURL overrides the
// websocket endpoint.
func NewOpenAIDialer(cfg config.RealtimeConfig, logger *zap.Logger) *OpenAIDialer {
	clientCfg := openairt.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIDialer{
		client:  openairt.NewClientWithConfig(clientCfg),
		cfg:     cfg,
		pricing: pricing.DefaultPricing,
		logger:  logger,
	}
}

// Dial connects, configures the session and, when enabled, asks the model to
// greet the caller.
func (d *OpenAIDialer) Dial(ctx context.Context, callID string) (Channel, error) {
	logger := d.logger.With(zap.String("call_id", callID))

	logger.Info("Connecting to OpenAI Realtime API",
		zap.String("model", d.cfg.Model))

	conn, err := d.client.Connect(ctx,
		openairt.WithModel(d.cfg.Model),
		openairt.WithLogger(logger.Sugar()),
		openairt.WithDialer(openairt.NewCoderWebSocketDialer(openairt.CoderWebSocketOptions{
			ReadLimit:   readLimit,
			DialOptions: &websocket.DialOptions{},
		})),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to OpenAI Realtime: %w", err)
	}

	ch := &openAIChannel{conn: conn, logger: logger}
	ch.price, ch.priced = d.pricing.Lookup(d.cfg.Model)

	if err := conn.SendMessage(ctx, openairt.SessionUpdateEvent{Session: d.sessionConfig()}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to configure session: %w", err)
	}

	if d.cfg.GreetOnConnect {
		if err := ch.requestResponse(ctx); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}

	logger.Info("Connected to OpenAI Realtime API")

	return ch, nil
}

func (d *OpenAIDialer) sessionConfig() openairt.ClientSession {
	session := openairt.ClientSession{
		Modalities:        []openairt.Modality{openairt.ModalityText, openairt.ModalityAudio},
		Voice:             openairt.Voice(d.cfg.Voice),
		Instructions:      d.cfg.Instructions,
		InputAudioFormat:  openairt.AudioFormatPcm16,
		OutputAudioFormat: openairt.AudioFormatPcm16,
	}

	if d.cfg.InputAudioTranscription {
		session.InputAudioTranscription = &openairt.InputAudioTranscription{
			Model: openai.Whisper1,
		}
	}

	if d.cfg.TurnDetection == string(openairt.ClientTurnDetectionTypeServerVad) {
		session.TurnDetection = &openairt.ClientTurnDetection{
			Type: openairt.ClientTurnDetectionTypeServerVad,
		}
	}

	return session
}

type openAIChannel struct {
	conn   *openairt.Conn
	logger *zap.Logger

	price  pricing.TokenPricing
	priced bool

	mu    sync.Mutex
	usage pricing.Usage
}

func (c *openAIChannel) SendAudio(ctx context.Context, pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	return c.conn.SendMessage(ctx, openairt.InputAudioBufferAppendEvent{
		Audio: base64.StdEncoding.EncodeToString(pcm),
	})
}

func (c *openAIChannel) Commit(ctx context.Context) error {
	if err := c.conn.SendMessage(ctx, openairt.InputAudioBufferCommitEvent{}); err != nil {
		return fmt.Errorf("failed to commit audio buffer: %w", err)
	}
	return c.requestResponse(ctx)
}

func (c *openAIChannel) requestResponse(ctx context.Context) error {
	err := c.conn.SendMessage(ctx, openairt.ResponseCreateEvent{
		Response: openairt.ResponseCreateParams{
			Modalities: []openairt.Modality{openairt.ModalityText, openairt.ModalityAudio},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to request response: %w", err)
	}
	return nil
}

func (c *openAIChannel) Receive(ctx context.Context) (Reply, error) {
	for {
		data, err := c.conn.ReadMessageRaw(ctx)
		if err != nil {
			return Reply{}, err
		}

		event, err := openairt.UnmarshalServerEvent(data)
		if err != nil {
			c.logger.Debug("Ignoring unrecognized server event", zap.Error(err))
			continue
		}

		if reply, ok := c.handleServerEvent(event); ok {
			return reply, nil
		}
	}
}

// handleServerEvent maps a server event to a Reply. Events that carry no
// audio and do not end a response report false.
func (c *openAIChannel) handleServerEvent(event openairt.ServerEvent) (Reply, bool) {
	switch e := event.(type) {
	case openairt.ResponseAudioDeltaEvent:
		if e.Delta == "" {
			return Reply{}, false
		}
		audio, err := base64.StdEncoding.DecodeString(e.Delta)
		if err != nil {
			c.logger.Warn("Failed to decode audio delta", zap.Error(err))
			return Reply{}, false
		}
		return Reply{Audio: audio}, true

	case openairt.ResponseDoneEvent:
		fields := []zap.Field{zap.String("status", string(e.Response.Status))}
		if u := e.Response.Usage; u != nil {
			c.addUsage(u)
			fields = append(fields,
				zap.Int("input_tokens", u.InputTokens),
				zap.Int("output_tokens", u.OutputTokens))
		}
		c.logger.Info("Response completed", fields...)
		return Reply{Done: true}, true

	case openairt.ResponseAudioTranscriptDoneEvent:
		c.logger.Info("Assistant transcript", zap.String("transcript", e.Transcript))

	case openairt.ConversationItemInputAudioTranscriptionCompletedEvent:
		c.logger.Info("Caller transcript", zap.String("transcript", e.Transcript))

	case openairt.ErrorEvent:
		c.logger.Warn("OpenAI Realtime error",
			zap.String("type", e.Error.Type),
			zap.String("code", e.Error.Code),
			zap.String("message", e.Error.Message))

	default:
		c.logger.Debug("Received server event",
			zap.String("event_type", string(event.ServerEventType())))
	}

	return Reply{}, false
}

func (c *openAIChannel) addUsage(u *openairt.Usage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.usage.Add(pricing.Usage{
		Responses:        1,
		TextInput:        u.InputTokenDetails.TextTokens,
		TextCachedInput:  u.InputTokenDetails.CachedTokensDetails.TextTokens,
		AudioInput:       u.InputTokenDetails.AudioTokens,
		AudioCachedInput: u.InputTokenDetails.CachedTokensDetails.AudioTokens,
		TextOutput:       u.OutputTokenDetails.TextTokens,
		AudioOutput:      u.OutputTokenDetails.AudioTokens,
	})
}

// Usage returns the token usage reported so far.
func (c *openAIChannel) Usage() pricing.Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

func (c *openAIChannel) Close() error {
	usage := c.Usage()
	fields := []zap.Field{
		zap.Int("responses", usage.Responses),
		zap.Int("input_tokens", usage.InputTokens()),
		zap.Int("output_tokens", usage.OutputTokens()),
	}
	if c.priced {
		fields = append(fields, zap.Float64("estimated_cost_usd", c.price.Cost(usage)))
	}
	c.logger.Info("Realtime session usage", fields...)

	err := c.conn.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
