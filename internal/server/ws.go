package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/Raikerian/go-sip-realtime-bridge/internal/bridge"
)

// handleWebSocket streams one call's μ-law chunks from an audio fork.
// Connecting starts the call and disconnecting ends it.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	callID := q.Get("call_id")
	host := q.Get("rtp_ip")
	port, _ := strconv.Atoi(q.Get("rtp_port"))

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket accept failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(s.cfg.MaxChunkBytes)

	if callID == "" || host == "" || port == 0 {
		_ = conn.Close(websocket.StatusPolicyViolation, "call_id, rtp_ip and rtp_port are required")
		return
	}

	logger := s.logger.With(zap.String("call_id", callID))

	dest, err := resolveDestination(host, port)
	if err != nil {
		_ = conn.Close(websocket.StatusPolicyViolation, err.Error())
		return
	}

	status, err := s.registry.StartCall(callID, dest)
	if err != nil {
		logger.Warn("Start call rejected", zap.Error(err))
		code := websocket.StatusPolicyViolation
		if errors.Is(err, bridge.ErrMaxSessionsReached) {
			code = websocket.StatusTryAgainLater
		}
		_ = conn.Close(code, err.Error())
		return
	}
	logger.Info("Audio fork connected", zap.Stringer("status", status))

	ctx := r.Context()
	defer func() {
		end := s.registry.EndCall(context.WithoutCancel(ctx), callID)
		logger.Info("Audio fork disconnected", zap.Stringer("status", end))
	}()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 {
				logger.Debug("WebSocket read ended", zap.Error(err))
			}
			return
		}
		if typ != websocket.MessageBinary {
			continue
		}

		switch s.registry.ForwardAudio(ctx, callID, data) {
		case bridge.ForwardStatusAccepted:
		case bridge.ForwardStatusUnknownCall:
			_ = conn.Close(websocket.StatusNormalClosure, "call ended")
			return
		default:
			_ = conn.Close(websocket.StatusGoingAway, "")
			return
		}
	}
}
