package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/Raikerian/go-sip-realtime-bridge/internal/bridge"
)

// Signaling event types. INVITE and BYE are accepted from SIP-side hooks.
const (
	EventStart  = "start"
	EventEnd    = "end"
	EventInvite = "INVITE"
	EventBye    = "BYE"
)

const statusIgnored = "ignored"

// Destination is the caller's RTP endpoint.
type Destination struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// SignalingEvent starts or ends a call. The media destination is read from
// Destination, falling back to the flat rtp_ip/rtp_port fields.
type SignalingEvent struct {
	Type        string       `json:"type"`
	CallID      string       `json:"call_id"`
	Destination *Destination `json:"destination,omitempty"`
	FromNumber  string       `json:"from_number,omitempty"`
	RTPIP       string       `json:"rtp_ip,omitempty"`
	RTPPort     int          `json:"rtp_port,omitempty"`
}

func (e SignalingEvent) destination() (string, int) {
	if e.Destination != nil {
		return e.Destination.Host, e.Destination.Port
	}
	return e.RTPIP, e.RTPPort
}

type statusResponse struct {
	Status string `json:"status"`
	CallID string `json:"call_id,omitempty"`
	Bytes  int    `json:"bytes,omitempty"`
	Msg    string `json:"msg,omitempty"`
}

type callsResponse struct {
	Calls []string `json:"calls"`
}

func (s *Server) handleSignaling(w http.ResponseWriter, r *http.Request) {
	var ev SignalingEvent
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid event: %v", err))
		return
	}

	logger := s.logger.With(zap.String("call_id", ev.CallID), zap.String("type", ev.Type))

	switch ev.Type {
	case EventStart, EventInvite:
		host, port := ev.destination()
		dest, err := resolveDestination(host, port)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		status, err := s.registry.StartCall(ev.CallID, dest)
		if err != nil {
			logger.Warn("Start call rejected", zap.Error(err))
			writeError(w, startErrorCode(err), err.Error())
			return
		}

		logger.Debug("Signaling start", zap.Stringer("status", status), zap.String("from", ev.FromNumber))
		writeJSON(w, http.StatusOK, statusResponse{Status: status.String(), CallID: ev.CallID})

	case EventEnd, EventBye:
		status := s.registry.EndCall(r.Context(), ev.CallID)
		logger.Debug("Signaling end", zap.Stringer("status", status))
		writeJSON(w, http.StatusOK, statusResponse{Status: status.String(), CallID: ev.CallID})

	default:
		logger.Info("Ignoring signaling event")
		writeJSON(w, http.StatusOK, statusResponse{Status: statusIgnored, CallID: ev.CallID})
	}
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxChunkBytes+64<<10)
	if err := r.ParseMultipartForm(s.cfg.MaxChunkBytes); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid form: %v", err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	callID := r.FormValue("call_id")
	if callID == "" {
		writeError(w, http.StatusBadRequest, "call_id is required")
		return
	}

	file, _, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	chunk, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxChunkBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read audio: %v", err))
		return
	}
	if int64(len(chunk)) > s.cfg.MaxChunkBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "audio chunk too large")
		return
	}

	switch s.registry.ForwardAudio(r.Context(), callID, chunk) {
	case bridge.ForwardStatusAccepted:
		writeJSON(w, http.StatusOK, statusResponse{Status: "ok", CallID: callID, Bytes: len(chunk)})
	case bridge.ForwardStatusUnknownCall:
		writeError(w, http.StatusNotFound, "Unknown call_id "+callID)
	default:
		writeError(w, http.StatusServiceUnavailable, "request cancelled while the call was backlogged")
	}
}

func (s *Server) handleCalls(w http.ResponseWriter, _ *http.Request) {
	calls := s.registry.ActiveCalls()
	if calls == nil {
		calls = []string{}
	}
	writeJSON(w, http.StatusOK, callsResponse{Calls: calls})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "running"})
}

// resolveDestination turns a host and port into a UDP address.
func resolveDestination(host string, port int) (*net.UDPAddr, error) {
	if host == "" || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("%w: host %q port %d", bridge.ErrInvalidDestination, host, port)
	}
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bridge.ErrInvalidDestination, err)
	}
	return addr, nil
}

func startErrorCode(err error) int {
	if errors.Is(err, bridge.ErrMaxSessionsReached) {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadRequest
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, statusResponse{Status: "error", Msg: msg})
}
