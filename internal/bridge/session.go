package bridge

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/Raikerian/go-sip-realtime-bridge/pkg/util"
)

// SessionState represents the lifecycle stage of a call session.
type SessionState int32

const (
	SessionStateActive SessionState = iota
	SessionStateClosing
	SessionStateClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionStateActive:
		return "active"
	case SessionStateClosing:
		return "closing"
	case SessionStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// End reasons reported when a session is torn down.
const (
	ReasonEndCall        = "end-call"
	ReasonRemoteDone     = "remote completed"
	ReasonRemoteError    = "remote error"
	ReasonPacerError     = "pacer error"
	ReasonInactivity     = "inactivity timeout"
	ReasonShutdown       = "shutdown"
	ReasonWorkerCanceled = "worker cancelled"
)

// CallSession holds every per-call resource. It is created and destroyed
// only by the Registry.
type CallSession struct {
	CallID      string
	Destination *net.UDPAddr
	StartTime   time.Time

	inbound  *Queue
	outbound *Queue

	state atomic.Int32

	workerCancel context.CancelFunc
	workerDone   chan struct{}
	workerResult Result

	pacerCancel context.CancelFunc
	pacerDone   chan struct{}

	idle *util.IdleTimer

	chunksIn atomic.Int64
	closed   chan struct{}
}

func newCallSession(callID string, dest *net.UDPAddr, inboundSize, outboundSize int) *CallSession {
	return &CallSession{
		CallID:      callID,
		Destination: dest,
		StartTime:   time.Now(),
		inbound:     NewQueue(inboundSize),
		outbound:    NewQueue(outboundSize),
		workerDone:  make(chan struct{}),
		pacerDone:   make(chan struct{}),
		closed:      make(chan struct{}),
	}
}

// State returns the current lifecycle stage.
func (s *CallSession) State() SessionState {
	return SessionState(s.state.Load())
}

// beginClose moves the session to closing. Only the first caller wins.
func (s *CallSession) beginClose() bool {
	return s.state.CompareAndSwap(int32(SessionStateActive), int32(SessionStateClosing))
}

// Closed is closed once teardown has finished.
func (s *CallSession) Closed() <-chan struct{} {
	return s.closed
}

// ChunksIn returns the number of ingress chunks accepted.
func (s *CallSession) ChunksIn() int64 {
	return s.chunksIn.Load()
}
