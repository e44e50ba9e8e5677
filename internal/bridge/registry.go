package bridge

import (
	"bytes"
	"context"
	"maps"
	"net"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Raikerian/go-sip-realtime-bridge/internal/config"
	"github.com/Raikerian/go-sip-realtime-bridge/internal/media"
	"github.com/Raikerian/go-sip-realtime-bridge/internal/observe"
	"github.com/Raikerian/go-sip-realtime-bridge/pkg/util"
)

// StartStatus is the outcome of StartCall.
type StartStatus int

const (
	StartStatusStarted StartStatus = iota
	StartStatusAlreadyActive
)

func (s StartStatus) String() string {
	if s == StartStatusAlreadyActive {
		return "already active"
	}
	return "call started"
}

// EndStatus is the outcome of EndCall.
type EndStatus int

const (
	EndStatusEnded EndStatus = iota
	EndStatusNotFound
)

func (s EndStatus) String() string {
	if s == EndStatusNotFound {
		return "not found"
	}
	return "call ended"
}

// ForwardStatus is the outcome of ForwardAudio.
type ForwardStatus int

const (
	ForwardStatusAccepted ForwardStatus = iota
	ForwardStatusUnknownCall
	ForwardStatusCancelled
)

func (s ForwardStatus) String() string {
	switch s {
	case ForwardStatusAccepted:
		return "accepted"
	case ForwardStatusUnknownCall:
		return "unknown call"
	default:
		return "cancelled"
	}
}

// Pacer emits a call's outbound frames on the wire.
type Pacer interface {
	Run(ctx context.Context, callID string, dest *net.UDPAddr, frames media.FrameSource) error
}

// Registry owns every live call session. It is the only way to start, feed
// and end calls.
type Registry struct {
	cfg     config.BridgeConfig
	worker  *Worker
	pacer   Pacer
	framer  *media.Framer
	metrics *observe.Metrics
	logger  *zap.Logger

	mu       sync.Mutex
	sessions map[string]*CallSession

	// tasks tracks every worker, pacer and teardown goroutine.
	tasks sync.WaitGroup
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg config.BridgeConfig, worker *Worker, pacer Pacer, framer *media.Framer, metrics *observe.Metrics, logger *zap.Logger) *Registry {
	return &Registry{
		cfg:      cfg,
		worker:   worker,
		pacer:    pacer,
		framer:   framer,
		metrics:  metrics,
		logger:   logger,
		sessions: make(map[string]*CallSession),
	}
}

// StartCall creates a session for callID and launches its worker and pacer.
// Starting a call that is already live is a no-op.
func (r *Registry) StartCall(callID string, dest *net.UDPAddr) (StartStatus, error) {
	if callID == "" {
		return 0, ErrEmptyCallID
	}
	if dest == nil || dest.IP == nil || dest.Port <= 0 || dest.Port > 65535 {
		return 0, ErrInvalidDestination
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[callID]; exists {
		r.logger.Debug("Call already active", zap.String("call_id", callID))
		return StartStatusAlreadyActive, nil
	}

	if r.cfg.MaxConcurrentSessions > 0 && len(r.sessions) >= r.cfg.MaxConcurrentSessions {
		return 0, ErrMaxSessionsReached
	}

	sess := newCallSession(callID, dest, r.cfg.InboundQueueSize, r.cfg.OutboundQueueSize)
	r.sessions[callID] = sess
	r.launch(sess)

	r.metrics.RecordCallStarted(context.Background())
	r.logger.Info("Call started",
		zap.String("call_id", callID),
		zap.Stringer("destination", dest),
		zap.Int("active_calls", len(r.sessions)))

	return StartStatusStarted, nil
}

func (r *Registry) launch(sess *CallSession) {
	pacerCtx, pacerCancel := context.WithCancel(context.Background())
	workerCtx, workerCancel := context.WithCancel(context.Background())
	sess.pacerCancel = pacerCancel
	sess.workerCancel = workerCancel

	if r.cfg.InactivityTimeout > 0 {
		sess.idle = util.NewIdleTimer(r.cfg.InactivityTimeout, func() {
			r.teardown(sess, ReasonInactivity, nil)
		})
	}

	r.tasks.Add(2)

	go func() {
		defer r.tasks.Done()
		err := r.pacer.Run(pacerCtx, sess.CallID, sess.Destination, sess.outbound)
		close(sess.pacerDone)
		if err != nil {
			r.teardown(sess, ReasonPacerError, err)
		}
	}()

	go func() {
		defer r.tasks.Done()
		res := r.worker.Run(workerCtx, sess)
		sess.workerResult = res
		close(sess.workerDone)
		r.teardown(sess, res.Reason, res.Err)
	}()
}

// ForwardAudio queues one μ-law chunk for callID. It blocks while the
// call's inbound queue is full.
func (r *Registry) ForwardAudio(ctx context.Context, callID string, chunk []byte) ForwardStatus {
	sess := r.lookup(callID)
	if sess == nil || sess.State() != SessionStateActive {
		r.metrics.RecordChunk(ctx, "unknown_call")
		return ForwardStatusUnknownCall
	}

	if err := sess.inbound.Push(ctx, bytes.Clone(chunk)); err != nil {
		if ctx.Err() != nil {
			return ForwardStatusCancelled
		}
		r.metrics.RecordChunk(ctx, "unknown_call")
		return ForwardStatusUnknownCall
	}

	if sess.idle != nil {
		sess.idle.Touch()
	}
	sess.chunksIn.Add(1)
	r.metrics.RecordChunk(ctx, "accepted")
	return ForwardStatusAccepted
}

// EndCall tears down callID. It waits for teardown to finish or ctx to be
// done, whichever comes first; teardown continues in the background.
func (r *Registry) EndCall(ctx context.Context, callID string) EndStatus {
	sess := r.lookup(callID)
	if sess == nil {
		return EndStatusNotFound
	}

	r.tasks.Add(1)
	go func() {
		defer r.tasks.Done()
		r.teardown(sess, ReasonEndCall, nil)
	}()

	select {
	case <-sess.closed:
	case <-ctx.Done():
		r.logger.Warn("Gave up waiting for call teardown",
			zap.String("call_id", callID),
			zap.Error(ctx.Err()))
	}
	return EndStatusEnded
}

// teardown releases every resource of sess. The first caller does the work,
// later callers wait for it to finish.
func (r *Registry) teardown(sess *CallSession, reason string, cause error) {
	if !sess.beginClose() {
		<-sess.closed
		return
	}

	logger := r.logger.With(zap.String("call_id", sess.CallID))

	if sess.idle != nil {
		sess.idle.Stop()
	}

	sess.inbound.Close()

	sess.pacerCancel()
	<-sess.pacerDone

	sess.outbound.Close()

	timer := time.NewTimer(r.cfg.TeardownTimeout)
	select {
	case <-sess.workerDone:
	case <-timer.C:
		logger.Warn("Worker did not finish in time, cancelling",
			zap.Duration("timeout", r.cfg.TeardownTimeout))
		sess.workerCancel()
		<-sess.workerDone
	}
	timer.Stop()
	sess.workerCancel()

	r.framer.Forget(sess.CallID)

	r.mu.Lock()
	if r.sessions[sess.CallID] == sess {
		delete(r.sessions, sess.CallID)
	}
	remaining := len(r.sessions)
	r.mu.Unlock()

	sess.state.Store(int32(SessionStateClosed))
	r.metrics.RecordCallEnded(context.Background(), reason)

	if cause == nil {
		cause = sess.workerResult.Err
	}
	fields := []zap.Field{
		zap.String("reason", reason),
		zap.Duration("duration", time.Since(sess.StartTime)),
		zap.Int64("chunks_in", sess.ChunksIn()),
		zap.Int("active_calls", remaining),
	}
	if cause != nil {
		logger.Warn("Call ended with error", append(fields, zap.Error(cause))...)
	} else {
		logger.Info("Call ended", fields...)
	}

	close(sess.closed)
}

// ActiveCalls returns the IDs of live calls in sorted order.
func (r *Registry) ActiveCalls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Sorted(maps.Keys(r.sessions))
}

// Len returns the number of sessions in the registry.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Session returns the session for callID, or nil.
func (r *Registry) Session(callID string) *CallSession {
	return r.lookup(callID)
}

// Shutdown ends every call and waits for all per-call goroutines.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	sessions := slices.Collect(maps.Values(r.sessions))
	r.mu.Unlock()

	r.logger.Info("Shutting down call registry", zap.Int("active_calls", len(sessions)))

	for _, sess := range sessions {
		r.tasks.Add(1)
		go func() {
			defer r.tasks.Done()
			r.teardown(sess, ReasonShutdown, nil)
		}()
	}

	done := make(chan struct{})
	go func() {
		r.tasks.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) lookup(callID string) *CallSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[callID]
}
