package media

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/Raikerian/go-sip-realtime-bridge/internal/observe"
)

// FrameSource yields frames in order. io.EOF marks end of stream.
type FrameSource interface {
	Pop(ctx context.Context) ([]byte, error)
}

// Pacer emits one frame per interval for a call, regardless of how fast
// frames are produced.
type Pacer struct {
	framer    *Framer
	transport Transport
	interval  time.Duration
	metrics   *observe.Metrics
	logger    *zap.Logger
}

// NewPacer creates a pacer writing through framer and transport.
func NewPacer(framer *Framer, transport Transport, interval time.Duration, metrics *observe.Metrics, logger *zap.Logger) *Pacer {
	return &Pacer{
		framer:    framer,
		transport: transport,
		interval:  interval,
		metrics:   metrics,
		logger:    logger,
	}
}

// Run drains frames to dest until the source reports end of stream or ctx is
// cancelled. Neither is an error. A missed deadline restarts the schedule
// from now instead of catching up, so a stall never turns into a burst.
// Waiting on an idle source is not counted as a late tick.
func (p *Pacer) Run(ctx context.Context, callID string, dest *net.UDPAddr, frames FrameSource) error {
	logger := p.logger.With(zap.String("call_id", callID))
	deadline := time.Now()
	sent := 0

	defer func() {
		logger.Debug("Pacer stopped", zap.Int("frames_sent", sent))
	}()

	for {
		waitStart := time.Now()
		frame, err := frames.Pop(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		now := time.Now()
		if now.Sub(waitStart) > p.interval {
			// The source was idle, so this frame opens a new schedule.
			deadline = now
		}

		deadline = deadline.Add(p.interval)
		if deadline.Before(now) {
			p.metrics.LateTicks.Add(ctx, 1)
			logger.Debug("Pacer behind schedule, resyncing",
				zap.Duration("behind", now.Sub(deadline)))
			deadline = now.Add(p.interval)
		}

		if ctx.Err() != nil {
			return nil
		}

		packet, err := p.framer.Build(callID, frame)
		if err != nil {
			return err
		}
		if err := p.transport.Send(dest, packet); err != nil {
			p.metrics.TransportErrors.Add(ctx, 1)
			logger.Warn("Failed to send RTP packet",
				zap.Error(err),
				zap.Stringer("destination", dest))
		} else {
			sent++
			p.metrics.FramesSent.Add(ctx, 1)
		}

		if !sleepUntil(ctx, deadline) {
			return nil
		}
	}
}

// sleepUntil blocks until deadline or cancellation and reports whether the
// deadline was reached.
func sleepUntil(ctx context.Context, deadline time.Time) bool {
	wait := time.Until(deadline)
	if wait <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
