package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Raikerian/go-sip-realtime-bridge/internal/config"
	"github.com/Raikerian/go-sip-realtime-bridge/internal/observe"
	"github.com/Raikerian/go-sip-realtime-bridge/internal/realtime"
	"github.com/Raikerian/go-sip-realtime-bridge/pkg/audio"
)

// Result is the terminal outcome of a call pipeline.
type Result struct {
	Reason string
	Err    error
}

// Worker runs the per-call pipeline: caller audio up to the speech channel,
// synthesized audio back down as paced μ-law frames.
type Worker struct {
	dialer     realtime.Dialer
	frameBytes int
	inputRate  int
	outputRate int
	agcTarget  float64
	agcMaxGain float64
	metrics    *observe.Metrics
	logger     *zap.Logger
}

// NewWorker creates a worker from cfg.
func NewWorker(cfg *config.Config, dialer realtime.Dialer, metrics *observe.Metrics, logger *zap.Logger) *Worker {
	return &Worker{
		dialer:     dialer,
		frameBytes: cfg.RTP.FrameBytes,
		inputRate:  cfg.Realtime.InputSampleRate,
		outputRate: cfg.Realtime.OutputSampleRate,
		agcTarget:  cfg.Bridge.AGCTargetRMS,
		agcMaxGain: cfg.Bridge.AGCMaxGain,
		metrics:    metrics,
		logger:     logger,
	}
}

// Run drives one call until the remote side completes after end of input,
// or a stage fails. Either way the outbound queue is closed and the pacer
// has finished when Run returns.
func (w *Worker) Run(ctx context.Context, sess *CallSession) Result {
	logger := w.logger.With(zap.String("call_id", sess.CallID))

	err := w.stream(ctx, sess, logger)

	sess.outbound.Close()
	select {
	case <-sess.pacerDone:
	case <-ctx.Done():
	}

	switch {
	case err == nil, errors.Is(err, ErrQueueClosed):
		return Result{Reason: ReasonRemoteDone}
	case ctx.Err() != nil:
		return Result{Reason: ReasonWorkerCanceled, Err: ctx.Err()}
	default:
		return Result{Reason: ReasonRemoteError, Err: err}
	}
}

func (w *Worker) stream(ctx context.Context, sess *CallSession, logger *zap.Logger) error {
	start := time.Now()
	ch, err := w.dialer.Dial(ctx, sess.CallID)
	if err != nil {
		w.metrics.RecordRemoteError(ctx, "dial")
		return fmt.Errorf("failed to open speech channel: %w", err)
	}
	w.metrics.RecordDial(ctx, time.Since(start))
	defer func() {
		if err := ch.Close(); err != nil {
			logger.Debug("Failed to close speech channel", zap.Error(err))
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	sendCtx, cancelSend := context.WithCancel(gctx)
	defer cancelSend()

	var committed atomic.Bool

	g.Go(func() error {
		err := w.send(sendCtx, ch, sess, &committed)
		// Cancelled because the receive side finished.
		if err != nil && sendCtx.Err() != nil && gctx.Err() == nil {
			return nil
		}
		return err
	})

	g.Go(func() error {
		defer cancelSend()
		return w.receive(gctx, ch, sess, &committed, logger)
	})

	return g.Wait()
}

// upstream yields wideband pcm16 for each caller chunk until the inbound
// queue reaches end of stream.
func (w *Worker) upstream(ctx context.Context, inbound *Queue) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for {
			chunk, err := inbound.Pop(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(w.upsample(chunk)) {
				return
			}
		}
	}
}

func (w *Worker) send(ctx context.Context, ch realtime.Channel, sess *CallSession, committed *atomic.Bool) error {
	for pcm, err := range w.upstream(ctx, sess.inbound) {
		if err != nil {
			return err
		}
		if err := ch.SendAudio(ctx, pcm); err != nil {
			w.metrics.RecordRemoteError(ctx, "send")
			return fmt.Errorf("failed to send audio: %w", err)
		}
	}

	// The reply can race the return of Commit.
	committed.Store(true)
	if err := ch.Commit(ctx); err != nil {
		w.metrics.RecordRemoteError(ctx, "send")
		return err
	}
	return nil
}

func (w *Worker) receive(ctx context.Context, ch realtime.Channel, sess *CallSession, committed *atomic.Bool, logger *zap.Logger) error {
	var (
		pcmRest  []byte // odd trailing byte of a pcm16 delta
		ulawRest []byte // bytes short of a full frame
	)

	for {
		reply, err := ch.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.metrics.RecordRemoteError(ctx, "receive")
			return fmt.Errorf("failed to receive reply: %w", err)
		}

		if len(reply.Audio) > 0 {
			pcm := append(pcmRest, reply.Audio...)
			even := len(pcm) &^ 1
			pcmRest = bytes.Clone(pcm[even:])

			ulaw, gain := w.downsample(pcm[:even])
			logger.Debug("Transcoded reply segment",
				zap.Int("pcm_bytes", even),
				zap.Float64("gain", gain))

			frames, rest := audio.SplitFrames(append(ulawRest, ulaw...), w.frameBytes)
			for _, frame := range frames {
				if err := sess.outbound.Push(ctx, frame); err != nil {
					return err
				}
			}
			ulawRest = bytes.Clone(rest)
		}

		if reply.Done {
			if len(ulawRest) > 0 {
				if err := sess.outbound.Push(ctx, audio.PadFrame(ulawRest, w.frameBytes)); err != nil {
					return err
				}
				ulawRest = nil
			}
			// Greetings and server VAD turns complete before the caller hangs
			// up; only a completion after the final commit ends the call.
			if committed.Load() {
				return nil
			}
			logger.Debug("Response finished before end of input, waiting for more")
		}
	}
}

// upsample converts one μ-law chunk to little-endian pcm16 at the input rate.
func (w *Worker) upsample(chunk []byte) ([]byte, error) {
	pcm, err := audio.Resample(audio.DecodeULaw(chunk), audio.TelephonySampleRate, w.inputRate)
	if err != nil {
		return nil, err
	}
	return audio.PCMInt16ToLE(pcm), nil
}

// downsample converts one pcm16 reply segment to gain-normalized μ-law at
// the telephony rate and returns it with the applied gain.
func (w *Worker) downsample(pcm []byte) ([]byte, float64) {
	samples, err := audio.Resample(audio.LEToPCMInt16(pcm), w.outputRate, audio.TelephonySampleRate)
	if err != nil {
		return nil, 0
	}
	normalized, gain := audio.Normalize(samples, w.agcTarget, w.agcMaxGain)
	return audio.EncodeULaw(normalized), gain
}
