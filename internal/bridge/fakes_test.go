package bridge

import (
	"bytes"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Raikerian/go-sip-realtime-bridge/internal/config"
	"github.com/Raikerian/go-sip-realtime-bridge/internal/media"
	"github.com/Raikerian/go-sip-realtime-bridge/internal/observe"
	"github.com/Raikerian/go-sip-realtime-bridge/internal/realtime"
)

// fakeChannel is an in-memory speech channel.
type fakeChannel struct {
	echo         bool // reply with every chunk sent
	doneOnCommit bool // finish the response on commit

	replies chan realtime.Reply
	recvErr chan error

	mu      sync.Mutex
	sent    [][]byte
	commits int
	closed  bool
}

func newFakeChannel(echo, doneOnCommit bool) *fakeChannel {
	return &fakeChannel{
		echo:         echo,
		doneOnCommit: doneOnCommit,
		replies:      make(chan realtime.Reply, 1024),
		recvErr:      make(chan error, 1),
	}
}

func (c *fakeChannel) SendAudio(_ context.Context, pcm []byte) error {
	c.mu.Lock()
	c.sent = append(c.sent, bytes.Clone(pcm))
	c.mu.Unlock()

	if c.echo {
		c.replies <- realtime.Reply{Audio: bytes.Clone(pcm)}
	}
	return nil
}

func (c *fakeChannel) Commit(context.Context) error {
	c.mu.Lock()
	c.commits++
	c.mu.Unlock()

	if c.doneOnCommit {
		c.replies <- realtime.Reply{Done: true}
	}
	return nil
}

func (c *fakeChannel) Receive(ctx context.Context) (realtime.Reply, error) {
	select {
	case r := <-c.replies:
		return r, nil
	case err := <-c.recvErr:
		return realtime.Reply{}, err
	case <-ctx.Done():
		return realtime.Reply{}, ctx.Err()
	}
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sent...)
}

func (c *fakeChannel) Commits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commits
}

func (c *fakeChannel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeDialer hands out channels built by newChannel. With block set, Dial
// waits for cancellation instead.
type fakeDialer struct {
	newChannel func() *fakeChannel
	err        error
	block      bool

	mu       sync.Mutex
	channels map[string]*fakeChannel
}

func newFakeDialer(newChannel func() *fakeChannel) *fakeDialer {
	return &fakeDialer{newChannel: newChannel, channels: make(map[string]*fakeChannel)}
}

func (d *fakeDialer) Dial(ctx context.Context, callID string) (realtime.Channel, error) {
	if d.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if d.err != nil {
		return nil, d.err
	}

	ch := d.newChannel()
	d.mu.Lock()
	d.channels[callID] = ch
	d.mu.Unlock()
	return ch, nil
}

func (d *fakeDialer) Channel(callID string) *fakeChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.channels[callID]
}

type sentPacket struct {
	at     time.Time
	dest   *net.UDPAddr
	packet []byte
}

type recordingTransport struct {
	mu   sync.Mutex
	sent []sentPacket
}

func (r *recordingTransport) Send(dest *net.UDPAddr, packet []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentPacket{at: time.Now(), dest: dest, packet: packet})
	return nil
}

func (r *recordingTransport) Sent() []sentPacket {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentPacket(nil), r.sent...)
}

func testConfig() *config.Config {
	return &config.Config{
		Bridge: config.BridgeConfig{
			InboundQueueSize:      800,
			OutboundQueueSize:     400,
			MaxConcurrentSessions: 4,
			AGCTargetRMS:          2500,
			AGCMaxGain:            4,
			TeardownTimeout:       time.Second,
		},
		RTP: config.RTPConfig{
			FrameInterval: 20 * time.Millisecond,
			FrameBytes:    160,
			PayloadType:   media.PayloadTypePCMU,
			SSRC:          1234,
		},
		Realtime: config.RealtimeConfig{
			InputSampleRate:  24000,
			OutputSampleRate: 24000,
		},
	}
}

type harness struct {
	registry  *Registry
	dialer    *fakeDialer
	transport *recordingTransport
	framer    *media.Framer
}

func newHarness(t *testing.T, cfg *config.Config, dialer *fakeDialer) *harness {
	t.Helper()

	logger := zaptest.NewLogger(t)
	metrics := observe.NewNopMetrics()

	framer, err := media.NewFramer(cfg.RTP.PayloadType, cfg.RTP.SSRC, 16)
	require.NoError(t, err)
	transport := &recordingTransport{}

	pacer := media.NewPacer(framer, transport, cfg.RTP.FrameInterval, metrics, logger)
	worker := NewWorker(cfg, dialer, metrics, logger)
	registry := NewRegistry(cfg.Bridge, worker, pacer, framer, metrics, logger)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, registry.Shutdown(ctx))
	})

	return &harness{registry: registry, dialer: dialer, transport: transport, framer: framer}
}

// waitTasks waits for every per-call goroutine of r to exit.
func waitTasks(t *testing.T, r *Registry, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		r.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("per-call goroutines still running")
	}
}

var testDest = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5000}

func realtimeDone() realtime.Reply {
	return realtime.Reply{Done: true}
}
