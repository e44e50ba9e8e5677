package media

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"

	"github.com/Raikerian/go-sip-realtime-bridge/internal/observe"
)

const testInterval = 20 * time.Millisecond

type chanSource chan []byte

func (s chanSource) Pop(ctx context.Context) ([]byte, error) {
	select {
	case f, ok := <-s:
		if !ok {
			return nil, io.EOF
		}
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
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
	out := make([]sentPacket, len(r.sent))
	copy(out, r.sent)
	return out
}

func newTestPacer(t *testing.T) (*Pacer, *recordingTransport) {
	t.Helper()
	f, err := NewFramer(PayloadTypePCMU, 1234, 8)
	require.NoError(t, err)
	tr := &recordingTransport{}
	return NewPacer(f, tr, testInterval, observe.NewNopMetrics(), zaptest.NewLogger(t)), tr
}

var testDest = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5000}

func TestPacer_EmitsInOrderAtInterval(t *testing.T) {
	p, tr := newTestPacer(t)

	src := make(chanSource, 5)
	for i := 0; i < 5; i++ {
		frame := make([]byte, 160)
		frame[0] = byte(i)
		src <- frame
	}
	close(src)

	start := time.Now()
	require.NoError(t, p.Run(context.Background(), "c1", testDest, src))
	elapsed := time.Since(start)

	sent := tr.Sent()
	require.Len(t, sent, 5)
	for i, s := range sent {
		pkt, err := Parse(s.packet)
		require.NoError(t, err)
		assert.Equal(t, byte(i), pkt.Payload[0], "frames must keep their order")
		assert.Equal(t, uint16(i), pkt.SequenceNumber)
		assert.Equal(t, testDest, s.dest)
		if i > 0 {
			assert.GreaterOrEqual(t, s.at.Sub(sent[i-1].at), testInterval/2)
		}
	}
	assert.GreaterOrEqual(t, elapsed, 4*testInterval)
}

func TestPacer_NoBurstAfterStall(t *testing.T) {
	p, tr := newTestPacer(t)

	src := make(chanSource)
	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background(), "c1", testDest, src) }()

	src <- make([]byte, 160)
	time.Sleep(5 * testInterval)
	src <- make([]byte, 160)
	src <- make([]byte, 160)
	close(src)

	require.NoError(t, <-done)

	sent := tr.Sent()
	require.Len(t, sent, 3)
	assert.GreaterOrEqual(t, sent[2].at.Sub(sent[1].at), testInterval/2,
		"a stall must not be caught up with back-to-back frames")
}

func TestPacer_CancelStopsImmediately(t *testing.T) {
	p, tr := newTestPacer(t)

	src := make(chanSource, 100)
	for i := 0; i < 100; i++ {
		src <- make([]byte, 160)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, "c1", testDest, src) }()

	require.Eventually(t, func() bool { return len(tr.Sent()) >= 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(testInterval * 2):
		t.Fatal("pacer did not stop after cancellation")
	}

	count := len(tr.Sent())
	time.Sleep(3 * testInterval)
	assert.Equal(t, count, len(tr.Sent()), "no frames after cancellation")
	assert.Less(t, count, 100)
}

func TestPacer_EmptyStream(t *testing.T) {
	p, tr := newTestPacer(t)

	src := make(chanSource)
	close(src)

	require.NoError(t, p.Run(context.Background(), "c1", testDest, src))
	assert.Empty(t, tr.Sent())
}

type sendFunc func(dest *net.UDPAddr, packet []byte) error

func (f sendFunc) Send(dest *net.UDPAddr, packet []byte) error { return f(dest, packet) }

func lateTicks(t *testing.T, reader *sdkmetric.ManualReader) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "bridge.pacer.late_ticks" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestPacer_LateTicks(t *testing.T) {
	tests := map[string]struct {
		run  func(p *Pacer, src chanSource) error
		want int64
	}{
		"idle_before_first_frame": {
			run: func(p *Pacer, src chanSource) error {
				go func() {
					time.Sleep(5 * testInterval)
					src <- make([]byte, 160)
					src <- make([]byte, 160)
					close(src)
				}()
				return p.Run(context.Background(), "c1", testDest, src)
			},
		},
		"idle_between_replies": {
			run: func(p *Pacer, src chanSource) error {
				go func() {
					src <- make([]byte, 160)
					time.Sleep(5 * testInterval)
					src <- make([]byte, 160)
					close(src)
				}()
				return p.Run(context.Background(), "c1", testDest, src)
			},
		},
		"slow_transport": {
			run: func(p *Pacer, src chanSource) error {
				p.transport = sendFunc(func(*net.UDPAddr, []byte) error {
					time.Sleep(3 * testInterval)
					return nil
				})
				src <- make([]byte, 160)
				src <- make([]byte, 160)
				close(src)
				return p.Run(context.Background(), "c1", testDest, src)
			},
			want: 1,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			reader := sdkmetric.NewManualReader()
			mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
			t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
			metrics, err := observe.NewMetrics(mp)
			require.NoError(t, err)

			f, err := NewFramer(PayloadTypePCMU, 1234, 8)
			require.NoError(t, err)
			p := NewPacer(f, &recordingTransport{}, testInterval, metrics, zaptest.NewLogger(t))

			require.NoError(t, tt.run(p, make(chanSource, 2)))
			assert.Equal(t, tt.want, lateTicks(t, reader))
		})
	}
}
