// Package media turns μ-law frames into paced RTP packets on the wire.
package media

import (
	"fmt"
	"math/rand/v2"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pion/rtp"
)

// RTP header constants for the outbound stream.
const (
	rtpVersion        = 2
	PayloadTypePCMU   = 0
	RTPHeaderSize     = 12
	DefaultStateLimit = 128
)

// sequenceState is the per-call header counter set.
type sequenceState struct {
	seq  uint16
	ts   uint32
	ssrc uint32
}

// Framer prepends RTP headers to μ-law payloads. Counters are kept per call
// ID and advance with each built packet.
type Framer struct {
	payloadType uint8
	ssrc        uint32

	mu     sync.Mutex
	states *lru.Cache[string, *sequenceState]
}

// NewFramer creates a framer. A zero ssrc draws a random source identifier
// for each call. limit bounds the number of calls tracked at once.
func NewFramer(payloadType uint8, ssrc uint32, limit int) (*Framer, error) {
	if limit <= 0 {
		limit = DefaultStateLimit
	}
	states, err := lru.New[string, *sequenceState](limit)
	if err != nil {
		return nil, fmt.Errorf("failed to create sequence state cache: %w", err)
	}

	return &Framer{
		payloadType: payloadType,
		ssrc:        ssrc,
		states:      states,
	}, nil
}

// Build returns a marshalled RTP packet carrying payload for callID.
// Sequence numbers start at 0 and advance by one, timestamps start at 0 and
// advance by len(payload). Both wrap.
func (f *Framer) Build(callID string, payload []byte) ([]byte, error) {
	f.mu.Lock()
	st, ok := f.states.Get(callID)
	if !ok {
		st = &sequenceState{ssrc: f.ssrc}
		if st.ssrc == 0 {
			st.ssrc = rand.Uint32()
		}
		f.states.Add(callID, st)
	}
	pkt := rtp.Packet{
		Header: rtp.Header{
			Version:        rtpVersion,
			PayloadType:    f.payloadType,
			SequenceNumber: st.seq,
			Timestamp:      st.ts,
			SSRC:           st.ssrc,
		},
		Payload: payload,
	}
	st.seq++
	st.ts += uint32(len(payload))
	f.mu.Unlock()

	buf, err := pkt.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal RTP packet: %w", err)
	}
	return buf, nil
}

// Forget drops the counters for callID.
func (f *Framer) Forget(callID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states.Remove(callID)
}

// Tracked reports whether callID currently has counters.
func (f *Framer) Tracked(callID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states.Contains(callID)
}

// Parse decodes a packet produced by Build.
func Parse(packet []byte) (*rtp.Packet, error) {
	var p rtp.Packet
	if err := p.Unmarshal(packet); err != nil {
		return nil, fmt.Errorf("failed to unmarshal RTP packet: %w", err)
	}
	return &p, nil
}
