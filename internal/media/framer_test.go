package media

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFramer(t *testing.T, ssrc uint32) *Framer {
	t.Helper()
	f, err := NewFramer(PayloadTypePCMU, ssrc, 8)
	require.NoError(t, err)
	return f
}

func TestFramer_HeaderLayout(t *testing.T) {
	f := newTestFramer(t, 1234)
	payload := bytes.Repeat([]byte{0xFF}, 160)

	pkt, err := f.Build("c1", payload)
	require.NoError(t, err)
	require.Len(t, pkt, RTPHeaderSize+len(payload))

	assert.Equal(t, byte(0x80), pkt[0], "version 2, no padding, no extension, no CSRC")
	assert.Equal(t, byte(0x00), pkt[1], "no marker, payload type PCMU")
	assert.Equal(t, []byte{0x00, 0x00}, pkt[2:4], "sequence")
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x00}, pkt[4:8], "timestamp")
	assert.Equal(t, []byte{0x00, 0x00, 0x04, 0xD2}, pkt[8:12], "ssrc 1234 big-endian")
	assert.Equal(t, payload, pkt[RTPHeaderSize:])
}

func TestFramer_SequenceAndTimestamp(t *testing.T) {
	f := newTestFramer(t, 42)
	lengths := []int{160, 160, 80, 160, 1}

	var wantTS uint32
	for i, n := range lengths {
		pkt, err := f.Build("c1", make([]byte, n))
		require.NoError(t, err)

		p, err := Parse(pkt)
		require.NoError(t, err)
		assert.Equal(t, uint16(i), p.SequenceNumber)
		assert.Equal(t, wantTS, p.Timestamp)
		assert.Equal(t, uint32(42), p.SSRC)
		wantTS += uint32(n)
	}
}

func TestFramer_Wraps(t *testing.T) {
	f := newTestFramer(t, 7)
	f.states.Add("c1", &sequenceState{seq: 65535, ts: 0xFFFFFFF0, ssrc: 7})

	pkt, err := f.Build("c1", make([]byte, 160))
	require.NoError(t, err)
	p, err := Parse(pkt)
	require.NoError(t, err)
	assert.Equal(t, uint16(65535), p.SequenceNumber)
	assert.Equal(t, uint32(0xFFFFFFF0), p.Timestamp)

	pkt, err = f.Build("c1", make([]byte, 160))
	require.NoError(t, err)
	p, err = Parse(pkt)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), p.SequenceNumber)
	assert.Equal(t, uint32(160-16), p.Timestamp)
}

func TestFramer_PerCallState(t *testing.T) {
	f := newTestFramer(t, 0)

	var ssrcA uint32
	for i := 0; i < 3; i++ {
		pkt, err := f.Build("a", make([]byte, 160))
		require.NoError(t, err)
		p, err := Parse(pkt)
		require.NoError(t, err)
		if i == 0 {
			ssrcA = p.SSRC
		}
		assert.Equal(t, ssrcA, p.SSRC, "ssrc must stay constant within a call")
	}

	pkt, err := f.Build("b", make([]byte, 160))
	require.NoError(t, err)
	p, err := Parse(pkt)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), p.SequenceNumber, "calls do not share counters")
}

func TestFramer_Forget(t *testing.T) {
	f := newTestFramer(t, 1)

	_, err := f.Build("c1", make([]byte, 160))
	require.NoError(t, err)
	assert.True(t, f.Tracked("c1"))

	f.Forget("c1")
	assert.False(t, f.Tracked("c1"))

	pkt, err := f.Build("c1", make([]byte, 160))
	require.NoError(t, err)
	p, err := Parse(pkt)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), p.SequenceNumber)
	assert.Equal(t, uint32(0), p.Timestamp)
}

func TestParse_RejectsShortPacket(t *testing.T) {
	_, err := Parse([]byte{0x80, 0x00})
	assert.Error(t, err)
}
