package audio_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Raikerian/go-sip-realtime-bridge/pkg/audio"
)

func TestResample_Length(t *testing.T) {
	tests := map[string]struct {
		inLen   int
		from    int
		to      int
		wantLen int
	}{
		"telephony_to_realtime": {inLen: 160, from: 8000, to: 24000, wantLen: 480},
		"realtime_to_telephony": {inLen: 480, from: 24000, to: 8000, wantLen: 160},
		"48k_to_8k":             {inLen: 960, from: 48000, to: 8000, wantLen: 160},
		"same_rate":             {inLen: 160, from: 8000, to: 8000, wantLen: 160},
		"tiny_downsample":       {inLen: 2, from: 24000, to: 8000, wantLen: 1},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			out, err := audio.Resample(make([]int16, tt.inLen), tt.from, tt.to)
			require.NoError(t, err)
			assert.Len(t, out, tt.wantLen)
		})
	}
}

func TestResample_Interpolates(t *testing.T) {
	out, err := audio.Resample([]int16{0, 300, 600}, 8000, 24000)
	require.NoError(t, err)

	assert.Equal(t, []int16{0, 100, 200, 300, 400, 500, 600, 600, 600}, out)
}

func TestResample_ConstantSignalStaysConstant(t *testing.T) {
	src := make([]int16, 480)
	for i := range src {
		src[i] = -1234
	}

	out, err := audio.Resample(src, 24000, 8000)
	require.NoError(t, err)
	for _, s := range out {
		assert.Equal(t, int16(-1234), s)
	}
}

func TestResample_Errors(t *testing.T) {
	_, err := audio.Resample([]int16{1}, 0, 8000)
	assert.Error(t, err)

	_, err = audio.Resample([]int16{1}, 8000, -1)
	assert.Error(t, err)

	out, err := audio.Resample(nil, 8000, 24000)
	assert.NoError(t, err)
	assert.Empty(t, out)
}

func TestResample_DoesNotAliasInput(t *testing.T) {
	src := []int16{1, 2, 3}
	out, err := audio.Resample(src, 8000, 8000)
	require.NoError(t, err)

	out[0] = 99
	assert.Equal(t, int16(1), src[0])
}
