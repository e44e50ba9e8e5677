package audio

import "time"

// Format constants shared by the codec and framing layers.
const (
	// Telephony side (G.711 PCMU).
	TelephonySampleRate = 8_000 // Hz
	FrameDuration       = 20 * time.Millisecond
	ULawFrameBytes      = TelephonySampleRate / 1000 * 20 // one byte per sample, 160
	ULawSilence         = 0xFF                            // μ-law encoding of 0

	// OpenAI Realtime pcm16 (mono, little-endian).
	RealtimeSampleRate = 24_000 // Hz
	BytesPerSample     = 2
)
