package audio

import "github.com/zaf/g711"

// DecodeULaw expands G.711 μ-law bytes to linear 16-bit samples.
func DecodeULaw(ulaw []byte) []int16 {
	out := make([]int16, len(ulaw))
	for i, b := range ulaw {
		out[i] = g711.DecodeUlawFrame(b)
	}
	return out
}

// EncodeULaw compresses linear 16-bit samples to G.711 μ-law bytes.
func EncodeULaw(samples []int16) []byte {
	out := make([]byte, len(samples))
	for i, s := range samples {
		out[i] = g711.EncodeUlawFrame(s)
	}
	return out
}
