package audio

import "math"

// MaxGain is the hard ceiling applied by AGCGain.
const MaxGain = 4.0

// RMS returns the root-mean-square level of samples, 0 for an empty slice.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// AGCGain returns min(target / max(rms, 1), maxGain). maxGain is clamped to
// MaxGain.
func AGCGain(rms, target, maxGain float64) float64 {
	if maxGain <= 0 || maxGain > MaxGain {
		maxGain = MaxGain
	}
	return math.Min(target/math.Max(rms, 1), maxGain)
}

// ApplyGain scales samples uniformly, saturating at the int16 range.
func ApplyGain(samples []int16, gain float64) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = saturateInt16(int32(math.Round(float64(s) * gain)))
	}
	return out
}

// Normalize applies automatic gain control to one segment and returns the
// scaled samples together with the gain used.
func Normalize(samples []int16, target, maxGain float64) ([]int16, float64) {
	gain := AGCGain(RMS(samples), target, maxGain)
	return ApplyGain(samples, gain), gain
}

func saturateInt16(v int32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
