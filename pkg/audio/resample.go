package audio

import "fmt"

// Resample converts mono samples between two rates by linear interpolation.
// The output holds len(src)*dstRate/srcRate samples.
func Resample(src []int16, srcRate, dstRate int) ([]int16, error) {
	if srcRate <= 0 || dstRate <= 0 {
		return nil, fmt.Errorf("unsupported ratio %d:%d", srcRate, dstRate)
	}
	if len(src) == 0 {
		return nil, nil
	}
	if srcRate == dstRate {
		dst := make([]int16, len(src))
		copy(dst, src)
		return dst, nil
	}

	n := int(int64(len(src)) * int64(dstRate) / int64(srcRate))
	if n == 0 {
		n = 1
	}
	dst := make([]int16, n)
	last := len(src) - 1

	for i := range dst {
		num := int64(i) * int64(srcRate)
		idx := int(num / int64(dstRate))
		if idx >= last {
			dst[i] = src[last]
			continue
		}
		rem := num % int64(dstRate)
		a, b := int64(src[idx]), int64(src[idx+1])
		dst[i] = int16(a + (b-a)*rem/int64(dstRate))
	}
	return dst, nil
}
