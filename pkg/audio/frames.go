package audio

// SplitFrames slices data into consecutive size-byte frames. Bytes that do
// not fill a whole frame are returned as rest. Frames alias data.
func SplitFrames(data []byte, size int) (frames [][]byte, rest []byte) {
	if size <= 0 {
		return nil, data
	}
	for len(data) >= size {
		frames = append(frames, data[:size:size])
		data = data[size:]
	}
	return frames, data
}

// PadFrame returns frame extended to size bytes with μ-law silence.
func PadFrame(frame []byte, size int) []byte {
	if len(frame) >= size {
		return frame
	}
	out := make([]byte, size)
	n := copy(out, frame)
	for i := n; i < size; i++ {
		out[i] = ULawSilence
	}
	return out
}
