package audio

// DownmixMono reduces interleaved int16 PCM with the given channel count to
// mono by averaging all channels per sample point. Averaging is done in int32
// to prevent overflow and the result is clamped to the int16 range. Mono
// input is returned unchanged.
//
// This is the only downmix policy the encoder uses: it is deterministic and
// symmetric across channels, so a source captured in stereo produces the same
// mono signal regardless of which channel carried the voice.
func DownmixMono(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	frameBytes := channels * 2
	points := len(pcm) / frameBytes
	out := make([]byte, points*2)
	for i := range points {
		var sum int32
		for c := range channels {
			off := i*frameBytes + c*2
			sum += int32(int16(pcm[off]) | int16(pcm[off+1])<<8)
		}
		avg := sum / int32(channels)
		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}
		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using
// linear interpolation. The input must be little-endian int16 samples. If
// srcRate == dstRate, the input is returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		var s1 int16
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		} else {
			s1 = s0
		}

		interpolated := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(interpolated)
		out[i*2+1] = byte(interpolated >> 8)
	}
	return out
}
