package audioio

// Resample converts mono audio between sample rates by linear
// interpolation. Good enough for speech going to a recognizer. Each call
// stands alone; use a Resampler for a continuous stream.
func Resample(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || len(samples) == 0 {
		return samples
	}

	out := make([]int16, len(samples)*toRate/fromRate)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i*fromRate) / float64(toRate)
		j := int(pos)
		if j >= last {
			out[i] = samples[last]
			continue
		}
		out[i] = lerp(samples[j], samples[j+1], pos-float64(j))
	}
	return out
}

func lerp(a, b int16, frac float64) int16 {
	return int16(float64(a) + frac*float64(int32(b)-int32(a)))
}

// Resampler converts a chunked stream between sample rates, carrying the
// interpolation position and the previous chunk's last sample across calls
// so chunk boundaries do not click.
type Resampler struct {
	ratio   float64
	pos     float64
	prev    int16
	hasPrev bool
}

// NewResampler creates a streaming resampler. It returns nil when the rates
// match.
func NewResampler(fromRate, toRate int) *Resampler {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 {
		return nil
	}
	return &Resampler{ratio: float64(fromRate) / float64(toRate)}
}

// Process resamples the next chunk. A nil Resampler passes input through.
func (r *Resampler) Process(in []int16) []int16 {
	if r == nil || len(in) == 0 {
		return in
	}

	buf := in
	if r.hasPrev {
		buf = make([]int16, 0, len(in)+1)
		buf = append(buf, r.prev)
		buf = append(buf, in...)
	}
	p := r.pos
	if r.hasPrev {
		p++
	}

	last := len(buf) - 1
	out := make([]int16, 0, int(float64(len(in))/r.ratio)+1)
	for ; p <= float64(last); p += r.ratio {
		j := int(p)
		if j == last {
			out = append(out, buf[last])
			continue
		}
		out = append(out, lerp(buf[j], buf[j+1], p-float64(j)))
	}

	r.pos = p - float64(len(buf))
	r.prev = buf[last]
	r.hasPrev = true
	return out
}

// ResampleBytes resamples raw PCM16 bytes.
func ResampleBytes(data []byte, fromRate, toRate int) []byte {
	samples := BytesToSamples(data)
	resampled := Resample(samples, fromRate, toRate)
	return SamplesToBytes(resampled)
}

// BytesToSamples converts raw PCM16 little-endian bytes to int16 samples.
func BytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}

// SamplesToBytes converts int16 samples to raw PCM16 little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}
	return data
}
