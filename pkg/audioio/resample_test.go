package audioio

import (
	"bytes"
	"testing"
)

func TestResampleLength(t *testing.T) {
	tests := []struct {
		name     string
		in       int
		from, to int
		want     int
	}{
		{"same rate", 5, 16000, 16000, 5},
		{"browser to gateway", 960, 48000, 16000, 320},
		{"upsample", 320, 16000, 24000, 480},
		{"empty", 0, 48000, 16000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples := make([]int16, tt.in)
			for i := range samples {
				samples[i] = int16(i)
			}
			if got := Resample(samples, tt.from, tt.to); len(got) != tt.want {
				t.Errorf("len(Resample()) = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestResampleInterpolates(t *testing.T) {
	got := Resample([]int16{0, 300, 600, 900}, 16000, 32000)
	want := []int16{0, 150, 300, 450, 600, 750, 900, 900}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestResamplerStreamsAcrossChunks(t *testing.T) {
	r := NewResampler(16000, 32000)
	first := r.Process([]int16{0, 300, 600, 900})
	second := r.Process([]int16{1200, 1500})

	want := []int16{0, 150, 300, 450, 600, 750, 900}
	if len(first) != len(want) {
		t.Fatalf("first chunk = %v, want %v", first, want)
	}
	for i := range want {
		if first[i] != want[i] {
			t.Errorf("first[%d] = %d, want %d", i, first[i], want[i])
		}
	}

	// The boundary sample interpolates against the previous chunk.
	want = []int16{1050, 1200, 1350, 1500}
	if len(second) != len(want) {
		t.Fatalf("second chunk = %v, want %v", second, want)
	}
	for i := range want {
		if second[i] != want[i] {
			t.Errorf("second[%d] = %d, want %d", i, second[i], want[i])
		}
	}
}

func TestResamplerSteadyLength(t *testing.T) {
	r := NewResampler(48000, 16000)
	for i := 0; i < 5; i++ {
		if got := len(r.Process(make([]int16, 960))); got != 320 {
			t.Fatalf("chunk %d gave %d samples, want 320", i, got)
		}
	}

	if NewResampler(16000, 16000) != nil {
		t.Error("matching rates need no resampler")
	}
	var none *Resampler
	if got := none.Process([]int16{1, 2}); len(got) != 2 {
		t.Errorf("nil resampler changed input: %v", got)
	}
}

func TestPCMConversion(t *testing.T) {
	data := []byte{0x02, 0x01, 0xff, 0xff}
	samples := BytesToSamples(data)
	if len(samples) != 2 || samples[0] != 0x0102 || samples[1] != -1 {
		t.Fatalf("BytesToSamples() = %v", samples)
	}
	if back := SamplesToBytes(samples); !bytes.Equal(back, data) {
		t.Errorf("SamplesToBytes() = %v, want %v", back, data)
	}

	// A trailing odd byte is ignored.
	if n := len(BytesToSamples([]byte{1, 2, 3})); n != 1 {
		t.Errorf("odd input gave %d samples", n)
	}
}

func TestResampleBytes(t *testing.T) {
	data := SamplesToBytes(make([]int16, 960))
	if got := ResampleBytes(data, 48000, 16000); len(got) != 640 {
		t.Errorf("len = %d, want 640", len(got))
	}
}

func BenchmarkResample_48kTo16k(b *testing.B) {
	samples := make([]int16, 960)
	for i := range samples {
		samples[i] = int16(i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Resample(samples, 48000, 16000)
	}
}
