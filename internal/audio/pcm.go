package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// RMS returns the root-mean-square amplitude of PCM16LE samples.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}

// Silence returns d of zeroed PCM16LE mono audio at sampleRate.
func Silence(d time.Duration, sampleRate int) []byte {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	samples := int(d.Seconds() * float64(sampleRate))
	if samples < 0 {
		samples = 0
	}
	return make([]byte, samples*2)
}

// Duration reports how long n bytes of PCM16LE mono audio play at sampleRate.
func Duration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return time.Duration(float64(n/2) / float64(sampleRate) * float64(time.Second))
}
