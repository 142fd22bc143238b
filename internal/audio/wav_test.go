package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

func TestEncodeDecodeWAV(t *testing.T) {
	pcm := tone(160, 1000)
	wav, err := EncodeWAVPCM16LE(pcm, 22050)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16LE() error = %v", err)
	}
	if len(wav) != 44+len(pcm) {
		t.Fatalf("wav length = %d, want %d", len(wav), 44+len(pcm))
	}
	if !IsWAV(wav) {
		t.Fatalf("IsWAV() = false")
	}

	got, rate, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV() error = %v", err)
	}
	if rate != 22050 {
		t.Fatalf("sample rate = %d, want 22050", rate)
	}
	if !bytes.Equal(got, pcm) {
		t.Fatalf("decoded pcm differs from input")
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	if _, _, err := DecodeWAV([]byte("not a wav file at all")); !errors.Is(err, ErrInvalidWAV) {
		t.Fatalf("DecodeWAV() error = %v, want ErrInvalidWAV", err)
	}
}

func TestPCM16PassesRawAudioThrough(t *testing.T) {
	raw := []byte{1, 0, 2, 0, 3}
	got, rate, err := PCM16(raw)
	if err != nil {
		t.Fatalf("PCM16() error = %v", err)
	}
	if rate != DefaultSampleRate || len(got) != 4 {
		t.Fatalf("PCM16() = %d bytes @ %d, want 4 bytes @ %d", len(got), rate, DefaultSampleRate)
	}
}

func TestRMSAndSilence(t *testing.T) {
	silence := Silence(time.Second, 16000)
	if len(silence) != 32000 {
		t.Fatalf("Silence(1s) length = %d, want 32000", len(silence))
	}
	if RMS(silence) != 0 {
		t.Fatalf("RMS(silence) = %v, want 0", RMS(silence))
	}
	if got := RMS(tone(100, 1000)); got != 1000 {
		t.Fatalf("RMS(tone) = %v, want 1000", got)
	}
	if got := Duration(len(silence), 16000); got != time.Second {
		t.Fatalf("Duration() = %v, want 1s", got)
	}
}

// tone returns n samples alternating between +amp and -amp.
func tone(n int, amp int16) []byte {
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := amp
		if i%2 == 1 {
			v = -amp
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}
