package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// DefaultSampleRate is the rate assumed for raw PCM input.
const DefaultSampleRate = 16000

var ErrInvalidWAV = errors.New("invalid wav data")

// EncodeWAVPCM16LE wraps raw PCM16LE mono audio bytes in a WAV container.
func EncodeWAVPCM16LE(pcm []byte, sampleRate int) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteWAVPCM16LETo(&buf, pcm, sampleRate); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteWAVPCM16LETo writes raw PCM16LE mono audio bytes to out as a WAV stream.
func WriteWAVPCM16LETo(out io.Writer, pcm []byte, sampleRate int) error {
	const (
		numChannels   = 1
		bitsPerSample = 16
		audioFormat   = 1 // PCM
	)
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	dataSize := uint32(len(pcm))
	header := struct {
		RIFF          [4]byte
		ChunkSize     uint32
		WAVE          [4]byte
		Fmt           [4]byte
		FmtSize       uint32
		AudioFormat   uint16
		NumChannels   uint16
		SampleRate    uint32
		ByteRate      uint32
		BlockAlign    uint16
		BitsPerSample uint16
		Data          [4]byte
		DataSize      uint32
	}{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   audioFormat,
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * numChannels * bitsPerSample / 8),
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      dataSize,
	}

	w := bufio.NewWriter(out)
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return err
	}
	if _, err := w.Write(pcm); err != nil {
		return err
	}
	return w.Flush()
}

// IsWAV reports whether b starts with a RIFF/WAVE header.
func IsWAV(b []byte) bool {
	return len(b) >= 12 && string(b[0:4]) == "RIFF" && string(b[8:12]) == "WAVE"
}

// DecodeWAV extracts mono PCM16LE samples from a 16-bit PCM WAV file.
// Multi-channel input is downmixed by averaging.
func DecodeWAV(b []byte) ([]byte, int, error) {
	if !IsWAV(b) {
		return nil, 0, ErrInvalidWAV
	}

	var (
		channels   uint16
		sampleRate uint32
		bits       uint16
		format     uint16
		haveFmt    bool
	)
	r := b[12:]
	for len(r) >= 8 {
		id := string(r[0:4])
		size := int(binary.LittleEndian.Uint32(r[4:8]))
		r = r[8:]
		if size < 0 || size > len(r) {
			if id == "data" {
				// Streaming writers leave the size unset; take what is there.
				size = len(r)
			} else {
				return nil, 0, fmt.Errorf("%w: chunk %q truncated", ErrInvalidWAV, id)
			}
		}
		chunk := r[:size]
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, fmt.Errorf("%w: short fmt chunk", ErrInvalidWAV)
			}
			format = binary.LittleEndian.Uint16(chunk[0:2])
			channels = binary.LittleEndian.Uint16(chunk[2:4])
			sampleRate = binary.LittleEndian.Uint32(chunk[4:8])
			bits = binary.LittleEndian.Uint16(chunk[14:16])
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, 0, fmt.Errorf("%w: data before fmt", ErrInvalidWAV)
			}
			if format != 1 || bits != 16 || channels == 0 {
				return nil, 0, fmt.Errorf("%w: unsupported format=%d bits=%d channels=%d", ErrInvalidWAV, format, bits, channels)
			}
			return downmix(chunk, int(channels)), int(sampleRate), nil
		}
		// Chunks are word aligned.
		if size%2 == 1 && size < len(r) {
			size++
		}
		r = r[size:]
	}
	return nil, 0, fmt.Errorf("%w: missing data chunk", ErrInvalidWAV)
}

// PCM16 returns mono PCM16LE samples from either a WAV container or raw PCM input.
func PCM16(b []byte) ([]byte, int, error) {
	if IsWAV(b) {
		return DecodeWAV(b)
	}
	if len(b)%2 != 0 {
		b = b[:len(b)-1]
	}
	return b, DefaultSampleRate, nil
}

func downmix(data []byte, channels int) []byte {
	frame := channels * 2
	n := len(data) / frame
	if channels == 1 {
		return data[:n*2]
	}
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		var sum int
		for c := 0; c < channels; c++ {
			off := i*frame + c*2
			sum += int(int16(binary.LittleEndian.Uint16(data[off : off+2])))
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(sum/channels)))
	}
	return out
}
