package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

// Static errors for WAV decoding.
var (
	// ErrNotWAV is returned when the data does not carry a RIFF/WAVE header.
	ErrNotWAV = errors.New("audio: not a WAV file")
	// ErrUnsupportedFormat is returned for non-PCM or non-16-bit WAV data.
	ErrUnsupportedFormat = errors.New("audio: unsupported WAV format, expected 16-bit PCM")
)

// wavHeaderSize is the size of a canonical PCM WAV header.
const wavHeaderSize = 44

// DecodeWAV decodes 16-bit PCM WAV data into samples and a sample rate.
// Multi-channel data is rejected; uploads are normalized to mono first
// (see Converter.ToPCMWav).
func DecodeWAV(data []byte) (samples []int16, sampleRate int, err error) {
	if len(data) < wavHeaderSize {
		return nil, 0, fmt.Errorf("%w: %d bytes is too short", ErrNotWAV, len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, ErrNotWAV
	}

	// Walk chunks: "fmt " and "data" may be separated by optional chunks
	// (LIST, fact) depending on the encoder.
	var (
		audioFormat   uint16
		numChannels   uint16
		rate          uint32
		bitsPerSample uint16
		pcm           []byte
		haveFmt       bool
	)

	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if body+chunkSize > len(data) {
			chunkSize = len(data) - body
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, 0, fmt.Errorf("%w: fmt chunk too short", ErrNotWAV)
			}
			audioFormat = binary.LittleEndian.Uint16(data[body : body+2])
			numChannels = binary.LittleEndian.Uint16(data[body+2 : body+4])
			rate = binary.LittleEndian.Uint32(data[body+4 : body+8])
			bitsPerSample = binary.LittleEndian.Uint16(data[body+14 : body+16])
			haveFmt = true
		case "data":
			pcm = data[body : body+chunkSize]
		}

		// Chunks are word-aligned.
		if chunkSize%2 == 1 {
			chunkSize++
		}
		offset = body + chunkSize
	}

	if !haveFmt || pcm == nil {
		return nil, 0, fmt.Errorf("%w: missing fmt or data chunk", ErrNotWAV)
	}
	if audioFormat != 1 || bitsPerSample != 16 || numChannels != 1 {
		return nil, 0, fmt.Errorf("%w: format=%d channels=%d bits=%d",
			ErrUnsupportedFormat, audioFormat, numChannels, bitsPerSample)
	}

	samples = make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
	}

	return samples, int(rate), nil
}

// ReadWAVFile reads and decodes a 16-bit PCM WAV file from disk.
func ReadWAVFile(path string) ([]int16, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("read wav file: %w", err)
	}
	return DecodeWAV(data)
}

// EncodeWAV encodes mono PCM-16 samples into canonical WAV bytes.
// Used by tests and by engines that need to round-trip audio.
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	dataSize := len(samples) * 2
	buf := make([]byte, 0, wavHeaderSize+dataSize)

	le32 := func(v uint32) []byte {
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, v)
		return b
	}
	le16 := func(v uint16) []byte {
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, v)
		return b
	}

	buf = append(buf, "RIFF"...)
	buf = append(buf, le32(uint32(36+dataSize))...)
	buf = append(buf, "WAVE"...)
	buf = append(buf, "fmt "...)
	buf = append(buf, le32(16)...)
	buf = append(buf, le16(1)...) // PCM
	buf = append(buf, le16(1)...) // mono
	buf = append(buf, le32(uint32(sampleRate))...)
	buf = append(buf, le32(uint32(sampleRate*2))...) // byte rate
	buf = append(buf, le16(2)...)                    // block align
	buf = append(buf, le16(16)...)                   // bits per sample
	buf = append(buf, "data"...)
	buf = append(buf, le32(uint32(dataSize))...)

	for _, s := range samples {
		buf = append(buf, byte(s), byte(s>>8))
	}

	return buf, nil
}
