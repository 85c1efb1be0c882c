package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeWAV(t *testing.T) {
	samples := []int16{0, 100, -100, 32767, -32768, 5}

	data, err := EncodeWAV(samples, 16000)
	require.NoError(t, err)

	decoded, rate, err := DecodeWAV(data)
	require.NoError(t, err)
	assert.Equal(t, 16000, rate)
	assert.Equal(t, samples, decoded)
}

func TestDecodeWAV_Errors(t *testing.T) {
	t.Run("too short", func(t *testing.T) {
		_, _, err := DecodeWAV([]byte("RIFF"))
		assert.ErrorIs(t, err, ErrNotWAV)
	})

	t.Run("wrong magic", func(t *testing.T) {
		data := make([]byte, 64)
		copy(data, "NOPE")
		_, _, err := DecodeWAV(data)
		assert.ErrorIs(t, err, ErrNotWAV)
	})

	t.Run("stereo rejected", func(t *testing.T) {
		data, err := EncodeWAV([]int16{1, 2, 3, 4}, 16000)
		require.NoError(t, err)
		// Flip the channel count in the fmt chunk to 2.
		data[22] = 2
		_, _, err = DecodeWAV(data)
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})
}

func TestEncodeWAV_InvalidRate(t *testing.T) {
	_, err := EncodeWAV([]int16{1}, 0)
	assert.Error(t, err)
}
