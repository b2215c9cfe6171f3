package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResamplerValidation(t *testing.T) {
	_, err := NewResampler(0, 8000)
	assert.ErrorIs(t, err, ErrInvalidSampleRate)
	_, err = NewResampler(48000, 0)
	assert.ErrorIs(t, err, ErrInvalidSampleRate)
}

func TestResamplerSameRate(t *testing.T) {
	r, err := NewResampler(8000, 8000)
	require.NoError(t, err)
	in := []int16{1, 2, 3}
	assert.Equal(t, in, r.Resample(in))
}

func TestResamplerDownsample(t *testing.T) {
	r, err := NewResampler(48000, 8000)
	require.NoError(t, err)

	in := make([]int16, 960)
	for i := range in {
		in[i] = int16(i)
	}
	out := r.Resample(in)
	require.Len(t, out, 160)
	for i, v := range out {
		assert.Equal(t, int16(i*6), v)
	}
	assert.Equal(t, uint32(48000), r.InputRate())
	assert.Equal(t, uint32(8000), r.OutputRate())
}

func TestResamplerUpsampleInterpolates(t *testing.T) {
	r, err := NewResampler(8000, 16000)
	require.NoError(t, err)

	out := r.Resample([]int16{0, 100, 200})
	assert.Equal(t, []int16{0, 50, 100, 150, 200, 200}, out)
}
