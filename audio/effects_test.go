package audio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGainEffect_NewGainEffect(t *testing.T) {
	tests := []struct {
		name    string
		gain    float64
		wantErr bool
	}{
		{"valid gain zero", 0.0, false},
		{"valid gain unity", 1.0, false},
		{"valid gain amplification", 2.0, false},
		{"valid gain maximum", 4.0, false},
		{"invalid negative gain", -0.5, true},
		{"invalid too high gain", 5.0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			effect, err := NewGainEffect(tt.gain)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidGain)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.gain, effect.GetGain())
		})
	}
}

func TestGainEffect_ProcessClips(t *testing.T) {
	effect, err := NewGainEffect(2.0)
	require.NoError(t, err)

	out, err := effect.Process([]int16{100, -100, 20000, -20000})
	require.NoError(t, err)
	assert.Equal(t, []int16{200, -200, 32767, -32768}, out)
}

func TestGainEffect_SetGain(t *testing.T) {
	effect, err := NewGainEffect(1.0)
	require.NoError(t, err)

	require.NoError(t, effect.SetGain(0.5))
	out, err := effect.Process([]int16{1000})
	require.NoError(t, err)
	assert.Equal(t, []int16{500}, out)

	assert.Error(t, effect.SetGain(-1))
	assert.Equal(t, 0.5, effect.GetGain())
	assert.Equal(t, "Gain(0.50)", effect.GetName())
}

type failingEffect struct{ closed bool }

func (f *failingEffect) Process([]int16) ([]int16, error) { return nil, errors.New("boom") }
func (f *failingEffect) GetName() string                  { return "failing" }
func (f *failingEffect) Close() error                     { f.closed = true; return errors.New("close failed") }

func TestEffectChain(t *testing.T) {
	gain, err := NewGainEffect(2.0)
	require.NoError(t, err)
	filter, err := NewConvolutionEffect([]float64{0.5})
	require.NoError(t, err)

	chain := NewEffectChain(gain)
	chain.AddEffect(filter)
	chain.AddEffect(nil)
	assert.Equal(t, 2, chain.GetEffectCount())
	assert.Equal(t, []string{"Gain(2.00)", "Convolution(1 taps)"}, chain.GetEffectNames())

	out, err := chain.Process([]int16{1000, -1000})
	require.NoError(t, err)
	assert.Equal(t, []int16{1000, -1000}, out)

	require.NoError(t, chain.Close())
	assert.Equal(t, 0, chain.GetEffectCount())
}

func TestEffectChainStopsOnError(t *testing.T) {
	bad := &failingEffect{}
	chain := NewEffectChain(bad)

	_, err := chain.Process([]int16{1})
	assert.ErrorContains(t, err, "failing")

	assert.Error(t, chain.Close())
	assert.True(t, bad.closed)
}
