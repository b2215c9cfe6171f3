package audio

import (
	"fmt"
)

// Resampler converts mono PCM between sample rates by linear interpolation.
//
// Each frame is resampled on its own, which is adequate for the integer
// ratios used between capture (typically 48 kHz) and telephony (8 kHz).
type Resampler struct {
	inputRate  uint32
	outputRate uint32
}

// NewResampler creates a resampler from inputRate to outputRate.
func NewResampler(inputRate, outputRate uint32) (*Resampler, error) {
	if inputRate == 0 || outputRate == 0 {
		return nil, fmt.Errorf("%w: %d -> %d", ErrInvalidSampleRate, inputRate, outputRate)
	}
	return &Resampler{inputRate: inputRate, outputRate: outputRate}, nil
}

// OutputSize returns the number of samples produced for inputSize samples.
func (r *Resampler) OutputSize(inputSize int) int {
	return int(uint64(inputSize) * uint64(r.outputRate) / uint64(r.inputRate))
}

// Resample returns input converted to the output rate. Same-rate input is
// returned unchanged.
func (r *Resampler) Resample(input []int16) []int16 {
	if r.inputRate == r.outputRate || len(input) == 0 {
		return input
	}

	output := make([]int16, r.OutputSize(len(input)))
	step := float64(r.inputRate) / float64(r.outputRate)
	last := len(input) - 1

	for i := range output {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= last {
			output[i] = input[last]
			continue
		}
		frac := pos - float64(idx)
		a, b := float64(input[idx]), float64(input[idx+1])
		output[i] = int16(a + (b-a)*frac)
	}
	return output
}

// InputRate returns the source sample rate.
func (r *Resampler) InputRate() uint32 {
	return r.inputRate
}

// OutputRate returns the target sample rate.
func (r *Resampler) OutputRate() uint32 {
	return r.outputRate
}
