package audio

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// fullScale converts between int16 samples and unit full-scale floats.
const fullScale = 32768.0

// Convolve computes the discrete linear convolution of input with
// impulseResponse and normalizes the result.
//
// The output has len(input)+len(impulseResponse) samples. Output index t is
// the sum of impulseResponse[n]*input[t-n] over 0 <= n <= t < n+len(input);
// samples outside input are treated as zero. An empty impulse response yields
// len(input) zeros.
func Convolve(input, impulseResponse []float64) []float64 {
	n, m := len(input), len(impulseResponse)
	output := make([]float64, n+m)

	for t := range output {
		lo := t - n + 1
		if lo < 0 {
			lo = 0
		}
		hi := t
		if hi > m-1 {
			hi = m - 1
		}

		var sum float64
		for k := lo; k <= hi; k++ {
			sum += impulseResponse[k] * input[t-k]
		}
		output[t] = sum
	}

	Normalize(output)
	return output
}

// Normalize scales buf in place by 1/peak when its peak absolute value
// exceeds 1.0. Buffers already within full scale are left untouched.
func Normalize(buf []float64) {
	peak := Peak(buf)
	if peak <= 1.0 {
		return
	}
	scale := 1.0 / peak
	for i := range buf {
		buf[i] *= scale
	}
}

// Peak returns the maximum absolute sample value of buf.
func Peak(buf []float64) float64 {
	var peak float64
	for _, v := range buf {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	return peak
}

// ValidateImpulseResponse rejects responses containing NaN or infinite taps.
func ValidateImpulseResponse(impulseResponse []float64) error {
	for i, v := range impulseResponse {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: tap %d is %v", ErrInvalidImpulseResponse, i, v)
		}
	}
	return nil
}

// LoadImpulseResponse reads whitespace separated coefficients from r.
// Lines starting with '#' are comments.
func LoadImpulseResponse(r io.Reader) ([]float64, error) {
	scanner := bufio.NewScanner(r)

	var taps []float64
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, word := range strings.Fields(line) {
			v, err := strconv.ParseFloat(word, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidImpulseResponse, err)
			}
			taps = append(taps, v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := ValidateImpulseResponse(taps); err != nil {
		return nil, err
	}
	return taps, nil
}

// ConvolutionEffect applies an FIR filter to a stream of PCM frames.
//
// Each frame is convolved and normalized on its own; the filter tail is
// carried into the following frame (overlap-add) so the output stream has
// the same length as the input stream. Without an impulse response the
// effect passes frames through unchanged.
type ConvolutionEffect struct {
	mu      sync.Mutex
	impulse []float64
	tail    []float64
}

// NewConvolutionEffect creates a convolution effect with the given impulse response.
func NewConvolutionEffect(impulseResponse []float64) (*ConvolutionEffect, error) {
	c := &ConvolutionEffect{}
	if err := c.SetImpulseResponse(impulseResponse); err != nil {
		return nil, err
	}
	return c, nil
}

// SetImpulseResponse installs a copy of impulseResponse and drops the carried tail.
// A nil or empty response disables the filter.
func (c *ConvolutionEffect) SetImpulseResponse(impulseResponse []float64) error {
	if err := ValidateImpulseResponse(impulseResponse); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.impulse = append([]float64(nil), impulseResponse...)
	c.tail = nil

	logrus.WithFields(logrus.Fields{
		"function": "ConvolutionEffect.SetImpulseResponse",
		"taps":     len(c.impulse),
	}).Info("Impulse response updated")
	return nil
}

// Taps returns the number of filter coefficients in use.
func (c *ConvolutionEffect) Taps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.impulse)
}

// Process filters samples in place and returns them.
func (c *ConvolutionEffect) Process(samples []int16) ([]int16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.impulse) == 0 || len(samples) == 0 {
		return samples, nil
	}

	filtered := Convolve(ToUnitFloats(samples), c.impulse)

	// Overlap-add the tail of the previous frame.
	size := len(filtered)
	if len(c.tail) > size {
		size = len(c.tail)
	}
	acc := make([]float64, size)
	copy(acc, filtered)
	for i, v := range c.tail {
		acc[i] += v
	}

	clipped := 0
	for i := range samples {
		var ok bool
		if samples[i], ok = FromUnitFloat(acc[i]); !ok {
			clipped++
		}
	}
	c.tail = append(c.tail[:0], acc[len(samples):]...)

	if clipped > 0 {
		logrus.WithFields(logrus.Fields{
			"function":      "ConvolutionEffect.Process",
			"clipped_count": clipped,
			"total_samples": len(samples),
		}).Debug("Overlap-add clipped samples")
	}
	return samples, nil
}

// ToUnitFloats converts int16 PCM to floats where full scale is 1.0.
func ToUnitFloats(samples []int16) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = float64(s) / fullScale
	}
	return out
}

// FromUnitFloat rounds a unit full-scale float back to int16. ok is false
// when the value had to be clipped.
func FromUnitFloat(v float64) (sample int16, ok bool) {
	scaled := v * fullScale
	switch {
	case scaled > math.MaxInt16:
		return math.MaxInt16, false
	case scaled < math.MinInt16:
		return math.MinInt16, false
	default:
		return int16(math.Round(scaled)), true
	}
}

// Reset drops the carried filter tail.
func (c *ConvolutionEffect) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tail = nil
}

// GetName returns the effect name for debugging and logging.
func (c *ConvolutionEffect) GetName() string {
	return fmt.Sprintf("Convolution(%d taps)", c.Taps())
}

// Close releases the impulse response.
func (c *ConvolutionEffect) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.impulse = nil
	c.tail = nil
	return nil
}
