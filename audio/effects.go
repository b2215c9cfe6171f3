package audio

import (
	"fmt"
	"math"
	"sync"

	"github.com/sirupsen/logrus"
)

// MaxGain is the largest linear gain accepted by GainEffect.
const MaxGain = 4.0

// AudioEffect defines the interface for audio processing effects.
//
// Effects own the slice they are given for the duration of Process and may
// modify it in place. They can be chained together with EffectChain.
type AudioEffect interface {
	// Process applies the effect to PCM audio samples
	Process(samples []int16) ([]int16, error)

	// GetName returns a human-readable name for the effect
	GetName() string

	// Close releases any resources used by the effect
	Close() error
}

// GainEffect implements linear gain (volume) control with clipping.
// Gain values: 0.0 = silence, 1.0 = no change, >1.0 = amplification
type GainEffect struct {
	mu   sync.RWMutex
	gain float64
}

// NewGainEffect creates a new gain control effect.
func NewGainEffect(gain float64) (*GainEffect, error) {
	if err := validateGain(gain); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "NewGainEffect",
			"gain":     gain,
			"error":    err.Error(),
		}).Error("Gain validation failed")
		return nil, err
	}
	return &GainEffect{gain: gain}, nil
}

func validateGain(gain float64) error {
	if math.IsNaN(gain) || gain < 0.0 || gain > MaxGain {
		return fmt.Errorf("%w: %f (range 0.0-%.1f)", ErrInvalidGain, gain, MaxGain)
	}
	return nil
}

// Process multiplies each sample by the gain factor, clipping to the int16 range.
func (g *GainEffect) Process(samples []int16) ([]int16, error) {
	g.mu.RLock()
	gain := g.gain
	g.mu.RUnlock()

	if gain == 1.0 {
		return samples, nil
	}

	clippedCount := 0
	for i, sample := range samples {
		v := float64(sample) * gain
		switch {
		case v > math.MaxInt16:
			samples[i] = math.MaxInt16
			clippedCount++
		case v < math.MinInt16:
			samples[i] = math.MinInt16
			clippedCount++
		default:
			samples[i] = int16(v)
		}
	}

	if clippedCount > 0 {
		logrus.WithFields(logrus.Fields{
			"function":      "GainEffect.Process",
			"clipped_count": clippedCount,
			"total_samples": len(samples),
			"gain":          gain,
		}).Warn("Audio clipping detected during gain processing")
	}
	return samples, nil
}

// SetGain updates the gain value during runtime.
func (g *GainEffect) SetGain(gain float64) error {
	if err := validateGain(gain); err != nil {
		return err
	}

	g.mu.Lock()
	old := g.gain
	g.gain = gain
	g.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "GainEffect.SetGain",
		"old_gain": old,
		"new_gain": gain,
	}).Info("Gain updated")
	return nil
}

// GetGain returns the current gain value.
func (g *GainEffect) GetGain() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.gain
}

// GetName returns the effect name for debugging and logging.
func (g *GainEffect) GetName() string {
	return fmt.Sprintf("Gain(%.2f)", g.GetGain())
}

// Close implements AudioEffect. Gain holds no resources.
func (g *GainEffect) Close() error {
	return nil
}

// EffectChain applies effects in insertion order.
type EffectChain struct {
	mu      sync.RWMutex
	effects []AudioEffect
}

// NewEffectChain creates an empty effect chain.
func NewEffectChain(effects ...AudioEffect) *EffectChain {
	return &EffectChain{effects: append([]AudioEffect(nil), effects...)}
}

// AddEffect appends an effect to the end of the chain.
func (e *EffectChain) AddEffect(effect AudioEffect) {
	if effect == nil {
		return
	}
	e.mu.Lock()
	e.effects = append(e.effects, effect)
	e.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "EffectChain.AddEffect",
		"effect":   effect.GetName(),
	}).Debug("Effect added to chain")
}

// Process runs samples through every effect. The first failing effect stops the chain.
func (e *EffectChain) Process(samples []int16) ([]int16, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var err error
	for _, effect := range e.effects {
		samples, err = effect.Process(samples)
		if err != nil {
			return nil, fmt.Errorf("effect %s failed: %w", effect.GetName(), err)
		}
	}
	return samples, nil
}

// GetEffectCount returns the number of effects in the chain.
func (e *EffectChain) GetEffectCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.effects)
}

// GetEffectNames returns the names of all effects in order.
func (e *EffectChain) GetEffectNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, len(e.effects))
	for i, effect := range e.effects {
		names[i] = effect.GetName()
	}
	return names
}

// Close closes every effect and empties the chain. All effects are closed
// even if one fails; the first error is returned.
func (e *EffectChain) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var firstErr error
	for _, effect := range e.effects {
		if err := effect.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	e.effects = nil
	return firstErr
}
