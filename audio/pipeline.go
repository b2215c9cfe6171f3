package audio

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// PipelineConfig configures a capture-to-wire pipeline.
type PipelineConfig struct {
	// OutputRate is the sample rate of the encoded stream (8000 for G.711).
	OutputRate uint32
	// Effects is applied after resampling. May be nil.
	Effects *EffectChain
	// Encoder defaults to MuLawCodec.
	Encoder Encoder
}

// Pipeline pulls frames from a Capture and turns them into encoded payloads.
// It is driven by a single goroutine.
type Pipeline struct {
	capture    Capture
	outputRate uint32
	effects    *EffectChain
	encoder    Encoder
	resamplers map[uint32]*Resampler
}

// NewPipeline builds a pipeline around capture.
func NewPipeline(capture Capture, cfg PipelineConfig) (*Pipeline, error) {
	if capture == nil {
		return nil, fmt.Errorf("capture source is required")
	}
	if cfg.OutputRate == 0 {
		return nil, fmt.Errorf("%w: output rate is zero", ErrInvalidSampleRate)
	}
	if cfg.Encoder == nil {
		cfg.Encoder = MuLawCodec{}
	}
	if cfg.Effects == nil {
		cfg.Effects = NewEffectChain()
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewPipeline",
		"capture":     capture.Name(),
		"output_rate": cfg.OutputRate,
		"encoder":     cfg.Encoder.Name(),
		"effects":     cfg.Effects.GetEffectNames(),
	}).Info("Audio pipeline created")

	return &Pipeline{
		capture:    capture,
		outputRate: cfg.OutputRate,
		effects:    cfg.Effects,
		encoder:    cfg.Encoder,
		resamplers: make(map[uint32]*Resampler),
	}, nil
}

// ProcessFrame resamples, filters and encodes one frame. The frame's sample
// buffer is consumed.
func (p *Pipeline) ProcessFrame(frame Frame) ([]byte, error) {
	samples := frame.Samples
	if frame.SampleRate != 0 && frame.SampleRate != p.outputRate {
		r, ok := p.resamplers[frame.SampleRate]
		if !ok {
			var err error
			r, err = NewResampler(frame.SampleRate, p.outputRate)
			if err != nil {
				return nil, err
			}
			p.resamplers[frame.SampleRate] = r
		}
		samples = r.Resample(samples)
	}

	samples, err := p.effects.Process(samples)
	if err != nil {
		return nil, err
	}
	return p.encoder.Encode(samples)
}

// Run starts capture and calls emit with each encoded payload until capture
// ends (nil), ctx is cancelled (ctx.Err()) or emit fails (its error).
func (p *Pipeline) Run(ctx context.Context, emit func([]byte) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames, err := p.capture.Start(ctx)
	if err != nil {
		return fmt.Errorf("start capture %s: %w", p.capture.Name(), err)
	}

	logger := logrus.WithFields(logrus.Fields{
		"function": "Pipeline.Run",
		"capture":  p.capture.Name(),
	})
	logger.Info("Audio pipeline started")

	count := 0
	for {
		select {
		case <-ctx.Done():
			logger.WithField("frames", count).Info("Audio pipeline cancelled")
			return ctx.Err()
		case frame, ok := <-frames:
			if !ok {
				if err := ctx.Err(); err != nil {
					return err
				}
				logger.WithField("frames", count).Info("Capture ended")
				return nil
			}
			payload, err := p.ProcessFrame(frame)
			if err != nil {
				return err
			}
			if len(payload) == 0 {
				continue
			}
			if err := emit(payload); err != nil {
				return err
			}
			count++
		}
	}
}

// Effects returns the pipeline's effect chain.
func (p *Pipeline) Effects() *EffectChain {
	return p.effects
}

// Close closes the capture source.
func (p *Pipeline) Close() error {
	return p.capture.Close()
}
