package livemic

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/opd-ai/remoteagent/audio"
	"github.com/opd-ai/remoteagent/channel"
	"github.com/opd-ai/remoteagent/command"
	"github.com/opd-ai/remoteagent/limits"
	"github.com/opd-ai/remoteagent/mixer"
	"github.com/sirupsen/logrus"
)

// Name is the plugin identifier used by the loader.
const Name = "livemic"

// Controller to agent opcodes.
const (
	OpStartStream  command.Opcode = 1
	OpStopStream   command.Opcode = 2
	OpSetImpulse   command.Opcode = 3
	OpListControls command.Opcode = 4
	OpGetControl   command.Opcode = 5
	OpSetControl   command.Opcode = 6
	OpPlayOpus     command.Opcode = 7
	OpSetGain      command.Opcode = 8
	OpTerminate    command.Opcode = 9
)

// Agent to controller opcodes.
const (
	OpAudioFrame command.Opcode = 0x10
	OpError      command.Opcode = 0x11
)

// DefaultOutputRate is the G.711 telephony rate.
const DefaultOutputRate = 8000

var (
	// ErrNoMixer indicates a mixer request on an agent without a mixer.
	ErrNoMixer = errors.New("no mixer configured")

	// ErrNoCapture indicates a stream request on an agent without a capture source.
	ErrNoCapture = errors.New("no capture source configured")

	// ErrMalformedPayload indicates a payload that does not match its opcode's format.
	ErrMalformedPayload = errors.New("malformed payload")
)

// CaptureFactory opens a fresh capture source for each stream.
type CaptureFactory func() (audio.Capture, error)

// Config configures the plugin.
type Config struct {
	// Capture opens the microphone for each stream.
	Capture CaptureFactory
	// OutputRate is the encoded stream rate. Zero uses DefaultOutputRate.
	OutputRate uint32
	// Encoder defaults to mu-law.
	Encoder audio.Encoder
	// ImpulseResponse is the initial filter. Empty disables filtering.
	ImpulseResponse []float64
	// Gain is the initial linear gain. Nil uses 1.0; zero mutes.
	Gain *float64
	// Mixer serves the mixer opcodes. Optional.
	Mixer *mixer.Surface
	// Playback receives decoded Opus audio. Nil uses audio.LogPlayback.
	Playback audio.Playback
}

// Plugin is the live audio plugin.
type Plugin struct {
	cfg      Config
	filter   *audio.ConvolutionEffect
	gain     *audio.GainEffect
	effects  *audio.EffectChain
	decoder  *audio.OpusDecoder
	playback audio.Playback

	mu         sync.Mutex
	dispatcher *command.Dispatcher
	stream     *stream
}

// stream is one running capture pipeline.
type stream struct {
	pipeline *audio.Pipeline
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a livemic plugin.
func New(cfg Config) (*Plugin, error) {
	if cfg.OutputRate == 0 {
		cfg.OutputRate = DefaultOutputRate
	}
	if cfg.Encoder == nil {
		cfg.Encoder = audio.MuLawCodec{}
	}
	initialGain := 1.0
	if cfg.Gain != nil {
		initialGain = *cfg.Gain
	}
	if cfg.Playback == nil {
		cfg.Playback = &audio.LogPlayback{}
	}

	filter, err := audio.NewConvolutionEffect(cfg.ImpulseResponse)
	if err != nil {
		return nil, err
	}
	gain, err := audio.NewGainEffect(initialGain)
	if err != nil {
		return nil, err
	}

	return &Plugin{
		cfg:      cfg,
		filter:   filter,
		gain:     gain,
		effects:  audio.NewEffectChain(filter, gain),
		decoder:  audio.NewOpusDecoder(),
		playback: cfg.Playback,
	}, nil
}

// Name implements command.Plugin.
func (p *Plugin) Name() string {
	return Name
}

// Start runs the session until the controller terminates it or the channel
// closes. A running stream is stopped on return.
func (p *Plugin) Start(ctx context.Context, ch channel.Channel) error {
	table := command.NewHandlerTable(nil)
	table.Register(OpStartStream, p.handleStart)
	table.Register(OpStopStream, p.handleStop)
	table.Register(OpSetImpulse, p.handleSetImpulse)
	table.Register(OpListControls, p.handleListControls)
	table.Register(OpGetControl, p.handleGetControl)
	table.Register(OpSetControl, p.handleSetControl)
	table.Register(OpPlayOpus, p.handlePlayOpus)
	table.Register(OpSetGain, p.handleSetGain)
	table.Register(OpTerminate, p.handleTerminate)

	d := command.NewDispatcher(ch, table, command.DispatcherConfig{
		Name: Name,
		Mode: command.Streaming,
	})

	p.mu.Lock()
	p.dispatcher = d
	p.mu.Unlock()

	defer p.stopStream()
	return d.Run(ctx)
}

// Streaming reports whether a capture stream is running.
func (p *Plugin) Streaming() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stream != nil
}

// Effects returns the filter stage shared by every stream.
func (p *Plugin) Effects() *audio.EffectChain {
	return p.effects
}

func (p *Plugin) send(ctx context.Context, op command.Opcode, payload []byte) error {
	p.mu.Lock()
	d := p.dispatcher
	p.mu.Unlock()
	return d.Send(ctx, op, payload)
}

// replyError reports a failed request to the controller and keeps the
// session alive.
func (p *Plugin) replyError(ctx context.Context, op command.Opcode, err error) (command.Action, error) {
	logrus.WithFields(logrus.Fields{
		"function": "livemic.replyError",
		"session":  command.SessionID(ctx),
		"opcode":   op,
		"error":    err.Error(),
	}).Warn("Request failed")

	msg := fmt.Sprintf("opcode %d: %v", op, err)
	if len(msg) > limits.MaxFrame-1 {
		msg = msg[:limits.MaxFrame-1]
	}
	return command.Continue, p.send(ctx, OpError, []byte(msg))
}

func (p *Plugin) handleStart(ctx context.Context, frame command.Frame) (command.Action, error) {
	if p.Streaming() {
		return command.Continue, nil
	}

	pipeline, err := p.newPipeline()
	if err != nil {
		return p.replyError(ctx, frame.Opcode, err)
	}

	p.filter.Reset()
	streamCtx, cancel := context.WithCancel(ctx)
	s := &stream{pipeline: pipeline, cancel: cancel, done: make(chan struct{})}

	p.mu.Lock()
	p.stream = s
	d := p.dispatcher
	p.mu.Unlock()

	go p.runStream(streamCtx, s, d)
	return command.Continue, nil
}

func (p *Plugin) newPipeline() (*audio.Pipeline, error) {
	if p.cfg.Capture == nil {
		return nil, ErrNoCapture
	}
	capture, err := p.cfg.Capture()
	if err != nil {
		return nil, err
	}

	pipeline, err := audio.NewPipeline(capture, audio.PipelineConfig{
		OutputRate: p.cfg.OutputRate,
		Effects:    p.effects,
		Encoder:    p.cfg.Encoder,
	})
	if err != nil {
		_ = capture.Close()
		return nil, err
	}
	return pipeline, nil
}

func (p *Plugin) runStream(ctx context.Context, s *stream, d *command.Dispatcher) {
	defer close(s.done)

	logger := logrus.WithFields(logrus.Fields{
		"function": "livemic.runStream",
		"session":  command.SessionID(ctx),
	})
	logger.Info("Audio stream started")

	err := s.pipeline.Run(ctx, func(payload []byte) error {
		return d.Send(ctx, OpAudioFrame, payload)
	})
	if closeErr := s.pipeline.Close(); closeErr != nil {
		logger.WithField("error", closeErr.Error()).Warn("Failed to close capture")
	}

	switch {
	case err == nil:
		logger.Info("Audio stream ended")
	case errors.Is(err, context.Canceled), channel.IsClosed(err):
		logger.Debug("Audio stream stopped")
	default:
		logger.WithField("error", err.Error()).Error("Audio stream failed")
	}

	p.mu.Lock()
	if p.stream == s {
		p.stream = nil
	}
	p.mu.Unlock()
}

func (p *Plugin) stopStream() {
	p.mu.Lock()
	s := p.stream
	p.stream = nil
	p.mu.Unlock()

	if s == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (p *Plugin) handleStop(ctx context.Context, frame command.Frame) (command.Action, error) {
	p.stopStream()
	return command.Continue, nil
}

func (p *Plugin) handleSetImpulse(ctx context.Context, frame command.Frame) (command.Action, error) {
	taps, err := DecodeFloat32s(frame.Payload)
	if err != nil {
		return p.replyError(ctx, frame.Opcode, err)
	}
	if len(taps) > limits.MaxImpulseResponse {
		return p.replyError(ctx, frame.Opcode, fmt.Errorf("%w: %d taps exceeds limit %d",
			audio.ErrInvalidImpulseResponse, len(taps), limits.MaxImpulseResponse))
	}
	if err := p.filter.SetImpulseResponse(taps); err != nil {
		return p.replyError(ctx, frame.Opcode, err)
	}
	return command.Continue, nil
}

func (p *Plugin) handleListControls(ctx context.Context, frame command.Frame) (command.Action, error) {
	if p.cfg.Mixer == nil {
		return p.replyError(ctx, frame.Opcode, ErrNoMixer)
	}
	list, err := p.cfg.Mixer.ControlList(ctx)
	if err != nil {
		return p.replyError(ctx, frame.Opcode, err)
	}
	if len(list) > limits.MaxFrame-1 {
		list = list[:limits.MaxFrame-1]
	}
	return command.Continue, p.send(ctx, OpListControls, []byte(list))
}

func (p *Plugin) handleGetControl(ctx context.Context, frame command.Frame) (command.Action, error) {
	if p.cfg.Mixer == nil {
		return p.replyError(ctx, frame.Opcode, ErrNoMixer)
	}
	name := strings.TrimSpace(string(frame.Payload))
	details, err := p.cfg.Mixer.Get(ctx, name)
	if err != nil {
		return p.replyError(ctx, frame.Opcode, err)
	}
	reply := name + "=" + mixer.FormatValues(details.Values)
	return command.Continue, p.send(ctx, OpGetControl, []byte(reply))
}

func (p *Plugin) handleSetControl(ctx context.Context, frame command.Frame) (command.Action, error) {
	if p.cfg.Mixer == nil {
		return p.replyError(ctx, frame.Opcode, ErrNoMixer)
	}
	name, values, err := ParseAssignment(string(frame.Payload))
	if err != nil {
		return p.replyError(ctx, frame.Opcode, err)
	}
	if err := p.cfg.Mixer.Set(ctx, name, values); err != nil {
		return p.replyError(ctx, frame.Opcode, err)
	}
	return command.Continue, nil
}

func (p *Plugin) handlePlayOpus(ctx context.Context, frame command.Frame) (command.Action, error) {
	pcm, rate, err := p.decoder.Decode(frame.Payload)
	if err != nil {
		return p.replyError(ctx, frame.Opcode, err)
	}
	if err := p.playback.Play(pcm, rate); err != nil {
		return p.replyError(ctx, frame.Opcode, err)
	}
	return command.Continue, nil
}

func (p *Plugin) handleSetGain(ctx context.Context, frame command.Frame) (command.Action, error) {
	if len(frame.Payload) != 4 {
		return p.replyError(ctx, frame.Opcode, fmt.Errorf("%w: gain needs 4 bytes, got %d", ErrMalformedPayload, len(frame.Payload)))
	}
	gain := math.Float32frombits(binary.LittleEndian.Uint32(frame.Payload))
	if err := p.gain.SetGain(float64(gain)); err != nil {
		return p.replyError(ctx, frame.Opcode, err)
	}
	return command.Continue, nil
}

func (p *Plugin) handleTerminate(ctx context.Context, frame command.Frame) (command.Action, error) {
	logrus.WithFields(logrus.Fields{
		"function": "livemic.handleTerminate",
		"session":  command.SessionID(ctx),
	}).Info("Controller terminated live audio session")
	return command.Stop, nil
}

// EncodeFloat32s packs values as little-endian float32.
func EncodeFloat32s(values []float64) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(v)))
	}
	return buf
}

// DecodeFloat32s unpacks little-endian float32 values.
func DecodeFloat32s(data []byte) ([]float64, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of float32 values", ErrMalformedPayload, len(data))
	}
	values := make([]float64, len(data)/4)
	for i := range values {
		values[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
	}
	return values, nil
}

// ParseAssignment parses "name=v1,v2".
func ParseAssignment(s string) (string, []int32, error) {
	name, raw, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", nil, fmt.Errorf("%w: expected name=values, got %q", ErrMalformedPayload, s)
	}
	values, err := mixer.ParseValues(raw)
	if err != nil {
		return "", nil, err
	}
	return name, values, nil
}
