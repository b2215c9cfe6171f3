// Package config loads the agent's YAML configuration. Configuration is only
// ever read; the agent never writes it back.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/opd-ai/remoteagent/audio"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete agent configuration.
type Config struct {
	Log        LogConfig        `yaml:"log"`
	Controller ControllerConfig `yaml:"controller"`
	Plugins    []string         `yaml:"plugins"`
	Power      PowerConfig      `yaml:"power"`
	Audio      AudioConfig      `yaml:"audio"`
	Mixer      MixerConfig      `yaml:"mixer"`
}

// LogConfig selects log level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ControllerConfig describes how plugins reach the controller.
type ControllerConfig struct {
	// Address is host:port for tcp or a ws:// URL for websocket.
	Address string `yaml:"address"`
	// Endpoints overrides Address per plugin.
	Endpoints map[string]string `yaml:"endpoints"`
	// Transport is "tcp" or "websocket".
	Transport string `yaml:"transport"`
	// Secure wraps every channel in a Noise session.
	Secure bool `yaml:"secure"`
	// PrivateKey is the agent's hex encoded static key. Empty generates an
	// ephemeral key at startup.
	PrivateKey string `yaml:"private_key"`
	// ControllerKey pins the controller's hex encoded static key.
	ControllerKey string `yaml:"controller_key"`
	// DialTimeout bounds each connection attempt.
	DialTimeout time.Duration `yaml:"dial_timeout"`
	// Reconnect is the delay before a finished plugin session is re-dialled.
	// Zero runs each plugin once.
	Reconnect time.Duration `yaml:"reconnect"`
}

// PowerConfig configures the power plugin.
type PowerConfig struct {
	Grace           time.Duration `yaml:"grace"`
	ShutdownCommand []string      `yaml:"shutdown_command"`
	RestartCommand  []string      `yaml:"restart_command"`
}

// AudioConfig configures capture and the live audio pipeline.
type AudioConfig struct {
	// Capture is "tone" or "command".
	Capture string `yaml:"capture"`
	// CaptureCommand produces raw s16le mono PCM on stdout.
	CaptureCommand      []string  `yaml:"capture_command"`
	CaptureRate         uint32    `yaml:"capture_rate"`
	OutputRate          uint32    `yaml:"output_rate"`
	FrameSamples        int       `yaml:"frame_samples"`
	Encoder             string    `yaml:"encoder"`
	Gain                float64   `yaml:"gain"`
	ImpulseResponse     []float64 `yaml:"impulse_response"`
	ImpulseResponseFile string    `yaml:"impulse_response_file"`
	ToneFrequency       float64   `yaml:"tone_frequency"`
}

// MixerConfig configures the mixer control surface.
type MixerConfig struct {
	Backend  string `yaml:"backend"`
	Device   string `yaml:"device"`
	ListText bool   `yaml:"list_text"`
}

// Default returns the configuration used for unset fields.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Controller: ControllerConfig{
			Address:     "127.0.0.1:7400",
			Transport:   "tcp",
			DialTimeout: 10 * time.Second,
		},
		Plugins: []string{"power", "chat", "livemic"},
		Power: PowerConfig{
			Grace:           time.Second,
			ShutdownCommand: []string{"shutdown", "-h", "now"},
			RestartCommand:  []string{"shutdown", "-r", "now"},
		},
		Audio: AudioConfig{
			Capture:        "command",
			CaptureCommand: []string{"arecord", "-q", "-t", "raw", "-f", "S16_LE", "-c", "1", "-r", "48000"},
			CaptureRate:    48000,
			OutputRate:     8000,
			FrameSamples:   960,
			Encoder:        "mulaw",
			Gain:           1.0,
			ToneFrequency:  440,
		},
		Mixer: MixerConfig{Backend: "software", Device: "default"},
	}
}

// Load reads and validates the file at path. An empty path returns the
// defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "config.Load",
		"path":     path,
		"plugins":  cfg.Plugins,
	}).Debug("Configuration loaded")
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges and enumerations.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %v", ErrInvalidConfig, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format %q", ErrInvalidConfig, c.Log.Format)
	}

	switch c.Controller.Transport {
	case "tcp", "websocket":
	default:
		return fmt.Errorf("%w: controller.transport %q", ErrInvalidConfig, c.Controller.Transport)
	}
	if c.Controller.Address == "" && len(c.Controller.Endpoints) == 0 {
		return fmt.Errorf("%w: controller.address is empty", ErrInvalidConfig)
	}
	if c.Controller.Transport == "websocket" && c.Controller.Address != "" &&
		!strings.HasPrefix(c.Controller.Address, "ws://") && !strings.HasPrefix(c.Controller.Address, "wss://") {
		return fmt.Errorf("%w: websocket address %q must be a ws:// or wss:// URL", ErrInvalidConfig, c.Controller.Address)
	}
	if c.Controller.DialTimeout < 0 || c.Controller.Reconnect < 0 {
		return fmt.Errorf("%w: controller timeouts must not be negative", ErrInvalidConfig)
	}

	if c.Power.Grace < 0 {
		return fmt.Errorf("%w: power.grace must not be negative", ErrInvalidConfig)
	}

	a := c.Audio
	switch a.Capture {
	case "tone":
	case "command":
		if len(a.CaptureCommand) == 0 {
			return fmt.Errorf("%w: audio.capture_command is empty", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: audio.capture %q", ErrInvalidConfig, a.Capture)
	}
	if a.CaptureRate == 0 || a.OutputRate == 0 {
		return fmt.Errorf("%w: audio sample rates must be positive", ErrInvalidConfig)
	}
	if a.FrameSamples <= 0 {
		return fmt.Errorf("%w: audio.frame_samples must be positive", ErrInvalidConfig)
	}
	if _, ok := audio.NewEncoder(a.Encoder); !ok {
		return fmt.Errorf("%w: audio.encoder %q", ErrInvalidConfig, a.Encoder)
	}
	if a.Gain < 0 || a.Gain > audio.MaxGain {
		return fmt.Errorf("%w: audio.gain %.2f outside 0-%.1f", ErrInvalidConfig, a.Gain, audio.MaxGain)
	}
	if err := audio.ValidateImpulseResponse(a.ImpulseResponse); err != nil {
		return fmt.Errorf("%w: audio.impulse_response: %v", ErrInvalidConfig, err)
	}
	if len(a.ImpulseResponse) > 0 && a.ImpulseResponseFile != "" {
		return fmt.Errorf("%w: audio.impulse_response and audio.impulse_response_file are exclusive", ErrInvalidConfig)
	}

	switch c.Mixer.Backend {
	case "software", "alsa", "amixer":
	default:
		return fmt.Errorf("%w: mixer.backend %q", ErrInvalidConfig, c.Mixer.Backend)
	}
	return nil
}

// Endpoint returns the controller address for a plugin.
func (c *ControllerConfig) Endpoint(plugin string) string {
	if addr, ok := c.Endpoints[plugin]; ok && addr != "" {
		return addr
	}
	return c.Address
}

// LoadImpulseResponse returns the configured filter, reading the file form if set.
func (a *AudioConfig) LoadImpulseResponse() ([]float64, error) {
	if a.ImpulseResponseFile == "" {
		return append([]float64(nil), a.ImpulseResponse...), nil
	}

	f, err := os.Open(a.ImpulseResponseFile)
	if err != nil {
		return nil, fmt.Errorf("open impulse response: %w", err)
	}
	defer f.Close()

	return audio.LoadImpulseResponse(f)
}

// ConfigureLogging applies the log section to the standard logrus logger.
func (l LogConfig) ConfigureLogging() error {
	level, err := logrus.ParseLevel(l.Level)
	if err != nil {
		return fmt.Errorf("%w: log.level: %v", ErrInvalidConfig, err)
	}
	logrus.SetLevel(level)

	if l.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}
