package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/opd-ai/remoteagent/audio"
	"github.com/opd-ai/remoteagent/channel"
	"github.com/opd-ai/remoteagent/command"
	"github.com/opd-ai/remoteagent/config"
	"github.com/opd-ai/remoteagent/crypto"
	"github.com/opd-ai/remoteagent/mixer"
	"github.com/opd-ai/remoteagent/noise"
	"github.com/opd-ai/remoteagent/plugins/chat"
	"github.com/opd-ai/remoteagent/plugins/livemic"
	"github.com/opd-ai/remoteagent/plugins/power"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// pluginHeader names the plugin on WebSocket connections.
const pluginHeader = "X-Remoteagent-Plugin"

// Agent connects enabled plugins to the controller.
type Agent struct {
	cfg       *config.Config
	loader    *command.Loader
	keys      *crypto.KeyPair
	peerKey   []byte
	surface   *mixer.Surface
	surfaceMu sync.Mutex
}

// NewAgent prepares the plugin loader and key material.
func NewAgent(cfg *config.Config) (*Agent, error) {
	a := &Agent{cfg: cfg, loader: command.NewLoader()}

	if cfg.Controller.Secure {
		if err := a.loadKeys(); err != nil {
			return nil, err
		}
	}
	if err := a.registerPlugins(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Agent) loadKeys() error {
	var err error
	if a.cfg.Controller.PrivateKey != "" {
		a.keys, err = crypto.ParseKeyPair(a.cfg.Controller.PrivateKey)
	} else {
		a.keys, err = crypto.GenerateKeyPair()
		if err == nil {
			logrus.WithFields(logrus.Fields{
				"function":   "Agent.loadKeys",
				"public_key": a.keys.PublicHex(),
			}).Warn("No private key configured, using an ephemeral key")
		}
	}
	if err != nil {
		return fmt.Errorf("agent key: %w", err)
	}

	if a.cfg.Controller.ControllerKey != "" {
		key, err := crypto.ParseKey(a.cfg.Controller.ControllerKey)
		if err != nil {
			return fmt.Errorf("controller key: %w", err)
		}
		a.peerKey = key[:]
	}
	return nil
}

func (a *Agent) registerPlugins() error {
	factories := map[string]command.Factory{
		power.Name:   a.newPowerPlugin,
		chat.Name:    func() (command.Plugin, error) { return chat.New(nil), nil },
		livemic.Name: a.newLivemicPlugin,
	}
	for id, factory := range factories {
		if err := a.loader.Register(id, factory); err != nil {
			return err
		}
	}
	for _, id := range a.cfg.Plugins {
		if _, ok := factories[id]; !ok {
			return fmt.Errorf("%w: %s", command.ErrUnknownPlugin, id)
		}
	}
	return nil
}

func (a *Agent) newPowerPlugin() (command.Plugin, error) {
	executor := power.NewCommandExecutor()
	if len(a.cfg.Power.ShutdownCommand) > 0 {
		executor.Commands[power.Shutdown] = a.cfg.Power.ShutdownCommand
	}
	if len(a.cfg.Power.RestartCommand) > 0 {
		executor.Commands[power.Restart] = a.cfg.Power.RestartCommand
	}
	grace := a.cfg.Power.Grace
	if grace == 0 {
		grace = -1
	}
	return power.New(power.Config{Grace: grace, Executor: executor}), nil
}

func (a *Agent) newLivemicPlugin() (command.Plugin, error) {
	ac := a.cfg.Audio
	taps, err := ac.LoadImpulseResponse()
	if err != nil {
		return nil, err
	}
	encoder, ok := audio.NewEncoder(ac.Encoder)
	if !ok {
		return nil, fmt.Errorf("unknown encoder %q", ac.Encoder)
	}
	surface, err := a.mixerSurface(context.Background())
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Agent.newLivemicPlugin",
			"error":    err.Error(),
		}).Warn("Mixer unavailable, mixer opcodes will report errors")
	}

	return livemic.New(livemic.Config{
		Capture:         captureFactory(ac),
		OutputRate:      ac.OutputRate,
		Encoder:         encoder,
		ImpulseResponse: taps,
		Gain:            &ac.Gain,
		Mixer:           surface,
	})
}

// mixerSurface opens the configured mixer once and shares it between
// livemic sessions. The surface serializes access.
func (a *Agent) mixerSurface(ctx context.Context) (*mixer.Surface, error) {
	a.surfaceMu.Lock()
	defer a.surfaceMu.Unlock()

	if a.surface != nil {
		return a.surface, nil
	}
	s, err := openMixer(ctx, a.cfg.Mixer)
	if err != nil {
		return nil, err
	}
	a.surface = s
	return s, nil
}

func openMixer(ctx context.Context, mc config.MixerConfig) (*mixer.Surface, error) {
	backend, err := mixer.NewBackend(mc.Backend)
	if err != nil {
		return nil, err
	}
	return mixer.Open(ctx, backend, mc.Device, mixer.Options{ListText: mc.ListText})
}

// Connect opens the controller channel for one plugin.
func (a *Agent) Connect(ctx context.Context, plugin string) (channel.Channel, error) {
	cc := a.cfg.Controller
	addr := cc.Endpoint(plugin)

	dialCtx := ctx
	if cc.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cc.DialTimeout)
		defer cancel()
	}

	var (
		ch  channel.Channel
		err error
	)
	switch cc.Transport {
	case "websocket":
		ch, err = channel.DialWebSocket(dialCtx, addr, http.Header{pluginHeader: {plugin}})
	default:
		ch, err = channel.Dial(dialCtx, addr)
	}
	if err != nil {
		return nil, err
	}

	if !cc.Secure {
		return ch, nil
	}
	return channel.NewSecureChannel(dialCtx, ch, channel.SecureConfig{
		Keys:    a.keys,
		Role:    noise.Initiator,
		PeerKey: a.peerKey,
	})
}

// RunPlugin serves one plugin, re-dialling after each session when
// reconnection is enabled.
func (a *Agent) RunPlugin(ctx context.Context, plugin string) error {
	logger := logrus.WithFields(logrus.Fields{
		"function": "Agent.RunPlugin",
		"plugin":   plugin,
	})

	for {
		ch, err := a.Connect(ctx, plugin)
		if err != nil {
			logger.WithField("error", err.Error()).Error("Failed to connect to controller")
		} else {
			session, startErr := a.loader.Start(ctx, plugin, ch)
			if startErr != nil {
				ch.Close()
				return startErr
			}
			err = session.Wait()
		}

		if ctx.Err() != nil {
			return nil
		}
		if a.cfg.Controller.Reconnect <= 0 {
			return err
		}
		if err := command.Wait(ctx, a.cfg.Controller.Reconnect); err != nil {
			return nil
		}
	}
}

// Run serves every enabled plugin concurrently until all have finished.
func (a *Agent) Run(ctx context.Context) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, id := range a.cfg.Plugins {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := a.RunPlugin(ctx, id); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", id, err))
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Close releases the shared mixer surface.
func (a *Agent) Close() error {
	a.surfaceMu.Lock()
	defer a.surfaceMu.Unlock()
	if a.surface == nil {
		return nil
	}
	err := a.surface.Close()
	a.surface = nil
	return err
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "connect enabled plugins to the controller",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}

			agent, err := NewAgent(cfg)
			if err != nil {
				return err
			}
			defer agent.Close()

			logrus.WithFields(logrus.Fields{
				"function":  "run",
				"plugins":   cfg.Plugins,
				"transport": cfg.Controller.Transport,
				"secure":    cfg.Controller.Secure,
				"pid":       os.Getpid(),
			}).Info("Agent starting")

			start := time.Now()
			err = agent.Run(cmd.Context())
			logrus.WithFields(logrus.Fields{
				"function": "run",
				"uptime":   time.Since(start).Round(time.Second).String(),
			}).Info("Agent stopped")
			return err
		},
	}
}
