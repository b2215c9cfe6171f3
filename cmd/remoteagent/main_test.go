package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opd-ai/remoteagent/audio"
	"github.com/opd-ai/remoteagent/channel"
	"github.com/opd-ai/remoteagent/command"
	"github.com/opd-ai/remoteagent/config"
	"github.com/opd-ai/remoteagent/crypto"
	"github.com/opd-ai/remoteagent/mixer"
	"github.com/opd-ai/remoteagent/noise"
	"github.com/opd-ai/remoteagent/plugins/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestEncodeCommand(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.pcm")
	encoded := filepath.Join(dir, "out.ulaw")
	decoded := filepath.Join(dir, "back.pcm")

	pcm, err := audio.PCMEncoder{}.Encode([]int16{0, 1000, -1000, 32767})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(in, pcm, 0o600))

	_, err = execute(t, "encode", in, encoded)
	require.NoError(t, err)
	got, err := os.ReadFile(encoded)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xCE, 0x4E, 0x80}, got)

	_, err = execute(t, "encode", "--decode", encoded, decoded)
	require.NoError(t, err)
	back, err := os.ReadFile(decoded)
	require.NoError(t, err)
	want, err := audio.PCMEncoder{}.Encode(audio.MuLawDecodeBytes(got))
	require.NoError(t, err)
	assert.Equal(t, want, back)
}

func TestEncodeCommandWithFilter(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.pcm")
	ir := filepath.Join(dir, "ir.txt")
	out := filepath.Join(dir, "out.ulaw")

	pcm, err := audio.PCMEncoder{}.Encode([]int16{1000, 1000})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(in, pcm, 0o600))
	require.NoError(t, os.WriteFile(ir, []byte("1\n"), 0o600))

	_, err = execute(t, "encode", "--impulse-response", ir, in, out)
	require.NoError(t, err)
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	// Input plus one zero sample of filter tail.
	assert.Equal(t, []byte{0xCE, 0xCE, 0xFF}, got)
}

func TestFilterMatchesStreamingRounding(t *testing.T) {
	dir := t.TempDir()
	ir := filepath.Join(dir, "ir.txt")
	require.NoError(t, os.WriteFile(ir, []byte("0.5\n"), 0o600))

	samples := []int16{1001, -1001, 3, 0}
	offline, err := filterSamples(samples, ir)
	require.NoError(t, err)
	require.Len(t, offline, len(samples)+1)

	effect, err := audio.NewConvolutionEffect([]float64{0.5})
	require.NoError(t, err)
	streamed, err := effect.Process(append([]int16(nil), samples...))
	require.NoError(t, err)

	assert.Equal(t, streamed, offline[:len(samples)])
	assert.Equal(t, []int16{501, -501, 2, 0}, streamed)
}

func TestOpenOutputReportsCloseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.ulaw")
	w, closeOut, err := openOutput(newRootCmd(), path)
	require.NoError(t, err)

	_, err = w.Write([]byte{0xFF})
	require.NoError(t, err)
	require.NoError(t, closeOut())
	assert.ErrorIs(t, closeOut(), os.ErrClosed)

	_, closeStdout, err := openOutput(newRootCmd(), "-")
	require.NoError(t, err)
	assert.NoError(t, closeStdout())
}

func TestKeygenCommand(t *testing.T) {
	out, err := execute(t, "keygen")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	private := strings.TrimSpace(strings.TrimPrefix(lines[0], "private_key:"))
	public := strings.TrimSpace(strings.TrimPrefix(lines[1], "public_key:"))

	keys, err := crypto.ParseKeyPair(private)
	require.NoError(t, err)
	assert.Equal(t, keys.PublicHex(), public)
}

func TestMixerCommands(t *testing.T) {
	out, err := execute(t, "mixer", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Master Playback Volume")
	assert.Contains(t, out, "Capture Source")

	out, err = execute(t, "mixer", "get", "Capture Volume")
	require.NoError(t, err)
	assert.Equal(t, "Capture Volume=0,0\n", out)

	_, err = execute(t, "mixer", "set", "Capture Volume", "50")
	assert.ErrorIs(t, err, errVolatileMixer)

	_, err = execute(t, "mixer", "set", "Capture Volume", "abc")
	assert.ErrorIs(t, err, mixer.ErrInvalidValue)
}

func TestNewAgentRejectsUnknownPlugin(t *testing.T) {
	cfg := config.Default()
	cfg.Plugins = []string{"telnet"}

	_, err := NewAgent(cfg)
	assert.ErrorIs(t, err, command.ErrUnknownPlugin)
}

func TestAgentServesPluginOverSecureTCP(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	controllerKeys, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	listener, err := channel.Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	cfg := config.Default()
	cfg.Plugins = []string{chat.Name}
	cfg.Controller.Address = listener.Addr().String()
	cfg.Controller.Secure = true
	cfg.Controller.ControllerKey = controllerKeys.PublicHex()

	agent, err := NewAgent(cfg)
	require.NoError(t, err)
	defer agent.Close()

	done := make(chan error, 1)
	go func() { done <- agent.Run(ctx) }()

	raw, err := listener.Accept()
	require.NoError(t, err)
	controller, err := channel.NewSecureChannel(ctx, raw, channel.SecureConfig{
		Keys:    controllerKeys,
		Role:    noise.Responder,
		Pattern: noise.PatternIK,
	})
	require.NoError(t, err)
	defer controller.Close()

	hs, err := controller.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{command.HandshakeByte}, hs)

	require.NoError(t, controller.Send(ctx, command.NewFrame(chat.OpMessage, []byte("hello agent"))))
	require.NoError(t, controller.Send(ctx, command.NewFrame(chat.OpClose, nil)))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("agent did not finish after the chat session closed")
	}
}

func TestCaptureFactoryTone(t *testing.T) {
	ac := config.Default().Audio
	ac.Capture = "tone"
	ac.CaptureRate = 8000
	ac.FrameSamples = 80

	capture, err := captureFactory(ac)()
	require.NoError(t, err)
	defer capture.Close()

	frames, err := capture.Start(context.Background())
	require.NoError(t, err)
	frame := <-frames
	assert.Len(t, frame.Samples, 80)
	assert.Equal(t, uint32(8000), frame.SampleRate)

	ac.Capture = "bogus"
	_, err = captureFactory(ac)()
	assert.Error(t, err)
}
