package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/opd-ai/remoteagent/audio"
	"github.com/spf13/cobra"
)

func newEncodeCmd() *cobra.Command {
	var (
		decode bool
		taps   string
	)

	cmd := &cobra.Command{
		Use:   "encode <input> <output>",
		Short: "convert 16-bit little-endian PCM to G.711 mu-law",
		Long: `Converts raw s16le PCM to mu-law bytes. With --decode the direction is
reversed. With --impulse-response the PCM is filtered through the convolution
filter before encoding; "-" reads or writes standard streams.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			in, closeIn, err := openInput(cmd, args[0])
			if err != nil {
				return err
			}
			defer closeIn()

			out, closeOut, err := openOutput(cmd, args[1])
			if err != nil {
				return err
			}
			defer func() {
				if cerr := closeOut(); cerr != nil && err == nil {
					err = fmt.Errorf("close %s: %w", args[1], cerr)
				}
			}()

			data, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			var result []byte
			if decode {
				result, err = audio.PCMEncoder{}.Encode(audio.MuLawDecodeBytes(data))
				if err != nil {
					return err
				}
			} else {
				samples := pcmSamples(data)
				if taps != "" {
					samples, err = filterSamples(samples, taps)
					if err != nil {
						return err
					}
				}
				result = audio.MuLawEncodeSamples(samples)
			}

			if _, err := out.Write(result); err != nil {
				return fmt.Errorf("write %s: %w", args[1], err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&decode, "decode", "d", false, "decode mu-law to PCM instead")
	cmd.Flags().StringVar(&taps, "impulse-response", "", "file of filter taps applied before encoding")
	return cmd
}

// filterSamples runs the whole buffer through Convolve, so the output keeps
// the filter tail and is normalized as one block.
func filterSamples(samples []int16, path string) ([]int16, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h, err := audio.LoadImpulseResponse(f)
	if err != nil {
		return nil, err
	}

	filtered := audio.Convolve(audio.ToUnitFloats(samples), h)

	out := make([]int16, len(filtered))
	for i, v := range filtered {
		out[i], _ = audio.FromUnitFloat(v)
	}
	return out, nil
}

func pcmSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

func openInput(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	if path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

// openOutput returns the writer and a close func whose error must be checked:
// a failed close can mean the file was not fully written.
func openOutput(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "-" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
