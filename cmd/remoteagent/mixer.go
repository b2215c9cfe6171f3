package main

import (
	"errors"
	"fmt"

	"github.com/opd-ai/remoteagent/mixer"
	"github.com/spf13/cobra"
)

// errVolatileMixer rejects writes that would be lost when the command exits.
var errVolatileMixer = errors.New("software mixer state lives only inside one process; configure mixer.backend: alsa to change device controls")

func newMixerCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mixer",
		Short: "inspect and change local mixer controls",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "list every mixer control",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			surface, err := openMixerFromFlags(cmd, flags)
			if err != nil {
				return err
			}
			defer surface.Close()

			list, err := surface.ControlList(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), list)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <control>",
		Short: "print the values of one control",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			surface, err := openMixerFromFlags(cmd, flags)
			if err != nil {
				return err
			}
			defer surface.Close()

			details, err := surface.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", args[0], mixer.FormatValues(details.Values))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <control> <v1[,v2...]>",
		Short: "write one value per channel, or one value for all channels (alsa backend only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := mixer.ParseValues(args[1])
			if err != nil {
				return err
			}
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			backend, err := mixer.NewBackend(cfg.Mixer.Backend)
			if err != nil {
				return err
			}
			if _, ok := backend.(*mixer.SoftwareBackend); ok {
				return errVolatileMixer
			}
			surface, err := mixer.Open(cmd.Context(), backend, cfg.Mixer.Device,
				mixer.Options{ListText: cfg.Mixer.ListText})
			if err != nil {
				return err
			}
			defer surface.Close()

			return surface.Set(cmd.Context(), args[0], values)
		},
	})

	return cmd
}

func openMixerFromFlags(cmd *cobra.Command, flags *globalFlags) (*mixer.Surface, error) {
	cfg, err := flags.loadConfig()
	if err != nil {
		return nil, err
	}
	return openMixer(cmd.Context(), cfg.Mixer)
}
