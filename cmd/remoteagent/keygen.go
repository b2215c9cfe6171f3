package main

import (
	"fmt"

	"github.com/opd-ai/remoteagent/crypto"
	"github.com/spf13/cobra"
)

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "generate a static Noise key pair",
		Long: `Generates a Curve25519 key pair. Put the private key in
controller.private_key and give the public key to the controller operator.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := crypto.GenerateKeyPair()
			if err != nil {
				return err
			}
			defer crypto.WipeKeyPair(keys)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "private_key: %s\n", keys.PrivateHex())
			fmt.Fprintf(out, "public_key:  %s\n", keys.PublicHex())
			return nil
		},
	}
}
