package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pzverkov/bolt8/pkg/crypto"
)

type keyPair struct {
	Secret string `json:"secret"`
	NodeID string `json:"node_id"`
}

func (c *cli) keygenCmd() *cobra.Command {
	var (
		from    string
		asJSON  bool
		showKey bool
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a node key and print its node id",
		Long: `Generate a fresh secp256k1 node key, or derive the node id of an existing
one with --from. The node id is the 33-byte compressed public key peers dial.`,
		Example: `  bolt8 keygen
  bolt8 keygen --json > node.json
  bolt8 keygen --from 1111111111111111111111111111111111111111111111111111111111111111`,
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, err := makeKeyPair(from)
			if err != nil {
				return err
			}
			if from != "" && !showKey {
				kp.Secret = ""
			}
			return printKeyPair(cmd.OutOrStdout(), kp, asJSON)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "derive the node id of this hex secret instead of generating one")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.Flags().BoolVar(&showKey, "show-secret", false, "echo the secret given with --from")
	return cmd
}

func makeKeyPair(from string) (keyPair, error) {
	var (
		secret crypto.PrivateKey
		err    error
	)
	if from != "" {
		secret, err = crypto.PrivateKeyFromHex(from)
	} else {
		secret, err = crypto.GeneratePrivateKey()
	}
	if err != nil {
		return keyPair{}, err
	}
	defer secret.Zeroize()

	if err := crypto.CheckKeyPair(secret); err != nil {
		return keyPair{}, err
	}
	pub, err := secret.PublicKey()
	if err != nil {
		return keyPair{}, err
	}
	return keyPair{Secret: hex.EncodeToString(secret[:]), NodeID: pub.String()}, nil
}

func printKeyPair(w io.Writer, kp keyPair, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(kp)
	}
	if kp.Secret != "" {
		fmt.Fprintf(w, "secret:  %s\n", kp.Secret)
	}
	fmt.Fprintf(w, "node id: %s\n", kp.NodeID)
	return nil
}
