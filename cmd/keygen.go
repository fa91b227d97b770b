package cmd

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/flashbots/go-boost-utils/bls"
	"github.com/spf13/cobra"
)

var withAttestation bool

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a signing key and, optionally, a BLS attestation key",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		privateKey, err := crypto.GenerateKey()
		if err != nil {
			return fmt.Errorf("failed to generate key: %w", err)
		}
		fmt.Fprintf(out, "PRIVATE_KEY=%s\n", hexutil.Encode(crypto.FromECDSA(privateKey)))
		fmt.Fprintf(out, "# address %s\n", crypto.PubkeyToAddress(privateKey.PublicKey).Hex())

		if !withAttestation {
			return nil
		}
		sk, pk, err := bls.GenerateNewKeypair()
		if err != nil {
			return fmt.Errorf("failed to generate attestation key: %w", err)
		}
		fmt.Fprintf(out, "ATTESTATION_KEY=%s\n", hexutil.Encode(bls.SecretKeyToBytes(sk)))
		fmt.Fprintf(out, "# attestation public key %s\n", hexutil.Encode(bls.PublicKeyToBytes(pk)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
	keygenCmd.Flags().BoolVar(&withAttestation, "attestation", false, "also generate a BLS key for commitment attestation")
}
