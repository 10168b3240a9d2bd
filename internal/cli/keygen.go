package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/offchain/internal/jws"
)

// KeyPair is the output of keygen.
type KeyPair struct {
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

func (k KeyPair) String() string {
	return fmt.Sprintf("public_key:  %s\nprivate_key: %s", k.PublicKey, k.PrivateKey)
}

// NewKeygenCommand creates the keygen command.
func NewKeygenCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a compliance key pair",
		Long: `Generate an Ed25519 compliance key pair.

The public key is registered on the ledger account; the private key (the
hex seed) goes into vasp.compliance_key.

Example:
  offchain keygen --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, priv, err := jws.GenerateKey()
			if err != nil {
				return WrapExitError(ExitCommandError, "generate key", err)
			}
			return rootOpts.formatter(cmd).Success(KeyPair{
				PublicKey:  jws.PublicKeyHex(pub),
				PrivateKey: jws.SeedHex(priv),
			})
		},
	}
}
