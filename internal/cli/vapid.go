package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/anonto42/nano-midea/social/internal/push"
)

// VAPIDKeys is the output of vapid-keys.
type VAPIDKeys struct {
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

// NewVAPIDKeysCommand creates the vapid-keys command.
func NewVAPIDKeysCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "vapid-keys",
		Short: "Generate a VAPID key pair for Web Push",
		Long: `Generate a new VAPID (P-256) key pair.

Set the values as SOCIAL_PUSH_VAPID_PUBLIC_KEY and SOCIAL_PUSH_VAPID_PRIVATE_KEY.
Rotating the pair invalidates every existing browser subscription.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			public, private, err := push.GenerateVAPIDKeys()
			if err != nil {
				return fmt.Errorf("failed to generate VAPID keys: %w", err)
			}
			keys := VAPIDKeys{PublicKey: public, PrivateKey: private}
			return printResult(cmd.OutOrStdout(), rootOpts, keys, func(w io.Writer) {
				fmt.Fprintf(w, "SOCIAL_PUSH_VAPID_PUBLIC_KEY=%s\n", keys.PublicKey)
				fmt.Fprintf(w, "SOCIAL_PUSH_VAPID_PRIVATE_KEY=%s\n", keys.PrivateKey)
			})
		},
	}
}
