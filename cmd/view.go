// File: cmd/view.go
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/ebaybot/internal/listing"
)

func newViewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "view",
		Short: "Print the account's active listings as JSON (not implemented)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			listings, err := listing.NewScraper().Active(cmd.Context())
			if err != nil {
				return err
			}
			return listing.Encode(cmd.OutOrStdout(), listings)
		},
	}
}
