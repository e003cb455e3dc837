package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var listingsLimit int

var listingsCmd = &cobra.Command{
	Use:   "listings",
	Short: "Show the most recent stored listings",
	RunE: func(cmd *cobra.Command, args []string) error {
		items, err := getApp().Listings(cmd.Context(), listingsLimit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(items) == 0 {
			fmt.Fprintln(out, "no listings stored")
			return nil
		}

		for _, item := range items {
			fmt.Fprintf(out, "%s  %-10s  %s\n", item.CreatedAt.Format("2006-01-02 15:04"), item.Verification, item.Title)
			if item.OfferTxID != "" {
				fmt.Fprintf(out, "    offer: %s\n", item.OfferTxID)
			}
		}
		return nil
	},
}

func init() {
	listingsCmd.Flags().IntVar(&listingsLimit, "limit", 20, "Maximum listings to display")
}
