package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"xololegend-market/internal/covenant"
	"xololegend-market/internal/offerid"
	"xololegend-market/internal/verifier"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <offer-id>",
	Short: "Verify an offer id (txid:vout) against the chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw := args[0]
		if offerid.LooksLikeBareTxid(raw) {
			fmt.Fprintf(cmd.OutOrStdout(), "note: %q looks like a bare txid; offer ids are txid:vout (e.g. %s:1)\n", raw, raw)
		}

		status := getApp().Verify(cmd.Context(), raw)
		out := cmd.OutOrStdout()

		fmt.Fprintf(out, "offer:        %s\n", status.OfferID)
		fmt.Fprintf(out, "availability: %s\n", status.Availability)

		switch status.Availability {
		case verifier.StatusAvailable:
			fmt.Fprintf(out, "terms:        %s\n", status.TermsStatus)
			printTerms(cmd, status.Terms)
		case verifier.StatusSpent:
			if status.SpentBy != "" {
				fmt.Fprintf(out, "spent by:     %s\n", status.SpentBy)
			}
		case verifier.StatusInvalid:
			fmt.Fprintf(out, "reason:       %s\n", status.Reason)
		}
		return nil
	},
}

func printTerms(cmd *cobra.Command, terms covenant.Terms) {
	out := cmd.OutOrStdout()
	switch t := terms.(type) {
	case covenant.TokenTerms:
		label := t.TokenID
		if getApp().Decoder.IsRmzToken(t.TokenID) {
			label += " (RMZ)"
		}
		fmt.Fprintf(out, "token:        %s\n", label)
		fmt.Fprintf(out, "amount:       %s\n", t.TokenAmount)
		fmt.Fprintf(out, "total:        %s XEC (%s)\n", t.XecTotal, t.Source)
		fmt.Fprintf(out, "per token:    %s XEC\n", t.XecPerToken)
	case covenant.NftTerms:
		fmt.Fprintf(out, "token:        %s\n", t.TokenID)
		fmt.Fprintf(out, "total:        %s XEC\n", t.XecTotal)
	case nil:
		fmt.Fprintln(out, "terms:        not decodable (manual review)")
	}
}
