package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"xololegend-market/internal/verifier"
	"xololegend-market/internal/wallet"
)

var buyCmd = &cobra.Command{
	Use:   "buy <offer-id>",
	Short: "Verify an offer and purchase it through the paired wallet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		out := cmd.OutOrStdout()

		status := a.Verify(cmd.Context(), args[0])
		switch status.Availability {
		case verifier.StatusAvailable:
		case verifier.StatusSpent:
			return errors.New("offer has already been spent")
		case verifier.StatusInvalid:
			return fmt.Errorf("invalid offer: %s", status.Reason)
		default:
			return errors.New("offer could not be verified right now; try again")
		}

		client := a.NewWalletClient()
		txid, err := client.SignAndBroadcast(cmd.Context(), status.OfferID)
		if err != nil {
			if errors.Is(err, wallet.ErrRequestExpired) {
				return errors.New("wallet request expired; try again")
			}
			return err
		}

		a.Offers.MarkSold(status.OfferID, txid)
		a.Tracker.Unregister(status.OfferID)

		fmt.Fprintf(out, "purchase broadcast: %s\n", txid)
		return nil
	},
}
