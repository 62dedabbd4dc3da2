package cmd

import (
	"github.com/spf13/cobra"

	"github.com/RaydowCharole/AppStoreIapScript/internal/asc"
)

func pricePointsCmd(a *app) *cobra.Command {
	var territory string

	cmd := &cobra.Command{
		Use:   "price-points <iap-id>",
		Short: "List the price points of an existing in-app purchase",
		Long: "Lists the price points the batch matches configured prices against.\n" +
			"Configured prices that have no row here are created without a price.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := a.readOnlyClient()
			if err != nil {
				return err
			}

			points, err := client.GetPricePoints(cmd.Context(), args[0], territory)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.jsonOutput() {
				return outputJSON(out, points)
			}

			tw := newTabWriter(out)
			tw.writef("ID\tTERRITORY\tCUSTOMER PRICE\tPROCEEDS\tCONFIGURED\n")
			for i := range points {
				configured := ""
				for _, p := range cfg.Prices {
					if _, ok := asc.MatchPricePoint(points[i:i+1], p, priceMatch(cfg)); ok {
						configured = "$" + p.String()
						break
					}
				}
				tw.writef("%s\t%s\t%s\t%s\t%s\n",
					points[i].ID,
					points[i].Territory,
					points[i].CustomerPrice,
					points[i].Proceeds,
					configured,
				)
			}
			return tw.finish()
		},
	}

	cmd.Flags().StringVar(&territory, "territory", "USA", "territory to list price points for")
	return cmd
}
