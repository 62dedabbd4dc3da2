package cmd

import (
	"github.com/spf13/cobra"
)

func territoriesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "territories",
		Short: "List the territories global availability is set for",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, _, err := a.readOnlyClient()
			if err != nil {
				return err
			}

			ids, err := client.AllTerritories(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.jsonOutput() {
				return outputJSON(out, ids)
			}
			for _, id := range ids {
				writeln(out, id)
			}
			writeln(cmd.ErrOrStderr(), len(ids), "territories")
			return nil
		},
	}
}
