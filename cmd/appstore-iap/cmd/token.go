package cmd

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/RaydowCharole/AppStoreIapScript/internal/asc"
)

func tokenCmd(a *app) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a freshly signed App Store Connect API token",
		Long: "Signs a token with the configured key, valid for 20 minutes, and\n" +
			"prints it. Useful for calling the API by hand with curl.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			creds, err := loadCredentials(cfg)
			if err != nil {
				return err
			}

			tok, err := asc.NewSigner(creds).Sign(time.Now())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.jsonOutput() {
				return outputJSON(out, tok)
			}
			if !verbose {
				writeln(out, tok.Value)
				return nil
			}

			parts := strings.Split(tok.Value, ".")
			tw := newTabWriter(out)
			tw.writef("Token:\t%s\n", tok.Value)
			tw.writef("Expires:\t%s\n", tok.ExpiresAt.Format(time.RFC3339))
			for i, name := range []string{"Header", "Payload", "Signature"} {
				if i < len(parts) {
					tw.writef("%s length:\t%d\n", name, len(parts[i]))
				}
			}
			return tw.finish()
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "also print expiry and segment lengths")
	return cmd
}
