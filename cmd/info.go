package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInfoCmd(app *app) *cobra.Command {
	var flags connectFlags

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Print the ledger's public metadata",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			c, err := app.connectClient(ctx, cmd, flags)
			if err != nil {
				return err
			}
			defer func() { _ = c.Disconnect() }()

			info, err := c.GetInfo(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "ilp_prefix\t%s\n", info.ILPPrefix)
			_, _ = fmt.Fprintf(out, "currency_code\t%s\n", info.CurrencyCode)
			_, _ = fmt.Fprintf(out, "currency_scale\t%d\n", info.CurrencyScale)
			return nil
		},
	}

	flags.register(cmd)

	return cmd
}
