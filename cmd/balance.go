package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBalanceCmd(app *app) *cobra.Command {
	var flags connectFlags

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Print the account balance in integer minor units",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			c, err := app.connectClient(ctx, cmd, flags)
			if err != nil {
				return err
			}
			defer func() { _ = c.Disconnect() }()

			balance, err := c.GetBalance(ctx)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), balance)
			return nil
		},
	}

	flags.register(cmd)

	return cmd
}
