package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newFulfillCmd(app *app) *cobra.Command {
	var flags connectFlags

	cmd := &cobra.Command{
		Use:   "fulfill <transfer-id> [fulfillment]",
		Short: "Fulfill a held transfer, or fetch its fulfillment",
		Long:  "With a fulfillment URI, submits the execution preimage for the held transfer. With only a transfer id, fetches and prints the fulfillment of an already executed transfer.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			c, err := app.connectClient(ctx, cmd, flags)
			if err != nil {
				return err
			}
			defer func() { _ = c.Disconnect() }()

			if len(args) == 1 {
				fulfillment, err := c.GetFulfillment(ctx, args[0])
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), fulfillment)
				return nil
			}

			return c.FulfillCondition(ctx, args[0], args[1])
		},
	}

	flags.register(cmd)

	return cmd
}
