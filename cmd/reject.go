package cmd

import (
	"github.com/spf13/cobra"

	"github.com/crossrail/fivebells/internal/domain"
)

func newRejectCmd(app *app) *cobra.Command {
	var (
		flags   connectFlags
		code    string
		name    string
		message string
	)

	cmd := &cobra.Command{
		Use:   "reject <transfer-id>",
		Short: "Reject an incoming held transfer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			c, err := app.connectClient(ctx, cmd, flags)
			if err != nil {
				return err
			}
			defer func() { _ = c.Disconnect() }()

			return c.RejectIncomingTransfer(ctx, args[0], &domain.RejectionReason{
				Code:        code,
				Name:        name,
				Message:     message,
				TriggeredBy: c.Account(),
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&code, "code", "R00", "rejection code")
	cmd.Flags().StringVar(&name, "name", "Rejected", "rejection name")
	cmd.Flags().StringVar(&message, "message", "transfer rejected by receiver", "human readable rejection message")

	return cmd
}
