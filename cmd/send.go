package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/crossrail/fivebells/internal/domain"
)

func newSendCmd(app *app) *cobra.Command {
	var (
		flags           connectFlags
		id              string
		data            string
		noteToSelf      string
		execCondition   string
		cancelCondition string
		expiresIn       time.Duration
		cases           []string
		message         bool
	)

	cmd := &cobra.Command{
		Use:   "send <destination> <amount>",
		Short: "Send a transfer or a message",
		Long:  "Prepares a transfer of <amount> to the ILP address <destination>. With --execution-condition the transfer is held until the condition is fulfilled. With --message the second argument is the message payload instead of an amount.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			c, err := app.connectClient(ctx, cmd, flags)
			if err != nil {
				return err
			}
			defer func() { _ = c.Disconnect() }()

			if message {
				return c.SendMessage(ctx, domain.Message{
					To:   args[0],
					Data: jsonValue(args[1]),
				})
			}

			if id == "" {
				id = uuid.NewString()
			}

			transfer := domain.Transfer{
				ID:                    id,
				To:                    args[0],
				Amount:                args[1],
				Data:                  jsonValue(data),
				NoteToSelf:            jsonValue(noteToSelf),
				ExecutionCondition:    execCondition,
				CancellationCondition: cancelCondition,
				Cases:                 cases,
			}
			if expiresIn > 0 {
				transfer.ExpiresAt = time.Now().Add(expiresIn)
			}

			if err := c.SendTransfer(ctx, transfer); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), transfer.ID)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&id, "id", "", "transfer id (defaults to a fresh uuid)")
	cmd.Flags().StringVar(&data, "data", "", "memo delivered to the receiver")
	cmd.Flags().StringVar(&noteToSelf, "note-to-self", "", "memo kept on the debit side")
	cmd.Flags().StringVar(&execCondition, "execution-condition", "", "crypto-condition URI holding the transfer until fulfilled")
	cmd.Flags().StringVar(&cancelCondition, "cancellation-condition", "", "crypto-condition URI that rolls the transfer back")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "how long a conditional transfer stays held")
	cmd.Flags().StringSliceVar(&cases, "case", nil, "notary case URI to attach (repeatable)")
	cmd.Flags().BoolVar(&message, "message", false, "send a message instead of a transfer")

	return cmd
}

// jsonValue passes raw JSON through and quotes anything else as a JSON
// string, so --data works for both shapes.
func jsonValue(s string) json.RawMessage {
	if s == "" {
		return nil
	}
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	quoted, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	return quoted
}
