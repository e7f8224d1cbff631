package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/crossrail/fivebells/internal/adapters/render/events"
	"github.com/crossrail/fivebells/internal/client"
	"github.com/crossrail/fivebells/internal/domain"
	"github.com/crossrail/fivebells/internal/router"
)

func newListenCmd(app *app) *cobra.Command {
	var (
		flags        connectFlags
		accounts     []string
		all          bool
		debugReplies bool
	)

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Stream live transfer and message events",
		Long:  "Connects to the ledger and prints every event for the profile's account. With --accounts it multiplexes several accounts over one shared connection; with --all it subscribes to every account on the ledger (admin credentials required).",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			creds, err := app.credentials(ctx, flags.profile)
			if err != nil {
				return err
			}

			sess, err := app.newSession(creds, flags, all, debugReplies)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printEvent := func(event domain.Event) {
				_, _ = fmt.Fprintln(out, events.Event(event, events.RenderOptions{Now: app.clock.Now()}))
			}

			var routed *router.Router
			if len(accounts) > 0 || all {
				routed, err = router.New(router.Config{
					Session:   sess,
					Validator: app.validator,
					Logger:    app.logger,
					Global:    all,
				})
				if err != nil {
					return err
				}
				routed.OnAccountEvent(func(username string, event domain.Event) {
					_, _ = fmt.Fprintf(out, "[%s] %s\n", username, events.Event(event, events.RenderOptions{Now: app.clock.Now()}))
				})
			} else {
				c := client.NewOwning(sess, app.validator, app.logger)
				c.OnAnyEvent(printEvent)
			}

			label := fmt.Sprintf("Connecting to %s...", creds.Account)
			if err := runConnectSpinner(ctx, cmd.ErrOrStderr(), label, sess.Connect); err != nil {
				return err
			}
			defer func() { _ = sess.Disconnect() }()

			if routed != nil {
				for _, account := range accounts {
					handle, err := routed.Create(ctx, account)
					if err != nil {
						return fmt.Errorf("subscribe account %q: %w", account, err)
					}
					handle.OnAnyEvent(printEvent)
				}
			}

			_, _ = fmt.Fprintln(out, events.Banner(sess.Ledger(), sess.Account()))

			<-ctx.Done()
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringSliceVar(&accounts, "accounts", nil, "additional account names to multiplex over the shared connection")
	cmd.Flags().BoolVar(&all, "all", false, "subscribe to every account on the ledger")
	cmd.Flags().BoolVar(&debugReplies, "debug-replies", false, "acknowledge each notification over the socket")

	return cmd
}
