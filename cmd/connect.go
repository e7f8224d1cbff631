package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/crossrail/fivebells/internal/client"
	"github.com/crossrail/fivebells/internal/session"
)

type connectFlags struct {
	profile      string
	timeout      time.Duration
	retryForever bool
}

func (f *connectFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.profile, "profile", "p", "default", "connection profile to use")
	cmd.Flags().DurationVar(&f.timeout, "timeout", defaultConnectTimeout, "connect timeout")
	cmd.Flags().BoolVar(&f.retryForever, "retry-forever", false, "retry account resolution without a deadline")
}

// connectClient builds an owning client for the flagged profile and
// connects it behind a spinner. The caller owns the disconnect.
func (a *app) connectClient(ctx context.Context, cmd *cobra.Command, flags connectFlags) (*client.Client, error) {
	creds, err := a.credentials(ctx, flags.profile)
	if err != nil {
		return nil, err
	}

	sess, err := session.New(session.Config{
		Credentials:    creds,
		ConnectTimeout: flags.timeout,
		RetryForever:   flags.retryForever,
		Logger:         a.logger,
	})
	if err != nil {
		return nil, err
	}

	c := client.NewOwning(sess, a.validator, a.logger)
	label := fmt.Sprintf("Connecting to %s...", creds.Account)
	if err := runConnectSpinner(ctx, cmd.ErrOrStderr(), label, c.Connect); err != nil {
		return nil, err
	}
	return c, nil
}
