package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "bells",
		Short:         "bells: talk to a five-bells ledger from the terminal",
		Long:          "bells manages ledger connection profiles, streams live transfer and message events, and submits, fulfills and rejects transfers against a five-bells ledger.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newProfileCmd(app),
		newListenCmd(app),
		newSendCmd(app),
		newFulfillCmd(app),
		newRejectCmd(app),
		newBalanceCmd(app),
		newInfoCmd(app),
	)

	return rootCmd
}
