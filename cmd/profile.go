package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crossrail/fivebells/internal/adapters/profile"
	"github.com/crossrail/fivebells/internal/adapters/secrets"
)

func newProfileCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage ledger connection profiles",
	}

	cmd.AddCommand(
		newProfileAddCmd(app),
		newProfileListCmd(app),
		newProfileRemoveCmd(app),
	)

	return cmd
}

func newProfileAddCmd(app *app) *cobra.Command {
	var (
		account    string
		identifier string
		username   string
		password   string
		certPath   string
		keyPath    string
		caPath     string
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Save a ledger connection profile",
		Long:  "Saves a named profile. Give either --account with the account URI, or --identifier with a webfinger identifier like alice@red.example. The password goes to the secret store, never to the profiles file.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if account == "" && identifier == "" {
				return errors.New("either --account or --identifier is required")
			}

			p := profile.Profile{
				Name:       args[0],
				Account:    account,
				Identifier: identifier,
				Username:   username,
				CertPath:   certPath,
				KeyPath:    keyPath,
				CAPath:     caPath,
			}

			if password != "" {
				host, err := profileHost(account, identifier)
				if err != nil {
					return err
				}
				keyUser := username
				if keyUser == "" {
					keyUser = args[0]
				}
				p.PasswordRef = secrets.PasswordKey(host, keyUser)
				if err := app.secrets.Put(cmd.Context(), p.PasswordRef, password); err != nil {
					return fmt.Errorf("store password: %w", err)
				}
			}

			if err := app.profiles.Save(cmd.Context(), p); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "saved profile %s\n", p.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "account URI, e.g. https://red.example/accounts/alice")
	cmd.Flags().StringVar(&identifier, "identifier", "", "webfinger identifier, e.g. alice@red.example")
	cmd.Flags().StringVar(&username, "username", "", "username for basic auth (defaults to the resolved account name)")
	cmd.Flags().StringVar(&password, "password", "", "password to store in the secret store")
	cmd.Flags().StringVar(&certPath, "cert", "", "path to a PEM client certificate")
	cmd.Flags().StringVar(&keyPath, "key", "", "path to the PEM client key")
	cmd.Flags().StringVar(&caPath, "ca", "", "path to a PEM CA bundle")

	return cmd
}

func newProfileListCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved profiles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			profiles, err := app.profiles.List(cmd.Context())
			if err != nil {
				return err
			}

			for _, p := range profiles {
				target := p.Account
				if target == "" {
					target = p.Identifier
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", p.Name, target)
			}
			return nil
		},
	}
}

func newProfileRemoveCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a saved profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.profiles.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed profile %s\n", args[0])
			return nil
		},
	}
}

func profileHost(account, identifier string) (string, error) {
	if account != "" {
		u, err := url.Parse(account)
		if err != nil || u.Host == "" {
			return "", fmt.Errorf("account %q is not a valid URI", account)
		}
		return u.Host, nil
	}
	trimmed := strings.TrimPrefix(identifier, "acct:")
	_, host, found := strings.Cut(trimmed, "@")
	if !found || host == "" {
		return "", fmt.Errorf("identifier %q is missing its host part", identifier)
	}
	return host, nil
}
