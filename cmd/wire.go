package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/crossrail/fivebells/internal/adapters/profile"
	"github.com/crossrail/fivebells/internal/adapters/secrets"
	"github.com/crossrail/fivebells/internal/adapters/validate"
	"github.com/crossrail/fivebells/internal/adapters/webfinger"
	"github.com/crossrail/fivebells/internal/domain"
	"github.com/crossrail/fivebells/internal/ports"
	"github.com/crossrail/fivebells/internal/session"
)

const defaultConnectTimeout = 60 * time.Second

type app struct {
	profiles  *profile.Store
	secrets   ports.SecretStore
	webfinger ports.WebfingerResolver
	validator ports.Validator
	clock     ports.Clock
	logger    zerolog.Logger
}

func wireApp() (*app, error) {
	cfg := viper.New()
	cfg.SetEnvPrefix("FIVEBELLS")
	cfg.AutomaticEnv()

	profiles, err := profile.NewStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("wire profile store: %w", err)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	secretStore, err := secrets.NewDefault(filepath.Join(homeDir, ".fivebells", "secrets"))
	if err != nil {
		return nil, fmt.Errorf("wire secret store: %w", err)
	}

	logger := zerolog.Nop()
	if cfg.GetBool("debug") {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	return &app{
		profiles:  profiles,
		secrets:   secretStore,
		webfinger: &webfinger.Resolver{},
		validator: validate.New(),
		clock:     ports.SystemClock{},
		logger:    logger,
	}, nil
}

// credentials loads a named profile and assembles the full credential
// set: webfinger discovery when the profile holds an identifier, the
// password from the secret store, TLS material from disk.
func (a *app) credentials(ctx context.Context, profileName string) (domain.Credentials, error) {
	p, err := a.profiles.Get(ctx, profileName)
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("load profile %q: %w", profileName, err)
	}

	creds := domain.Credentials{
		Account:  p.Account,
		Username: p.Username,
	}

	if creds.Account == "" && p.Identifier != "" {
		resolved, err := a.webfinger.Resolve(ctx, p.Identifier)
		if err != nil {
			return domain.Credentials{}, fmt.Errorf("resolve identifier %q: %w", p.Identifier, err)
		}
		creds.Account = resolved.Account
		if creds.Username == "" {
			creds.Username = resolved.Username
		}
	}
	if creds.Account == "" {
		return domain.Credentials{}, fmt.Errorf("profile %q has neither an account uri nor an identifier", profileName)
	}

	if p.PasswordRef != "" {
		password, err := a.secrets.Get(ctx, p.PasswordRef)
		if err != nil {
			return domain.Credentials{}, fmt.Errorf("load password for profile %q: %w", profileName, err)
		}
		creds.Password = password
	}

	if p.CertPath != "" {
		if creds.Cert, err = os.ReadFile(p.CertPath); err != nil {
			return domain.Credentials{}, fmt.Errorf("read client certificate: %w", err)
		}
	}
	if p.KeyPath != "" {
		if creds.Key, err = os.ReadFile(p.KeyPath); err != nil {
			return domain.Credentials{}, fmt.Errorf("read client key: %w", err)
		}
	}
	if p.CAPath != "" {
		if creds.CA, err = os.ReadFile(p.CAPath); err != nil {
			return domain.Credentials{}, fmt.Errorf("read ca certificate: %w", err)
		}
	}

	return creds, nil
}

func (a *app) newSession(creds domain.Credentials, flags connectFlags, global bool, debugReplies bool) (*session.Session, error) {
	timeout := flags.timeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	return session.New(session.Config{
		Credentials:        creds,
		ConnectTimeout:     timeout,
		RetryForever:       flags.retryForever,
		GlobalSubscription: global,
		DebugReplies:       debugReplies,
		Logger:             a.logger,
	})
}
