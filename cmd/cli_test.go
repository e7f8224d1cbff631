package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossrail/fivebells/internal/domain"
	"github.com/crossrail/fivebells/internal/ledgertest"
	"github.com/crossrail/fivebells/internal/version"
)

func executeCLI(t *testing.T, home string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", home)

	root := newRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := executeCLI(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, version.Version)
}

func TestProfileAddRequiresTarget(t *testing.T) {
	_, _, err := executeCLI(t, t.TempDir(), "profile", "add", "red")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "either --account or --identifier is required")
}

func TestProfileAddListRemove(t *testing.T) {
	home := t.TempDir()

	stdout, _, err := executeCLI(t, home,
		"profile", "add", "red",
		"--account", "https://red.example/accounts/alice",
		"--username", "alice",
	)
	require.NoError(t, err)
	assert.Contains(t, stdout, "saved profile red")

	stdout, _, err = executeCLI(t, home, "profile", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "red\thttps://red.example/accounts/alice")

	stdout, _, err = executeCLI(t, home, "profile", "remove", "red")
	require.NoError(t, err)
	assert.Contains(t, stdout, "removed profile red")

	stdout, _, err = executeCLI(t, home, "profile", "list")
	require.NoError(t, err)
	assert.NotContains(t, stdout, "red\t")
}

func TestProfileAddKeepsPasswordOutOfFile(t *testing.T) {
	home := t.TempDir()

	_, _, err := executeCLI(t, home,
		"profile", "add", "red",
		"--account", "https://red.example/accounts/alice",
		"--username", "alice",
		"--password", "super-secret-value",
	)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(home, ".fivebells", "profiles.toml"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "super-secret-value")
	assert.Contains(t, string(data), "password_ref")
}

func TestProfileRemoveMissing(t *testing.T) {
	_, _, err := executeCLI(t, t.TempDir(), "profile", "remove", "nope")
	require.Error(t, err)
}

func TestBalanceWithUnknownProfile(t *testing.T) {
	_, _, err := executeCLI(t, t.TempDir(), "balance", "--profile", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `load profile "nope"`)
}

func TestBalanceEndToEnd(t *testing.T) {
	home := t.TempDir()
	ledger := ledgertest.New(t)
	ledger.SetBalance("alice", "123.45")

	_, _, err := executeCLI(t, home,
		"profile", "add", "red",
		"--account", ledger.AccountURL("alice"),
		"--username", "alice",
	)
	require.NoError(t, err)

	stdout, _, err := executeCLI(t, home, "balance", "--profile", "red")
	require.NoError(t, err)
	assert.Contains(t, stdout, "12345")
}

func TestInfoEndToEnd(t *testing.T) {
	home := t.TempDir()
	ledger := ledgertest.New(t)

	_, _, err := executeCLI(t, home,
		"profile", "add", "red",
		"--account", ledger.AccountURL("alice"),
	)
	require.NoError(t, err)

	stdout, _, err := executeCLI(t, home, "info", "--profile", "red")
	require.NoError(t, err)
	assert.Contains(t, stdout, ledgertest.Prefix)
	assert.Contains(t, stdout, "USD")
}

func TestNewSessionHonorsRetryForever(t *testing.T) {
	app := &app{logger: zerolog.Nop()}
	sess, err := app.newSession(
		domain.Credentials{Account: "http://127.0.0.1:1/accounts/alice"},
		connectFlags{timeout: 200 * time.Millisecond, retryForever: true},
		false, false,
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Disconnect() })

	// Without retry-forever the 200ms timeout would end the attempt on
	// its own; with it, only the caller's deadline ends the wait.
	ctx, cancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
	defer cancel()
	err = sess.Connect(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProfileHost(t *testing.T) {
	host, err := profileHost("https://red.example/accounts/alice", "")
	require.NoError(t, err)
	assert.Equal(t, "red.example", host)

	host, err = profileHost("", "acct:alice@red.example")
	require.NoError(t, err)
	assert.Equal(t, "red.example", host)

	_, err = profileHost("", "alice")
	require.Error(t, err)
}
