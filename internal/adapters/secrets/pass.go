package secrets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/crossrail/fivebells/internal/ports"
)

var ErrPassUnavailable = errors.New("pass command unavailable")

type passRunFunc func(ctx context.Context, input string, args ...string) (stdout string, stderr string, err error)

// PassStore shells out to pass(1).
type PassStore struct {
	run passRunFunc
}

var _ ports.SecretStore = (*PassStore)(nil)

func NewPassStore() *PassStore {
	return &PassStore{run: runPass}
}

func (s *PassStore) Put(ctx context.Context, key string, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, stderr, err := s.run(ctx, value+"\n", "insert", "-m", "-f", key)
	if err != nil {
		return passError("put", key, err, stderr)
	}
	return nil
}

func (s *PassStore) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	stdout, stderr, err := s.run(ctx, "", "show", key)
	if err != nil {
		return "", passError("get", key, err, stderr)
	}
	stdout = strings.TrimSuffix(stdout, "\n")
	stdout = strings.TrimSuffix(stdout, "\r")
	return stdout, nil
}

func (s *PassStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, stderr, err := s.run(ctx, "", "rm", "-f", key)
	if err != nil {
		return passError("delete", key, err, stderr)
	}
	return nil
}

func runPass(ctx context.Context, input string, args ...string) (string, string, error) {
	path, err := exec.LookPath("pass")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", "", ErrPassUnavailable
		}
		return "", "", fmt.Errorf("locate pass command: %w", err)
	}

	cmd := exec.CommandContext(ctx, path, args...)
	if input != "" {
		cmd.Stdin = strings.NewReader(input)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err = cmd.Run()
	return stdout.String(), strings.TrimSpace(stderr.String()), err
}

func passError(op string, key string, err error, stderr string) error {
	if stderr == "" {
		return fmt.Errorf("pass %s %q: %w", op, key, err)
	}
	return fmt.Errorf("pass %s %q: %w: %s", op, key, err, stderr)
}
