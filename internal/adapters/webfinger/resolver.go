// Package webfinger resolves acct: identifiers into ledger account
// credentials. Only the single lookup the engine needs is
// implemented; the rest of RFC 7033 stays out of scope.
package webfinger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/crossrail/fivebells/internal/ports"
)

const maxResponseBytes = 1 << 20

type Resolver struct {
	HTTPClient *http.Client
}

var _ ports.WebfingerResolver = (*Resolver)(nil)

type jrd struct {
	Subject string `json:"subject"`
	Links   []struct {
		Rel  string `json:"rel"`
		Href string `json:"href"`
	} `json:"links"`
}

// Resolve looks up acct:user@host and returns the advertised ledger
// account URI plus the username part of the identifier.
func (r *Resolver) Resolve(ctx context.Context, identifier string) (ports.WebfingerResult, error) {
	trimmed := strings.TrimPrefix(identifier, "acct:")
	user, host, ok := strings.Cut(trimmed, "@")
	if !ok || user == "" || host == "" {
		return ports.WebfingerResult{}, fmt.Errorf("invalid webfinger identifier %q", identifier)
	}

	endpoint := "https://" + host + "/.well-known/webfinger?resource=" + url.QueryEscape("acct:"+trimmed)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ports.WebfingerResult{}, fmt.Errorf("create webfinger request: %w", err)
	}

	resp, err := r.client().Do(req)
	if err != nil {
		return ports.WebfingerResult{}, fmt.Errorf("webfinger lookup: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return ports.WebfingerResult{}, fmt.Errorf("webfinger lookup: status %d", resp.StatusCode)
	}

	var doc jrd
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&doc); err != nil {
		return ports.WebfingerResult{}, fmt.Errorf("decode webfinger response: %w", err)
	}

	for _, link := range doc.Links {
		if link.Rel == "https://interledger.org/rel/ledgerAccount" && link.Href != "" {
			return ports.WebfingerResult{Account: link.Href, Username: user}, nil
		}
	}
	return ports.WebfingerResult{}, errors.New("webfinger response has no ledger account link")
}

func (r *Resolver) client() *http.Client {
	if r.HTTPClient != nil {
		return r.HTTPClient
	}
	return http.DefaultClient
}
