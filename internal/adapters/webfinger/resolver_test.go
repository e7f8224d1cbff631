package webfinger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTransport rewrites every request to the test server so the
// resolver's hardcoded https scheme still lands in the test.
type testTransport struct {
	server *httptest.Server
	seen   *url.URL
}

func (t *testTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	*t.seen = *req.URL
	rewritten := *req.URL
	serverURL, _ := url.Parse(t.server.URL)
	rewritten.Scheme = serverURL.Scheme
	rewritten.Host = serverURL.Host
	clone := req.Clone(req.Context())
	clone.URL = &rewritten
	return http.DefaultTransport.RoundTrip(clone)
}

func newTestResolver(t *testing.T, handler http.HandlerFunc) (*Resolver, *url.URL) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	seen := &url.URL{}
	resolver := &Resolver{HTTPClient: &http.Client{Transport: &testTransport{server: server, seen: seen}}}
	return resolver, seen
}

func TestResolve(t *testing.T) {
	resolver, seen := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/jrd+json")
		_, _ = w.Write([]byte(`{
			"subject": "acct:alice@red.example",
			"links": [
				{"rel": "https://interledger.org/rel/ledgerUri", "href": "https://red.example"},
				{"rel": "https://interledger.org/rel/ledgerAccount", "href": "https://red.example/accounts/alice"}
			]
		}`))
	})

	result, err := resolver.Resolve(context.Background(), "alice@red.example")
	require.NoError(t, err)
	assert.Equal(t, "https://red.example/accounts/alice", result.Account)
	assert.Equal(t, "alice", result.Username)

	assert.Equal(t, "red.example", seen.Host)
	assert.Equal(t, "/.well-known/webfinger", seen.Path)
	assert.Equal(t, "acct:alice@red.example", seen.Query().Get("resource"))
}

func TestResolveAcceptsAcctPrefix(t *testing.T) {
	resolver, seen := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"links":[{"rel":"https://interledger.org/rel/ledgerAccount","href":"https://red.example/accounts/alice"}]}`))
	})

	result, err := resolver.Resolve(context.Background(), "acct:alice@red.example")
	require.NoError(t, err)
	assert.Equal(t, "alice", result.Username)
	assert.Equal(t, "acct:alice@red.example", seen.Query().Get("resource"))
}

func TestResolveRejectsBadIdentifiers(t *testing.T) {
	resolver := &Resolver{}
	for _, identifier := range []string{"", "alice", "@red.example", "alice@"} {
		_, err := resolver.Resolve(context.Background(), identifier)
		require.Error(t, err, identifier)
		assert.True(t, strings.Contains(err.Error(), "invalid webfinger identifier"), identifier)
	}
}

func TestResolveWithoutLedgerAccountLink(t *testing.T) {
	resolver, _ := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"links":[{"rel":"self","href":"https://red.example"}]}`))
	})

	_, err := resolver.Resolve(context.Background(), "alice@red.example")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no ledger account link")
}

func TestResolveNonSuccessStatus(t *testing.T) {
	resolver, _ := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	_, err := resolver.Resolve(context.Background(), "alice@red.example")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}
