package session

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/crossrail/fivebells/internal/domain"
)

const maxResponseBytes = 1 << 20

type accountInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Ledger string `json:"ledger"`
}

type authTokenResponse struct {
	Token string `json:"token"`
}

func buildTransport(cfg Config) (*http.Client, *websocket.Dialer, error) {
	tlsConfig, err := buildTLSConfig(cfg.Credentials)
	if err != nil {
		return nil, nil, err
	}

	httpc := cfg.HTTPClient
	if httpc == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = tlsConfig
		httpc = &http.Client{Transport: transport}
	}

	dialer := cfg.Dialer
	if dialer == nil {
		d := *websocket.DefaultDialer
		d.TLSClientConfig = tlsConfig
		dialer = &d
	}

	return httpc, dialer, nil
}

func buildTLSConfig(creds domain.Credentials) (*tls.Config, error) {
	if creds.Cert == nil && creds.Key == nil && creds.CA == nil {
		return nil, nil
	}

	tlsConfig := &tls.Config{}
	if creds.Cert != nil || creds.Key != nil {
		cert, err := tls.X509KeyPair(creds.Cert, creds.Key)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	if creds.CA != nil {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(creds.CA) {
			return nil, fmt.Errorf("load ca certificate: no certificates found")
		}
		tlsConfig.RootCAs = pool
	}
	return tlsConfig, nil
}

// Do sends req with the session's basic credentials attached. Client
// operations run concurrently through here; nothing serializes them.
func (s *Session) Do(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	username := s.username
	s.mu.Unlock()
	if username == "" {
		username = s.cfg.Credentials.Username
	}
	req.SetBasicAuth(username, s.cfg.Credentials.Password)
	return s.httpc.Do(req)
}

func (s *Session) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := s.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		return domain.NewHTTPError(domain.KindExternal, resp.StatusCode, "get %s: status %d: %s", url, resp.StatusCode, body)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", url, err)
	}
	return nil
}

func (s *Session) resolveAccount(ctx context.Context) (accountInfo, error) {
	var info accountInfo
	if err := s.getJSON(ctx, s.cfg.Credentials.Account, &info); err != nil {
		return accountInfo{}, err
	}
	if info.Ledger == "" {
		return accountInfo{}, domain.NewError(domain.KindExternal, "account resource %s is missing its ledger field", s.cfg.Credentials.Account)
	}
	if info.ID == "" {
		info.ID = s.cfg.Credentials.Account
	}
	if info.Name == "" {
		info.Name = domain.AccountNameFromURI(info.ID)
	}
	return info, nil
}

func (s *Session) fetchMetadata(ctx context.Context, host string) (domain.LedgerMetadata, error) {
	var meta domain.LedgerMetadata
	if err := s.getJSON(ctx, host, &meta); err != nil {
		return domain.LedgerMetadata{}, fmt.Errorf("fetch ledger metadata: %w", err)
	}
	return meta, nil
}

func (s *Session) fetchAuthToken(ctx context.Context, ledger *domain.LedgerContext) (string, error) {
	var token authTokenResponse
	if err := s.getJSON(ctx, ledger.URLs.AuthToken, &token); err != nil {
		return "", fmt.Errorf("fetch auth token: %w", err)
	}
	if token.Token == "" {
		return "", domain.NewError(domain.KindExternal, "auth token response is missing its token field")
	}
	return token.Token, nil
}
