package domain

import (
	"encoding/json"
	"strings"
)

// ServiceURLs is the set of endpoints a ledger advertises in its
// metadata. Transfer-scoped entries are templates containing ":id",
// the account entry contains ":name".
type ServiceURLs struct {
	Transfer            string `json:"transfer"`
	TransferFulfillment string `json:"transfer_fulfillment"`
	TransferRejection   string `json:"transfer_rejection"`
	Account             string `json:"account"`
	AuthToken           string `json:"auth_token"`
	WebSocket           string `json:"websocket"`
	Message             string `json:"message"`
}

// LedgerMetadata is the wire shape of GET <ledger host>.
type LedgerMetadata struct {
	CurrencyCode  string      `json:"currency_code"`
	CurrencyScale int32       `json:"currency_scale"`
	ILPPrefix     string      `json:"ilp_prefix"`
	URLs          ServiceURLs `json:"urls"`
}

// LedgerContext is everything a logical client needs to talk to one
// ledger. Built once per successful connect and shared read-only by
// every handle riding the same session.
type LedgerContext struct {
	Host          string
	URLs          ServiceURLs
	Prefix        string
	CurrencyCode  string
	CurrencyScale int32
}

func requiredURLs(urls ServiceURLs) map[string]string {
	return map[string]string{
		"transfer":             urls.Transfer,
		"transfer_fulfillment": urls.TransferFulfillment,
		"transfer_rejection":   urls.TransferRejection,
		"account":              urls.Account,
		"auth_token":           urls.AuthToken,
		"websocket":            urls.WebSocket,
		"message":              urls.Message,
	}
}

// ValidateServiceURLs checks the required endpoint set: every key must
// be present, the websocket entry must be a ws(s) URL and everything
// else http(s).
func ValidateServiceURLs(urls ServiceURLs) error {
	for key, value := range requiredURLs(urls) {
		if value == "" {
			return NewError(KindExternal, "ledger metadata is missing required url %q", key)
		}
		if key == "websocket" {
			if !strings.HasPrefix(value, "ws") {
				return NewError(KindExternal, "ledger metadata url %q must be a websocket url, got %q", key, value)
			}
			continue
		}
		if !strings.HasPrefix(value, "http") {
			return NewError(KindExternal, "ledger metadata url %q must be an http url, got %q", key, value)
		}
	}
	return nil
}

// NewLedgerContext validates metadata and freezes it into a context.
func NewLedgerContext(host string, meta LedgerMetadata) (*LedgerContext, error) {
	if err := ValidateServiceURLs(meta.URLs); err != nil {
		return nil, err
	}
	if meta.ILPPrefix == "" {
		return nil, NewError(KindExternal, "ledger metadata is missing ilp_prefix")
	}
	return &LedgerContext{
		Host:          host,
		URLs:          meta.URLs,
		Prefix:        meta.ILPPrefix,
		CurrencyCode:  meta.CurrencyCode,
		CurrencyScale: meta.CurrencyScale,
	}, nil
}

// TransferURL expands the transfer template for a ledger-local id.
func (c *LedgerContext) TransferURL(id string) string {
	return strings.Replace(c.URLs.Transfer, ":id", id, 1)
}

// FulfillmentURL expands the transfer_fulfillment template.
func (c *LedgerContext) FulfillmentURL(id string) string {
	return strings.Replace(c.URLs.TransferFulfillment, ":id", id, 1)
}

// RejectionURL expands the transfer_rejection template.
func (c *LedgerContext) RejectionURL(id string) string {
	return strings.Replace(c.URLs.TransferRejection, ":id", id, 1)
}

// AccountURL expands the account template for a username.
func (c *LedgerContext) AccountURL(name string) string {
	return strings.Replace(c.URLs.Account, ":name", name, 1)
}

// Address rewrites a username into its ILP form, prefix+name.
func (c *LedgerContext) Address(name string) string {
	return c.Prefix + name
}

// AccountNameFromURI extracts the trailing path segment of an account
// URI, which five-bells ledgers use as the username.
func AccountNameFromURI(uri string) string {
	trimmed := strings.TrimRight(uri, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return trimmed
	}
	return trimmed[idx+1:]
}

// AccountResource is the wire shape of GET <account url>.
type AccountResource struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Ledger  string          `json:"ledger"`
	Balance string          `json:"balance,omitempty"`
	Extra   json.RawMessage `json:"-"`
}
