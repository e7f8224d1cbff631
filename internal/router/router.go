// Package router multiplexes one admin ledger session across many
// per-account handles: it maintains the subscribed-account set as
// handles come and go and fans each inbound notification out to every
// handle it concerns.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sync"

	"github.com/rs/zerolog"

	"github.com/crossrail/fivebells/internal/client"
	"github.com/crossrail/fivebells/internal/domain"
	"github.com/crossrail/fivebells/internal/ports"
	"github.com/crossrail/fivebells/internal/session"
	"github.com/crossrail/fivebells/internal/translate"
)

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,86}$`)

const maxProbeBytes = 1 << 16

// AccountEventHandler observes router-level events in global
// subscription mode, tagged with the username they concern.
type AccountEventHandler func(username string, event domain.Event)

type Config struct {
	Session   *session.Session
	Validator ports.Validator
	Logger    zerolog.Logger

	// Global switches from per-account subscription maintenance to one
	// ledger-wide subscription plus router-level event emission.
	Global bool
}

type Router struct {
	sess      *session.Session
	validator ports.Validator
	log       zerolog.Logger
	global    bool

	// opMu serializes create/remove against the live subscription push
	// (single-writer discipline over the subscription set). handlesMu
	// guards only the map, so the read loop's Dispatch never waits on
	// an in-flight subscribe rpc.
	opMu      sync.Mutex
	handlesMu sync.RWMutex
	handles   map[string]*client.Client

	listenerMu     sync.Mutex
	accountEventFn []AccountEventHandler
}

// New wires a router onto an admin session. The router becomes the
// session's notification consumer and its live subscription source,
// so reconnects resubscribe exactly the currently registered set.
func New(cfg Config) (*Router, error) {
	if cfg.Session == nil {
		return nil, domain.NewError(domain.KindInvalidFields, "router requires a session")
	}
	r := &Router{
		sess:      cfg.Session,
		validator: cfg.Validator,
		log:       cfg.Logger,
		global:    cfg.Global,
		handles:   map[string]*client.Client{},
	}
	cfg.Session.OnNotification(r.Dispatch)
	cfg.Session.SetSubscriptions(r.SubscribedAccounts)
	return r, nil
}

// OnAccountEvent registers a router-level listener; only global mode
// emits through it.
func (r *Router) OnAccountEvent(fn AccountEventHandler) {
	r.listenerMu.Lock()
	defer r.listenerMu.Unlock()
	r.accountEventFn = append(r.accountEventFn, fn)
}

// Create returns the handle for an account, building it on first use.
// At most one handle exists per account; a second Create for the same
// account returns the first handle unchanged.
func (r *Router) Create(ctx context.Context, accountOrUsername string) (*client.Client, error) {
	username, err := canonicalUsername(accountOrUsername)
	if err != nil {
		return nil, err
	}

	ledger := r.sess.Ledger()
	if ledger == nil {
		return nil, domain.NewError(domain.KindExternal, "create handle before the admin session connected")
	}
	account := ledger.AccountURL(username)

	r.opMu.Lock()
	defer r.opMu.Unlock()

	if handle := r.Handle(username); handle != nil {
		return handle, nil
	}

	if err := r.probeAccount(ctx, account); err != nil {
		return nil, err
	}

	handle := client.NewDelegated(r.sess, account, r.validator, r.log.With().Str("username", username).Logger())
	r.handlesMu.Lock()
	r.handles[username] = handle
	r.handlesMu.Unlock()

	if !r.global {
		if err := r.sess.SubscribeAccounts(ctx, r.SubscribedAccounts()); err != nil {
			r.handlesMu.Lock()
			delete(r.handles, username)
			r.handlesMu.Unlock()
			return nil, err
		}
	}
	r.log.Debug().Str("username", username).Msg("handle created")
	return handle, nil
}

// Remove drops an account's handle and shrinks the ledger-side
// subscription to match; the set may legitimately become empty.
func (r *Router) Remove(ctx context.Context, username string) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.handlesMu.Lock()
	_, ok := r.handles[username]
	delete(r.handles, username)
	r.handlesMu.Unlock()
	if !ok {
		return nil
	}

	if !r.global {
		if err := r.sess.SubscribeAccounts(ctx, r.SubscribedAccounts()); err != nil {
			return err
		}
	}
	r.log.Debug().Str("username", username).Msg("handle removed")
	return nil
}

// Handle returns a registered handle, nil when absent.
func (r *Router) Handle(username string) *client.Client {
	r.handlesMu.RLock()
	defer r.handlesMu.RUnlock()
	return r.handles[username]
}

// SubscribedAccounts is the live account-URI set; the session reads
// it on every reconnect.
func (r *Router) SubscribedAccounts() []string {
	r.handlesMu.RLock()
	defer r.handlesMu.RUnlock()
	accounts := make([]string, 0, len(r.handles))
	for _, handle := range r.handles {
		accounts = append(accounts, handle.Account())
	}
	return accounts
}

// Dispatch routes one inbound notification to every handle whose
// account it touches. Handles are independent observers: one handle's
// translation or listener failure never blocks delivery to the next.
func (r *Router) Dispatch(n domain.Notification) error {
	ledger := r.sess.Ledger()
	if ledger == nil {
		return domain.NewError(domain.KindExternal, "notification before ledger context was resolved")
	}

	involved := involvedAccounts(n)
	if len(involved) == 0 {
		return domain.NewError(domain.KindUnrelatedNotification, "notification names no accounts")
	}

	related := false
	var firstErr error
	for _, account := range involved {
		username := domain.AccountNameFromURI(account)

		if r.global {
			r.emitGlobal(n, account, username, ledger)
		}

		handle := r.Handle(username)
		if handle == nil {
			continue
		}
		if err := handle.HandleNotification(n); err != nil {
			if !domain.IsKind(err, domain.KindUnrelatedNotification) && firstErr == nil {
				firstErr = err
			}
			continue
		}
		related = true
	}

	if related || r.global {
		return nil
	}
	if firstErr != nil {
		return firstErr
	}
	return domain.NewError(domain.KindUnrelatedNotification, "no registered account concerned")
}

func (r *Router) emitGlobal(n domain.Notification, account, username string, ledger *domain.LedgerContext) {
	events, err := translate.Notification(n, account, ledger, r.validator)
	if err != nil {
		if !domain.IsKind(err, domain.KindUnrelatedNotification) {
			r.log.Debug().Err(err).Str("username", username).Msg("global translation failed")
		}
		return
	}

	r.listenerMu.Lock()
	listeners := append([]AccountEventHandler{}, r.accountEventFn...)
	r.listenerMu.Unlock()
	for _, event := range events {
		for _, fn := range listeners {
			fn(username, event)
		}
	}
}

// probeAccount verifies the account exists and the admin credentials
// can see it before a handle is handed out.
func (r *Router) probeAccount(ctx context.Context, account string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, account, nil)
	if err != nil {
		return fmt.Errorf("create account probe request: %w", err)
	}
	resp, err := r.sess.Do(req)
	if err != nil {
		return fmt.Errorf("probe account %s: %w", account, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxProbeBytes))
		return domain.NewHTTPError(domain.KindExternal, resp.StatusCode, "account %s is not reachable: %s", account, body)
	}
	return nil
}

// canonicalUsername accepts either a bare username or a full account
// URI and returns the validated username.
func canonicalUsername(accountOrUsername string) (string, error) {
	username := accountOrUsername
	if containsScheme(accountOrUsername) {
		username = domain.AccountNameFromURI(accountOrUsername)
	}
	if !usernameRe.MatchString(username) {
		return "", domain.NewError(domain.KindInvalidFields, "invalid username %q", username)
	}
	return username, nil
}

func containsScheme(s string) bool {
	for i := 0; i+2 < len(s); i++ {
		if s[i] == ':' && s[i+1] == '/' && s[i+2] == '/' {
			return true
		}
	}
	return false
}

// involvedAccounts extracts and de-duplicates every account URI a
// notification names: debit and credit accounts for transfers, the
// endpoints for messages.
func involvedAccounts(n domain.Notification) []string {
	var accounts []string
	switch n.Event {
	case domain.NotifyTransferCreate, domain.NotifyTransferUpdate:
		var transfer domain.WireTransfer
		if err := json.Unmarshal(n.Resource, &transfer); err != nil {
			return nil
		}
		for _, entry := range transfer.Credits {
			accounts = append(accounts, entry.Account)
		}
		for _, entry := range transfer.Debits {
			accounts = append(accounts, entry.Account)
		}
	case domain.NotifyMessageSend:
		var message domain.WireMessage
		if err := json.Unmarshal(n.Resource, &message); err != nil {
			return nil
		}
		accounts = append(accounts, message.To, message.From, message.Account)
	}

	seen := make(map[string]struct{}, len(accounts))
	unique := accounts[:0]
	for _, account := range accounts {
		if account == "" {
			continue
		}
		if _, ok := seen[account]; ok {
			continue
		}
		seen[account] = struct{}{}
		unique = append(unique, account)
	}
	return unique
}
