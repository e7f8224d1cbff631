// Package client exposes the per-account operation surface: submit,
// fulfill and reject transfers, send messages, query balance and
// ledger info, and subscribe to the typed event stream.
package client

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/crossrail/fivebells/internal/domain"
	"github.com/crossrail/fivebells/internal/ports"
	"github.com/crossrail/fivebells/internal/session"
	"github.com/crossrail/fivebells/internal/translate"
)

// EventHandler observes one typed event.
type EventHandler func(event domain.Event)

// Client is one logical account on one ledger session. An owning
// client drives the session lifecycle; a delegated handle (built by
// the router) shares a session it does not manage, so its Connect and
// Disconnect are no-ops.
type Client struct {
	sess      *session.Session
	account   string
	validator ports.Validator
	log       zerolog.Logger
	owning    bool

	listenerMu sync.Mutex
	listeners  map[domain.EventKind][]EventHandler
	anyKind    []EventHandler

	infoMu sync.Mutex
	info   *domain.LedgerMetadata
}

// NewOwning builds the client that owns its session lifecycle and
// installs itself as the session's notification consumer.
func NewOwning(sess *session.Session, validator ports.Validator, log zerolog.Logger) *Client {
	c := newClient(sess, "", validator, log, true)
	sess.OnNotification(c.HandleNotification)
	return c
}

// NewDelegated builds a handle for one account riding a shared
// session. The router, not the handle, dispatches notifications.
func NewDelegated(sess *session.Session, account string, validator ports.Validator, log zerolog.Logger) *Client {
	return newClient(sess, account, validator, log, false)
}

func newClient(sess *session.Session, account string, validator ports.Validator, log zerolog.Logger, owning bool) *Client {
	return &Client{
		sess:      sess,
		account:   account,
		validator: validator,
		log:       log,
		owning:    owning,
		listeners: map[domain.EventKind][]EventHandler{},
	}
}

// Account returns the client's account URI.
func (c *Client) Account() string {
	if c.account != "" {
		return c.account
	}
	return c.sess.Account()
}

// Ledger returns the shared ledger context, nil before connect.
func (c *Client) Ledger() *domain.LedgerContext {
	return c.sess.Ledger()
}

// IsConnected reports whether the underlying session is live.
func (c *Client) IsConnected() bool {
	return c.sess.IsConnected()
}

// Connect establishes the underlying session. On a delegated handle
// it is a no-op: the shared session's owner connected already.
func (c *Client) Connect(ctx context.Context) error {
	if !c.owning {
		return nil
	}
	return c.sess.Connect(ctx)
}

// Disconnect tears down the underlying session; a no-op on delegated
// handles.
func (c *Client) Disconnect() error {
	if !c.owning {
		return nil
	}
	return c.sess.Disconnect()
}

// OnEvent registers a handler for one event kind.
func (c *Client) OnEvent(kind domain.EventKind, fn EventHandler) {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()
	c.listeners[kind] = append(c.listeners[kind], fn)
}

// OnAnyEvent registers a handler for every event kind.
func (c *Client) OnAnyEvent(fn EventHandler) {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()
	c.anyKind = append(c.anyKind, fn)
}

func (c *Client) emit(event domain.Event) {
	c.listenerMu.Lock()
	handlers := append([]EventHandler{}, c.listeners[event.Kind]...)
	handlers = append(handlers, c.anyKind...)
	c.listenerMu.Unlock()
	for _, fn := range handlers {
		fn(event)
	}
}

// HandleNotification translates one pushed notification against this
// client's account and emits the resulting events. Unrelated pushes
// are reported to the caller but never reach listeners.
func (c *Client) HandleNotification(n domain.Notification) error {
	ledger := c.sess.Ledger()
	if ledger == nil {
		return domain.NewError(domain.KindExternal, "notification before ledger context was resolved")
	}

	events, err := translate.Notification(n, c.Account(), ledger, c.validator)
	if err != nil {
		if domain.IsKind(err, domain.KindUnrelatedNotification) {
			c.log.Debug().Str("event", n.Event).Msg("ignoring unrelated notification")
		} else {
			c.log.Debug().Err(err).Str("event", n.Event).Msg("dropping invalid notification")
		}
		return err
	}

	for _, event := range events {
		c.emit(event)
	}
	return nil
}
