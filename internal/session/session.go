// Package session owns the single authenticated connection to one
// ledger: retrying account/metadata/token resolution over HTTP, the
// websocket subscription transport, request/response correlation and
// the reconnect loop.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/crossrail/fivebells/internal/domain"
	"github.com/crossrail/fivebells/internal/retry"
)

type State int

const (
	Disconnected State = iota
	Resolving
	Subscribing
	Connected
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Resolving:
		return "resolving"
	case Subscribing:
		return "subscribing"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

const DefaultConnectTimeout = 60 * time.Second

// Config wires one Session. Credentials are required; everything else
// has a usable zero value.
type Config struct {
	Credentials domain.Credentials

	// ConnectTimeout bounds the retrying account resolution and,
	// separately, the remaining connect legs (metadata, token, socket,
	// subscribe).
	ConnectTimeout time.Duration

	// RetryForever makes account resolution retry without a deadline.
	// The later connect legs stay bounded by ConnectTimeout.
	RetryForever bool

	// GlobalSubscription subscribes to every account on the ledger
	// instead of an explicit account set.
	GlobalSubscription bool

	// DebugReplies echoes a processed/ignored acknowledgement over the
	// socket after each notification is dispatched.
	DebugReplies bool

	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	Logger     zerolog.Logger
}

// NotificationHandler consumes one pushed notification. Returning an
// UnrelatedNotificationError-kinded error marks the push ignored; it
// is never surfaced past the session.
type NotificationHandler func(n domain.Notification) error

// connectAttempt is shared by every caller that arrives while a
// connect is in flight.
type connectAttempt struct {
	done chan struct{}
	err  error
}

func (a *connectAttempt) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-a.done:
		return a.err
	}
}

type Session struct {
	cfg    Config
	httpc  *http.Client
	dialer *websocket.Dialer
	log    zerolog.Logger

	mu            sync.Mutex
	state         State
	everLive      bool
	inflight      *connectAttempt
	ledger        *domain.LedgerContext
	username      string
	account       string
	conn          *websocket.Conn
	connGen       int
	closing       bool
	connectCh     chan struct{}
	connectCancel context.CancelFunc

	writeMu sync.Mutex

	rpcMu   sync.Mutex
	nextID  int64
	pending map[int64]chan rpcOutcome

	listenerMu    sync.Mutex
	onConnect     []func()
	onDisconnect  []func()
	notifyHandler NotificationHandler

	// subscriptions yields the live account set to (re)subscribe; read
	// fresh on every push so reconnects never replay a stale snapshot.
	subscriptions func() []string
}

// New builds a session from config. Call OnNotification and
// SetSubscriptions before Connect.
func New(cfg Config) (*Session, error) {
	if cfg.Credentials.Account == "" {
		return nil, domain.NewError(domain.KindInvalidFields, "credentials require an account uri")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	httpc, dialer, err := buildTransport(cfg)
	if err != nil {
		return nil, err
	}
	return &Session{
		cfg:     cfg,
		httpc:   httpc,
		dialer:  dialer,
		log:     cfg.Logger,
		pending: map[int64]chan rpcOutcome{},
	}, nil
}

// OnNotification installs the single downstream notification handler.
func (s *Session) OnNotification(fn NotificationHandler) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.notifyHandler = fn
}

// OnConnect registers a listener fired on every transition to
// connected, including reconnects.
func (s *Session) OnConnect(fn func()) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.onConnect = append(s.onConnect, fn)
}

// OnDisconnect registers a listener fired on every socket loss and on
// deliberate disconnect.
func (s *Session) OnDisconnect(fn func()) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.onDisconnect = append(s.onDisconnect, fn)
}

// SetSubscriptions installs the live provider of the account-URI set
// to subscribe. Unset, the session subscribes its own account.
func (s *Session) SetSubscriptions(fn func() []string) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.subscriptions = fn
}

func (s *Session) currentSubscriptions() []string {
	s.listenerMu.Lock()
	fn := s.subscriptions
	s.listenerMu.Unlock()
	if fn != nil {
		return fn()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return []string{s.account}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsConnected reports whether the socket is live and subscribed.
func (s *Session) IsConnected() bool {
	return s.State() == Connected
}

// Ledger returns the resolved ledger context, nil before the first
// successful connect.
func (s *Session) Ledger() *domain.LedgerContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger
}

// Username returns the canonical username, resolved at connect time
// when the credentials left it empty.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// Account returns the session's own account URI.
func (s *Session) Account() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.account != "" {
		return s.account
	}
	return s.cfg.Credentials.Account
}

// Connect establishes the session. Concurrent callers share one
// attempt: the account is resolved once no matter how many callers
// race, and each caller's own ctx bounds only its wait.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state == Connected {
		s.mu.Unlock()
		return nil
	}
	if s.inflight != nil {
		att := s.inflight
		s.mu.Unlock()
		return att.wait(ctx)
	}
	att := &connectAttempt{done: make(chan struct{})}
	s.inflight = att
	s.closing = false
	s.state = Resolving
	s.mu.Unlock()

	go func() {
		err := s.runConnect()
		s.mu.Lock()
		s.inflight = nil
		s.connectCancel = nil
		if err != nil {
			if s.everLive || s.closing {
				s.state = Disconnected
			} else {
				s.state = Failed
			}
		}
		s.mu.Unlock()
		att.err = err
		close(att.done)
	}()

	return att.wait(ctx)
}

func (s *Session) runConnect() error {
	scheme := urlScheme(s.cfg.Credentials.Account)
	if scheme != "http" && scheme != "https" {
		return domain.NewError(domain.KindInvalidFields, "invalid account uri %q: scheme must be http or https", s.cfg.Credentials.Account)
	}

	base, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return errConnectAborted
	}
	s.connectCancel = cancel
	s.mu.Unlock()

	resolveCtx := base
	opts := retry.Options{Deadline: s.cfg.ConnectTimeout}
	if s.cfg.RetryForever {
		opts.Deadline = 0
	} else {
		// The deadline also bounds each attempt, so a ledger that accepts
		// the request but never answers cannot wedge the shared attempt.
		var cancelResolve context.CancelFunc
		resolveCtx, cancelResolve = context.WithTimeout(base, s.cfg.ConnectTimeout)
		defer cancelResolve()
	}

	var resolved accountInfo
	err := retry.Retry(resolveCtx, opts, func(ctx context.Context) error {
		var err error
		resolved, err = s.resolveAccount(ctx)
		if err != nil {
			s.log.Debug().Err(err).Str("account", s.cfg.Credentials.Account).Msg("account resolution failed, will retry")
		}
		return err
	})
	if err != nil {
		return connectErr(resolveCtx, fmt.Errorf("resolve account %s: %w", s.cfg.Credentials.Account, err))
	}

	// The remaining legs share one deadline regardless of RetryForever;
	// only resolution is allowed to wait out a slow ledger.
	ctx, cancelLegs := context.WithTimeout(base, s.cfg.ConnectTimeout)
	defer cancelLegs()

	meta, err := s.fetchMetadata(ctx, resolved.Ledger)
	if err != nil {
		return connectErr(ctx, err)
	}
	ledger, err := domain.NewLedgerContext(resolved.Ledger, meta)
	if err != nil {
		return err
	}

	username := s.cfg.Credentials.Username
	if username == "" {
		username = resolved.Name
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return errConnectAborted
	}
	s.ledger = ledger
	s.username = username
	s.account = resolved.ID
	s.state = Subscribing
	s.mu.Unlock()

	token, err := s.fetchAuthToken(ctx, ledger)
	if err != nil {
		return connectErr(ctx, err)
	}

	if err := s.openSocket(ctx, ledger, token); err != nil {
		return connectErr(ctx, err)
	}

	if err := s.subscribeCurrent(ctx); err != nil {
		s.teardownSocket()
		return connectErr(ctx, err)
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		s.teardownSocket()
		return errConnectAborted
	}
	s.state = Connected
	s.everLive = true
	s.mu.Unlock()
	s.log.Info().Str("ledger", ledger.Host).Str("username", username).Msg("session connected")
	s.emitConnect()
	return nil
}

// connectErr maps a connect leg failing by deadline expiry onto the
// timeout kind callers match on.
func connectErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.NewError(domain.KindTimeout, "connect deadline exceeded: %v", err)
	}
	return err
}

// Disconnect tears the session down. Idempotent; every pending rpc
// fails immediately rather than hanging.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if s.state == Disconnected && s.conn == nil {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	if s.connectCancel != nil {
		s.connectCancel()
		s.connectCancel = nil
	}
	conn := s.conn
	s.conn = nil
	s.connGen++
	s.state = Disconnected
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	s.failPending(domain.NewError(domain.KindExternal, "session disconnected"))
	s.emitDisconnect()
	return nil
}

func (s *Session) emitConnect() {
	s.listenerMu.Lock()
	listeners := append([]func(){}, s.onConnect...)
	s.listenerMu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

func (s *Session) emitDisconnect() {
	s.listenerMu.Lock()
	listeners := append([]func(){}, s.onDisconnect...)
	s.listenerMu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

func (s *Session) notificationHandler() NotificationHandler {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	return s.notifyHandler
}

func urlScheme(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Scheme
}

var (
	errNotConnected   = errors.New("session is not connected")
	errConnectAborted = domain.NewError(domain.KindExternal, "connect aborted by disconnect")
)
