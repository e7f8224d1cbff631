package session

import (
	"context"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/crossrail/fivebells/internal/domain"
)

// reconnectDelays is the fibonacci-flavored wait schedule between
// reopen attempts, capped so a flapping ledger is re-polled at a
// steady ~500ms.
var reconnectDelays = []time.Duration{
	100 * time.Millisecond,
	100 * time.Millisecond,
	200 * time.Millisecond,
	300 * time.Millisecond,
	500 * time.Millisecond,
}

func reconnectDelay(attempt int) time.Duration {
	if attempt >= len(reconnectDelays) {
		return reconnectDelays[len(reconnectDelays)-1]
	}
	return reconnectDelays[attempt]
}

// openSocket dials the ledger websocket and waits for the wire-level
// "connect" notification that marks the socket live. The caller still
// has to subscribe before the session counts as connected.
func (s *Session) openSocket(ctx context.Context, ledger *domain.LedgerContext, token string) error {
	wsURL := ledger.URLs.WebSocket + "?token=" + url.QueryEscape(token)

	conn, resp, err := s.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return domain.NewHTTPError(domain.KindExternal, status, "open websocket %s: %v", ledger.URLs.WebSocket, err)
	}

	connectCh := make(chan struct{}, 1)
	s.mu.Lock()
	s.conn = conn
	s.connGen++
	gen := s.connGen
	s.connectCh = connectCh
	s.mu.Unlock()

	go s.readLoop(conn, gen)

	select {
	case <-connectCh:
		return nil
	case <-ctx.Done():
		s.teardownSocket()
		return domain.NewError(domain.KindTimeout, "timed out waiting for websocket connect notification")
	}
}

// readLoop is the session's single reader. Notifications are
// dispatched synchronously so downstream handlers observe them in
// arrival order.
func (s *Session) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.handleSocketLoss(conn, gen, err)
			return
		}
		s.handleMessage(conn, data)
	}
}

func (s *Session) handleSocketLoss(conn *websocket.Conn, gen int, cause error) {
	s.mu.Lock()
	if gen != s.connGen || s.conn != conn {
		// A deliberate Disconnect or a newer socket already superseded
		// this reader.
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.connGen++
	wasConnected := s.state == Connected
	s.state = Disconnected
	s.mu.Unlock()

	s.failPending(domain.NewError(domain.KindExternal, "websocket closed: %v", cause))

	if !wasConnected {
		return
	}
	s.log.Debug().Err(cause).Msg("websocket lost, reconnecting")
	s.emitDisconnect()
	go s.reconnectLoop()
}

// reconnectLoop reopens the socket after an unexpected loss. Each
// successful reopen re-reads the live subscription set before the
// session signals connected again.
func (s *Session) reconnectLoop() {
	for attempt := 0; ; attempt++ {
		s.mu.Lock()
		if s.closing {
			s.mu.Unlock()
			return
		}
		ledger := s.ledger
		s.mu.Unlock()

		err := s.reopen(ledger)
		if err == nil {
			s.mu.Lock()
			s.state = Connected
			s.mu.Unlock()
			s.log.Info().Int("attempt", attempt+1).Msg("websocket reconnected")
			s.emitConnect()
			return
		}
		s.log.Debug().Err(err).Int("attempt", attempt+1).Msg("reconnect attempt failed")

		time.Sleep(reconnectDelay(attempt))
	}
}

func (s *Session) reopen(ledger *domain.LedgerContext) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ConnectTimeout)
	defer cancel()

	// Tokens are short-lived; fetch a fresh one per reopen.
	token, err := s.fetchAuthToken(ctx, ledger)
	if err != nil {
		return err
	}
	if err := s.openSocket(ctx, ledger, token); err != nil {
		return err
	}
	if err := s.subscribeCurrent(ctx); err != nil {
		s.teardownSocket()
		return err
	}
	return nil
}

func (s *Session) subscribeCurrent(ctx context.Context) error {
	if s.cfg.GlobalSubscription {
		return s.SubscribeAllAccounts(ctx)
	}
	return s.SubscribeAccounts(ctx, s.currentSubscriptions())
}

func (s *Session) teardownSocket() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.connGen++
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	s.failPending(domain.NewError(domain.KindExternal, "websocket torn down"))
}
