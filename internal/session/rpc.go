package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/crossrail/fivebells/internal/domain"
)

type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int64  `json:"code,omitempty"`
	Message string `json:"message"`
}

type rpcOutcome struct {
	result json.RawMessage
	err    error
}

type subscribeParams struct {
	EventType string   `json:"eventType"`
	Accounts  []string `json:"accounts,omitempty"`
}

type ignoreReason struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

type notificationAck struct {
	Result       string        `json:"result"`
	IgnoreReason *ignoreReason `json:"ignoreReason,omitempty"`
}

// Request sends one JSON-RPC call over the socket and waits for the
// matching response. Responses correlate strictly by id; pushes
// interleaved on the socket never disturb a pending call.
func (s *Session) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	rawParams, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal %s params: %w", method, err)
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil, domain.NewError(domain.KindExternal, "%s: %v", method, errNotConnected)
	}

	s.rpcMu.Lock()
	s.nextID++
	id := s.nextID
	ch := make(chan rpcOutcome, 1)
	s.pending[id] = ch
	s.rpcMu.Unlock()

	msg := rpcMessage{JSONRPC: "2.0", ID: &id, Method: method, Params: rawParams}
	if err := s.writeJSON(conn, msg); err != nil {
		s.rpcMu.Lock()
		delete(s.pending, id)
		s.rpcMu.Unlock()
		return nil, fmt.Errorf("send %s request: %w", method, err)
	}

	select {
	case <-ctx.Done():
		s.rpcMu.Lock()
		delete(s.pending, id)
		s.rpcMu.Unlock()
		return nil, ctx.Err()
	case outcome := <-ch:
		return outcome.result, outcome.err
	}
}

// SubscribeAccounts replaces the ledger-side subscription with exactly
// the given account set.
func (s *Session) SubscribeAccounts(ctx context.Context, accounts []string) error {
	if accounts == nil {
		accounts = []string{}
	}
	_, err := s.Request(ctx, "subscribe_account", subscribeParams{EventType: "*", Accounts: accounts})
	if err != nil {
		return fmt.Errorf("subscribe accounts: %w", err)
	}
	s.log.Debug().Strs("accounts", accounts).Msg("subscription pushed")
	return nil
}

// SubscribeAllAccounts subscribes to every account on the ledger.
func (s *Session) SubscribeAllAccounts(ctx context.Context) error {
	_, err := s.Request(ctx, "subscribe_all_accounts", subscribeParams{EventType: "*"})
	if err != nil {
		return fmt.Errorf("subscribe all accounts: %w", err)
	}
	s.log.Debug().Msg("global subscription pushed")
	return nil
}

// writeJSON serializes socket writes so no rpc message interleaves
// with another.
func (s *Session) writeJSON(conn *websocket.Conn, v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteJSON(v)
}

func (s *Session) handleMessage(conn *websocket.Conn, data []byte) {
	var msg rpcMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.log.Debug().Err(err).Msg("dropping unparseable websocket message")
		return
	}

	switch {
	case msg.Method == "connect":
		s.mu.Lock()
		ch := s.connectCh
		s.mu.Unlock()
		if ch != nil {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	case msg.Method == "notify":
		s.dispatchNotification(conn, msg.Params)
	case msg.ID != nil:
		s.resolvePending(*msg.ID, msg)
	default:
		s.log.Debug().Str("method", msg.Method).Msg("dropping unrecognized websocket message")
	}
}

func (s *Session) dispatchNotification(conn *websocket.Conn, params json.RawMessage) {
	var n domain.Notification
	if err := json.Unmarshal(params, &n); err != nil {
		s.log.Debug().Err(err).Msg("dropping malformed notification")
		return
	}

	handler := s.notificationHandler()
	if handler == nil {
		return
	}
	err := handler(n)

	if !s.cfg.DebugReplies {
		return
	}
	ack := notificationAck{Result: "processed"}
	if err != nil {
		ack.Result = "ignored"
		ack.IgnoreReason = &ignoreReason{ID: string(domain.KindOf(err)), Message: err.Error()}
	}
	if writeErr := s.writeJSON(conn, ack); writeErr != nil {
		s.log.Debug().Err(writeErr).Msg("failed to send notification acknowledgement")
	}
}

func (s *Session) resolvePending(id int64, msg rpcMessage) {
	s.rpcMu.Lock()
	ch, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.rpcMu.Unlock()
	if !ok {
		// Unknown ids are dropped; the caller may have timed out.
		s.log.Debug().Int64("id", id).Msg("dropping response with unknown id")
		return
	}

	outcome := rpcOutcome{result: msg.Result}
	if msg.Error != nil {
		outcome.err = domain.NewError(domain.KindExternal, "%s", msg.Error.Message)
	}
	ch <- outcome
}

// failPending rejects every in-flight rpc, typically on socket loss or
// deliberate disconnect. Pending requests are never leaked.
func (s *Session) failPending(err error) {
	s.rpcMu.Lock()
	pending := s.pending
	s.pending = map[int64]chan rpcOutcome{}
	s.rpcMu.Unlock()
	for _, ch := range pending {
		ch <- rpcOutcome{err: err}
	}
}
