// Package ledgertest runs an in-process five-bells ledger double for
// session, client and router tests: the HTTP resource endpoints plus
// the websocket notification channel.
package ledgertest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/crossrail/fivebells/internal/domain"
)

const (
	Prefix        = "us.red."
	CurrencyCode  = "USD"
	CurrencyScale = 2
)

// Ledger is one fake ledger instance. The hook fields let a test shape
// individual responses; unset hooks answer with the happy path.
type Ledger struct {
	Server *httptest.Server

	// OnMetadataGet, when set, answers the metadata fetch instead of the
	// built-in document. Blocking inside the hook stalls the fetch.
	OnMetadataGet func() (int, string)

	OnTransferPut    func(id string, body []byte) (int, string)
	OnFulfillmentPut func(id string, body []byte) (int, string)
	OnFulfillmentGet func(id string) (int, string)
	OnRejectionPut   func(id string, body []byte) (int, string)
	OnMessagePost    func(body []byte) (int, string)
	OnAccountGet     func(name string) (int, string)
	OnCaseTarget     func(caseID string, body []byte) (int, string)

	// SubscribeCh receives the account set of every subscribe_account
	// call; subscribe_all_accounts sends the single element "*".
	SubscribeCh chan []string

	// InboundCh receives every websocket message that is neither a
	// subscribe call nor otherwise recognized (notification acks land
	// here).
	InboundCh chan []byte

	resolveCount  atomic.Int64
	tokenCount    atomic.Int64
	metadataCount atomic.Int64

	mu         sync.Mutex
	conn       *websocket.Conn
	writeMu    sync.Mutex
	balances   map[string]string
	lastAuth   string
	requestIDs []int64
}

func New(t *testing.T) *Ledger {
	t.Helper()

	l := &Ledger{
		SubscribeCh: make(chan []string, 16),
		InboundCh:   make(chan []byte, 16),
		balances:    map[string]string{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", l.handleMetadata)
	mux.HandleFunc("/accounts/", l.handleAccount)
	mux.HandleFunc("/auth_token", l.handleAuthToken)
	mux.HandleFunc("/websocket", l.handleWebsocket)
	mux.HandleFunc("/transfers/", l.handleTransfer)
	mux.HandleFunc("/messages", l.handleMessage)
	mux.HandleFunc("/cases/", l.handleCase)

	l.Server = httptest.NewServer(mux)
	t.Cleanup(l.Server.Close)
	return l
}

// AccountURL returns the account resource URL for a username.
func (l *Ledger) AccountURL(name string) string {
	return l.Server.URL + "/accounts/" + name
}

// SetBalance seeds the balance returned for one account.
func (l *Ledger) SetBalance(name, balance string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[name] = balance
}

// ResolveCount reports how many times any account resource was fetched
// over HTTP.
func (l *Ledger) ResolveCount() int64 {
	return l.resolveCount.Load()
}

// TokenCount reports how many auth tokens were issued.
func (l *Ledger) TokenCount() int64 {
	return l.tokenCount.Load()
}

// MetadataCount reports how many times the ledger metadata was fetched.
func (l *Ledger) MetadataCount() int64 {
	return l.metadataCount.Load()
}

// CaseURL returns the notary case URL for an id.
func (l *Ledger) CaseURL(id string) string {
	return l.Server.URL + "/cases/" + id
}

// RequestIDs returns every rpc id seen over the socket, in order.
func (l *Ledger) RequestIDs() []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int64{}, l.requestIDs...)
}

// LastAuthUser returns the basic-auth username of the most recent
// request.
func (l *Ledger) LastAuthUser() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastAuth
}

// Notify pushes one notification over the live socket.
func (l *Ledger) Notify(t *testing.T, n domain.Notification) {
	t.Helper()

	params, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("marshal notification: %v", err)
	}
	push := map[string]any{
		"jsonrpc": "2.0",
		"id":      nil,
		"method":  "notify",
		"params":  json.RawMessage(params),
	}
	l.writeConn(t, push)
}

// PushConnect re-sends the wire-level connect announcement.
func (l *Ledger) PushConnect(t *testing.T) {
	t.Helper()
	l.writeConn(t, map[string]any{"jsonrpc": "2.0", "id": nil, "method": "connect"})
}

// DropConnection closes the live socket from the server side, as a
// crashing ledger would.
func (l *Ledger) DropConnection() {
	l.mu.Lock()
	conn := l.conn
	l.conn = nil
	l.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// WaitSubscribe blocks until the next subscribe call arrives.
func (l *Ledger) WaitSubscribe(t *testing.T) []string {
	t.Helper()
	select {
	case accounts := <-l.SubscribeCh:
		return accounts
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a subscribe call")
		return nil
	}
}

func (l *Ledger) writeConn(t *testing.T, v any) {
	t.Helper()

	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		t.Fatal("no live websocket connection")
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write websocket message: %v", err)
	}
}

func (l *Ledger) recordAuth(r *http.Request) {
	user, _, _ := r.BasicAuth()
	l.mu.Lock()
	l.lastAuth = user
	l.mu.Unlock()
}

func (l *Ledger) handleMetadata(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	l.recordAuth(r)
	l.metadataCount.Add(1)

	if l.OnMetadataGet != nil {
		status, body := l.OnMetadataGet()
		writeRaw(w, status, body)
		return
	}

	base := l.Server.URL
	wsBase := "ws" + strings.TrimPrefix(base, "http")
	meta := domain.LedgerMetadata{
		CurrencyCode:  CurrencyCode,
		CurrencyScale: CurrencyScale,
		ILPPrefix:     Prefix,
		URLs: domain.ServiceURLs{
			Transfer:            base + "/transfers/:id",
			TransferFulfillment: base + "/transfers/:id/fulfillment",
			TransferRejection:   base + "/transfers/:id/rejection",
			Account:             base + "/accounts/:name",
			AuthToken:           base + "/auth_token",
			WebSocket:           wsBase + "/websocket",
			Message:             base + "/messages",
		},
	}
	writeJSON(w, http.StatusOK, meta)
}

func (l *Ledger) handleAccount(w http.ResponseWriter, r *http.Request) {
	l.recordAuth(r)
	l.resolveCount.Add(1)

	name := domain.AccountNameFromURI(r.URL.Path)
	if l.OnAccountGet != nil {
		status, body := l.OnAccountGet(name)
		writeRaw(w, status, body)
		return
	}

	l.mu.Lock()
	balance := l.balances[name]
	l.mu.Unlock()
	if balance == "" {
		balance = "0"
	}
	writeJSON(w, http.StatusOK, domain.AccountResource{
		ID:      l.AccountURL(name),
		Name:    name,
		Ledger:  l.Server.URL,
		Balance: balance,
	})
}

func (l *Ledger) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	l.recordAuth(r)
	n := l.tokenCount.Add(1)
	writeJSON(w, http.StatusOK, map[string]string{"token": fmt.Sprintf("token-%d", n)})
}

var upgrader = websocket.Upgrader{}

func (l *Ledger) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("token") == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	l.mu.Lock()
	old := l.conn
	l.conn = conn
	l.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	l.writeMu.Lock()
	_ = conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": nil, "method": "connect"})
	l.writeMu.Unlock()

	go l.readLoop(conn)
}

func (l *Ledger) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg struct {
			ID     *int64 `json:"id"`
			Method string `json:"method"`
			Params struct {
				EventType string   `json:"eventType"`
				Accounts  []string `json:"accounts"`
			} `json:"params"`
		}
		if err := json.Unmarshal(data, &msg); err != nil || msg.ID == nil || msg.Method == "" {
			select {
			case l.InboundCh <- data:
			default:
			}
			continue
		}

		l.mu.Lock()
		l.requestIDs = append(l.requestIDs, *msg.ID)
		l.mu.Unlock()

		switch msg.Method {
		case "subscribe_account":
			accounts := msg.Params.Accounts
			if accounts == nil {
				accounts = []string{}
			}
			l.SubscribeCh <- accounts
		case "subscribe_all_accounts":
			l.SubscribeCh <- []string{"*"}
		default:
			// Unknown methods are left unanswered so tests can observe
			// pending-call teardown.
			continue
		}

		reply := map[string]any{"jsonrpc": "2.0", "id": *msg.ID, "result": 1}
		l.writeMu.Lock()
		_ = conn.WriteJSON(reply)
		l.writeMu.Unlock()
	}
}

func (l *Ledger) handleTransfer(w http.ResponseWriter, r *http.Request) {
	l.recordAuth(r)
	body, _ := io.ReadAll(r.Body)

	rest := strings.TrimPrefix(r.URL.Path, "/transfers/")
	id, sub, _ := strings.Cut(rest, "/")

	switch {
	case sub == "fulfillment" && r.Method == http.MethodPut:
		if l.OnFulfillmentPut != nil {
			status, resp := l.OnFulfillmentPut(id, body)
			writeRaw(w, status, resp)
			return
		}
		writeRaw(w, http.StatusOK, "")
	case sub == "fulfillment" && r.Method == http.MethodGet:
		if l.OnFulfillmentGet != nil {
			status, resp := l.OnFulfillmentGet(id)
			writeRaw(w, status, resp)
			return
		}
		http.NotFound(w, r)
	case sub == "rejection" && r.Method == http.MethodPut:
		if l.OnRejectionPut != nil {
			status, resp := l.OnRejectionPut(id, body)
			writeRaw(w, status, resp)
			return
		}
		writeRaw(w, http.StatusOK, "")
	case sub == "" && r.Method == http.MethodPut:
		if l.OnTransferPut != nil {
			status, resp := l.OnTransferPut(id, body)
			writeRaw(w, status, resp)
			return
		}
		writeRaw(w, http.StatusCreated, "")
	default:
		http.NotFound(w, r)
	}
}

func (l *Ledger) handleCase(w http.ResponseWriter, r *http.Request) {
	l.recordAuth(r)
	body, _ := io.ReadAll(r.Body)

	rest := strings.TrimPrefix(r.URL.Path, "/cases/")
	id, sub, _ := strings.Cut(rest, "/")
	if sub != "targets" || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	if l.OnCaseTarget != nil {
		status, resp := l.OnCaseTarget(id, body)
		writeRaw(w, status, resp)
		return
	}
	writeRaw(w, http.StatusOK, "")
}

func (l *Ledger) handleMessage(w http.ResponseWriter, r *http.Request) {
	l.recordAuth(r)
	body, _ := io.ReadAll(r.Body)

	if l.OnMessagePost != nil {
		status, resp := l.OnMessagePost(body)
		writeRaw(w, status, resp)
		return
	}
	writeRaw(w, http.StatusCreated, "")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, status int, body string) {
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
