package client_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossrail/fivebells/internal/adapters/validate"
	"github.com/crossrail/fivebells/internal/client"
	"github.com/crossrail/fivebells/internal/domain"
	"github.com/crossrail/fivebells/internal/ledgertest"
	"github.com/crossrail/fivebells/internal/session"
)

const (
	transferID          = "6851929f-5a91-4d02-b9f4-4ae6b7f1768c"
	zeroCondition       = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	zeroWireFulfillment = "oCKAIAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
)

func newConnectedClient(t *testing.T) (*client.Client, *ledgertest.Ledger) {
	t.Helper()

	ledger := ledgertest.New(t)
	sess, err := session.New(session.Config{
		Credentials: domain.Credentials{
			Account:  ledger.AccountURL("alice"),
			Password: "secret",
		},
		ConnectTimeout: 5 * time.Second,
	})
	require.NoError(t, err)

	c := client.NewOwning(sess, validate.New(), zerolog.Nop())
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Disconnect() })
	return c, ledger
}

func wireErrorBody(id, message string) string {
	return fmt.Sprintf(`{"id":%q,"message":%q}`, id, message)
}

func TestSendTransferBuildsWireShape(t *testing.T) {
	c, ledger := newConnectedClient(t)

	var mu sync.Mutex
	var captured []byte
	ledger.OnTransferPut = func(id string, body []byte) (int, string) {
		mu.Lock()
		captured = body
		mu.Unlock()
		return http.StatusCreated, ""
	}

	expiry := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	err := c.SendTransfer(context.Background(), domain.Transfer{
		ID:                 transferID,
		To:                 ledgertest.Prefix + "bob",
		Amount:             "1025",
		Data:               json.RawMessage(`{"ilp":"envelope"}`),
		NoteToSelf:         json.RawMessage(`{"private":true}`),
		ExecutionCondition: zeroCondition,
		ExpiresAt:          expiry,
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	var wire domain.WireTransfer
	require.NoError(t, json.Unmarshal(captured, &wire))

	assert.Equal(t, ledger.Server.URL+"/transfers/"+transferID, wire.ID)
	assert.Equal(t, ledger.Server.URL, wire.Ledger)

	require.Len(t, wire.Debits, 1)
	assert.Equal(t, ledger.AccountURL("alice"), wire.Debits[0].Account)
	assert.Equal(t, "10.25", wire.Debits[0].Amount)
	assert.True(t, wire.Debits[0].Authorized)
	assert.JSONEq(t, `{"private":true}`, string(wire.Debits[0].Memo))

	require.Len(t, wire.Credits, 1)
	assert.Equal(t, ledger.AccountURL("bob"), wire.Credits[0].Account)
	assert.Equal(t, "10.25", wire.Credits[0].Amount)
	assert.False(t, wire.Credits[0].Authorized)
	assert.JSONEq(t, `{"ilp":"envelope"}`, string(wire.Credits[0].Memo))

	assert.Equal(t, "ni:///sha-256;"+zeroCondition+"?fpt=preimage-sha-256&cost=32", wire.ExecutionCondition)
	assert.Equal(t, "2026-09-01T12:00:00Z", wire.ExpiresAt)
}

func TestSendTransferRejectsBadInput(t *testing.T) {
	c, _ := newConnectedClient(t)

	err := c.SendTransfer(context.Background(), domain.Transfer{
		ID:     "not-a-uuid",
		To:     ledgertest.Prefix + "bob",
		Amount: "100",
	})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindInvalidFields))

	err = c.SendTransfer(context.Background(), domain.Transfer{
		ID:     transferID,
		To:     "us.blue.bob",
		Amount: "100",
	})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindInvalidFields))

	err = c.SendTransfer(context.Background(), domain.Transfer{
		ID:     transferID,
		To:     ledgertest.Prefix + "bob",
		Amount: "10.5",
	})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindInvalidFields))
}

func TestSendTransferErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		body   string
		kind   domain.Kind
	}{
		{422, wireErrorBody("InsufficientFundsError", "broke"), domain.KindNotAccepted},
		{400, wireErrorBody("InvalidBodyError", "bad json"), domain.KindInvalidFields},
		{409, wireErrorBody("AlreadyExistsError", "seen it"), domain.KindDuplicateID},
		{400, wireErrorBody("SomethingNewError", "???"), domain.KindNotAccepted},
		{500, wireErrorBody("InsufficientFundsError", "crash"), domain.KindExternal},
		{502, "bad gateway", domain.KindExternal},
	}
	for _, tt := range tests {
		c, ledger := newConnectedClient(t)
		ledger.OnTransferPut = func(string, []byte) (int, string) {
			return tt.status, tt.body
		}

		err := c.SendTransfer(context.Background(), domain.Transfer{
			ID:     transferID,
			To:     ledgertest.Prefix + "bob",
			Amount: "100",
		})
		require.Error(t, err, tt.body)
		assert.True(t, domain.IsKind(err, tt.kind), "status %d body %s got %v", tt.status, tt.body, err)
	}
}

func TestSendTransferRegistersCaseTargetsFirst(t *testing.T) {
	c, ledger := newConnectedClient(t)

	var mu sync.Mutex
	var order []string
	var caseBody []byte
	ledger.OnCaseTarget = func(id string, body []byte) (int, string) {
		mu.Lock()
		order = append(order, "case:"+id)
		caseBody = body
		mu.Unlock()
		return http.StatusOK, ""
	}
	ledger.OnTransferPut = func(id string, _ []byte) (int, string) {
		mu.Lock()
		order = append(order, "transfer:"+id)
		mu.Unlock()
		return http.StatusCreated, ""
	}

	err := c.SendTransfer(context.Background(), domain.Transfer{
		ID:     transferID,
		To:     ledgertest.Prefix + "bob",
		Amount: "100",
		Cases:  []string{ledger.CaseURL("case-1")},
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"case:case-1", "transfer:" + transferID}, order)

	var targets []string
	require.NoError(t, json.Unmarshal(caseBody, &targets))
	assert.Equal(t, []string{ledger.Server.URL + "/transfers/" + transferID + "/fulfillment"}, targets)
}

func TestSendTransferCaseFailureIsFatal(t *testing.T) {
	c, ledger := newConnectedClient(t)

	transferAttempted := false
	ledger.OnCaseTarget = func(string, []byte) (int, string) {
		return http.StatusForbidden, "no"
	}
	ledger.OnTransferPut = func(string, []byte) (int, string) {
		transferAttempted = true
		return http.StatusCreated, ""
	}

	err := c.SendTransfer(context.Background(), domain.Transfer{
		ID:     transferID,
		To:     ledgertest.Prefix + "bob",
		Amount: "100",
		Cases:  []string{ledger.CaseURL("case-1")},
	})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindExternal))
	assert.False(t, transferAttempted)
}

func TestFulfillCondition(t *testing.T) {
	c, ledger := newConnectedClient(t)

	var mu sync.Mutex
	var captured string
	ledger.OnFulfillmentPut = func(id string, body []byte) (int, string) {
		mu.Lock()
		captured = string(body)
		mu.Unlock()
		return http.StatusOK, ""
	}

	require.NoError(t, c.FulfillCondition(context.Background(), transferID, zeroCondition))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, zeroWireFulfillment, captured)
}

func TestFulfillConditionErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		body   string
		kind   domain.Kind
	}{
		{404, wireErrorBody("TransferNotFoundError", "gone"), domain.KindTransferNotFound},
		{422, wireErrorBody("TransferNotConditionalError", "plain transfer"), domain.KindTransferNotConditional},
		{422, wireErrorBody("InvalidModificationError", "rolled back"), domain.KindAlreadyRolledBack},
		{422, wireErrorBody("UnmetConditionError", "wrong preimage"), domain.KindNotAccepted},
	}
	for _, tt := range tests {
		c, ledger := newConnectedClient(t)
		ledger.OnFulfillmentPut = func(string, []byte) (int, string) {
			return tt.status, tt.body
		}

		err := c.FulfillCondition(context.Background(), transferID, zeroCondition)
		require.Error(t, err, tt.body)
		assert.True(t, domain.IsKind(err, tt.kind), "body %s got %v", tt.body, err)
	}
}

func TestFulfillConditionRejectsBadPreimage(t *testing.T) {
	c, _ := newConnectedClient(t)

	err := c.FulfillCondition(context.Background(), transferID, "short")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindInvalidFields))
}

func TestGetFulfillment(t *testing.T) {
	c, ledger := newConnectedClient(t)
	ledger.OnFulfillmentGet = func(string) (int, string) {
		return http.StatusOK, zeroWireFulfillment + "\n"
	}

	fulfillment, err := c.GetFulfillment(context.Background(), transferID)
	require.NoError(t, err)
	assert.Equal(t, zeroCondition, fulfillment)
}

func TestGetFulfillmentErrorMapping(t *testing.T) {
	tests := []struct {
		body string
		kind domain.Kind
	}{
		{wireErrorBody("MissingFulfillmentError", "not executed"), domain.KindMissingFulfillment},
		{wireErrorBody("NotFoundError", "nothing there"), domain.KindMissingFulfillment},
		{wireErrorBody("AlreadyRolledBackError", "expired"), domain.KindAlreadyRolledBack},
	}
	for _, tt := range tests {
		c, ledger := newConnectedClient(t)
		ledger.OnFulfillmentGet = func(string) (int, string) {
			return http.StatusNotFound, tt.body
		}

		_, err := c.GetFulfillment(context.Background(), transferID)
		require.Error(t, err, tt.body)
		assert.True(t, domain.IsKind(err, tt.kind), "body %s got %v", tt.body, err)
	}
}

func TestRejectIncomingTransfer(t *testing.T) {
	c, ledger := newConnectedClient(t)

	var mu sync.Mutex
	var captured []byte
	ledger.OnRejectionPut = func(id string, body []byte) (int, string) {
		mu.Lock()
		captured = body
		mu.Unlock()
		return http.StatusOK, ""
	}

	err := c.RejectIncomingTransfer(context.Background(), transferID, &domain.RejectionReason{
		Code:    "R00",
		Message: "no thanks",
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	var reason domain.RejectionReason
	require.NoError(t, json.Unmarshal(captured, &reason))
	assert.Equal(t, "R00", reason.Code)
	assert.Equal(t, "no thanks", reason.Message)
}

func TestRejectIncomingTransferErrorMapping(t *testing.T) {
	c, ledger := newConnectedClient(t)
	ledger.OnRejectionPut = func(string, []byte) (int, string) {
		return 422, wireErrorBody("InvalidModificationError", "already fulfilled")
	}

	err := c.RejectIncomingTransfer(context.Background(), transferID, &domain.RejectionReason{})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindAlreadyFulfilled))
}

func TestSendMessage(t *testing.T) {
	c, ledger := newConnectedClient(t)

	var mu sync.Mutex
	var captured []byte
	ledger.OnMessagePost = func(body []byte) (int, string) {
		mu.Lock()
		captured = body
		mu.Unlock()
		return http.StatusCreated, ""
	}

	err := c.SendMessage(context.Background(), domain.Message{
		To:   ledgertest.Prefix + "bob",
		Data: json.RawMessage(`{"hello":"bob"}`),
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	var wire domain.WireMessage
	require.NoError(t, json.Unmarshal(captured, &wire))
	assert.Equal(t, ledger.Server.URL, wire.Ledger)
	assert.Equal(t, ledger.AccountURL("alice"), wire.From)
	assert.Equal(t, ledger.AccountURL("bob"), wire.To)
	assert.JSONEq(t, `{"hello":"bob"}`, string(wire.Data))
}

func TestSendMessageNoSubscriptions(t *testing.T) {
	c, ledger := newConnectedClient(t)
	ledger.OnMessagePost = func([]byte) (int, string) {
		return 422, wireErrorBody("NoSubscriptionsError", "nobody listening")
	}

	err := c.SendMessage(context.Background(), domain.Message{
		To:   ledgertest.Prefix + "bob",
		Data: json.RawMessage(`{}`),
	})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindNoSubscriptions))
}

func TestGetBalance(t *testing.T) {
	c, ledger := newConnectedClient(t)
	ledger.SetBalance("alice", "123.45")

	balance, err := c.GetBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "12345", balance)
}

func TestGetInfoIsCached(t *testing.T) {
	c, ledger := newConnectedClient(t)
	connectFetches := ledger.MetadataCount()

	info, err := c.GetInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ledgertest.Prefix, info.ILPPrefix)
	assert.Equal(t, "USD", info.CurrencyCode)

	_, err = c.GetInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, connectFetches+1, ledger.MetadataCount())
}

func TestClientEmitsTranslatedEvents(t *testing.T) {
	c, ledger := newConnectedClient(t)
	ledger.WaitSubscribe(t)

	events := make(chan domain.Event, 4)
	c.OnEvent(domain.EventIncomingTransfer, func(event domain.Event) { events <- event })

	resource, err := json.Marshal(domain.WireTransfer{
		ID:      ledger.Server.URL + "/transfers/" + transferID,
		Ledger:  ledger.Server.URL,
		State:   domain.TransferExecuted,
		Debits:  []domain.Funds{{Account: ledger.AccountURL("bob"), Amount: "10"}},
		Credits: []domain.Funds{{Account: ledger.AccountURL("alice"), Amount: "10"}},
	})
	require.NoError(t, err)

	ledger.Notify(t, domain.Notification{
		Event:    domain.NotifyTransferCreate,
		Resource: resource,
	})

	select {
	case event := <-events:
		require.NotNil(t, event.Transfer)
		assert.Equal(t, "1000", event.Transfer.Amount)
		assert.Equal(t, ledgertest.Prefix+"bob", event.Transfer.Account)
		assert.Equal(t, transferID, event.Transfer.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("translated event never arrived")
	}
}
