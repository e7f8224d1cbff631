package domain

import (
	"encoding/json"
	"time"
)

type TransferState string

const (
	TransferPrepared TransferState = "prepared"
	TransferExecuted TransferState = "executed"
	TransferRejected TransferState = "rejected"
)

// Funds is one debit or credit entry on a wire transfer. Rejected and
// RejectionMessage only ever appear on credits.
type Funds struct {
	Account          string          `json:"account"`
	Amount           string          `json:"amount"`
	Authorized       bool            `json:"authorized,omitempty"`
	Memo             json.RawMessage `json:"memo,omitempty"`
	Rejected         bool            `json:"rejected,omitempty"`
	RejectionMessage json.RawMessage `json:"rejection_message,omitempty"`
}

// AdditionalInfo carries the optional notary case URIs on a transfer.
type AdditionalInfo struct {
	Cases []string `json:"cases,omitempty"`
}

// WireTransfer is a transfer as the ledger represents it: decimal
// amounts, full account URIs, a ledger-local id URI distinct from the
// public uuid. Immutable wire data; the engine never stores these.
type WireTransfer struct {
	ID                    string          `json:"id"`
	Ledger                string          `json:"ledger,omitempty"`
	Debits                []Funds         `json:"debits"`
	Credits               []Funds         `json:"credits"`
	ExecutionCondition    string          `json:"execution_condition,omitempty"`
	CancellationCondition string          `json:"cancellation_condition,omitempty"`
	ExpiresAt             string          `json:"expires_at,omitempty"`
	State                 TransferState   `json:"state,omitempty"`
	AdditionalInfo        *AdditionalInfo `json:"additional_info,omitempty"`
}

// WireMessage is a ledger-routed message as pushed over the socket or
// posted to the message endpoint.
type WireMessage struct {
	Ledger string `json:"ledger"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	// Account is the deprecated single-counterparty form some ledgers
	// still send instead of from/to.
	Account string          `json:"account,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// Transfer is the outbound command a consumer hands to SendTransfer:
// ILP addresses, integer minor-unit amount, public uuid id.
type Transfer struct {
	ID                    string
	To                    string
	Amount                string
	Data                  json.RawMessage
	NoteToSelf            json.RawMessage
	ExecutionCondition    string
	CancellationCondition string
	ExpiresAt             time.Time
	Cases                 []string
}

// Message is the outbound command for SendMessage.
type Message struct {
	Ledger string
	From   string
	To     string
	Data   json.RawMessage
}
