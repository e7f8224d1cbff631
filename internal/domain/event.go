package domain

import "encoding/json"

type Direction string

const (
	Incoming Direction = "incoming"
	Outgoing Direction = "outgoing"
)

// EventKind is the closed set of things the engine can tell a
// consumer happened.
type EventKind string

const (
	EventIncomingPrepare  EventKind = "incoming_prepare"
	EventIncomingTransfer EventKind = "incoming_transfer"
	EventIncomingFulfill  EventKind = "incoming_fulfill"
	EventIncomingCancel   EventKind = "incoming_cancel"
	EventIncomingReject   EventKind = "incoming_reject"
	EventOutgoingPrepare  EventKind = "outgoing_prepare"
	EventOutgoingTransfer EventKind = "outgoing_transfer"
	EventOutgoingFulfill  EventKind = "outgoing_fulfill"
	EventOutgoingCancel   EventKind = "outgoing_cancel"
	EventOutgoingReject   EventKind = "outgoing_reject"
	EventIncomingMessage  EventKind = "incoming_message"
)

// TransferEventKind builds the directional kind for one of the five
// transfer outcomes ("prepare", "transfer", "fulfill", "cancel",
// "reject").
func TransferEventKind(direction Direction, outcome string) EventKind {
	return EventKind(string(direction) + "_" + outcome)
}

// TransferView is the normalized consumer-facing picture of a wire
// transfer: public uuid id, counterparty as an ILP address, integer
// minor-unit amount.
type TransferView struct {
	ID                    string          `json:"id"`
	Direction             Direction       `json:"direction"`
	Account               string          `json:"account"`
	Ledger                string          `json:"ledger"`
	Amount                string          `json:"amount"`
	Data                  json.RawMessage `json:"data,omitempty"`
	NoteToSelf            json.RawMessage `json:"noteToSelf,omitempty"`
	ExecutionCondition    string          `json:"executionCondition,omitempty"`
	CancellationCondition string          `json:"cancellationCondition,omitempty"`
	ExpiresAt             string          `json:"expiresAt,omitempty"`
	Cases                 []string        `json:"cases,omitempty"`
}

// MessageView is the normalized picture of a ledger message.
type MessageView struct {
	Ledger string          `json:"ledger"`
	From   string          `json:"from"`
	To     string          `json:"to"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// RejectionReason is the structured reason attached to reject and
// synthesized cancel events.
type RejectionReason struct {
	Code           string          `json:"code,omitempty"`
	Name           string          `json:"name,omitempty"`
	Message        string          `json:"message,omitempty"`
	TriggeredBy    string          `json:"triggered_by,omitempty"`
	AdditionalInfo json.RawMessage `json:"additional_info,omitempty"`
}

// TimeoutReason is the synthesized reason used when a ledger rejects a
// transfer with no explicit rejection message (expiry).
func TimeoutReason() *RejectionReason {
	return &RejectionReason{Code: "R01", Name: "Transfer Timed Out", Message: "transfer timed out"}
}

// Event is the tagged union delivered to listeners. Kind decides which
// payload fields are set: Transfer for the ten transfer kinds,
// Fulfillment additionally for *_fulfill and condition-based *_cancel,
// Reason for *_reject and synthesized *_cancel, Message for
// incoming_message only.
type Event struct {
	Kind        EventKind
	Transfer    *TransferView
	Fulfillment string
	Reason      *RejectionReason
	Message     *MessageView
}
