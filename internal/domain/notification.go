package domain

import "encoding/json"

// Notification event names the ledger pushes over the socket.
const (
	NotifyTransferCreate = "transfer.create"
	NotifyTransferUpdate = "transfer.update"
	NotifyMessageSend    = "message.send"
)

// RelatedResources ride along with a transfer notification when the
// ledger has seen the condition fulfilled or cancelled.
type RelatedResources struct {
	ExecutionConditionFulfillment    string `json:"execution_condition_fulfillment,omitempty"`
	CancellationConditionFulfillment string `json:"cancellation_condition_fulfillment,omitempty"`
}

// Notification is the params payload of a "notify" push. Resource is
// left raw; its shape depends on Event.
type Notification struct {
	Event            string            `json:"event"`
	ID               string            `json:"id,omitempty"`
	Resource         json.RawMessage   `json:"resource"`
	RelatedResources *RelatedResources `json:"related_resources,omitempty"`
}
