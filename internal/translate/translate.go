// Package translate turns raw ledger notifications into the engine's
// typed directional events. Translation is pure: no state is kept
// between notifications, and a replayed notification re-emits.
package translate

import (
	"encoding/json"
	"strings"

	"github.com/crossrail/fivebells/internal/condition"
	"github.com/crossrail/fivebells/internal/domain"
	"github.com/crossrail/fivebells/internal/ports"
)

// Notification translates one pushed notification for one local
// account. It returns zero, one, or (for a self-transfer touching
// both sides) two events. A notification that does not concern the
// account fails with an UnrelatedNotificationError kind, which the
// caller swallows at the boundary.
func Notification(n domain.Notification, localAccount string, ledger *domain.LedgerContext, validator ports.Validator) ([]domain.Event, error) {
	switch n.Event {
	case domain.NotifyTransferCreate, domain.NotifyTransferUpdate:
		return transferEvents(n, localAccount, ledger, validator)
	case domain.NotifyMessageSend:
		event, err := messageEvent(n, localAccount, ledger, validator)
		if err != nil {
			return nil, err
		}
		return []domain.Event{event}, nil
	default:
		return nil, domain.NewError(domain.KindUnrelatedNotification, "unknown notification event %q", n.Event)
	}
}

func transferEvents(n domain.Notification, localAccount string, ledger *domain.LedgerContext, validator ports.Validator) ([]domain.Event, error) {
	var transfer domain.WireTransfer
	if err := json.Unmarshal(n.Resource, &transfer); err != nil {
		return nil, domain.NewError(domain.KindInvalidFields, "malformed transfer resource: %v", err)
	}
	if err := validator.ValidateTransfer(transfer); err != nil {
		return nil, domain.NewError(domain.KindInvalidFields, "invalid transfer resource: %v", err)
	}

	creditIdx := matchFunds(transfer.Credits, localAccount)
	debitIdx := matchFunds(transfer.Debits, localAccount)
	if creditIdx < 0 && debitIdx < 0 {
		return nil, domain.NewError(domain.KindUnrelatedNotification, "transfer %s does not concern account %s", transfer.ID, localAccount)
	}

	var events []domain.Event
	if creditIdx >= 0 {
		event, ok, err := sideEvent(transfer, n.RelatedResources, ledger, domain.Incoming, creditIdx)
		if err != nil {
			return nil, err
		}
		if ok {
			events = append(events, event)
		}
	}
	if debitIdx >= 0 {
		event, ok, err := sideEvent(transfer, n.RelatedResources, ledger, domain.Outgoing, debitIdx)
		if err != nil {
			return nil, err
		}
		if ok {
			events = append(events, event)
		}
	}
	return events, nil
}

// sideEvent applies the state table for one matched side. The ok
// result is false for state/condition combinations that are silently
// ignored rather than errors.
func sideEvent(transfer domain.WireTransfer, related *domain.RelatedResources, ledger *domain.LedgerContext, direction domain.Direction, matched int) (domain.Event, bool, error) {
	view, err := normalizeTransfer(transfer, ledger, direction, matched)
	if err != nil {
		return domain.Event{}, false, err
	}

	switch {
	case transfer.State == domain.TransferPrepared:
		return domain.Event{
			Kind:     domain.TransferEventKind(direction, "prepare"),
			Transfer: view,
		}, true, nil

	case transfer.State == domain.TransferExecuted && transfer.ExecutionCondition == "":
		return domain.Event{
			Kind:     domain.TransferEventKind(direction, "transfer"),
			Transfer: view,
		}, true, nil

	case transfer.State == domain.TransferExecuted && related != nil && related.ExecutionConditionFulfillment != "":
		fulfillment, err := condition.FulfillmentFromWire(related.ExecutionConditionFulfillment)
		if err != nil {
			return domain.Event{}, false, err
		}
		return domain.Event{
			Kind:        domain.TransferEventKind(direction, "fulfill"),
			Transfer:    view,
			Fulfillment: fulfillment,
		}, true, nil

	case transfer.State == domain.TransferRejected && related != nil && related.CancellationConditionFulfillment != "":
		fulfillment, err := condition.FulfillmentFromWire(related.CancellationConditionFulfillment)
		if err != nil {
			return domain.Event{}, false, err
		}
		return domain.Event{
			Kind:        domain.TransferEventKind(direction, "cancel"),
			Transfer:    view,
			Fulfillment: fulfillment,
		}, true, nil

	case transfer.State == domain.TransferRejected:
		if reason := rejectionReason(transfer.Credits); reason != nil {
			return domain.Event{
				Kind:     domain.TransferEventKind(direction, "reject"),
				Transfer: view,
				Reason:   reason,
			}, true, nil
		}
		// Rejected with no marker anywhere means the hold expired.
		return domain.Event{
			Kind:     domain.TransferEventKind(direction, "cancel"),
			Transfer: view,
			Reason:   domain.TimeoutReason(),
		}, true, nil

	default:
		// Executed-with-condition-but-no-fulfillment and any state the
		// ledger invents later produce nothing.
		return domain.Event{}, false, nil
	}
}

func normalizeTransfer(transfer domain.WireTransfer, ledger *domain.LedgerContext, direction domain.Direction, matched int) (*domain.TransferView, error) {
	amountSrc := transfer.Credits
	counterparty := transfer.Debits
	if direction == domain.Outgoing {
		amountSrc = transfer.Debits
		counterparty = transfer.Credits
	}

	amount, err := domain.FromLedgerAmount(amountSrc[matched].Amount, ledger.CurrencyScale)
	if err != nil {
		return nil, err
	}

	execCondition, err := condition.FromWire(transfer.ExecutionCondition)
	if err != nil {
		return nil, err
	}
	cancelCondition, err := condition.FromWire(transfer.CancellationCondition)
	if err != nil {
		return nil, err
	}

	view := &domain.TransferView{
		ID:                    domain.AccountNameFromURI(transfer.ID),
		Direction:             direction,
		Ledger:                ledger.Prefix,
		Amount:                amount,
		ExecutionCondition:    execCondition,
		CancellationCondition: cancelCondition,
		ExpiresAt:             transfer.ExpiresAt,
	}
	if len(counterparty) > 0 {
		view.Account = ledger.Address(domain.AccountNameFromURI(counterparty[0].Account))
	}
	if transfer.AdditionalInfo != nil {
		view.Cases = transfer.AdditionalInfo.Cases
	}

	// The ILP envelope rides in the credit memo; the debit memo is the
	// sender's private note.
	if direction == domain.Incoming {
		view.Data = transfer.Credits[matched].Memo
	} else {
		if len(transfer.Credits) > 0 {
			view.Data = transfer.Credits[0].Memo
		}
		view.NoteToSelf = transfer.Debits[matched].Memo
	}
	return view, nil
}

func messageEvent(n domain.Notification, localAccount string, ledger *domain.LedgerContext, validator ports.Validator) (domain.Event, error) {
	var message domain.WireMessage
	if err := json.Unmarshal(n.Resource, &message); err != nil {
		return domain.Event{}, domain.NewError(domain.KindInvalidFields, "malformed message resource: %v", err)
	}
	if err := validator.ValidateMessage(message); err != nil {
		return domain.Event{}, domain.NewError(domain.KindInvalidFields, "invalid message resource: %v", err)
	}
	if !sameResource(message.Ledger, ledger.Host) {
		return domain.Event{}, domain.NewError(domain.KindUnrelatedNotification, "message for foreign ledger %q", message.Ledger)
	}

	from := message.From
	to := message.To
	// Older ledgers send a single account field instead of from/to.
	if from == "" && message.Account != "" {
		from = message.Account
	}
	if to == "" {
		to = localAccount
	}
	if !sameResource(to, localAccount) {
		return domain.Event{}, domain.NewError(domain.KindUnrelatedNotification, "message for %q is not addressed to %q", to, localAccount)
	}

	return domain.Event{
		Kind: domain.EventIncomingMessage,
		Message: &domain.MessageView{
			Ledger: ledger.Prefix,
			From:   ledger.Address(domain.AccountNameFromURI(from)),
			To:     ledger.Address(domain.AccountNameFromURI(to)),
			Data:   message.Data,
		},
	}, nil
}

// matchFunds returns the index of the (at most one expected) entry
// owned by the local account, or -1.
func matchFunds(funds []domain.Funds, localAccount string) int {
	for i, entry := range funds {
		if sameResource(entry.Account, localAccount) {
			return i
		}
	}
	return -1
}

func sameResource(a, b string) bool {
	return strings.TrimRight(a, "/") == strings.TrimRight(b, "/")
}

func rejectionReason(credits []domain.Funds) *domain.RejectionReason {
	for _, credit := range credits {
		if !credit.Rejected && credit.RejectionMessage == nil {
			continue
		}
		reason := &domain.RejectionReason{}
		if credit.RejectionMessage != nil {
			if err := json.Unmarshal(credit.RejectionMessage, reason); err != nil {
				reason = &domain.RejectionReason{Message: string(credit.RejectionMessage)}
			}
		}
		return reason
	}
	return nil
}
