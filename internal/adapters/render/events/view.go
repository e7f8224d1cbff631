// Package events renders the live event stream for the terminal.
package events

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/crossrail/fivebells/internal/domain"
)

type RenderOptions struct {
	Now time.Time
}

// Banner renders the stream header shown once after connect.
func Banner(ledger *domain.LedgerContext, account string) string {
	s := newStyles()
	lines := []string{
		s.title.Render("fivebells event stream"),
		s.header.Render(fmt.Sprintf("ledger: %s (%s, scale %d)", ledger.Prefix, ledger.CurrencyCode, ledger.CurrencyScale)),
		s.header.Render(fmt.Sprintf("account: %s", account)),
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// Event renders one event as a single line.
func Event(event domain.Event, opts RenderOptions) string {
	s := newStyles()

	stamp := ""
	if !opts.Now.IsZero() {
		stamp = s.meta.Render(opts.Now.Format("15:04:05")) + " "
	}

	if event.Kind == domain.EventIncomingMessage {
		return stamp + s.message.Render(string(event.Kind)) + " " + messageLine(event.Message, s)
	}
	return stamp + kindStyle(event.Kind, s).Render(string(event.Kind)) + " " + transferLine(event, s)
}

func kindStyle(kind domain.EventKind, s styles) lipgloss.Style {
	k := string(kind)
	switch {
	case strings.HasSuffix(k, "_cancel"), strings.HasSuffix(k, "_reject"):
		return s.negative
	case strings.HasPrefix(k, "incoming_"):
		return s.incoming
	default:
		return s.outgoing
	}
}

func transferLine(event domain.Event, s styles) string {
	t := event.Transfer
	if t == nil {
		return s.empty.Render("(no transfer)")
	}

	parts := []string{
		s.detail.Render(fmt.Sprintf("%s %s", t.Amount, counterpartyLabel(t))),
		s.meta.Render(fmt.Sprintf("id=%s", t.ID)),
	}
	if t.ExecutionCondition != "" {
		parts = append(parts, s.meta.Render("conditional"))
	}
	if event.Fulfillment != "" {
		parts = append(parts, s.meta.Render(fmt.Sprintf("fulfillment=%s", event.Fulfillment)))
	}
	if event.Reason != nil {
		parts = append(parts, s.negative.Render(reasonLabel(event.Reason)))
	}
	return strings.Join(parts, " ")
}

func counterpartyLabel(t *domain.TransferView) string {
	if t.Direction == domain.Incoming {
		return "from " + t.Account
	}
	return "to " + t.Account
}

func reasonLabel(reason *domain.RejectionReason) string {
	if reason.Message != "" {
		return fmt.Sprintf("(%s)", reason.Message)
	}
	if reason.Name != "" {
		return fmt.Sprintf("(%s)", reason.Name)
	}
	return "(rejected)"
}

func messageLine(message *domain.MessageView, s styles) string {
	if message == nil {
		return s.empty.Render("(no message)")
	}
	return s.detail.Render(fmt.Sprintf("from %s", message.From)) + " " +
		s.meta.Render(fmt.Sprintf("%d bytes", len(message.Data)))
}
