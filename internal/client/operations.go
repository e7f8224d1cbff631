package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/crossrail/fivebells/internal/condition"
	"github.com/crossrail/fivebells/internal/domain"
)

const maxResponseBytes = 1 << 20

func ok2xx(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}

// SendTransfer prepares a transfer on the ledger: one debit from this
// account, one credit to the destination. When notary cases are
// attached, each case authority is told where to send the fulfillment
// first; any case registration failure is fatal for the whole send.
func (c *Client) SendTransfer(ctx context.Context, transfer domain.Transfer) error {
	ledger := c.sess.Ledger()
	if ledger == nil {
		return domain.NewError(domain.KindExternal, "send transfer before connect")
	}

	if _, err := uuid.Parse(transfer.ID); err != nil {
		return domain.NewError(domain.KindInvalidFields, "transfer id %q is not a uuid", transfer.ID)
	}
	if !strings.HasPrefix(transfer.To, ledger.Prefix) {
		return domain.NewError(domain.KindInvalidFields, "destination %q is not on ledger %q", transfer.To, ledger.Prefix)
	}

	amount, err := domain.ToLedgerAmount(transfer.Amount, ledger.CurrencyScale)
	if err != nil {
		return err
	}
	execCondition, err := condition.ToWire(transfer.ExecutionCondition)
	if err != nil {
		return err
	}
	cancelCondition, err := condition.ToWire(transfer.CancellationCondition)
	if err != nil {
		return err
	}

	destination := strings.TrimPrefix(transfer.To, ledger.Prefix)
	wire := domain.WireTransfer{
		ID:     ledger.TransferURL(transfer.ID),
		Ledger: ledger.Host,
		Debits: []domain.Funds{{
			Account:    c.Account(),
			Amount:     amount,
			Authorized: true,
			Memo:       transfer.NoteToSelf,
		}},
		Credits: []domain.Funds{{
			Account: ledger.AccountURL(destination),
			Amount:  amount,
			Memo:    transfer.Data,
		}},
		ExecutionCondition:    execCondition,
		CancellationCondition: cancelCondition,
	}
	if !transfer.ExpiresAt.IsZero() {
		wire.ExpiresAt = transfer.ExpiresAt.UTC().Format(time.RFC3339Nano)
	}
	if len(transfer.Cases) > 0 {
		wire.AdditionalInfo = &domain.AdditionalInfo{Cases: transfer.Cases}
	}

	if err := c.validator.ValidateTransfer(wire); err != nil {
		return domain.NewError(domain.KindInvalidFields, "invalid transfer: %v", err)
	}

	for _, caseURI := range transfer.Cases {
		if err := c.registerCaseTarget(ctx, caseURI, ledger.FulfillmentURL(transfer.ID)); err != nil {
			return err
		}
	}

	resp, err := c.doJSON(ctx, http.MethodPut, wire.ID, wire)
	if err != nil {
		return fmt.Errorf("send transfer: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if !ok2xx(resp.StatusCode) {
		return mapWireError(resp, sendTransferErrors, domain.KindNotAccepted)
	}
	return nil
}

// registerCaseTarget tells one notary case where the transfer's
// fulfillment must be delivered.
func (c *Client) registerCaseTarget(ctx context.Context, caseURI, targetURI string) error {
	resp, err := c.doJSON(ctx, http.MethodPost, strings.TrimRight(caseURI, "/")+"/targets", []string{targetURI})
	if err != nil {
		return fmt.Errorf("register case target: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		return domain.NewHTTPError(domain.KindExternal, resp.StatusCode, "case %s rejected target registration: %s", caseURI, body)
	}
	return nil
}

// FulfillCondition submits the execution preimage for a held
// transfer. The fulfillment travels as text, not JSON.
func (c *Client) FulfillCondition(ctx context.Context, transferID, fulfillment string) error {
	ledger := c.sess.Ledger()
	if ledger == nil {
		return domain.NewError(domain.KindExternal, "fulfill before connect")
	}

	wireFulfillment, err := condition.FulfillmentToWire(fulfillment)
	if err != nil {
		return err
	}

	url := ledger.FulfillmentURL(transferID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, strings.NewReader(wireFulfillment))
	if err != nil {
		return fmt.Errorf("create fulfillment request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.sess.Do(req)
	if err != nil {
		return fmt.Errorf("submit fulfillment: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return mapWireError(resp, fulfillErrors, domain.KindNotAccepted)
	}
	return nil
}

// RejectIncomingTransfer refuses a transfer held in this account's
// favor, attaching a structured reason.
func (c *Client) RejectIncomingTransfer(ctx context.Context, transferID string, reason *domain.RejectionReason) error {
	ledger := c.sess.Ledger()
	if ledger == nil {
		return domain.NewError(domain.KindExternal, "reject before connect")
	}

	resp, err := c.doJSON(ctx, http.MethodPut, ledger.RejectionURL(transferID), reason)
	if err != nil {
		return fmt.Errorf("reject transfer: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if !ok2xx(resp.StatusCode) {
		return mapWireError(resp, rejectErrors, domain.KindNotAccepted)
	}
	return nil
}

// GetFulfillment fetches the execution preimage of an already
// fulfilled transfer.
func (c *Client) GetFulfillment(ctx context.Context, transferID string) (string, error) {
	ledger := c.sess.Ledger()
	if ledger == nil {
		return "", domain.NewError(domain.KindExternal, "get fulfillment before connect")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ledger.FulfillmentURL(transferID), nil)
	if err != nil {
		return "", fmt.Errorf("create fulfillment request: %w", err)
	}

	resp, err := c.sess.Do(req)
	if err != nil {
		return "", fmt.Errorf("get fulfillment: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if !ok2xx(resp.StatusCode) {
		return "", mapWireError(resp, getFulfillmentErrors, domain.KindExternal)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read fulfillment: %w", err)
	}
	return condition.FulfillmentFromWire(strings.TrimSpace(string(body)))
}

// SendMessage routes a message to another account through the ledger.
func (c *Client) SendMessage(ctx context.Context, message domain.Message) error {
	ledger := c.sess.Ledger()
	if ledger == nil {
		return domain.NewError(domain.KindExternal, "send message before connect")
	}

	to := message.To
	if !strings.HasPrefix(to, ledger.Prefix) {
		return domain.NewError(domain.KindInvalidFields, "message destination %q is not on ledger %q", to, ledger.Prefix)
	}

	wire := domain.WireMessage{
		Ledger: ledger.Host,
		From:   c.Account(),
		To:     ledger.AccountURL(strings.TrimPrefix(to, ledger.Prefix)),
		Data:   message.Data,
	}
	if err := c.validator.ValidateMessage(wire); err != nil {
		return domain.NewError(domain.KindInvalidFields, "invalid message: %v", err)
	}

	resp, err := c.doJSON(ctx, http.MethodPost, ledger.URLs.Message, wire)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if !ok2xx(resp.StatusCode) {
		return mapWireError(resp, sendMessageErrors, domain.KindNotAccepted)
	}
	return nil
}

// GetBalance returns the account balance in integer minor units.
func (c *Client) GetBalance(ctx context.Context) (string, error) {
	ledger := c.sess.Ledger()
	if ledger == nil {
		return "", domain.NewError(domain.KindExternal, "get balance before connect")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Account(), nil)
	if err != nil {
		return "", fmt.Errorf("create balance request: %w", err)
	}

	resp, err := c.sess.Do(req)
	if err != nil {
		return "", fmt.Errorf("get balance: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if !ok2xx(resp.StatusCode) {
		return "", mapWireError(resp, errorTable{}, domain.KindExternal)
	}

	var account domain.AccountResource
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&account); err != nil {
		return "", fmt.Errorf("decode account resource: %w", err)
	}
	return domain.FromLedgerAmount(account.Balance, ledger.CurrencyScale)
}

// GetInfo returns the ledger's public metadata, cached after the
// first successful fetch.
func (c *Client) GetInfo(ctx context.Context) (domain.LedgerMetadata, error) {
	c.infoMu.Lock()
	if c.info != nil {
		info := *c.info
		c.infoMu.Unlock()
		return info, nil
	}
	c.infoMu.Unlock()

	ledger := c.sess.Ledger()
	if ledger == nil {
		return domain.LedgerMetadata{}, domain.NewError(domain.KindExternal, "get info before connect")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ledger.Host, nil)
	if err != nil {
		return domain.LedgerMetadata{}, fmt.Errorf("create info request: %w", err)
	}

	resp, err := c.sess.Do(req)
	if err != nil {
		return domain.LedgerMetadata{}, fmt.Errorf("get ledger info: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if !ok2xx(resp.StatusCode) {
		return domain.LedgerMetadata{}, mapWireError(resp, errorTable{}, domain.KindExternal)
	}

	var info domain.LedgerMetadata
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&info); err != nil {
		return domain.LedgerMetadata{}, fmt.Errorf("decode ledger info: %w", err)
	}

	c.infoMu.Lock()
	c.info = &info
	c.infoMu.Unlock()
	return info, nil
}

func (c *Client) doJSON(ctx context.Context, method, url string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.sess.Do(req)
}
