// Package validate is the default structural validator. The engine
// treats validation as an external collaborator and trusts the
// verdict, so swapping in a stricter schema-backed implementation is
// just another ports.Validator.
package validate

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/crossrail/fivebells/internal/domain"
	"github.com/crossrail/fivebells/internal/ports"
)

type Validator struct{}

var _ ports.Validator = Validator{}

func New() Validator {
	return Validator{}
}

func (Validator) ValidateTransfer(transfer domain.WireTransfer) error {
	if transfer.ID == "" {
		return errors.New("transfer is missing its id")
	}
	if len(transfer.Debits) == 0 {
		return errors.New("transfer has no debits")
	}
	if len(transfer.Credits) == 0 {
		return errors.New("transfer has no credits")
	}
	for i, entry := range transfer.Debits {
		if err := validateFunds(entry); err != nil {
			return fmt.Errorf("debit %d: %w", i, err)
		}
	}
	for i, entry := range transfer.Credits {
		if err := validateFunds(entry); err != nil {
			return fmt.Errorf("credit %d: %w", i, err)
		}
	}
	switch transfer.State {
	case "", domain.TransferPrepared, domain.TransferExecuted, domain.TransferRejected:
	default:
		return fmt.Errorf("unknown transfer state %q", transfer.State)
	}
	return nil
}

func (Validator) ValidateMessage(message domain.WireMessage) error {
	if message.Ledger == "" {
		return errors.New("message is missing its ledger")
	}
	if message.To == "" && message.Account == "" {
		return errors.New("message is missing its destination")
	}
	if len(message.Data) == 0 {
		return errors.New("message has no data")
	}
	return nil
}

func validateFunds(entry domain.Funds) error {
	if entry.Account == "" {
		return errors.New("missing account")
	}
	amount, err := decimal.NewFromString(entry.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount %q", entry.Amount)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("amount %q is not positive", entry.Amount)
	}
	return nil
}
