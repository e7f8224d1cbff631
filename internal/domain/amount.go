package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ToLedgerAmount converts an integer minor-unit amount into the
// ledger's decimal-string form: 1025 at scale 2 becomes "10.25".
func ToLedgerAmount(units string, scale int32) (string, error) {
	if units == "" {
		return "", NewError(KindInvalidFields, "amount must not be empty")
	}
	if strings.ContainsAny(units, ".eE") {
		return "", NewError(KindInvalidFields, "amount must be an integer number of minor units, got %q", units)
	}
	d, err := decimal.NewFromString(units)
	if err != nil {
		return "", NewError(KindInvalidFields, "invalid amount %q", units)
	}
	if !d.IsPositive() {
		return "", NewError(KindInvalidFields, "amount must be positive, got %q", units)
	}
	return d.Shift(-scale).String(), nil
}

// FromLedgerAmount converts a ledger decimal-string amount into
// integer minor units: "10.25" at scale 2 becomes "1025". Exact for
// any amount with at most scale fractional digits; anything finer is
// rejected rather than rounded.
func FromLedgerAmount(amount string, scale int32) (string, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return "", NewError(KindInvalidFields, "invalid ledger amount %q", amount)
	}
	shifted := d.Shift(scale)
	if !shifted.IsInteger() {
		return "", NewError(KindInvalidFields, "amount %q has more than %d decimal places", amount, scale)
	}
	return shifted.String(), nil
}
