package validate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossrail/fivebells/internal/domain"
)

func validTransfer() domain.WireTransfer {
	return domain.WireTransfer{
		ID:      "https://red.example/transfers/abc",
		Debits:  []domain.Funds{{Account: "https://red.example/accounts/bob", Amount: "10"}},
		Credits: []domain.Funds{{Account: "https://red.example/accounts/alice", Amount: "10"}},
		State:   domain.TransferExecuted,
	}
}

func TestValidateTransfer(t *testing.T) {
	require.NoError(t, New().ValidateTransfer(validTransfer()))

	noState := validTransfer()
	noState.State = ""
	require.NoError(t, New().ValidateTransfer(noState))
}

func TestValidateTransferRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.WireTransfer)
	}{
		{"missing id", func(tr *domain.WireTransfer) { tr.ID = "" }},
		{"no debits", func(tr *domain.WireTransfer) { tr.Debits = nil }},
		{"no credits", func(tr *domain.WireTransfer) { tr.Credits = nil }},
		{"debit without account", func(tr *domain.WireTransfer) { tr.Debits[0].Account = "" }},
		{"credit amount not a number", func(tr *domain.WireTransfer) { tr.Credits[0].Amount = "ten" }},
		{"zero amount", func(tr *domain.WireTransfer) { tr.Debits[0].Amount = "0" }},
		{"negative amount", func(tr *domain.WireTransfer) { tr.Credits[0].Amount = "-1" }},
		{"unknown state", func(tr *domain.WireTransfer) { tr.State = "pondering" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transfer := validTransfer()
			tt.mutate(&transfer)
			assert.Error(t, New().ValidateTransfer(transfer))
		})
	}
}

func TestValidateMessage(t *testing.T) {
	require.NoError(t, New().ValidateMessage(domain.WireMessage{
		Ledger: "https://red.example",
		To:     "https://red.example/accounts/bob",
		Data:   json.RawMessage(`{}`),
	}))

	// The deprecated single-account form still counts as addressed.
	require.NoError(t, New().ValidateMessage(domain.WireMessage{
		Ledger:  "https://red.example",
		Account: "https://red.example/accounts/bob",
		Data:    json.RawMessage(`{}`),
	}))

	assert.Error(t, New().ValidateMessage(domain.WireMessage{
		To:   "https://red.example/accounts/bob",
		Data: json.RawMessage(`{}`),
	}))
	assert.Error(t, New().ValidateMessage(domain.WireMessage{
		Ledger: "https://red.example",
		Data:   json.RawMessage(`{}`),
	}))
	assert.Error(t, New().ValidateMessage(domain.WireMessage{
		Ledger: "https://red.example",
		To:     "https://red.example/accounts/bob",
	}))
}
