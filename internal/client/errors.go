package client

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/crossrail/fivebells/internal/domain"
)

// wireError is the body shape of every non-2xx ledger response.
type wireError struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// errorTable maps the ledger's wire error ids onto local kinds. Each
// operation has its own table because the same wire id can mean a
// different thing depending on what was attempted.
type errorTable map[string]domain.Kind

var sendTransferErrors = errorTable{
	"InvalidBodyError":         domain.KindInvalidFields,
	"InvalidUriParameterError": domain.KindInvalidFields,
	"InsufficientFundsError":   domain.KindNotAccepted,
	"UnprocessableEntityError": domain.KindNotAccepted,
	"AlreadyExistsError":       domain.KindDuplicateID,
	"DuplicateIdError":         domain.KindDuplicateID,
}

var fulfillErrors = errorTable{
	"NotFoundError":               domain.KindTransferNotFound,
	"TransferNotFoundError":       domain.KindTransferNotFound,
	"TransferNotConditionalError": domain.KindTransferNotConditional,
	"InvalidModificationError":    domain.KindAlreadyRolledBack,
	"TransferStateError":          domain.KindAlreadyRolledBack,
	"UnmetConditionError":         domain.KindNotAccepted,
	"InvalidBodyError":            domain.KindInvalidFields,
}

var rejectErrors = errorTable{
	"NotFoundError":               domain.KindTransferNotFound,
	"TransferNotFoundError":       domain.KindTransferNotFound,
	"TransferNotConditionalError": domain.KindTransferNotConditional,
	"InvalidModificationError":    domain.KindAlreadyFulfilled,
	"UnauthorizedError":           domain.KindNotAccepted,
}

var getFulfillmentErrors = errorTable{
	"MissingFulfillmentError":     domain.KindMissingFulfillment,
	"NotFoundError":               domain.KindMissingFulfillment,
	"TransferNotFoundError":       domain.KindTransferNotFound,
	"TransferNotConditionalError": domain.KindTransferNotConditional,
	"AlreadyRolledBackError":      domain.KindAlreadyRolledBack,
	"TransferStateError":          domain.KindAlreadyRolledBack,
}

var sendMessageErrors = errorTable{
	"InvalidBodyError":         domain.KindInvalidFields,
	"InvalidUriParameterError": domain.KindInvalidFields,
	"NoSubscriptionsError":     domain.KindNoSubscriptions,
}

// mapWireError turns a non-2xx response into a kinded error. Wire ids
// present in the table surface verbatim; anything unmapped collapses
// to the operation's fallback kind (5xx always to ExternalError) with
// the raw body kept for diagnostics.
func mapWireError(resp *http.Response, table errorTable, fallback domain.Kind) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))

	// A 5xx is the ledger failing, never the request; the body's id is
	// not trusted to classify it.
	if resp.StatusCode < http.StatusInternalServerError {
		var we wireError
		if err := json.Unmarshal(body, &we); err == nil && we.ID != "" {
			if kind, ok := table[we.ID]; ok {
				return domain.NewHTTPError(kind, resp.StatusCode, "%s", we.Message)
			}
		}
	} else {
		fallback = domain.KindExternal
	}

	return domain.NewHTTPError(fallback, resp.StatusCode, "unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
