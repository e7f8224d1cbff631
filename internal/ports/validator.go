package ports

import "github.com/crossrail/fivebells/internal/domain"

// Validator is the external structural-validation collaborator. The
// engine trusts its verdict and maps any failure to an
// InvalidFieldsError at the boundary.
type Validator interface {
	ValidateTransfer(transfer domain.WireTransfer) error
	ValidateMessage(message domain.WireMessage) error
}
