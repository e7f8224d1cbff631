package ports

import "context"

type WebfingerResult struct {
	Account  string
	Username string
}

// WebfingerResolver turns an acct: identifier into ledger credentials'
// account URI and username. Used only at connect time when a profile
// holds an identifier instead of an account URI.
type WebfingerResolver interface {
	Resolve(ctx context.Context, identifier string) (WebfingerResult, error)
}
