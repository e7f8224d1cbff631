package domain

// Credentials identify one account on one ledger. Account is the full
// account URI (e.g. http://ledger.example/accounts/mike). Username may
// be left empty and inferred from the resolved account resource at
// connect time.
type Credentials struct {
	Account  string
	Username string
	Password string

	// Optional client TLS material, PEM-encoded.
	Cert []byte
	Key  []byte
	CA   []byte
}
