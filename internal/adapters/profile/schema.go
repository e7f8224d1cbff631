package profile

import "fmt"

const currentSchemaVersion = 1

type fileSchema struct {
	Version  int             `toml:"version"`
	Profiles []profileSchema `toml:"profiles"`
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported profiles schema version %d (current %d)", s.Version, currentSchemaVersion)
	}
	return nil
}

type profileSchema struct {
	Name        string    `toml:"name"`
	Account     string    `toml:"account,omitempty"`
	Identifier  string    `toml:"identifier,omitempty"`
	Username    string    `toml:"username,omitempty"`
	PasswordRef string    `toml:"password_ref,omitempty"`
	TLS         tlsSchema `toml:"tls,omitempty"`
}

type tlsSchema struct {
	Cert string `toml:"cert,omitempty"`
	Key  string `toml:"key,omitempty"`
	CA   string `toml:"ca,omitempty"`
}

func toSchema(p Profile) profileSchema {
	return profileSchema{
		Name:        p.Name,
		Account:     p.Account,
		Identifier:  p.Identifier,
		Username:    p.Username,
		PasswordRef: p.PasswordRef,
		TLS: tlsSchema{
			Cert: p.CertPath,
			Key:  p.KeyPath,
			CA:   p.CAPath,
		},
	}
}

func fromSchema(p profileSchema) Profile {
	return Profile{
		Name:        p.Name,
		Account:     p.Account,
		Identifier:  p.Identifier,
		Username:    p.Username,
		PasswordRef: p.PasswordRef,
		CertPath:    p.TLS.Cert,
		KeyPath:     p.TLS.Key,
		CAPath:      p.TLS.CA,
	}
}
