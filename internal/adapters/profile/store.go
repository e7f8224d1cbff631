// Package profile persists named ledger connection profiles as a TOML
// file. Passwords never land in the file; profiles carry a secret
// store reference instead.
package profile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	configName       = "config"
	configType       = "toml"
	profilesPathKey  = "profiles.path"
	profilesFileMode = 0o600
	profilesDirMode  = 0o700
	configDir        = ".fivebells"
	profilesFile     = "profiles.toml"
	tempFilePattern  = ".profiles-*.toml.tmp"
)

var ErrProfileNotFound = errors.New("profile not found")

// Profile is one saved ledger identity. Either Account or Identifier
// must be set; Identifier goes through webfinger at connect time.
type Profile struct {
	Name        string
	Account     string
	Identifier  string
	Username    string
	PasswordRef string
	CertPath    string
	KeyPath     string
	CAPath      string
}

type Store struct {
	profilesPath string
	mu           *sync.RWMutex
}

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

// NewStore resolves the profiles path from viper config (default
// ~/.fivebells/profiles.toml) and returns a store over it.
func NewStore(cfg *viper.Viper) (*Store, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	defaultPath := filepath.Join(homeDir, configDir, profilesFile)

	cfg.SetConfigName(configName)
	cfg.SetConfigType(configType)
	cfg.AddConfigPath(filepath.Join(homeDir, configDir))
	cfg.SetDefault(profilesPathKey, defaultPath)

	if err := cfg.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	profilesPath := cfg.GetString(profilesPathKey)
	if profilesPath == "" {
		return nil, errors.New("profiles path is empty")
	}
	profilesPath, err = filepath.Abs(profilesPath)
	if err != nil {
		return nil, fmt.Errorf("resolve profiles path: %w", err)
	}
	profilesPath = filepath.Clean(profilesPath)

	return &Store{profilesPath: profilesPath, mu: lockForPath(profilesPath)}, nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}
	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}

// Save inserts or replaces a profile by name.
func (s *Store) Save(ctx context.Context, p Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.Name == "" {
		return errors.New("profile name is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.readSchema()
	if err != nil {
		return err
	}

	encoded := toSchema(p)
	updated := false
	for i := range file.Profiles {
		if file.Profiles[i].Name == encoded.Name {
			file.Profiles[i] = encoded
			updated = true
			break
		}
	}
	if !updated {
		file.Profiles = append(file.Profiles, encoded)
	}

	return s.writeSchema(file)
}

// Get returns a profile by name.
func (s *Store) Get(ctx context.Context, name string) (Profile, error) {
	if err := ctx.Err(); err != nil {
		return Profile{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	file, err := s.readSchema()
	if err != nil {
		return Profile{}, err
	}

	for _, entry := range file.Profiles {
		if entry.Name == name {
			return fromSchema(entry), nil
		}
	}
	return Profile{}, ErrProfileNotFound
}

// List returns every saved profile.
func (s *Store) List(ctx context.Context) ([]Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	file, err := s.readSchema()
	if err != nil {
		return nil, err
	}

	profiles := make([]Profile, 0, len(file.Profiles))
	for _, entry := range file.Profiles {
		profiles = append(profiles, fromSchema(entry))
	}
	return profiles, nil
}

// Remove deletes a profile by name; removing an absent profile is an
// error so callers can report typos.
func (s *Store) Remove(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.readSchema()
	if err != nil {
		return err
	}

	for i := range file.Profiles {
		if file.Profiles[i].Name == name {
			file.Profiles = append(file.Profiles[:i], file.Profiles[i+1:]...)
			return s.writeSchema(file)
		}
	}
	return ErrProfileNotFound
}

func (s *Store) readSchema() (fileSchema, error) {
	data, err := os.ReadFile(s.profilesPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileSchema{Version: currentSchemaVersion}, nil
		}
		return fileSchema{}, fmt.Errorf("read profiles file: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return fileSchema{}, fmt.Errorf("decode profiles file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return fileSchema{}, err
	}
	if file.Version == 0 {
		file.Version = currentSchemaVersion
	}
	return file, nil
}

func (s *Store) writeSchema(file fileSchema) error {
	if file.Version == 0 {
		file.Version = currentSchemaVersion
	}

	if err := os.MkdirAll(filepath.Dir(s.profilesPath), profilesDirMode); err != nil {
		return fmt.Errorf("create profiles directory: %w", err)
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode profiles file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(s.profilesPath), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp profiles file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp profiles file: %w", err)
	}
	if err := tempFile.Chmod(profilesFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp profiles file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp profiles file: %w", err)
	}
	if err := os.Rename(tempName, s.profilesPath); err != nil {
		return fmt.Errorf("replace profiles file: %w", err)
	}
	cleanup = false

	if err := os.Chmod(s.profilesPath, profilesFileMode); err != nil {
		return fmt.Errorf("chmod profiles file: %w", err)
	}
	return nil
}
