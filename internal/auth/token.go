package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoToken is returned when no credential has been stored
var ErrNoToken = errors.New("no token stored")

// TokenSource supplies an optional bearer credential for backend requests.
// An empty token with a nil error means requests go out unauthenticated.
type TokenSource interface {
	Token() (string, error)
}

// Static is a fixed token
type Static string

// Token returns the static token
func (s Static) Token() (string, error) { return string(s), nil }

// Credentials is the on-disk credential record
type Credentials struct {
	Token   string    `json:"token"`
	DBName  string    `json:"db_name,omitempty"`
	SavedAt time.Time `json:"saved_at"`
}

// FileStore persists credentials in a JSON file readable only by the user
type FileStore struct {
	path string
	now  func() time.Time
}

// NewFileStore creates a store backed by path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Path returns the credential file location
func (s *FileStore) Path() string { return s.path }

// Save writes creds to disk
func (s *FileStore) Save(creds Credentials) error {
	if creds.SavedAt.IsZero() {
		creds.SavedAt = s.now()
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// Load reads stored credentials
func (s *FileStore) Load() (*Credentials, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	if creds.Token == "" {
		return nil, ErrNoToken
	}
	return &creds, nil
}

// Remove deletes stored credentials. Removing a missing file is not an error.
func (s *FileStore) Remove() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove credentials: %w", err)
	}
	return nil
}

// Token returns the stored token, or "" when none is stored or it has expired
func (s *FileStore) Token() (string, error) {
	creds, err := s.Load()
	if err != nil {
		if errors.Is(err, ErrNoToken) {
			return "", nil
		}
		return "", err
	}
	if IsTokenExpired(creds.Token, s.now()) {
		return "", nil
	}
	return creds.Token, nil
}

// IsTokenExpired reports whether a JWT's exp claim is before now. The
// signature is not checked; the client only needs to know when to stop
// sending the token. Tokens that cannot be parsed or carry no exp count
// as expired.
func IsTokenExpired(token string, now time.Time) bool {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return true
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	return exp.Before(now)
}
