// Package state persists the CLI session (bearer token and base URL) between runs.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Session is what arena-cli remembers between runs.
type Session struct {
	Token     string    `json:"token,omitempty"`
	BaseURL   string    `json:"base_url,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MaskedToken shows enough of the token to tell two apart.
func (s Session) MaskedToken() string {
	switch {
	case s.Token == "":
		return "<empty>"
	case len(s.Token) <= 12:
		return s.Token
	default:
		return s.Token[:6] + "..." + s.Token[len(s.Token)-4:]
	}
}

// Store reads and writes a Session file.
type Store struct {
	path string
	now  func() time.Time
}

func NewStore(path string) *Store {
	return &Store{path: path, now: time.Now}
}

func (s *Store) Path() string { return s.path }

// Load returns an empty session when the file does not exist yet.
func (s *Store) Load() (Session, error) {
	var session Session
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return session, nil
	}
	if err != nil {
		return session, fmt.Errorf("read session %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return session, nil
	}
	if err := json.Unmarshal(data, &session); err != nil {
		return session, fmt.Errorf("parse session %s: %w", s.path, err)
	}
	return session, nil
}

// Save writes the session atomically with owner-only permissions.
func (s *Store) Save(session *Session) error {
	session.UpdatedAt = s.now().UTC()
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("create session file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write session: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return os.Rename(tmp.Name(), s.path)
}

// Clear forgets the token and removes the file.
func (s *Store) Clear(session *Session) error {
	session.Token = ""
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}
