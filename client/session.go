package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/smartfix-dev/smartfix-api/models"
)

// Session is the signed-in state of one user of the API
type Session struct {
	UserID     uint        `json:"userId"`
	Name       string      `json:"name"`
	Email      string      `json:"email"`
	Role       models.Role `json:"role"`
	IsVerified bool        `json:"isVerified"`
	Token      string      `json:"token"`
	ExpiresAt  time.Time   `json:"expiresAt"`
}

// Valid reports whether the session carries a token that has not expired at now
func (s *Session) Valid(now time.Time) bool {
	return s != nil && s.Token != "" && s.UserID != 0 && now.Before(s.ExpiresAt)
}

func (s *Session) IsAdmin() bool      { return s != nil && s.Role == models.RoleAdmin }
func (s *Session) IsTechnician() bool { return s != nil && s.Role == models.RoleTechnician }
func (s *Session) IsClient() bool     { return s != nil && s.Role == models.RoleClient }

// SessionStore persists a session between runs
type SessionStore interface {
	// Load returns the stored session, or nil when there is none
	Load() (*Session, error)
	Save(s *Session) error
	Clear() error
}

// FileSessionStore keeps the session as a JSON file readable only by the owner
type FileSessionStore struct {
	Path string
}

// NewFileSessionStore stores the session at path
func NewFileSessionStore(path string) *FileSessionStore {
	return &FileSessionStore{Path: path}
}

func (f *FileSessionStore) Load() (*Session, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &s, nil
}

func (f *FileSessionStore) Save(s *Session) error {
	if s == nil {
		return f.Clear()
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := os.WriteFile(f.Path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

func (f *FileSessionStore) Clear() error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}
