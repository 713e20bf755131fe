// Package client talks to the profiles API on behalf of a signed-in user and
// keeps that user's session on disk between invocations.
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	sessionFile = "session.json"
	stateFile   = "oauth_state.json"

	// OAuthStateTTL bounds how long a sign-in started with SignInWithGoogle
	// may take to come back.
	OAuthStateTTL = 5 * time.Minute
)

// ErrNoSession is returned by Load when nothing has been saved.
var ErrNoSession = errors.New("no saved session")

type SessionUser struct {
	ID                string `json:"id"`
	Email             string `json:"email"`
	FullName          string `json:"full_name"`
	IsProfileComplete bool   `json:"isProfileComplete"`
}

// Session is the persisted blob. ExpiresAt is nil when the server sent no
// expiry.
type Session struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresAt    *time.Time  `json:"expires_at"`
	User         SessionUser `json:"user"`
}

type oauthState struct {
	Value   string `json:"value"`
	Expires int64  `json:"expires"`
}

// FileSessionStore keeps the session and the pending OAuth state as two
// owner-only files in one directory.
type FileSessionStore struct {
	dir string
	now func() time.Time
}

func NewFileSessionStore(dir string) *FileSessionStore {
	return &FileSessionStore{dir: dir, now: time.Now}
}

// DefaultSessionDir honours PROFILES_SESSION_DIR, then XDG_CONFIG_HOME, then
// ~/.config.
func DefaultSessionDir() string {
	if dir := os.Getenv("PROFILES_SESSION_DIR"); dir != "" {
		return dir
	}
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "studyhub-profiles")
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "studyhub-profiles")
}

func (s *FileSessionStore) Save(session Session) error {
	return s.write(sessionFile, session)
}

func (s *FileSessionStore) Load() (Session, error) {
	var session Session
	if err := s.read(sessionFile, &session); err != nil {
		return Session{}, err
	}
	if session.AccessToken == "" {
		return Session{}, ErrNoSession
	}
	return session, nil
}

// Clear removes the session and any pending OAuth state.
func (s *FileSessionStore) Clear() error {
	for _, name := range []string{sessionFile, stateFile} {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}
	return nil
}

// IsAuthenticated reports whether a usable session is saved. Without an
// expiry the access token alone is enough.
func (s *FileSessionStore) IsAuthenticated() bool {
	session, err := s.Load()
	if err != nil {
		return false
	}
	if session.ExpiresAt == nil {
		return session.AccessToken != ""
	}
	return session.ExpiresAt.After(s.now())
}

func (s *FileSessionStore) AccessToken() string {
	session, err := s.Load()
	if err != nil {
		return ""
	}
	return session.AccessToken
}

func (s *FileSessionStore) SetOAuthState(value string) error {
	return s.write(stateFile, oauthState{
		Value:   value,
		Expires: s.now().Add(OAuthStateTTL).UnixMilli(),
	})
}

// VerifyOAuthState consumes the pending state. It is removed before the
// comparison, so a second call with the same value fails.
func (s *FileSessionStore) VerifyOAuthState(received string) bool {
	var state oauthState
	err := s.read(stateFile, &state)
	_ = os.Remove(filepath.Join(s.dir, stateFile))
	if err != nil {
		return false
	}
	if state.Value == "" || state.Expires == 0 {
		return false
	}
	if s.now().UnixMilli() > state.Expires {
		return false
	}
	return state.Value == received
}

func (s *FileSessionStore) write(name string, value interface{}) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create session dir %s: %w", s.dir, err)
	}
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (s *FileSessionStore) read(name string, out interface{}) error {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNoSession
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
