// Package session owns the process-wide credential for the remote
// service: lazy loading from persisted state, transparent single-
// flight refresh on expiry, and crash-safe persistence.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"codesync/internal/api"
)

const (
	sessionFileName = "session.json"

	tokenEnvKey = "CODESYNC_API_TOKEN"

	// expirySkew renews a credential slightly before its nominal
	// expiry so in-flight requests don't race the deadline.
	expirySkew = 30 * time.Second
)

// Credential is the persisted session state. The manager owns it
// exclusively; callers receive read-only copies per request.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

// Valid reports whether the credential carries a token at all.
func (c Credential) Valid() bool {
	return strings.TrimSpace(c.AccessToken) != ""
}

// Expired reports whether the credential needs a refresh at the given
// time. Credentials without an expiry never expire.
func (c Credential) Expired(now time.Time) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(expirySkew).Before(c.ExpiresAt)
}

// Refresher exchanges a refresh token for a fresh credential. The API
// client implements it.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (api.TokenResponse, error)
}

// Manager is the lazily-initialized owner of the session credential.
// Lifecycle: Unloaded -> Loaded(valid) -> Loaded(expired) ->
// Refreshing -> Loaded(valid). Only one refresh is ever in flight;
// concurrent callers wait for its result.
type Manager struct {
	path      string
	refresher Refresher
	log       *slog.Logger

	mu     sync.Mutex
	loaded bool
	cred   Credential

	now func() time.Time
}

// NewManager creates a Manager persisting to <stateDir>/session.json.
func NewManager(stateDir string, refresher Refresher) *Manager {
	return &Manager{
		path:      filepath.Join(stateDir, sessionFileName),
		refresher: refresher,
		log:       slog.Default(),
		now:       time.Now,
	}
}

// Path returns the session file location.
func (m *Manager) Path() string { return m.path }

// Credential returns a valid credential, loading persisted state on
// first use and refreshing if expired. A failed refresh surfaces an
// AuthError and leaves the persisted credential untouched.
func (m *Manager) Credential(ctx context.Context) (Credential, error) {
	// The env token short-circuits everything; it has no expiry and
	// no refresh material.
	if token := strings.TrimSpace(os.Getenv(tokenEnvKey)); token != "" {
		return Credential{AccessToken: token}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.loaded {
		m.loadLocked()
	}

	if !m.cred.Valid() {
		return Credential{}, &api.AuthError{Message: "not logged in (run `codesync login`)"}
	}
	if !m.cred.Expired(m.now()) {
		return m.cred, nil
	}

	// Expired. Callers queued on the mutex observe the refreshed
	// credential when they get here; exactly one refresh runs.
	if m.cred.RefreshToken == "" {
		return Credential{}, &api.AuthError{Message: "session expired and no refresh token is available"}
	}

	resp, err := m.refresher.Refresh(ctx, m.cred.RefreshToken)
	if err != nil {
		return Credential{}, err
	}

	refreshed := Credential{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = m.cred.RefreshToken
	}
	if resp.ExpiresIn > 0 {
		refreshed.ExpiresAt = m.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}

	m.cred = refreshed
	if err := writeAtomic(m.path, refreshed); err != nil {
		m.log.Warn("failed to persist refreshed session", "path", m.path, "error", err)
	}
	return refreshed, nil
}

// Save stores a new credential (login) and makes it current.
func (m *Manager) Save(cred Credential) error {
	if !cred.Valid() {
		return fmt.Errorf("credential has no access token")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := writeAtomic(m.path, cred); err != nil {
		return err
	}
	m.cred = cred
	m.loaded = true
	return nil
}

// Clear removes the persisted session (logout). Missing files are
// ignored.
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = Credential{}
	m.loaded = true
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// LoggedIn reports whether any credential is available, persisted or
// via environment.
func (m *Manager) LoggedIn() bool {
	if strings.TrimSpace(os.Getenv(tokenEnvKey)) != "" {
		return true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded {
		m.loadLocked()
	}
	return m.cred.Valid()
}

func (m *Manager) loadLocked() {
	m.loaded = true
	data, err := os.ReadFile(m.path)
	if err != nil {
		if !os.IsNotExist(err) {
			m.log.Warn("failed to read session file", "path", m.path, "error", err)
		}
		return
	}
	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		m.log.Warn("ignoring malformed session file", "path", m.path, "error", err)
		return
	}
	m.cred = cred
}

// writeAtomic persists the credential via a temp file and rename, so a
// crash mid-write never leaves a torn session file.
func writeAtomic(path string, cred Credential) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "session-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
