package credential

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sweeney/fridge-daemon/internal/retry"
)

// DefaultThreshold is how long a validation stays fresh.
const DefaultThreshold = 24 * time.Hour

// ErrNotConfigured is returned when an operation needs a token and none is set.
var ErrNotConfigured = errors.New("device not configured")

// Validator confirms a token with the backend and returns the token to use
// from now on.
type Validator interface {
	ValidateToken(ctx context.Context, token string) (string, error)
}

// State is the lifecycle position of the credential.
type State int

const (
	StateUnconfigured State = iota
	StateValid
	StateExpiring // validation is due; a replacement may be issued
)

// String returns the upper-case state name.
func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "UNCONFIGURED"
	case StateValid:
		return "VALID"
	case StateExpiring:
		return "EXPIRING"
	default:
		return "UNKNOWN"
	}
}

// Status is a point-in-time view for status consumers.
type Status struct {
	State         State
	LastValidated time.Time
	Validations   int
	Failures      int
}

// Manager owns the in-memory credential. Token may be called from any
// goroutine; validation is driven by the supervisor.
type Manager struct {
	store     *Store
	validator Validator
	exec      *retry.Executor
	policy    retry.Policy
	threshold time.Duration
	now       func() time.Time

	mu          sync.RWMutex
	cred        Credential
	validations int
	failures    int
}

// NewManager creates a manager. Call Load before use.
func NewManager(store *Store, v Validator, exec *retry.Executor, policy retry.Policy, threshold time.Duration) *Manager {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Manager{
		store:     store,
		validator: v,
		exec:      exec,
		policy:    policy,
		threshold: threshold,
		now:       time.Now,
	}
}

// WithClock replaces the wall clock. Used by tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Load reads the credential from the store.
func (m *Manager) Load() error {
	c, err := m.store.Load()
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.cred = c
	m.mu.Unlock()

	if c.Token == "" {
		log.Printf("credential: no token in %s, run setup", m.store.Path())
	} else {
		log.Printf("credential: token loaded (last validated %s)", formatTime(c.LastValidated))
	}
	return nil
}

// IsConfigured reports whether a token is present.
func (m *Manager) IsConfigured() bool {
	return m.Token() != ""
}

// Token returns the current token or "".
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cred.Token
}

// Credential returns a copy of the current credential.
func (m *Manager) Credential() Credential {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cred
}

// ShouldValidate reports whether the token was never validated or the last
// validation is older than the threshold.
func (m *Manager) ShouldValidate() bool {
	m.mu.RLock()
	last := m.cred.LastValidated
	m.mu.RUnlock()
	if last.IsZero() {
		return true
	}
	return m.now().Sub(last) > m.threshold
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	if !m.IsConfigured() {
		return StateUnconfigured
	}
	if m.ShouldValidate() {
		return StateExpiring
	}
	return StateValid
}

// Status returns the state with counters.
func (m *Manager) Status() Status {
	st := m.State()
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{
		State:         st,
		LastValidated: m.cred.LastValidated,
		Validations:   m.validations,
		Failures:      m.failures,
	}
}

// Validate confirms the token with the backend, adopts any replacement and
// records the validation time. On failure the credential is unchanged.
func (m *Manager) Validate(ctx context.Context) error {
	token := m.Token()
	if token == "" {
		return ErrNotConfigured
	}

	var issued string
	err := m.exec.Do(ctx, "credential: validate", m.policy, func(ctx context.Context) error {
		t, err := m.validator.ValidateToken(ctx, token)
		if err != nil {
			return err
		}
		issued = t
		return nil
	})
	if err != nil {
		m.mu.Lock()
		m.failures++
		m.mu.Unlock()
		return fmt.Errorf("validate token: %w", err)
	}
	if issued == "" {
		issued = token
	}

	m.mu.Lock()
	if issued != m.cred.Token {
		log.Printf("credential: token renewed by server")
	}
	m.cred = Credential{Token: issued, LastValidated: m.now().UTC()}
	m.validations++
	c := m.cred
	m.mu.Unlock()

	// The validation stands even if it can't be written; the next successful
	// validation persists again.
	if err := m.store.Save(c); err != nil {
		log.Printf("credential: %v", err)
	}
	log.Printf("credential: token validated")
	return nil
}

// Check validates the token when configured and due. Failures are logged;
// the previous credential stays in use until the next check.
func (m *Manager) Check(ctx context.Context) {
	if !m.IsConfigured() || !m.ShouldValidate() {
		return
	}
	if err := m.Validate(ctx); err != nil {
		log.Printf("credential: %v", err)
	}
}

// Configure installs a newly issued token, marks it validated now and
// persists it.
func (m *Manager) Configure(token string) error {
	if token == "" {
		return errors.New("empty token")
	}
	c := Credential{Token: token, LastValidated: m.now().UTC()}
	if err := m.store.Save(c); err != nil {
		return err
	}
	m.mu.Lock()
	m.cred = c
	m.mu.Unlock()
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}
