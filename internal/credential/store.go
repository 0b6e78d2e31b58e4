// Package credential persists the device token and keeps it validated.
package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sweeney/fridge-daemon/internal/atomicfile"
)

// DefaultPath is the token file location unless configured otherwise.
const DefaultPath = "fridge_token.json"

// Credential is the device token and when it was last confirmed by the
// backend. A zero LastValidated means never.
type Credential struct {
	Token         string
	LastValidated time.Time
}

// file is the on-disk layout. last_validated is null when absent.
type file struct {
	Token         string  `json:"token"`
	LastValidated *string `json:"last_validated"`
}

// Layouts accepted for last_validated. Timestamps without a zone are UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// Store reads and writes the credential file.
type Store struct {
	path string
}

// NewStore returns a store backed by the JSON file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the credential. A missing file yields a zero Credential and no
// error; an unreadable or malformed file is an error.
func (s *Store) Load() (Credential, error) {
	var c Credential
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("read credential: %w", err)
	}

	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return c, fmt.Errorf("parse credential %s: %w", s.path, err)
	}
	c.Token = f.Token
	if f.LastValidated != nil && *f.LastValidated != "" {
		t, err := parseTime(*f.LastValidated)
		if err != nil {
			return c, fmt.Errorf("parse credential %s: %w", s.path, err)
		}
		c.LastValidated = t
	}
	return c, nil
}

// Save replaces the credential file atomically. The file is readable only
// by its owner.
func (s *Store) Save(c Credential) error {
	f := file{Token: c.Token}
	if !c.LastValidated.IsZero() {
		ts := c.LastValidated.UTC().Format(time.RFC3339Nano)
		f.LastValidated = &ts
	}
	if err := atomicfile.WriteJSON(s.path, f, 0600); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}
