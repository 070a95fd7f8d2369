// Package credentials persists auth tokens and small UI preferences in a local
// bbolt database, the desktop analogue of the web client's browser storage.
package credentials

import (
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var (
	bucketTokens      = []byte("tokens")
	bucketPreferences = []byte("preferences")

	keyAccessToken      = []byte("access_token")
	keyRefreshToken     = []byte("refresh_token")
	keyTheme            = []byte("theme")
	keySidebarCollapsed = []byte("sidebar_collapsed")
)

// Tokens holds the bearer and refresh token pair.
type Tokens struct {
	Access  string
	Refresh string
}

// Store is a local credential and preference store backed by bbolt.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) the credential store at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketTokens); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketPreferences); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetTokens stores a new bearer/refresh token pair.
func (s *Store) SetTokens(t Tokens) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketTokens)
		if err := b.Put(keyAccessToken, []byte(t.Access)); err != nil {
			return err
		}
		return b.Put(keyRefreshToken, []byte(t.Refresh))
	})
}

// Tokens returns the stored token pair. Missing tokens come back as empty strings.
func (s *Store) Tokens() (Tokens, error) {
	var t Tokens
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketTokens)
		t.Access = string(b.Get(keyAccessToken))
		t.Refresh = string(b.Get(keyRefreshToken))
		return nil
	})
	return t, err
}

// AccessToken returns the stored bearer token, or "" when absent.
func (s *Store) AccessToken() string {
	t, err := s.Tokens()
	if err != nil {
		return ""
	}
	return t.Access
}

// ClearTokens purges both tokens, e.g. after a failed refresh exchange.
func (s *Store) ClearTokens() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketTokens)
		if err := b.Delete(keyAccessToken); err != nil {
			return err
		}
		return b.Delete(keyRefreshToken)
	})
}

// SetTheme stores the UI theme preference.
func (s *Store) SetTheme(theme string) error {
	return s.putPreference(keyTheme, theme)
}

// Theme returns the stored UI theme preference, or "" when unset.
func (s *Store) Theme() string {
	return s.getPreference(keyTheme)
}

// SetSidebarCollapsed stores the sidebar-collapsed flag.
func (s *Store) SetSidebarCollapsed(collapsed bool) error {
	v := "false"
	if collapsed {
		v = "true"
	}
	return s.putPreference(keySidebarCollapsed, v)
}

// SidebarCollapsed returns the stored sidebar-collapsed flag.
func (s *Store) SidebarCollapsed() bool {
	return s.getPreference(keySidebarCollapsed) == "true"
}

func (s *Store) putPreference(key []byte, value string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPreferences).Put(key, []byte(value))
	})
}

func (s *Store) getPreference(key []byte) string {
	var v string
	_ = s.db.View(func(tx *bbolt.Tx) error {
		v = string(tx.Bucket(bucketPreferences).Get(key))
		return nil
	})
	return v
}
