// Package memory provides in-process cache implementations of the domain
// cache interfaces.
package memory

import (
	"errors"
	"fmt"
	"time"

	"github.com/bluele/gcache"

	"github.com/alanyoungcy/cryptodash/internal/domain"
)

// Compile-time interface check.
var _ domain.SessionCache = (*SessionCache)(nil)

// SessionCache keeps each browser session's search term in a bounded LRU.
// Entries expire ttl after they were last written.
type SessionCache struct {
	terms gcache.Cache
}

// NewSessionCache creates a SessionCache holding at most size sessions.
func NewSessionCache(size int, ttl time.Duration) *SessionCache {
	b := gcache.New(size).LRU()
	if ttl > 0 {
		b = b.Expiration(ttl)
	}
	return &SessionCache{terms: b.Build()}
}

// Term returns the stored search term, or domain.ErrNotFound for unknown or
// expired sessions.
func (c *SessionCache) Term(sessionID string) (string, error) {
	v, err := c.terms.Get(sessionID)
	if err != nil {
		if errors.Is(err, gcache.KeyNotFoundError) {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("memory: session term: %w", err)
	}
	term, _ := v.(string)
	return term, nil
}

// SetTerm stores term for sessionID and resets its expiry.
func (c *SessionCache) SetTerm(sessionID, term string) error {
	if err := c.terms.Set(sessionID, term); err != nil {
		return fmt.Errorf("memory: set session term: %w", err)
	}
	return nil
}

// Len returns the number of live sessions.
func (c *SessionCache) Len() int {
	return c.terms.Len(true)
}
