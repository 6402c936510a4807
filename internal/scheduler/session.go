package scheduler

import (
	"context"
	"sync"
	"time"

	"sitemigrate/internal/services/target"
)

// Authenticator logs into the target platform.
type Authenticator interface {
	Login(ctx context.Context) (*target.Session, error)
}

// SessionCache holds the import checker's target session. It logs in on
// first use and again only after the idle window has passed since the last
// login.
type SessionCache struct {
	auth Authenticator
	idle time.Duration
	now  func() time.Time

	mu        sync.Mutex
	session   *target.Session
	lastLogin time.Time
}

// NewSessionCache returns an empty cache.
func NewSessionCache(auth Authenticator, idle time.Duration) *SessionCache {
	return &SessionCache{auth: auth, idle: idle, now: time.Now}
}

// Get returns the cached session, logging in when needed.
func (c *SessionCache) Get(ctx context.Context) (*target.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if c.session != nil && now.Sub(c.lastLogin) <= c.idle {
		return c.session, nil
	}
	session, err := c.auth.Login(ctx)
	if err != nil {
		return nil, err
	}
	c.session = session
	c.lastLogin = now
	return session, nil
}

// Invalidate drops the cached session so the next Get logs in again.
func (c *SessionCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = nil
}
