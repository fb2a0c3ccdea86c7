package syncer

import (
	"context"
	"errors"
	"sync"

	"github.com/pogodex/dexsync/dexsync/database/models"
	"github.com/pogodex/dexsync/dexsync/database/repositories"
	"github.com/pogodex/dexsync/dexsync/logger"
)

// Oracle answers the two session questions the rest of the engine asks:
// whether there is a usable session right now, and who the current user is.
type Oracle interface {
	Valid() bool
	CurrentUsername() string
}

// Session is the cache-backed Oracle. Credentials load once from the
// durable cache and are refreshed through SetCredentials when the caller
// re-authenticates; validity is re-evaluated against the clock on every
// Valid call so an expired refresh token flips the answer without any
// network round trip.
type Session struct {
	mu    sync.RWMutex
	creds *models.Credentials

	repo  repositories.SessionRepository
	clock Clock
}

func NewSession(ctx context.Context, repo repositories.SessionRepository, clock Clock) *Session {
	s := &Session{repo: repo, clock: clock}

	creds, err := repo.Get(ctx)
	if err != nil {
		if !errors.Is(err, repositories.ErrNoSession) {
			logger.LogError("Failed to load cached credentials", err)
		}
		return s
	}
	s.creds = creds
	return s
}

// Valid reports whether the cached refresh token is still usable.
func (s *Session) Valid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds != nil && s.creds.Valid(s.clock.Now())
}

// CurrentUsername returns the logged-in user's name, or "" when logged out.
func (s *Session) CurrentUsername() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.creds == nil {
		return ""
	}
	return s.creds.Username
}

// SetCredentials installs a fresh credential record and mirrors it to the
// durable cache.
func (s *Session) SetCredentials(ctx context.Context, creds *models.Credentials) error {
	s.mu.Lock()
	s.creds = creds
	s.mu.Unlock()

	if err := s.repo.Save(ctx, creds); err != nil {
		return err
	}
	return nil
}

// Clear drops the session on logout.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.creds = nil
	s.mu.Unlock()

	return s.repo.Clear(ctx)
}
