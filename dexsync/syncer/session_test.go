package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pogodex/dexsync/dexsync/database"
	"github.com/pogodex/dexsync/dexsync/database/models"
	"github.com/pogodex/dexsync/dexsync/database/repositories"
)

type frozenClock struct {
	now time.Time
}

func (c *frozenClock) Now() time.Time                         { return c.now }
func (c *frozenClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func newSessionFixture(t *testing.T) (repositories.SessionRepository, *frozenClock) {
	t.Helper()

	db, err := database.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return repositories.NewSessionRepository(db), &frozenClock{now: time.UnixMilli(0)}
}

func TestSessionLoadsCachedCredentials(t *testing.T) {
	repo, clock := newSessionFixture(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, &models.Credentials{
		Username:           "ash",
		RefreshTokenExpiry: clock.now.Add(time.Hour),
	}))

	s := NewSession(ctx, repo, clock)
	assert.True(t, s.Valid())
	assert.Equal(t, "ash", s.CurrentUsername())
}

func TestSessionWithoutCachedRecord(t *testing.T) {
	repo, clock := newSessionFixture(t)

	s := NewSession(context.Background(), repo, clock)
	assert.False(t, s.Valid())
	assert.Empty(t, s.CurrentUsername())
}

func TestSessionExpiresWithClock(t *testing.T) {
	repo, clock := newSessionFixture(t)
	ctx := context.Background()

	s := NewSession(ctx, repo, clock)
	require.NoError(t, s.SetCredentials(ctx, &models.Credentials{
		Username:           "ash",
		RefreshTokenExpiry: clock.now.Add(time.Hour),
	}))
	assert.True(t, s.Valid())

	clock.now = clock.now.Add(2 * time.Hour)
	assert.False(t, s.Valid(), "validity follows the clock past the refresh expiry")
	assert.Equal(t, "ash", s.CurrentUsername(), "username outlives validity")
}

func TestSessionClear(t *testing.T) {
	repo, clock := newSessionFixture(t)
	ctx := context.Background()

	s := NewSession(ctx, repo, clock)
	require.NoError(t, s.SetCredentials(ctx, &models.Credentials{
		Username:           "ash",
		RefreshTokenExpiry: clock.now.Add(time.Hour),
	}))
	require.NoError(t, s.Clear(ctx))

	assert.False(t, s.Valid())
	assert.Empty(t, s.CurrentUsername())

	// The durable record is gone too: a fresh session sees nothing.
	again := NewSession(ctx, repo, clock)
	assert.False(t, again.Valid())
}
