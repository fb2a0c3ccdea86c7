// Package instances owns the canonical in-memory map of the current user's
// instances, the mutation actions that update it, and the reconciliation
// engine that merges server snapshots into it. All mutations go through
// copy-on-write drafts committed under a single lock, then mirror into the
// durable cache and the outbox.
package instances

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pogodex/dexsync/dexsync/catalog"
	"github.com/pogodex/dexsync/dexsync/database/models"
	"github.com/pogodex/dexsync/dexsync/database/repositories"
	"github.com/pogodex/dexsync/dexsync/logger"
)

// UsernameSource yields the current user's name for the merge filter.
type UsernameSource interface {
	CurrentUsername() string
}

// Store is the single source of truth the UI reads instances from. The
// durable cache is a passive mirror; a cache write failure never rolls back
// the in-memory state.
type Store struct {
	mu      sync.RWMutex
	data    models.Instances
	foreign models.Instances
	loading bool

	repo      repositories.InstanceRepository
	outbox    repositories.OutboxRepository
	catalog   catalog.Provider
	usernames UsernameSource

	now      func() time.Time
	onMutate func()
}

func NewStore(
	repo repositories.InstanceRepository,
	outbox repositories.OutboxRepository,
	provider catalog.Provider,
	usernames UsernameSource,
) *Store {
	return &Store{
		data:      models.Instances{},
		loading:   true,
		repo:      repo,
		outbox:    outbox,
		catalog:   provider,
		usernames: usernames,
		now:       time.Now,
	}
}

// SetOnMutate registers the hook fired after every local mutation,
// typically the delivery scheduler's Schedule.
func (s *Store) SetOnMutate(fn func()) {
	s.onMutate = fn
}

// SetClock overrides the wall clock. Tests only.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Hydrate replaces the in-memory map wholesale from the durable cache at
// startup. It does not write back to the cache.
func (s *Store) Hydrate(data models.Instances) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if data == nil {
		data = models.Instances{}
	}
	s.data = data
	s.loading = false
	slog.Debug("Hydrated instances from cache", slog.Int("count", len(data)))
}

// Reset empties the map on logout and removes the cached freshness
// timestamp.
func (s *Store) Reset(ctx context.Context) {
	s.mu.Lock()
	s.data = models.Instances{}
	s.foreign = nil
	s.loading = true
	s.mu.Unlock()

	if err := s.repo.ClearFreshness(ctx); err != nil {
		logger.LogError("Failed to clear freshness timestamp", err)
	}
}

// Loading reports whether the store has hydrated yet.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Snapshot returns a deep copy of the canonical map.
func (s *Store) Snapshot() models.Instances {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Clone()
}

// Get returns a copy of one record.
func (s *Store) Get(instanceID string) (*models.Instance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.data[instanceID]
	return inst.Clone(), ok
}

// SetForeign installs the side-channel snapshot used when viewing another
// user's profile. It never participates in merge.
func (s *Store) SetForeign(data models.Instances) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.foreign = data
	slog.Debug("Set foreign instances", slog.Int("count", len(data)))
}

func (s *Store) ClearForeign() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.foreign = nil
}

// Foreign returns the foreign-profile snapshot, or nil when none is loaded.
func (s *Store) Foreign() models.Instances {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.foreign
}

// ApplyAuthoritative merges a server snapshot of the current user's own
// instances into the resident map, then persists the result to the durable
// cache as a full replacement and stamps a new freshness timestamp.
//
// The no-op guards matter: this path also serves chatty periodic pulls, and
// an unchanged snapshot must cause neither durable writes nor downstream
// re-renders.
func (s *Store) ApplyAuthoritative(ctx context.Context, incoming models.Instances) error {
	if len(incoming) == 0 {
		slog.Debug("No incoming instance data; skipping authoritative apply")
		return nil
	}

	s.mu.Lock()
	current := s.data
	if current.Equal(incoming) {
		s.mu.Unlock()
		slog.Debug("Incoming instance data matches current; skipping")
		return nil
	}

	merged := Merge(current, incoming, s.usernames.CurrentUsername())
	if merged.Equal(current) {
		s.mu.Unlock()
		slog.Debug("Merge produced no changes; skipping persist")
		return nil
	}

	ts := s.now().UnixMilli()
	s.data = merged
	s.mu.Unlock()

	slog.Debug("Applied authoritative instance snapshot",
		slog.Int("count", len(merged)))

	if err := s.repo.ReplaceAll(ctx, merged, ts); err != nil {
		logger.LogError("Failed to persist merged snapshot", err)
	}
	return nil
}

// TransferOwnership rewrites the username on the given instances after a
// completed trade, keyed by instance id. Only instances resident in the
// canonical map are touched; the server performs the authoritative swap, so
// nothing is queued to the outbox.
func (s *Store) TransferOwnership(ctx context.Context, owners map[string]string) {
	s.mu.Lock()
	ts := s.now().UnixMilli()
	var updated []*models.Instance
	for instanceID, username := range owners {
		inst, ok := s.data[instanceID]
		if !ok {
			continue
		}
		clone := inst.Clone()
		clone.Username = username
		clone.LastUpdate = ts
		s.data[instanceID] = clone
		updated = append(updated, clone)
	}
	s.mu.Unlock()

	if len(updated) == 0 {
		return
	}
	if err := s.repo.PutBulk(ctx, updated); err != nil {
		logger.LogError("Failed to persist ownership transfer", err)
	}
	slog.Debug("Transferred instance ownership", slog.Int("count", len(updated)))
}
