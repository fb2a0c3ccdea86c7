// Package trades owns the trade-proposal map, the read-only related
// instance snapshots attached to trades, and the lifecycle controller that
// drives trade status transitions.
package trades

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pogodex/dexsync/dexsync/database/models"
	"github.com/pogodex/dexsync/dexsync/database/repositories"
)

// Store holds the in-memory trade map mirrored by the durable cache.
// Related instances are owned by their trades and never merged into the
// canonical instance map.
type Store struct {
	mu      sync.RWMutex
	trades  models.Trades
	related models.Instances

	repo repositories.TradeRepository
}

func NewStore(repo repositories.TradeRepository) *Store {
	return &Store{
		trades:  models.Trades{},
		related: models.Instances{},
		repo:    repo,
	}
}

// Hydrate installs the cached maps at startup.
func (s *Store) Hydrate(trades models.Trades, related models.Instances) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if trades == nil {
		trades = models.Trades{}
	}
	if related == nil {
		related = models.Instances{}
	}
	s.trades = trades
	s.related = related
	slog.Debug("Hydrated trades from cache",
		slog.Int("trades", len(trades)),
		slog.Int("related", len(related)))
}

// Snapshot returns a deep copy of the trade map.
func (s *Store) Snapshot() models.Trades {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trades.Clone()
}

// Get returns a copy of one trade.
func (s *Store) Get(tradeID string) (*models.Trade, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trades[tradeID]
	return t.Clone(), ok
}

// Related returns a deep copy of the related-instance map.
func (s *Store) Related() models.Instances {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.related.Clone()
}

// GetRelated returns a copy of one related instance.
func (s *Store) GetRelated(instanceID string) (*models.Instance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.related[instanceID]
	return inst.Clone(), ok
}

// SetTrades merges trade updates into memory and the durable cache. Trades
// that reached the deleted status stay visible in memory (so views can drop
// them) but are removed from the cache rather than stored.
func (s *Store) SetTrades(ctx context.Context, updates models.Trades) error {
	if len(updates) == 0 {
		return nil
	}

	var persist []*models.Trade
	for id, trade := range updates {
		if trade.Status == models.TradeDeleted {
			if err := s.repo.DeleteTrade(ctx, id); err != nil {
				return err
			}
			continue
		}
		persist = append(persist, trade)
	}
	if len(persist) > 0 {
		if err := s.repo.PutTrades(ctx, persist); err != nil {
			return err
		}
	}

	s.mu.Lock()
	for id, trade := range updates {
		s.trades[id] = trade.Clone()
	}
	s.mu.Unlock()
	return nil
}

// SetRelated merges related-instance snapshots into memory and the cache.
func (s *Store) SetRelated(ctx context.Context, updates models.Instances) error {
	if len(updates) == 0 {
		return nil
	}

	persist := make([]*models.Instance, 0, len(updates))
	for _, inst := range updates {
		persist = append(persist, inst)
	}
	if err := s.repo.PutRelated(ctx, persist); err != nil {
		return err
	}

	s.mu.Lock()
	for id, inst := range updates {
		s.related[id] = inst.Clone()
	}
	s.mu.Unlock()
	return nil
}

// Reset empties both maps and the cache on logout.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.trades = models.Trades{}
	s.related = models.Instances{}
	s.mu.Unlock()
	return s.repo.Reset(ctx)
}
