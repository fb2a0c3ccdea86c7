package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/pogodex/dexsync/dexsync/database"
	"github.com/pogodex/dexsync/dexsync/database/models"
	"github.com/pogodex/dexsync/dexsync/logger"
)

// OutboxRepository holds the pending mutations not yet delivered to the
// receiver. One queue per entity kind, keyed by entity id; writing a patch
// for an id overwrites any earlier pending patch for that id, so only the
// final state of a rapid edit burst is ever delivered.
type OutboxRepository interface {
	PutInstanceUpdate(ctx context.Context, update models.InstanceUpdate) error
	PutTradeUpdate(ctx context.Context, update models.TradeUpdate) error
	GetInstanceUpdates(ctx context.Context) ([]models.InstanceUpdate, error)
	GetTradeUpdates(ctx context.Context) ([]models.TradeUpdate, error)
	DeleteInstanceUpdates(ctx context.Context, keys []string) error
	DeleteTradeUpdates(ctx context.Context, keys []string) error
	ClearInstanceUpdates(ctx context.Context) error
	ClearTradeUpdates(ctx context.Context) error
	IsEmpty(ctx context.Context) (bool, error)
}

type outboxRepository struct {
	*BaseRepository
}

func NewOutboxRepository(db *database.DB) OutboxRepository {
	return &outboxRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *outboxRepository) PutInstanceUpdate(ctx context.Context, update models.InstanceUpdate) error {
	start := time.Now()
	err := r.db.Badger().Update(func(txn *badger.Txn) error {
		return r.putJSON(txn, prefixOutboxPokemon+update.Key, update)
	})
	logger.LogStore("outbox.put_instance", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to queue instance update %s: %w", update.Key, err)
	}
	return nil
}

func (r *outboxRepository) PutTradeUpdate(ctx context.Context, update models.TradeUpdate) error {
	start := time.Now()
	err := r.db.Badger().Update(func(txn *badger.Txn) error {
		return r.putJSON(txn, prefixOutboxTrade+update.Key, update)
	})
	logger.LogStore("outbox.put_trade", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to queue trade update %s: %w", update.Key, err)
	}
	return nil
}

func (r *outboxRepository) GetInstanceUpdates(ctx context.Context) ([]models.InstanceUpdate, error) {
	var out []models.InstanceUpdate
	err := r.scanPrefix(prefixOutboxPokemon, func(key string, val []byte) error {
		var update models.InstanceUpdate
		if err := json.Unmarshal(val, &update); err != nil {
			return err
		}
		out = append(out, update)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read instance outbox: %w", err)
	}
	return out, nil
}

func (r *outboxRepository) GetTradeUpdates(ctx context.Context) ([]models.TradeUpdate, error) {
	var out []models.TradeUpdate
	err := r.scanPrefix(prefixOutboxTrade, func(key string, val []byte) error {
		var update models.TradeUpdate
		if err := json.Unmarshal(val, &update); err != nil {
			return err
		}
		out = append(out, update)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read trade outbox: %w", err)
	}
	return out, nil
}

// DeleteInstanceUpdates removes exactly the given keys. The delivery path
// uses this after a successful flush so that patches queued mid-flight
// survive for the next round.
func (r *outboxRepository) DeleteInstanceUpdates(ctx context.Context, keys []string) error {
	start := time.Now()
	err := r.deleteKeys(prefixOutboxPokemon, keys)
	logger.LogStore("outbox.delete_instances", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to delete delivered instance updates: %w", err)
	}
	return nil
}

func (r *outboxRepository) DeleteTradeUpdates(ctx context.Context, keys []string) error {
	start := time.Now()
	err := r.deleteKeys(prefixOutboxTrade, keys)
	logger.LogStore("outbox.delete_trades", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to delete delivered trade updates: %w", err)
	}
	return nil
}

func (r *outboxRepository) deleteKeys(prefix string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	wb := r.db.Badger().NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete([]byte(prefix + key)); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func (r *outboxRepository) ClearInstanceUpdates(ctx context.Context) error {
	if err := r.db.Badger().DropPrefix([]byte(prefixOutboxPokemon)); err != nil {
		return fmt.Errorf("failed to clear instance outbox: %w", err)
	}
	return nil
}

func (r *outboxRepository) ClearTradeUpdates(ctx context.Context) error {
	if err := r.db.Badger().DropPrefix([]byte(prefixOutboxTrade)); err != nil {
		return fmt.Errorf("failed to clear trade outbox: %w", err)
	}
	return nil
}

func (r *outboxRepository) IsEmpty(ctx context.Context) (bool, error) {
	empty := true
	check := func(prefix string) error {
		return r.db.Badger().View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = []byte(prefix)
			opts.PrefetchValues = false
			it := txn.NewIterator(opts)
			defer it.Close()
			it.Rewind()
			if it.Valid() {
				empty = false
			}
			return nil
		})
	}

	if err := check(prefixOutboxPokemon); err != nil {
		return false, fmt.Errorf("failed to check instance outbox: %w", err)
	}
	if !empty {
		return false, nil
	}
	if err := check(prefixOutboxTrade); err != nil {
		return false, fmt.Errorf("failed to check trade outbox: %w", err)
	}
	return empty, nil
}
