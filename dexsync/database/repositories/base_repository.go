package repositories

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/pogodex/dexsync/dexsync/database"
)

// Key prefixes act as the logical tables of the durable cache. Every value
// is JSON-encoded.
const (
	prefixInstance      = "instance:"
	prefixTrade         = "trade:"
	prefixRelated       = "related:"
	prefixOutboxPokemon = "outbox:instance:"
	prefixOutboxTrade   = "outbox:trade:"
	prefixMeta          = "meta:"
)

// NotFoundError represents an entity not found error
type NotFoundError struct {
	Entity string
	ID     interface{}
}

func (nfe *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %v not found", nfe.Entity, nfe.ID)
}

// BaseRepository provides the shared key-value plumbing used by the entity
// repositories.
type BaseRepository struct {
	db *database.DB
}

// NewBaseRepository creates a new base repository
func NewBaseRepository(db *database.DB) *BaseRepository {
	return &BaseRepository{db: db}
}

func (r *BaseRepository) putJSON(txn *badger.Txn, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return txn.Set([]byte(key), raw)
}

func (r *BaseRepository) getJSON(key string, out any) error {
	return r.db.Badger().View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
}

// scanPrefix invokes fn with the raw value of every key under prefix.
func (r *BaseRepository) scanPrefix(prefix string, fn func(key string, val []byte) error) error {
	return r.db.Badger().View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())
			if err := item.Value(func(val []byte) error {
				return fn(key, val)
			}); err != nil {
				return fmt.Errorf("failed to read %s: %w", key, err)
			}
		}
		return nil
	})
}

// dropPrefix removes every key under prefix inside the given transaction.
func (r *BaseRepository) dropPrefix(txn *badger.Txn, prefix string) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// writeBulk stores a set of JSON-encoded rows through a WriteBatch, which
// has no transaction size ceiling. Used by replace-all persists where a
// single transaction could overflow.
func (r *BaseRepository) writeBulk(rows map[string]any) error {
	wb := r.db.Badger().NewWriteBatch()
	defer wb.Cancel()

	for key, value := range rows {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", key, err)
		}
		if err := wb.Set([]byte(key), raw); err != nil {
			return fmt.Errorf("failed to stage %s: %w", key, err)
		}
	}
	return wb.Flush()
}

func isNotFound(err error) bool {
	return errors.Is(err, badger.ErrKeyNotFound)
}
