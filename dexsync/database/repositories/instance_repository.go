package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/pogodex/dexsync/dexsync/database"
	"github.com/pogodex/dexsync/dexsync/database/models"
	"github.com/pogodex/dexsync/dexsync/logger"
)

const metaFreshnessKey = prefixMeta + "ownership_timestamp"

// InstanceRepository is the durable cache for the current user's instances.
// It mirrors the in-memory entity store and survives restarts.
type InstanceRepository interface {
	GetAll(ctx context.Context) (models.Instances, error)
	PutBulk(ctx context.Context, instances []*models.Instance) error
	Delete(ctx context.Context, instanceID string) error
	// ReplaceAll swaps the entire cached table for the given map and stamps
	// the freshness timestamp. Used on the authoritative path only.
	ReplaceAll(ctx context.Context, instances models.Instances, timestamp int64) error
	Freshness(ctx context.Context) (int64, error)
	SetFreshness(ctx context.Context, timestamp int64) error
	ClearFreshness(ctx context.Context) error
}

type instanceRepository struct {
	*BaseRepository
}

func NewInstanceRepository(db *database.DB) InstanceRepository {
	return &instanceRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *instanceRepository) GetAll(ctx context.Context) (models.Instances, error) {
	start := time.Now()
	out := make(models.Instances)
	err := r.scanPrefix(prefixInstance, func(key string, val []byte) error {
		var inst models.Instance
		if err := json.Unmarshal(val, &inst); err != nil {
			return err
		}
		out[inst.InstanceID] = &inst
		return nil
	})
	logger.LogStore("instances.get_all", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to load instance cache: %w", err)
	}
	return out, nil
}

func (r *instanceRepository) PutBulk(ctx context.Context, instances []*models.Instance) error {
	start := time.Now()
	err := r.db.Badger().Update(func(txn *badger.Txn) error {
		for _, inst := range instances {
			if err := r.putJSON(txn, prefixInstance+inst.InstanceID, inst); err != nil {
				return err
			}
		}
		return nil
	})
	logger.LogStore("instances.put_bulk", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to persist instances: %w", err)
	}
	return nil
}

func (r *instanceRepository) Delete(ctx context.Context, instanceID string) error {
	err := r.db.Badger().Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(prefixInstance + instanceID))
	})
	if err != nil {
		return fmt.Errorf("failed to delete instance %s: %w", instanceID, err)
	}
	return nil
}

func (r *instanceRepository) ReplaceAll(ctx context.Context, instances models.Instances, timestamp int64) error {
	start := time.Now()

	if err := r.db.Badger().DropPrefix([]byte(prefixInstance)); err != nil {
		return fmt.Errorf("failed to clear instance cache: %w", err)
	}

	rows := make(map[string]any, len(instances)+1)
	for id, inst := range instances {
		rows[prefixInstance+id] = inst
	}
	rows[metaFreshnessKey] = timestamp

	err := r.writeBulk(rows)
	logger.LogStore("instances.replace_all", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to replace instance cache: %w", err)
	}
	return nil
}

func (r *instanceRepository) Freshness(ctx context.Context) (int64, error) {
	var ts int64
	if err := r.getJSON(metaFreshnessKey, &ts); err != nil {
		if isNotFound(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read freshness timestamp: %w", err)
	}
	return ts, nil
}

func (r *instanceRepository) SetFreshness(ctx context.Context, timestamp int64) error {
	err := r.db.Badger().Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(metaFreshnessKey), []byte(strconv.FormatInt(timestamp, 10)))
	})
	if err != nil {
		return fmt.Errorf("failed to write freshness timestamp: %w", err)
	}
	return nil
}

func (r *instanceRepository) ClearFreshness(ctx context.Context) error {
	err := r.db.Badger().Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(metaFreshnessKey))
	})
	if err != nil {
		return fmt.Errorf("failed to clear freshness timestamp: %w", err)
	}
	return nil
}
