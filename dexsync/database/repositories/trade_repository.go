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

// TradeRepository is the durable cache for trades and for the read-only
// related-instance snapshots attached to them. Trades that reach the
// deleted status are removed from the cache rather than stored.
type TradeRepository interface {
	GetAllTrades(ctx context.Context) (models.Trades, error)
	PutTrades(ctx context.Context, trades []*models.Trade) error
	DeleteTrade(ctx context.Context, tradeID string) error
	GetAllRelated(ctx context.Context) (models.Instances, error)
	PutRelated(ctx context.Context, instances []*models.Instance) error
	Reset(ctx context.Context) error
}

type tradeRepository struct {
	*BaseRepository
}

func NewTradeRepository(db *database.DB) TradeRepository {
	return &tradeRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *tradeRepository) GetAllTrades(ctx context.Context) (models.Trades, error) {
	start := time.Now()
	out := make(models.Trades)
	err := r.scanPrefix(prefixTrade, func(key string, val []byte) error {
		var trade models.Trade
		if err := json.Unmarshal(val, &trade); err != nil {
			return err
		}
		out[trade.TradeID] = &trade
		return nil
	})
	logger.LogStore("trades.get_all", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to load trade cache: %w", err)
	}
	return out, nil
}

func (r *tradeRepository) PutTrades(ctx context.Context, trades []*models.Trade) error {
	start := time.Now()
	err := r.db.Badger().Update(func(txn *badger.Txn) error {
		for _, trade := range trades {
			if err := r.putJSON(txn, prefixTrade+trade.TradeID, trade); err != nil {
				return err
			}
		}
		return nil
	})
	logger.LogStore("trades.put_bulk", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to persist trades: %w", err)
	}
	return nil
}

func (r *tradeRepository) DeleteTrade(ctx context.Context, tradeID string) error {
	err := r.db.Badger().Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(prefixTrade + tradeID))
	})
	if err != nil {
		return fmt.Errorf("failed to delete trade %s: %w", tradeID, err)
	}
	return nil
}

func (r *tradeRepository) GetAllRelated(ctx context.Context) (models.Instances, error) {
	start := time.Now()
	out := make(models.Instances)
	err := r.scanPrefix(prefixRelated, func(key string, val []byte) error {
		var inst models.Instance
		if err := json.Unmarshal(val, &inst); err != nil {
			return err
		}
		out[inst.InstanceID] = &inst
		return nil
	})
	logger.LogStore("related.get_all", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to load related-instance cache: %w", err)
	}
	return out, nil
}

func (r *tradeRepository) PutRelated(ctx context.Context, instances []*models.Instance) error {
	start := time.Now()
	err := r.db.Badger().Update(func(txn *badger.Txn) error {
		for _, inst := range instances {
			if err := r.putJSON(txn, prefixRelated+inst.InstanceID, inst); err != nil {
				return err
			}
		}
		return nil
	})
	logger.LogStore("related.put_bulk", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to persist related instances: %w", err)
	}
	return nil
}

func (r *tradeRepository) Reset(ctx context.Context) error {
	if err := r.db.Badger().DropPrefix([]byte(prefixTrade)); err != nil {
		return fmt.Errorf("failed to clear trade cache: %w", err)
	}
	if err := r.db.Badger().DropPrefix([]byte(prefixRelated)); err != nil {
		return fmt.Errorf("failed to clear related-instance cache: %w", err)
	}
	return nil
}
