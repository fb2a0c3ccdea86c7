package trades

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pogodex/dexsync/dexsync/database"
	"github.com/pogodex/dexsync/dexsync/database/models"
	"github.com/pogodex/dexsync/dexsync/database/repositories"
)

func newStoreFixture(t *testing.T) (*Store, repositories.TradeRepository) {
	t.Helper()

	db, err := database.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := repositories.NewTradeRepository(db)
	s := NewStore(repo)
	s.Hydrate(models.Trades{}, models.Instances{})
	return s, repo
}

func TestSetTradesPersistsLiveRows(t *testing.T) {
	s, repo := newStoreFixture(t)
	ctx := context.Background()

	require.NoError(t, s.SetTrades(ctx, models.Trades{
		"t1": {TradeID: "t1", Status: models.TradeProposed},
	}))

	cached, err := repo.GetAllTrades(ctx)
	require.NoError(t, err)
	assert.Contains(t, cached, "t1")

	got, ok := s.Get("t1")
	require.True(t, ok)
	assert.Equal(t, models.TradeProposed, got.Status)
}

func TestSetTradesDeletedLeavesCacheKeepsMemory(t *testing.T) {
	s, repo := newStoreFixture(t)
	ctx := context.Background()

	require.NoError(t, s.SetTrades(ctx, models.Trades{
		"t1": {TradeID: "t1", Status: models.TradeProposed},
	}))
	require.NoError(t, s.SetTrades(ctx, models.Trades{
		"t1": {TradeID: "t1", Status: models.TradeDeleted},
	}))

	cached, err := repo.GetAllTrades(ctx)
	require.NoError(t, err)
	assert.NotContains(t, cached, "t1", "deleted trades leave the durable cache")

	got, ok := s.Get("t1")
	require.True(t, ok, "deleted trades stay visible in memory")
	assert.Equal(t, models.TradeDeleted, got.Status)
}

func TestStoreGetReturnsDetachedCopy(t *testing.T) {
	s, _ := newStoreFixture(t)
	ctx := context.Background()

	require.NoError(t, s.SetTrades(ctx, models.Trades{
		"t1": {TradeID: "t1", Status: models.TradeProposed},
	}))

	got, _ := s.Get("t1")
	got.Status = models.TradeCancelled

	again, _ := s.Get("t1")
	assert.Equal(t, models.TradeProposed, again.Status)
}

func TestStoreReset(t *testing.T) {
	s, repo := newStoreFixture(t)
	ctx := context.Background()

	require.NoError(t, s.SetTrades(ctx, models.Trades{
		"t1": {TradeID: "t1", Status: models.TradeProposed},
	}))
	require.NoError(t, s.SetRelated(ctx, models.Instances{
		"x": {InstanceID: "x", Username: "misty"},
	}))

	require.NoError(t, s.Reset(ctx))

	assert.Empty(t, s.Snapshot())
	assert.Empty(t, s.Related())

	cached, err := repo.GetAllTrades(ctx)
	require.NoError(t, err)
	assert.Empty(t, cached)
	related, err := repo.GetAllRelated(ctx)
	require.NoError(t, err)
	assert.Empty(t, related)
}
