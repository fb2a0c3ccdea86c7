package instances

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pogodex/dexsync/dexsync/database/models"
)

func strPtr(s string) *string   { return &s }
func intPtr(i int) *int         { return &i }
func boolPtr(b bool) *bool      { return &b }
func fltPtr(f float64) *float64 { return &f }

func TestUpdateDetailsAppliesPatch(t *testing.T) {
	s, repo, outbox := newTestStore(t)
	ctx := context.Background()
	s.SetClock(func() time.Time { return time.UnixMilli(7000) })

	id := uuid.NewString()
	s.Hydrate(models.Instances{id: caughtInstance(id, "pikachu", 0)})

	patch := Patch{
		Nickname: strPtr("Sparky"),
		CP:       intPtr(1500),
		Level:    fltPtr(35.5),
		Shiny:    boolPtr(true),
		Fusion:   map[string]bool{"solgaleo": true},
	}
	require.NoError(t, s.UpdateDetails(ctx, id, patch))

	got, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, "Sparky", got.Nickname)
	assert.Equal(t, 1500, got.CP)
	assert.Equal(t, 35.5, got.Level)
	assert.True(t, got.Shiny)
	assert.True(t, got.Fusion["solgaleo"])
	assert.Equal(t, int64(7000), got.LastUpdate)

	cached, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Sparky", cached[id].Nickname)

	updates, err := outbox.GetInstanceUpdates(ctx)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, id, updates[0].Key)
}

func TestUpdateDetailsNoOpGuard(t *testing.T) {
	s, repo, outbox := newTestStore(t)
	ctx := context.Background()

	var fired int
	s.SetOnMutate(func() { fired++ })

	id := uuid.NewString()
	inst := caughtInstance(id, "pikachu", 0)
	inst.Nickname = "Sparky"
	s.Hydrate(models.Instances{id: inst})

	tests := []struct {
		name  string
		patch Patch
	}{
		{"empty patch", Patch{}},
		{"same value", Patch{Nickname: strPtr("Sparky")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, s.UpdateDetails(ctx, id, tt.patch))

			cached, err := repo.GetAll(ctx)
			require.NoError(t, err)
			assert.Empty(t, cached, "no-op patch must not write the cache")

			updates, err := outbox.GetInstanceUpdates(ctx)
			require.NoError(t, err)
			assert.Empty(t, updates, "no-op patch must not queue an update")

			assert.Zero(t, fired, "no-op patch must not fire the mutation hook")
		})
	}
}

func TestUpdateDetailsMissingKeyCreatesPlaceholder(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	id := uuid.NewString()
	require.NoError(t, s.UpdateDetails(ctx, id, Patch{Nickname: strPtr("Ghost")}))

	got, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, "Ghost", got.Nickname)
}

func TestUpdateDetailsBulkSharedTimestamp(t *testing.T) {
	s, _, outbox := newTestStore(t)
	ctx := context.Background()
	s.SetClock(func() time.Time { return time.UnixMilli(9000) })

	a, b := uuid.NewString(), uuid.NewString()
	s.Hydrate(models.Instances{
		a: caughtInstance(a, "pikachu", 0),
		b: caughtInstance(b, "eevee", 0),
	})

	require.NoError(t, s.UpdateDetailsBulk(ctx, []string{a, b}, Patch{Favorite: boolPtr(true)}))

	for _, id := range []string{a, b} {
		got, ok := s.Get(id)
		require.True(t, ok)
		assert.True(t, got.Favorite)
		assert.Equal(t, int64(9000), got.LastUpdate, "bulk updates share one timestamp")
	}

	updates, err := outbox.GetInstanceUpdates(ctx)
	require.NoError(t, err)
	assert.Len(t, updates, 2)
}

func TestUpdateDetailsMapMixedChanges(t *testing.T) {
	s, _, outbox := newTestStore(t)
	ctx := context.Background()

	a, b := uuid.NewString(), uuid.NewString()
	instA := caughtInstance(a, "pikachu", 0)
	instB := caughtInstance(b, "eevee", 0)
	instB.CP = 900
	s.Hydrate(models.Instances{a: instA, b: instB})

	require.NoError(t, s.UpdateDetailsMap(ctx, map[string]Patch{
		a: {CP: intPtr(1200)},
		b: {CP: intPtr(900)}, // unchanged
	}))

	updates, err := outbox.GetInstanceUpdates(ctx)
	require.NoError(t, err)
	require.Len(t, updates, 1, "only the actually-changed instance is queued")
	assert.Equal(t, a, updates[0].Key)
}
