package fetch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pogodex/dexsync/dexsync/database/models"
)

func TestFetchOwnership(t *testing.T) {
	snapshot := OwnershipData{
		Username: "Ash",
		Instances: models.Instances{
			"i1": {InstanceID: "i1", VariantID: "pikachu", PokemonID: 25, Username: "Ash", IsCaught: true},
		},
		Trades: models.Trades{
			"t1": {TradeID: "t1", UsernameProposed: "Ash", UsernameAccepting: "Misty", Status: models.TradeProposed},
		},
		Related: models.Instances{
			"i2": {InstanceID: "i2", VariantID: "staryu", PokemonID: 120, Username: "Misty", IsForTrade: true},
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/ownershipData/username/ash", r.URL.Path)
		assert.NoError(t, json.NewEncoder(w).Encode(snapshot))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	data, err := client.FetchOwnership(context.Background(), "ash")
	require.NoError(t, err)

	// Reader resolves case-insensitively and reports canonical spelling.
	assert.Equal(t, "Ash", data.Username)
	require.Contains(t, data.Instances, "i1")
	assert.Equal(t, "pikachu", data.Instances["i1"].VariantID)
	require.Contains(t, data.Trades, "t1")
	assert.Equal(t, models.TradeProposed, data.Trades["t1"].Status)
	require.Contains(t, data.Related, "i2")
	assert.Equal(t, "Misty", data.Related["i2"].Username)
}

func TestFetchOwnershipUserNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	_, err := client.FetchOwnership(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestFetchOwnershipServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	_, err := client.FetchOwnership(context.Background(), "ash")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUserNotFound)
}

func TestFetchUserTrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewEncoder(w).Encode(OwnershipData{
			Username: "Ash",
			Trades: models.Trades{
				"t1": {TradeID: "t1", Status: models.TradePending},
			},
			Related: models.Instances{
				"i2": {InstanceID: "i2", Username: "Misty"},
			},
		}))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	trades, related, err := client.FetchUserTrades(context.Background(), "ash")
	require.NoError(t, err)
	assert.Len(t, trades, 1)
	assert.Len(t, related, 1)
}

func TestFetchCatalog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pokemons", r.URL.Path)
		assert.NoError(t, json.NewEncoder(w).Encode([]*models.Variant{
			{VariantKey: "pikachu", PokemonID: 25, Name: "Pikachu", PokedexNumber: 25},
			{VariantKey: "pikachu_shadow", PokemonID: 25, Name: "Pikachu", VariantType: "shadow"},
		}))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	variants, err := client.FetchCatalog(context.Background())
	require.NoError(t, err)
	require.Len(t, variants, 2)
	assert.Equal(t, "pikachu", variants[0].VariantKey)
}
