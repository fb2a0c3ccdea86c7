package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pogodex/dexsync/dexsync/database/models"
)

func testVariants() []*models.Variant {
	return []*models.Variant{
		{VariantKey: "pikachu", PokemonID: 25, Name: "Pikachu"},
		{VariantKey: "pichu", PokemonID: 172, Name: "Pichu"},
		{VariantKey: "eevee", PokemonID: 133, Name: "Eevee"},
	}
}

func TestProviderResolve(t *testing.T) {
	p := NewProvider(testVariants())

	v, err := p.Resolve("pikachu")
	require.NoError(t, err)
	assert.Equal(t, 25, v.PokemonID)

	// Second hit comes from the cache and must agree.
	again, err := p.Resolve("pikachu")
	require.NoError(t, err)
	assert.Same(t, v, again)

	_, err = p.Resolve("missingno")
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missingno", notFound.VariantKey)
}

func TestProviderSearch(t *testing.T) {
	p := NewProvider(testVariants())

	results := p.Search("pika", 0)
	require.NotEmpty(t, results)
	assert.Equal(t, "pikachu", results[0].VariantKey)

	limited := p.Search("pi", 1)
	assert.Len(t, limited, 1)

	assert.Empty(t, p.Search("zzzz", 0))
}

func TestProviderReplace(t *testing.T) {
	p := NewProvider(testVariants())

	_, err := p.Resolve("pikachu")
	require.NoError(t, err)

	p.Replace([]*models.Variant{
		{VariantKey: "snorlax", PokemonID: 143, Name: "Snorlax"},
	})

	// The stale cached entry must not survive the swap.
	_, err = p.Resolve("pikachu")
	assert.Error(t, err)

	v, err := p.Resolve("snorlax")
	require.NoError(t, err)
	assert.Equal(t, 143, v.PokemonID)

	assert.Len(t, p.All(), 1)
}

func TestProviderEmpty(t *testing.T) {
	p := NewProvider(nil)

	_, err := p.Resolve("pikachu")
	assert.Error(t, err)
	assert.Empty(t, p.All())
	assert.Empty(t, p.Search("pika", 0))
}
