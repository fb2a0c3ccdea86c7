// Package catalog resolves variant keys to their static templates. The
// variant set is reference data loaded once (or replaced wholesale when the
// catalog changes); the sync engine only reads from it when materializing a
// new instance from a baseline.
package catalog

import (
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sahilm/fuzzy"

	"github.com/pogodex/dexsync/dexsync/database/models"
)

const resolveCacheSize = 4096

// Provider resolves a variant key to its catalog template.
type Provider interface {
	Resolve(variantKey string) (*models.Variant, error)
	Search(query string, limit int) []*models.Variant
	All() []*models.Variant
	// Replace swaps the variant set, e.g. after a catalog refresh.
	Replace(variants []*models.Variant)
}

// NotFoundError is returned when a variant key has no catalog entry.
type NotFoundError struct {
	VariantKey string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("variant %s not found in catalog", e.VariantKey)
}

// variantSearchItems implements fuzzy.Source for name lookup.
type variantSearchItems []*models.Variant

func (items variantSearchItems) Len() int {
	return len(items)
}

func (items variantSearchItems) String(i int) string {
	return strings.ToLower(items[i].Name)
}

type provider struct {
	mu       sync.RWMutex
	variants []*models.Variant
	byKey    map[string]*models.Variant
	cache    *lru.Cache
}

func NewProvider(variants []*models.Variant) Provider {
	cache, _ := lru.New(resolveCacheSize)
	p := &provider{cache: cache}
	p.Replace(variants)
	return p
}

func (p *provider) Replace(variants []*models.Variant) {
	byKey := make(map[string]*models.Variant, len(variants))
	for _, v := range variants {
		byKey[v.VariantKey] = v
	}

	p.mu.Lock()
	p.variants = variants
	p.byKey = byKey
	p.mu.Unlock()
	p.cache.Purge()
}

func (p *provider) Resolve(variantKey string) (*models.Variant, error) {
	if cached, ok := p.cache.Get(variantKey); ok {
		return cached.(*models.Variant), nil
	}

	p.mu.RLock()
	v, ok := p.byKey[variantKey]
	p.mu.RUnlock()
	if !ok {
		return nil, &NotFoundError{VariantKey: variantKey}
	}

	p.cache.Add(variantKey, v)
	return v, nil
}

func (p *provider) Search(query string, limit int) []*models.Variant {
	p.mu.RLock()
	items := variantSearchItems(p.variants)
	p.mu.RUnlock()

	matches := fuzzy.FindFrom(strings.ToLower(query), items)
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	results := make([]*models.Variant, len(matches))
	for i, match := range matches {
		results[i] = items[match.Index]
	}
	return results
}

func (p *provider) All() []*models.Variant {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.variants
}
