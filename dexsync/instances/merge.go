package instances

import (
	"sort"

	"github.com/pogodex/dexsync/dexsync/database/models"
)

// Merge reconciles the locally resident map with a server-authoritative map
// for the same user and returns the converged map. Neither input is
// mutated. The merge is idempotent: merging a map that is already the merge
// result yields an identical map.
//
// Per-key resolution, over the union of keys:
//  1. records carrying a username other than currentUsername are dropped
//     (stale foreign data must not leak into the canonical map); an absent
//     username applies no filter,
//  2. a key present on one side only is taken as-is,
//  3. for a key present on both sides, a significant side beats an
//     insignificant one regardless of timestamps; otherwise the greater
//     last_update wins, with the local side keeping ties.
//
// Afterwards, redundant baseline placeholders are collapsed per variant.
func Merge(local, server models.Instances, currentUsername string) models.Instances {
	merged := make(models.Instances, len(local)+len(server))

	keep := func(inst *models.Instance) bool {
		return inst.Username == "" || inst.Username == currentUsername
	}

	for key, inst := range local {
		if keep(inst) {
			merged[key] = inst
		}
	}

	for key, srv := range server {
		if !keep(srv) {
			continue
		}
		loc, ok := merged[key]
		if !ok {
			merged[key] = srv
			continue
		}

		sigLocal := IsSignificant(loc)
		sigServer := IsSignificant(srv)
		switch {
		case sigServer && !sigLocal:
			merged[key] = srv
		case sigLocal && !sigServer:
			// keep local
		default:
			if srv.LastUpdate > loc.LastUpdate {
				merged[key] = srv
			}
		}
	}

	collapsePlaceholders(merged)

	out := make(models.Instances, len(merged))
	for key, inst := range merged {
		out[key] = inst.Clone()
	}
	return out
}

// collapsePlaceholders enforces the at-most-one-baseline-per-variant
// invariant: when a variant has a significant record, all of its
// insignificant placeholders are dropped; when it has only placeholders,
// the lexicographically first key survives.
func collapsePlaceholders(merged models.Instances) {
	significantVariants := make(map[string]bool)
	placeholders := make(map[string][]string)

	for key, inst := range merged {
		if inst.VariantID == "" {
			continue
		}
		if IsSignificant(inst) {
			significantVariants[inst.VariantID] = true
		} else {
			placeholders[inst.VariantID] = append(placeholders[inst.VariantID], key)
		}
	}

	for variantID, keys := range placeholders {
		if significantVariants[variantID] {
			for _, key := range keys {
				delete(merged, key)
			}
			continue
		}
		if len(keys) > 1 {
			sort.Strings(keys)
			for _, key := range keys[1:] {
				delete(merged, key)
			}
		}
	}
}
