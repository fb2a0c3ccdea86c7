package instances

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/pogodex/dexsync/dexsync/database/models"
	"github.com/pogodex/dexsync/dexsync/logger"
)

// UpdateStatus moves one or many instances into a new ownership mode.
// A key may be an instance UUID (mutate that record) or a variant key
// (reuse the variant's placeholder, or materialize a fresh instance from
// the catalog baseline). After all keys are applied, redundant unowned
// placeholders sharing a variant are pruned.
//
// Cache and outbox write failures are logged per key and never abort the
// remaining keys: the in-memory store stays the source of truth and the
// outbox is the durability backstop.
func (s *Store) UpdateStatus(ctx context.Context, keys []string, newStatus models.InstanceStatus) error {
	ts := s.now().UnixMilli()

	s.mu.Lock()
	draft := s.data.Clone()

	changed := make(map[string]bool)
	for _, target := range keys {
		resolvedID := s.applyStatus(draft, target, newStatus)
		if resolvedID == "" {
			continue
		}
		original := s.data[resolvedID]
		if original == nil || !draft[resolvedID].Equal(original) {
			changed[resolvedID] = true
		}
	}

	// Prune redundant baseline placeholders: an unowned record whose
	// variant already has another record is dead weight.
	pruned := make(map[string]*models.Instance)
	for id, entry := range draft {
		if !isBaselinePlaceholder(entry) || entry.VariantID == "" {
			continue
		}
		if hasVariantSibling(draft, id, entry.VariantID) {
			pruned[id] = entry
		}
	}
	for id := range pruned {
		delete(draft, id)
	}

	var persist []*models.Instance
	var updates []models.InstanceUpdate
	for id := range changed {
		inst, ok := draft[id]
		if !ok {
			continue // pruned below
		}
		inst.LastUpdate = ts
		persist = append(persist, inst)
		updates = append(updates, models.InstanceUpdate{Key: id, Instance: inst.Clone()})
	}
	for id, snapshot := range pruned {
		tombstone := snapshot.Clone()
		tombstone.IsCaught = false
		tombstone.IsForTrade = false
		tombstone.IsWanted = false
		tombstone.IsUnowned = false
		tombstone.Registered = false
		tombstone.LastUpdate = ts
		updates = append(updates, models.InstanceUpdate{Key: id, Instance: tombstone})
	}

	s.data = draft
	s.mu.Unlock()

	slog.Debug("Updated instance status",
		slog.String("status", string(newStatus)),
		slog.Int("keys", len(keys)),
		slog.Int("changed", len(changed)),
		slog.Int("pruned", len(pruned)))

	if len(persist) > 0 {
		if err := s.repo.PutBulk(ctx, persist); err != nil {
			logger.LogError("Instance cache write failed", err)
		}
	}
	for id := range pruned {
		if err := s.repo.Delete(ctx, id); err != nil {
			logger.LogError("Failed to delete pruned placeholder", err,
				slog.String("instance_id", id))
		}
	}
	if len(updates) > 0 {
		if err := s.repo.SetFreshness(ctx, ts); err != nil {
			logger.LogError("Failed to stamp freshness timestamp", err)
		}
	}
	for _, update := range updates {
		if err := s.outbox.PutInstanceUpdate(ctx, update); err != nil {
			logger.LogError("Outbox write failed", err,
				slog.String("instance_id", update.Key))
		}
	}

	if s.onMutate != nil && len(updates) > 0 {
		s.onMutate()
	}
	return nil
}

// applyStatus resolves one target key against the draft and applies the
// status flags. Returns the concrete instance id, or "" when the target
// could not be resolved.
func (s *Store) applyStatus(draft models.Instances, target string, newStatus models.InstanceStatus) string {
	var inst *models.Instance
	var id string

	if uuid.Validate(target) == nil {
		id = target
		inst = draft[id]
		if inst == nil {
			slog.Warn("Status update for unknown instance id",
				slog.String("instance_id", target))
			return ""
		}
	} else {
		// Target names a variant: reuse its baseline placeholder when one
		// exists, otherwise materialize from the catalog.
		for candidateID, candidate := range draft {
			if candidate.VariantID == target && isBaselinePlaceholder(candidate) {
				id = candidateID
				inst = candidate
				break
			}
		}
		if inst == nil {
			variant, err := s.catalog.Resolve(target)
			if err != nil {
				logger.LogError("No catalog variant for status target", err,
					slog.String("variant", target))
				return ""
			}
			inst = materialize(variant)
			id = inst.InstanceID
			draft[id] = inst
		}
	}

	if newStatus == models.StatusTrade || newStatus == models.StatusWanted {
		if blocked, reason := tradeBlocked(inst); blocked {
			slog.Warn("Cannot move instance to trade/wanted",
				slog.String("variant", inst.VariantID),
				slog.String("reason", reason))
			return id
		}
	}

	// A caught instance being wanted again duplicates into a fresh record
	// so the caught row survives.
	if newStatus == models.StatusWanted && inst.IsCaught {
		dup := inst.Clone()
		dup.InstanceID = uuid.NewString()
		setStatusFlags(dup, models.StatusWanted)
		draft[dup.InstanceID] = dup
		return dup.InstanceID
	}

	setStatusFlags(inst, newStatus)
	return id
}

func setStatusFlags(inst *models.Instance, status models.InstanceStatus) {
	inst.IsCaught = status == models.StatusCaught
	inst.IsForTrade = status == models.StatusTrade
	inst.IsWanted = status == models.StatusWanted
	inst.IsUnowned = status == models.StatusUnowned
	inst.Registered = status != models.StatusUnowned
}

func isBaselinePlaceholder(inst *models.Instance) bool {
	return !inst.Registered && !inst.IsCaught && !inst.IsForTrade && !inst.IsWanted
}

func hasVariantSibling(draft models.Instances, selfID, variantID string) bool {
	for otherID, other := range draft {
		if otherID == selfID {
			continue
		}
		if other != nil && other.VariantID == variantID {
			return true
		}
	}
	return false
}

func tradeBlocked(inst *models.Instance) (bool, string) {
	switch {
	case inst.Lucky:
		return true, "lucky"
	case inst.Shadow:
		return true, "shadow"
	case inst.Mega:
		return true, "mega"
	case strings.Contains(strings.ToLower(inst.VariantID), "fusion"):
		return true, "fusion"
	}
	return false, ""
}

// materialize creates a baseline instance from a catalog template. Only
// identity fields are copied: presentation attributes (shiny form, stats,
// images) stay on the Variant and are looked up through the catalog, so a
// fresh baseline is never mistaken for a significant record.
func materialize(variant *models.Variant) *models.Instance {
	return &models.Instance{
		InstanceID: uuid.NewString(),
		VariantID:  variant.VariantKey,
		PokemonID:  variant.PokemonID,
		IsUnowned:  true,
	}
}
