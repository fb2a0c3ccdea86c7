package instances

import (
	"context"
	"log/slog"

	"github.com/pogodex/dexsync/dexsync/database/models"
	"github.com/pogodex/dexsync/dexsync/logger"
)

// Patch carries the mutable attributes a details update may change. Nil
// fields are left untouched; a set field is only counted as a change when
// the value actually differs from the current one.
type Patch struct {
	Nickname        *string
	Gender          *string
	CP              *int
	HP              *int
	Level           *float64
	AttackIV        *int
	DefenseIV       *int
	StaminaIV       *int
	Shiny           *bool
	Shadow          *bool
	Purified        *bool
	Lucky           *bool
	Mega            *bool
	Dynamax         *bool
	Gigantamax      *bool
	Fusion          map[string]bool
	Favorite        *bool
	FriendshipLevel *int
	PrefLucky       *bool
	Mirror          *bool
	LocationCard    *string
}

// IsEmpty reports whether the patch sets no fields at all.
func (p Patch) IsEmpty() bool {
	return p.Nickname == nil && p.Gender == nil && p.CP == nil && p.HP == nil &&
		p.Level == nil && p.AttackIV == nil && p.DefenseIV == nil && p.StaminaIV == nil &&
		p.Shiny == nil && p.Shadow == nil && p.Purified == nil && p.Lucky == nil &&
		p.Mega == nil && p.Dynamax == nil && p.Gigantamax == nil && p.Fusion == nil &&
		p.Favorite == nil && p.FriendshipLevel == nil && p.PrefLucky == nil &&
		p.Mirror == nil && p.LocationCard == nil
}

// apply writes the set fields onto inst and reports whether any value
// actually changed.
func (p Patch) apply(inst *models.Instance) bool {
	changed := false

	setString := func(dst *string, src *string) {
		if src != nil && *dst != *src {
			*dst = *src
			changed = true
		}
	}
	setInt := func(dst *int, src *int) {
		if src != nil && *dst != *src {
			*dst = *src
			changed = true
		}
	}
	setBool := func(dst *bool, src *bool) {
		if src != nil && *dst != *src {
			*dst = *src
			changed = true
		}
	}

	setString(&inst.Nickname, p.Nickname)
	setString(&inst.Gender, p.Gender)
	setInt(&inst.CP, p.CP)
	setInt(&inst.HP, p.HP)
	if p.Level != nil && inst.Level != *p.Level {
		inst.Level = *p.Level
		changed = true
	}
	setInt(&inst.AttackIV, p.AttackIV)
	setInt(&inst.DefenseIV, p.DefenseIV)
	setInt(&inst.StaminaIV, p.StaminaIV)
	setBool(&inst.Shiny, p.Shiny)
	setBool(&inst.Shadow, p.Shadow)
	setBool(&inst.Purified, p.Purified)
	setBool(&inst.Lucky, p.Lucky)
	setBool(&inst.Mega, p.Mega)
	setBool(&inst.Dynamax, p.Dynamax)
	setBool(&inst.Gigantamax, p.Gigantamax)
	setBool(&inst.Favorite, p.Favorite)
	setInt(&inst.FriendshipLevel, p.FriendshipLevel)
	setBool(&inst.PrefLucky, p.PrefLucky)
	setBool(&inst.Mirror, p.Mirror)
	setString(&inst.LocationCard, p.LocationCard)

	if p.Fusion != nil && !fusionEqual(inst.Fusion, p.Fusion) {
		inst.Fusion = make(map[string]bool, len(p.Fusion))
		for k, v := range p.Fusion {
			inst.Fusion[k] = v
		}
		changed = true
	}

	return changed
}

func fusionEqual(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// UpdateDetails patches a single instance.
func (s *Store) UpdateDetails(ctx context.Context, key string, patch Patch) error {
	return s.updateDetails(ctx, map[string]Patch{key: patch})
}

// UpdateDetailsBulk applies one shared patch to many instances.
func (s *Store) UpdateDetailsBulk(ctx context.Context, keys []string, patch Patch) error {
	patches := make(map[string]Patch, len(keys))
	for _, key := range keys {
		patches[key] = patch
	}
	return s.updateDetails(ctx, patches)
}

// UpdateDetailsMap applies an explicit per-key patch map.
func (s *Store) UpdateDetailsMap(ctx context.Context, patches map[string]Patch) error {
	return s.updateDetails(ctx, patches)
}

func (s *Store) updateDetails(ctx context.Context, patches map[string]Patch) error {
	ts := s.now().UnixMilli()

	s.mu.Lock()
	draft := s.data.Clone()

	var updatedKeys []string
	for key, patch := range patches {
		if patch.IsEmpty() {
			continue
		}

		inst, ok := draft[key]
		if !ok {
			// Should not happen when callers resolve keys through the
			// store first; create a placeholder rather than block the UI.
			slog.Warn("Details patch for missing instance; creating placeholder",
				slog.String("instance_id", key))
			inst = &models.Instance{InstanceID: key}
			draft[key] = inst
			patch.apply(inst)
			inst.LastUpdate = ts
			updatedKeys = append(updatedKeys, key)
			continue
		}

		if patch.apply(inst) {
			inst.LastUpdate = ts
			updatedKeys = append(updatedKeys, key)
		}
	}

	if len(updatedKeys) == 0 {
		s.mu.Unlock()
		return nil
	}

	s.data = draft

	var persist []*models.Instance
	var updates []models.InstanceUpdate
	for _, key := range updatedKeys {
		inst := draft[key]
		persist = append(persist, inst)
		updates = append(updates, models.InstanceUpdate{Key: key, Instance: inst.Clone()})
	}
	s.mu.Unlock()

	slog.Debug("Updated instance details", slog.Int("changed", len(updatedKeys)))

	if err := s.repo.PutBulk(ctx, persist); err != nil {
		logger.LogError("Instance cache write failed", err)
	}
	if err := s.repo.SetFreshness(ctx, ts); err != nil {
		logger.LogError("Failed to stamp freshness timestamp", err)
	}
	for _, update := range updates {
		if err := s.outbox.PutInstanceUpdate(ctx, update); err != nil {
			logger.LogError("Outbox write failed", err,
				slog.String("instance_id", update.Key))
		}
	}

	if s.onMutate != nil {
		s.onMutate()
	}
	return nil
}
