package instances

import "github.com/pogodex/dexsync/dexsync/database/models"

// IsSignificant reports whether a record represents real user intent rather
// than default placeholder state. The merge engine and the placeholder
// pruning pass share this single predicate: a significant side wins a merge
// conflict outright, and only insignificant records are pruning candidates.
func IsSignificant(inst *models.Instance) bool {
	if inst == nil {
		return false
	}
	if inst.IsCaught || inst.IsForTrade || inst.IsWanted || inst.Registered {
		return true
	}
	return hasNonDefaultAttributes(inst)
}

func hasNonDefaultAttributes(inst *models.Instance) bool {
	if inst.Nickname != "" || inst.Gender != "" || inst.LocationCard != "" {
		return true
	}
	if inst.CP != 0 || inst.HP != 0 || inst.Level != 0 ||
		inst.AttackIV != 0 || inst.DefenseIV != 0 || inst.StaminaIV != 0 {
		return true
	}
	if inst.Shiny || inst.Shadow || inst.Purified || inst.Lucky ||
		inst.Mega || inst.Dynamax || inst.Gigantamax {
		return true
	}
	if inst.Favorite || inst.PrefLucky || inst.Mirror || inst.FriendshipLevel != 0 {
		return true
	}
	for _, owned := range inst.Fusion {
		if owned {
			return true
		}
	}
	return false
}
