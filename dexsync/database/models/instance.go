package models

// InstanceStatus is the ownership mode a mutation moves an instance into.
// Exactly one of the four flags is canonical at a time; combinations that
// predate a status update are merge artifacts and get normalized here.
type InstanceStatus string

const (
	StatusCaught  InstanceStatus = "Caught"
	StatusTrade   InstanceStatus = "Trade"
	StatusWanted  InstanceStatus = "Wanted"
	StatusUnowned InstanceStatus = "Unowned"
)

// Instance is one physical owned (or placeholder-unowned) item derived from
// a catalog variant. Stored JSON-encoded in the durable cache, keyed by
// InstanceID.
type Instance struct {
	InstanceID string `json:"instance_id"`
	VariantID  string `json:"variant_id"`
	PokemonID  int    `json:"pokemon_id"`
	Username   string `json:"username,omitempty"`

	IsCaught   bool `json:"is_caught"`
	IsForTrade bool `json:"is_for_trade"`
	IsWanted   bool `json:"is_wanted"`
	IsUnowned  bool `json:"is_unowned"`
	Registered bool `json:"registered"`

	Nickname        string          `json:"nickname,omitempty"`
	Gender          string          `json:"gender,omitempty"`
	CP              int             `json:"cp,omitempty"`
	HP              int             `json:"hp,omitempty"`
	Level           float64         `json:"level,omitempty"`
	AttackIV        int             `json:"attack_iv,omitempty"`
	DefenseIV       int             `json:"defense_iv,omitempty"`
	StaminaIV       int             `json:"stamina_iv,omitempty"`
	Shiny           bool            `json:"shiny,omitempty"`
	Shadow          bool            `json:"shadow,omitempty"`
	Purified        bool            `json:"purified,omitempty"`
	Lucky           bool            `json:"lucky,omitempty"`
	Mega            bool            `json:"mega,omitempty"`
	Dynamax         bool            `json:"dynamax,omitempty"`
	Gigantamax      bool            `json:"gigantamax,omitempty"`
	Fusion          map[string]bool `json:"fusion,omitempty"`
	Favorite        bool            `json:"favorite,omitempty"`
	FriendshipLevel int             `json:"friendship_level,omitempty"`
	PrefLucky       bool            `json:"pref_lucky,omitempty"`
	Mirror          bool            `json:"mirror,omitempty"`
	LocationCard    string          `json:"location_card,omitempty"`

	// LastUpdate is the client-clock write timestamp in unix milliseconds,
	// used as the merge tie-breaker.
	LastUpdate int64 `json:"last_update"`
}

// Instances is the keyed map the entity store and the merge engine operate on.
type Instances map[string]*Instance

// Clone returns a deep copy so copy-on-write drafts never alias the
// committed map.
func (i *Instance) Clone() *Instance {
	if i == nil {
		return nil
	}
	cp := *i
	if i.Fusion != nil {
		cp.Fusion = make(map[string]bool, len(i.Fusion))
		for k, v := range i.Fusion {
			cp.Fusion[k] = v
		}
	}
	return &cp
}

// Equal reports field-by-field value equality.
func (i *Instance) Equal(other *Instance) bool {
	if i == nil || other == nil {
		return i == other
	}
	if i.InstanceID != other.InstanceID ||
		i.VariantID != other.VariantID ||
		i.PokemonID != other.PokemonID ||
		i.Username != other.Username ||
		i.IsCaught != other.IsCaught ||
		i.IsForTrade != other.IsForTrade ||
		i.IsWanted != other.IsWanted ||
		i.IsUnowned != other.IsUnowned ||
		i.Registered != other.Registered ||
		i.Nickname != other.Nickname ||
		i.Gender != other.Gender ||
		i.CP != other.CP ||
		i.HP != other.HP ||
		i.Level != other.Level ||
		i.AttackIV != other.AttackIV ||
		i.DefenseIV != other.DefenseIV ||
		i.StaminaIV != other.StaminaIV ||
		i.Shiny != other.Shiny ||
		i.Shadow != other.Shadow ||
		i.Purified != other.Purified ||
		i.Lucky != other.Lucky ||
		i.Mega != other.Mega ||
		i.Dynamax != other.Dynamax ||
		i.Gigantamax != other.Gigantamax ||
		i.Favorite != other.Favorite ||
		i.FriendshipLevel != other.FriendshipLevel ||
		i.PrefLucky != other.PrefLucky ||
		i.Mirror != other.Mirror ||
		i.LocationCard != other.LocationCard ||
		i.LastUpdate != other.LastUpdate {
		return false
	}
	if len(i.Fusion) != len(other.Fusion) {
		return false
	}
	for k, v := range i.Fusion {
		if other.Fusion[k] != v {
			return false
		}
	}
	return true
}

// Clone deep-copies the whole map.
func (m Instances) Clone() Instances {
	cp := make(Instances, len(m))
	for k, v := range m {
		cp[k] = v.Clone()
	}
	return cp
}

// Equal reports whether both maps hold the same keys with equal records.
func (m Instances) Equal(other Instances) bool {
	if len(m) != len(other) {
		return false
	}
	for k, v := range m {
		o, ok := other[k]
		if !ok || !v.Equal(o) {
			return false
		}
	}
	return true
}
