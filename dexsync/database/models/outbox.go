package models

// TradeOperation tags a queued trade mutation for the receiver.
type TradeOperation string

const (
	OpCreateTrade TradeOperation = "createTrade"
	OpUpdateTrade TradeOperation = "updateTrade"
)

// InstanceUpdate is one pending instance patch in the outbox. The full
// post-mutation snapshot is queued, not a diff, so later writes for the same
// key can simply overwrite earlier ones (last-patch-wins coalescing).
type InstanceUpdate struct {
	Key      string    `json:"key"`
	Instance *Instance `json:"value"`
}

// TradeUpdate is one pending trade operation in the outbox.
type TradeUpdate struct {
	Key       string         `json:"key"`
	Operation TradeOperation `json:"operation"`
	Trade     *Trade         `json:"tradeData"`
}

// FlushPayload is the wire shape delivered to the receiver's
// /batchedUpdates endpoint.
type FlushPayload struct {
	Location       *Location        `json:"location"`
	PokemonUpdates []InstanceUpdate `json:"pokemonUpdates"`
	TradeUpdates   []TradeUpdate    `json:"tradeUpdates"`
}

// Location is optional client geolocation attached to a flush. Acquisition
// is external; the engine only carries it through.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}
