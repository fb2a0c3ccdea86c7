package models

type TradeStatus string

const (
	TradeProposed  TradeStatus = "proposed"
	TradePending   TradeStatus = "pending"
	TradeCompleted TradeStatus = "completed"
	TradeDenied    TradeStatus = "denied"
	TradeCancelled TradeStatus = "cancelled"
	TradeDeleted   TradeStatus = "deleted"
)

// Trade is a proposal linking exactly two instances across two users.
// Terminal states (completed, deleted) are never mutated further except by
// an explicit repropose, which resets the record in place.
type Trade struct {
	TradeID string `json:"trade_id"`

	UsernameProposed  string `json:"username_proposed"`
	UsernameAccepting string `json:"username_accepting"`

	InstanceIDUserProposed  string `json:"pokemon_instance_id_user_proposed"`
	InstanceIDUserAccepting string `json:"pokemon_instance_id_user_accepting"`

	Status TradeStatus `json:"trade_status"`

	ProposalDate  string `json:"trade_proposal_date,omitempty"`
	AcceptedDate  string `json:"trade_accepted_date,omitempty"`
	CompletedDate string `json:"trade_completed_date,omitempty"`
	CancelledDate string `json:"trade_cancelled_date,omitempty"`
	CancelledBy   string `json:"trade_cancelled_by,omitempty"`
	DeletedDate   string `json:"trade_deleted_date,omitempty"`

	ProposedCompletionConfirmed  bool `json:"user_proposed_completion_confirmed"`
	AcceptingCompletionConfirmed bool `json:"user_accepting_completion_confirmed"`

	LastUpdate int64 `json:"last_update"`
}

// Trades is keyed by TradeID.
type Trades map[string]*Trade

func (t *Trade) Clone() *Trade {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

// References reports whether the trade names the given instance on either
// side.
func (t *Trade) References(instanceID string) bool {
	return t.InstanceIDUserProposed == instanceID ||
		t.InstanceIDUserAccepting == instanceID
}

func (m Trades) Clone() Trades {
	cp := make(Trades, len(m))
	for k, v := range m {
		cp[k] = v.Clone()
	}
	return cp
}
