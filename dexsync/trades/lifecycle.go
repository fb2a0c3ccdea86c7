package trades

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pogodex/dexsync/dexsync/database/models"
	"github.com/pogodex/dexsync/dexsync/database/repositories"
	"github.com/pogodex/dexsync/dexsync/instances"
	"github.com/pogodex/dexsync/dexsync/logger"
)

// ErrTradeNotFound is returned when a lifecycle action names an unknown
// trade.
var ErrTradeNotFound = fmt.Errorf("trade not found")

// InvalidTransitionError reports a lifecycle action applied in a state that
// does not allow it.
type InvalidTransitionError struct {
	Action string
	From   models.TradeStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s a trade in status %q", e.Action, e.From)
}

// Controller drives the trade state machine.
//
//	proposed → pending (accept, cascading deletion of rival proposals)
//	pending  → pending (first completion confirmation)
//	pending  → completed (second confirmation; ownership swaps)
//	proposed|pending → cancelled
//	proposed → denied
//	denied|cancelled → proposed (repropose; parties may swap)
//	any → deleted
type Controller struct {
	store     *Store
	instances *instances.Store
	outbox    repositories.OutboxRepository
	usernames instances.UsernameSource

	now      func() time.Time
	onMutate func()
}

func NewController(
	store *Store,
	instanceStore *instances.Store,
	outbox repositories.OutboxRepository,
	usernames instances.UsernameSource,
) *Controller {
	return &Controller{
		store:     store,
		instances: instanceStore,
		outbox:    outbox,
		usernames: usernames,
		now:       time.Now,
	}
}

// SetOnMutate registers the hook fired after every local trade mutation.
func (c *Controller) SetOnMutate(fn func()) {
	c.onMutate = fn
}

// SetClock overrides the wall clock. Tests only.
func (c *Controller) SetClock(now func() time.Time) {
	c.now = now
}

// ProposeRequest describes a new proposal: the proposer's own instance and
// a snapshot of the partner's instance being asked for.
type ProposeRequest struct {
	PartnerUsername string
	OwnInstanceID   string
	PartnerInstance *models.Instance
}

// Propose manufactures a fresh proposed trade plus the partner's related
// instance snapshot, persists both, and queues a createTrade operation.
func (c *Controller) Propose(ctx context.Context, req ProposeRequest) (string, error) {
	if req.PartnerInstance == nil {
		return "", fmt.Errorf("propose: partner instance snapshot required")
	}

	now := c.now()
	trade := &models.Trade{
		TradeID:                 uuid.NewString(),
		UsernameProposed:        c.usernames.CurrentUsername(),
		UsernameAccepting:       req.PartnerUsername,
		InstanceIDUserProposed:  req.OwnInstanceID,
		InstanceIDUserAccepting: req.PartnerInstance.InstanceID,
		Status:                  models.TradeProposed,
		ProposalDate:            now.UTC().Format(time.RFC3339),
		LastUpdate:              now.UnixMilli(),
	}

	if err := c.store.SetTrades(ctx, models.Trades{trade.TradeID: trade}); err != nil {
		return "", fmt.Errorf("propose: %w", err)
	}
	related := models.Instances{req.PartnerInstance.InstanceID: req.PartnerInstance}
	if err := c.store.SetRelated(ctx, related); err != nil {
		return "", fmt.Errorf("propose: %w", err)
	}

	c.queue(ctx, models.OpCreateTrade, trade)
	c.mutated()

	slog.Debug("Proposed trade",
		slog.String("trade_id", trade.TradeID),
		slog.String("partner", req.PartnerUsername))
	return trade.TradeID, nil
}

// Accept moves a proposed trade to pending. Every other proposed trade
// referencing either of the two instances is cascaded to deleted: an
// instance can back only one live trade at a time. The cascade is computed
// against a single snapshot of the trade set taken at acceptance, so two
// trades can never both survive referencing the same instance.
func (c *Controller) Accept(ctx context.Context, tradeID string) error {
	trade, ok := c.store.Get(tradeID)
	if !ok {
		return ErrTradeNotFound
	}
	if trade.Status != models.TradeProposed {
		return &InvalidTransitionError{Action: "accept", From: trade.Status}
	}

	now := c.now()
	trade.Status = models.TradePending
	trade.AcceptedDate = now.UTC().Format(time.RFC3339)
	trade.LastUpdate = now.UnixMilli()

	updates := models.Trades{trade.TradeID: trade}
	for id, rival := range c.store.Snapshot() {
		if id == trade.TradeID || rival.Status != models.TradeProposed {
			continue
		}
		if rival.References(trade.InstanceIDUserProposed) ||
			rival.References(trade.InstanceIDUserAccepting) {
			rival.Status = models.TradeDeleted
			rival.DeletedDate = now.UTC().Format(time.RFC3339)
			rival.LastUpdate = now.UnixMilli()
			updates[id] = rival
		}
	}

	if err := c.store.SetTrades(ctx, updates); err != nil {
		return fmt.Errorf("accept: %w", err)
	}
	for _, t := range updates {
		c.queue(ctx, models.OpUpdateTrade, t)
	}
	c.mutated()

	slog.Debug("Accepted trade",
		slog.String("trade_id", tradeID),
		slog.Int("cascaded", len(updates)-1))
	return nil
}

// Complete records the calling party's completion confirmation. The trade
// stays pending until both parties have confirmed; the second confirmation
// completes it and swaps ownership of the two referenced instances.
func (c *Controller) Complete(ctx context.Context, tradeID string) error {
	trade, ok := c.store.Get(tradeID)
	if !ok {
		return ErrTradeNotFound
	}
	if trade.Status != models.TradePending {
		return &InvalidTransitionError{Action: "complete", From: trade.Status}
	}

	now := c.now()
	current := c.usernames.CurrentUsername()
	if current == trade.UsernameProposed {
		trade.ProposedCompletionConfirmed = true
	} else {
		trade.AcceptingCompletionConfirmed = true
	}
	trade.LastUpdate = now.UnixMilli()

	if trade.ProposedCompletionConfirmed && trade.AcceptingCompletionConfirmed {
		trade.Status = models.TradeCompleted
		trade.CompletedDate = now.UTC().Format(time.RFC3339)
		c.swapOwnership(ctx, trade)
	}

	if err := c.store.SetTrades(ctx, models.Trades{trade.TradeID: trade}); err != nil {
		return fmt.Errorf("complete: %w", err)
	}
	c.queue(ctx, models.OpUpdateTrade, trade)
	c.mutated()

	slog.Debug("Completion confirmed",
		slog.String("trade_id", tradeID),
		slog.String("status", string(trade.Status)))
	return nil
}

// Cancel terminates a proposed or pending trade, recording who cancelled.
func (c *Controller) Cancel(ctx context.Context, tradeID string) error {
	trade, ok := c.store.Get(tradeID)
	if !ok {
		return ErrTradeNotFound
	}
	if trade.Status != models.TradeProposed && trade.Status != models.TradePending {
		return &InvalidTransitionError{Action: "cancel", From: trade.Status}
	}

	now := c.now()
	trade.Status = models.TradeCancelled
	trade.CancelledDate = now.UTC().Format(time.RFC3339)
	trade.CancelledBy = c.usernames.CurrentUsername()
	trade.LastUpdate = now.UnixMilli()

	if err := c.store.SetTrades(ctx, models.Trades{trade.TradeID: trade}); err != nil {
		return fmt.Errorf("cancel: %w", err)
	}
	c.queue(ctx, models.OpUpdateTrade, trade)
	c.mutated()
	return nil
}

// Deny rejects a proposal.
func (c *Controller) Deny(ctx context.Context, tradeID string) error {
	trade, ok := c.store.Get(tradeID)
	if !ok {
		return ErrTradeNotFound
	}
	if trade.Status != models.TradeProposed {
		return &InvalidTransitionError{Action: "deny", From: trade.Status}
	}

	trade.Status = models.TradeDenied
	trade.LastUpdate = c.now().UnixMilli()

	if err := c.store.SetTrades(ctx, models.Trades{trade.TradeID: trade}); err != nil {
		return fmt.Errorf("deny: %w", err)
	}
	c.queue(ctx, models.OpUpdateTrade, trade)
	c.mutated()
	return nil
}

// Delete marks a trade deleted by explicit user action.
func (c *Controller) Delete(ctx context.Context, tradeID string) error {
	trade, ok := c.store.Get(tradeID)
	if !ok {
		return ErrTradeNotFound
	}

	now := c.now()
	trade.Status = models.TradeDeleted
	trade.DeletedDate = now.UTC().Format(time.RFC3339)
	trade.LastUpdate = now.UnixMilli()

	if err := c.store.SetTrades(ctx, models.Trades{trade.TradeID: trade}); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	c.queue(ctx, models.OpUpdateTrade, trade)
	c.mutated()
	return nil
}

// Repropose resurrects a denied or cancelled trade as a fresh proposal
// under the same id: all terminal timestamps and confirmations are cleared,
// and when the reproposing party was the original acceptor, proposer and
// acceptor swap so the reproposer becomes proposer.
func (c *Controller) Repropose(ctx context.Context, tradeID string) error {
	trade, ok := c.store.Get(tradeID)
	if !ok {
		return ErrTradeNotFound
	}
	if trade.Status != models.TradeDenied && trade.Status != models.TradeCancelled {
		return &InvalidTransitionError{Action: "repropose", From: trade.Status}
	}

	now := c.now()
	if c.usernames.CurrentUsername() == trade.UsernameAccepting {
		trade.UsernameProposed, trade.UsernameAccepting =
			trade.UsernameAccepting, trade.UsernameProposed
		trade.InstanceIDUserProposed, trade.InstanceIDUserAccepting =
			trade.InstanceIDUserAccepting, trade.InstanceIDUserProposed
	}

	trade.Status = models.TradeProposed
	trade.ProposalDate = now.UTC().Format(time.RFC3339)
	trade.AcceptedDate = ""
	trade.CompletedDate = ""
	trade.CancelledDate = ""
	trade.CancelledBy = ""
	trade.DeletedDate = ""
	trade.ProposedCompletionConfirmed = false
	trade.AcceptingCompletionConfirmed = false
	trade.LastUpdate = now.UnixMilli()

	if err := c.store.SetTrades(ctx, models.Trades{trade.TradeID: trade}); err != nil {
		return fmt.Errorf("repropose: %w", err)
	}
	c.queue(ctx, models.OpUpdateTrade, trade)
	c.mutated()
	return nil
}

// ApplyServerUpdates lands trades pushed by the server. Incoming pending
// trades run the same rival-proposal cascade as a local accept before the
// batch is stored; server-originated changes are not queued back to the
// outbox.
func (c *Controller) ApplyServerUpdates(ctx context.Context, newTrades models.Trades, newRelated models.Instances) error {
	if len(newTrades) > 0 {
		combined := newTrades.Clone()

		snapshot := c.store.Snapshot()
		for id, t := range combined {
			snapshot[id] = t
		}

		now := c.now()
		for _, incoming := range newTrades {
			if incoming.Status != models.TradePending {
				continue
			}
			for id, rival := range snapshot {
				if id == incoming.TradeID || rival.Status != models.TradeProposed {
					continue
				}
				if rival.References(incoming.InstanceIDUserProposed) ||
					rival.References(incoming.InstanceIDUserAccepting) {
					clone := rival.Clone()
					clone.Status = models.TradeDeleted
					clone.DeletedDate = now.UTC().Format(time.RFC3339)
					clone.LastUpdate = now.UnixMilli()
					combined[id] = clone
				}
			}
		}

		if err := c.store.SetTrades(ctx, combined); err != nil {
			return fmt.Errorf("apply server trades: %w", err)
		}
	}

	if len(newRelated) > 0 {
		if err := c.store.SetRelated(ctx, newRelated); err != nil {
			return fmt.Errorf("apply server related instances: %w", err)
		}
	}
	return nil
}

// swapOwnership crosses the username fields of the two instances referenced
// by a completed trade. Each side may live in the canonical map (our own
// instance) or in the related snapshots (the partner's).
func (c *Controller) swapOwnership(ctx context.Context, trade *models.Trade) {
	transfers := map[string]string{
		trade.InstanceIDUserProposed:  trade.UsernameAccepting,
		trade.InstanceIDUserAccepting: trade.UsernameProposed,
	}

	relatedUpdates := models.Instances{}
	for instanceID, newOwner := range transfers {
		if inst, ok := c.store.GetRelated(instanceID); ok {
			inst.Username = newOwner
			relatedUpdates[instanceID] = inst
		}
	}
	if len(relatedUpdates) > 0 {
		if err := c.store.SetRelated(ctx, relatedUpdates); err != nil {
			logger.LogError("Failed to persist ownership swap", err)
		}
	}

	c.instances.TransferOwnership(ctx, transfers)
}

func (c *Controller) queue(ctx context.Context, op models.TradeOperation, trade *models.Trade) {
	update := models.TradeUpdate{
		Key:       trade.TradeID,
		Operation: op,
		Trade:     trade.Clone(),
	}
	if err := c.outbox.PutTradeUpdate(ctx, update); err != nil {
		logger.LogError("Trade outbox write failed", err,
			slog.String("trade_id", trade.TradeID))
	}
}

func (c *Controller) mutated() {
	if c.onMutate != nil {
		c.onMutate()
	}
}
