package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pogodex/dexsync/dexsync/database/models"
	"github.com/pogodex/dexsync/dexsync/logger"
)

const defaultFlushInterval = 60 * time.Second

// Scheduler owns one delivery cycle at a time. A mutation calls Schedule;
// if no cycle is running and the session is valid, the scheduler flushes
// immediately and then re-checks the outbox every interval, draining
// retries and mid-flight writes until the queues are empty. An invalid
// session pauses the cycle with the queues intact, so a later login picks
// the backlog up.
type Scheduler struct {
	mu     sync.Mutex
	active bool
	stop   chan struct{}

	outbox   OutboxReader
	channel  Channel
	session  Oracle
	clock    Clock
	interval time.Duration

	// location optionally stamps flushes with client geolocation.
	location func() *models.Location
}

// OutboxReader is the slice of the outbox repository the scheduler needs.
type OutboxReader interface {
	GetInstanceUpdates(ctx context.Context) ([]models.InstanceUpdate, error)
	GetTradeUpdates(ctx context.Context) ([]models.TradeUpdate, error)
	IsEmpty(ctx context.Context) (bool, error)
}

func NewScheduler(outbox OutboxReader, channel Channel, session Oracle, clock Clock, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	return &Scheduler{
		outbox:   outbox,
		channel:  channel,
		session:  session,
		clock:    clock,
		interval: interval,
	}
}

// SetLocationSource registers an optional geolocation provider consulted
// once per flush.
func (s *Scheduler) SetLocationSource(fn func() *models.Location) {
	s.location = fn
}

// Schedule starts a delivery cycle unless one is already running or the
// session is invalid. Safe to call on every mutation.
func (s *Scheduler) Schedule(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return
	}
	if !s.session.Valid() {
		slog.Debug("Delivery not scheduled; no valid session")
		return
	}

	s.active = true
	s.stop = make(chan struct{})
	go s.run(ctx, s.stop)
}

// Active reports whether a delivery cycle is currently running.
func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Stop halts the running cycle, if any. Queued entries are kept.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.active = false
	close(s.stop)
}

func (s *Scheduler) run(ctx context.Context, stop <-chan struct{}) {
	s.flush(ctx)

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			s.deactivate()
			return
		case <-s.clock.After(s.interval):
			empty, err := s.outbox.IsEmpty(ctx)
			if err != nil {
				logger.LogError("Failed to check outbox", err)
				continue
			}
			if empty {
				slog.Debug("Outbox drained; delivery cycle ends")
				s.deactivate()
				return
			}
			if !s.session.Valid() {
				slog.Debug("Session invalid; delivery cycle pauses with queued entries")
				s.deactivate()
				return
			}
			s.flush(ctx)
		}
	}
}

// flush snapshots both queues and hands them to the channel, empty or not;
// the channel decides whether an empty snapshot is worth a request.
// Delivery is asynchronous; entries leave the outbox only when the channel
// confirms receipt, so a failed attempt simply shows up again on the next
// tick.
func (s *Scheduler) flush(ctx context.Context) {
	instances, err := s.outbox.GetInstanceUpdates(ctx)
	if err != nil {
		logger.LogError("Failed to read instance outbox", err)
		return
	}
	trades, err := s.outbox.GetTradeUpdates(ctx)
	if err != nil {
		logger.LogError("Failed to read trade outbox", err)
		return
	}

	payload := models.FlushPayload{
		PokemonUpdates: instances,
		TradeUpdates:   trades,
	}
	if s.location != nil {
		payload.Location = s.location()
	}

	slog.Debug("Requesting flush",
		slog.Int("instances", len(instances)),
		slog.Int("trades", len(trades)))
	s.channel.RequestFlush(ctx, payload)
}

func (s *Scheduler) deactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
}
