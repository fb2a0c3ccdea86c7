package syncer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pogodex/dexsync/dexsync/database/models"
)

type fakeClock struct {
	tick chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{tick: make(chan time.Time)}
}

func (c *fakeClock) Now() time.Time                       { return time.UnixMilli(0) }
func (c *fakeClock) After(time.Duration) <-chan time.Time { return c.tick }

type fakeOracle struct {
	mu    sync.Mutex
	valid bool
}

func (o *fakeOracle) Valid() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.valid
}

func (o *fakeOracle) CurrentUsername() string { return "ash" }

func (o *fakeOracle) setValid(v bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.valid = v
}

type fakeOutbox struct {
	mu        sync.Mutex
	instances []models.InstanceUpdate
	trades    []models.TradeUpdate
}

func (o *fakeOutbox) GetInstanceUpdates(ctx context.Context) ([]models.InstanceUpdate, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]models.InstanceUpdate(nil), o.instances...), nil
}

func (o *fakeOutbox) GetTradeUpdates(ctx context.Context) ([]models.TradeUpdate, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]models.TradeUpdate(nil), o.trades...), nil
}

func (o *fakeOutbox) IsEmpty(ctx context.Context) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.instances) == 0 && len(o.trades) == 0, nil
}

func (o *fakeOutbox) drain() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.instances = nil
	o.trades = nil
}

func (o *fakeOutbox) queue(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.instances = append(o.instances, models.InstanceUpdate{Key: key})
}

type fakeChannel struct {
	mu      sync.Mutex
	flushes []models.FlushPayload
}

func (c *fakeChannel) RequestFlush(ctx context.Context, payload models.FlushPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushes = append(c.flushes, payload)
}

func (c *fakeChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.flushes)
}

func newTestScheduler(t *testing.T) (*Scheduler, *fakeOutbox, *fakeChannel, *fakeOracle, *fakeClock) {
	t.Helper()

	outbox := &fakeOutbox{}
	channel := &fakeChannel{}
	oracle := &fakeOracle{valid: true}
	clock := newFakeClock()

	s := NewScheduler(outbox, channel, oracle, clock, time.Minute)
	t.Cleanup(s.Stop)
	return s, outbox, channel, oracle, clock
}

func TestScheduleFlushesImmediately(t *testing.T) {
	s, outbox, channel, _, _ := newTestScheduler(t)
	outbox.queue("a")

	s.Schedule(context.Background())

	require.Eventually(t, func() bool { return channel.count() == 1 }, time.Second, time.Millisecond)
	assert.True(t, s.Active())
}

func TestScheduleIsIdempotentWhileActive(t *testing.T) {
	s, outbox, channel, _, _ := newTestScheduler(t)
	outbox.queue("a")

	ctx := context.Background()
	s.Schedule(ctx)
	require.Eventually(t, func() bool { return channel.count() == 1 }, time.Second, time.Millisecond)

	s.Schedule(ctx)
	s.Schedule(ctx)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, channel.count(), "re-scheduling an active cycle must not re-flush")
}

func TestScheduleRequiresValidSession(t *testing.T) {
	s, outbox, channel, oracle, _ := newTestScheduler(t)
	outbox.queue("a")
	oracle.setValid(false)

	s.Schedule(context.Background())

	assert.False(t, s.Active())
	assert.Zero(t, channel.count())
}

func TestIdleDrainFromEmptyOutbox(t *testing.T) {
	s, _, channel, _, clock := newTestScheduler(t)

	s.Schedule(context.Background())
	require.Eventually(t, func() bool { return channel.count() == 1 }, time.Second, time.Millisecond,
		"the initial flush request goes out even with nothing queued")

	clock.tick <- time.UnixMilli(0)
	require.Eventually(t, func() bool { return !s.Active() }, time.Second, time.Millisecond)
	assert.Equal(t, 1, channel.count(), "the first tick confirms emptiness and ends the cycle")
}

func TestCycleDrainsWhenOutboxEmpties(t *testing.T) {
	s, outbox, channel, _, clock := newTestScheduler(t)
	outbox.queue("a")

	s.Schedule(context.Background())
	require.Eventually(t, func() bool { return channel.count() == 1 }, time.Second, time.Millisecond)

	// Delivery succeeded between ticks.
	outbox.drain()
	clock.tick <- time.UnixMilli(0)

	require.Eventually(t, func() bool { return !s.Active() }, time.Second, time.Millisecond)
	assert.Equal(t, 1, channel.count(), "an empty outbox ends the cycle without another flush")
}

func TestCycleRetriesUndeliveredEntries(t *testing.T) {
	s, outbox, channel, _, clock := newTestScheduler(t)
	outbox.queue("a")

	s.Schedule(context.Background())
	require.Eventually(t, func() bool { return channel.count() == 1 }, time.Second, time.Millisecond)

	// Entry still queued: the tick flushes it again.
	clock.tick <- time.UnixMilli(0)
	require.Eventually(t, func() bool { return channel.count() == 2 }, time.Second, time.Millisecond)
	assert.True(t, s.Active())
}

func TestCyclePausesOnInvalidSession(t *testing.T) {
	s, outbox, channel, oracle, clock := newTestScheduler(t)
	outbox.queue("a")

	s.Schedule(context.Background())
	require.Eventually(t, func() bool { return channel.count() == 1 }, time.Second, time.Millisecond)

	// Session expires mid-cycle; the queue must survive the pause.
	oracle.setValid(false)
	clock.tick <- time.UnixMilli(0)

	require.Eventually(t, func() bool { return !s.Active() }, time.Second, time.Millisecond)
	assert.Equal(t, 1, channel.count())

	empty, err := outbox.IsEmpty(context.Background())
	require.NoError(t, err)
	assert.False(t, empty, "pausing must keep the backlog")

	// A later login resumes delivery of the same backlog.
	oracle.setValid(true)
	s.Schedule(context.Background())
	require.Eventually(t, func() bool { return channel.count() == 2 }, time.Second, time.Millisecond)
}

func TestStopHaltsCycle(t *testing.T) {
	s, outbox, channel, _, _ := newTestScheduler(t)
	outbox.queue("a")

	s.Schedule(context.Background())
	require.Eventually(t, func() bool { return channel.count() == 1 }, time.Second, time.Millisecond)

	s.Stop()
	assert.False(t, s.Active())
}
