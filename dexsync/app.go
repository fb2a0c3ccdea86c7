// Package dexsync assembles the offline-first sync engine: durable caches
// and outbox queues in an embedded Badger store, an in-memory entity store
// with a reconciliation merge, a trade lifecycle controller, and a delivery
// scheduler shipping batched updates to the receiver.
package dexsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/pogodex/dexsync/dexsync/catalog"
	"github.com/pogodex/dexsync/dexsync/database"
	"github.com/pogodex/dexsync/dexsync/database/models"
	"github.com/pogodex/dexsync/dexsync/database/repositories"
	"github.com/pogodex/dexsync/dexsync/fetch"
	"github.com/pogodex/dexsync/dexsync/instances"
	"github.com/pogodex/dexsync/dexsync/logger"
	"github.com/pogodex/dexsync/dexsync/syncer"
	"github.com/pogodex/dexsync/dexsync/trades"
)

// App owns every component of the engine and the base context their
// background work runs under.
type App struct {
	cfg *Config
	ctx context.Context
	db  *database.DB

	Session   *syncer.Session
	Catalog   catalog.Provider
	Instances *instances.Store
	Trades    *trades.Store
	Lifecycle *trades.Controller
	Scheduler *syncer.Scheduler
	Reader    *fetch.Client

	outbox repositories.OutboxRepository
}

func NewApp(ctx context.Context, cfg *Config) (*App, error) {
	db, err := database.New(ctx, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to open durable cache: %w", err)
	}

	clock := syncer.NewClock()
	instanceRepo := repositories.NewInstanceRepository(db)
	tradeRepo := repositories.NewTradeRepository(db)
	outboxRepo := repositories.NewOutboxRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)

	session := syncer.NewSession(ctx, sessionRepo, clock)
	provider := catalog.NewProvider(nil)

	instanceStore := instances.NewStore(instanceRepo, outboxRepo, provider, session)
	tradeStore := trades.NewStore(tradeRepo)
	lifecycle := trades.NewController(tradeStore, instanceStore, outboxRepo, session)

	channel := syncer.NewHTTPChannel(cfg.Receiver.BaseURL, cfg.Receiver.Timeout(), outboxRepo)
	scheduler := syncer.NewScheduler(outboxRepo, channel, session, clock, cfg.Sync.FlushInterval())

	app := &App{
		cfg:       cfg,
		ctx:       ctx,
		db:        db,
		Session:   session,
		Catalog:   provider,
		Instances: instanceStore,
		Trades:    tradeStore,
		Lifecycle: lifecycle,
		Scheduler: scheduler,
		Reader:    fetch.NewClient(cfg.Receiver.FetchURL, cfg.Receiver.Timeout()),
		outbox:    outboxRepo,
	}

	kick := func() { scheduler.Schedule(app.ctx) }
	instanceStore.SetOnMutate(kick)
	lifecycle.SetOnMutate(kick)

	return app, nil
}

// Bootstrap hydrates the stores from the durable cache, refreshes the
// catalog, pulls the authoritative snapshot when a session exists, and
// resumes delivery of any backlog left from the previous run. Network
// failures leave the app running on cached data.
func (a *App) Bootstrap(ctx context.Context) error {
	instanceRepo := repositories.NewInstanceRepository(a.db)
	tradeRepo := repositories.NewTradeRepository(a.db)

	g, gctx := errgroup.WithContext(ctx)

	var cached models.Instances
	g.Go(func() error {
		var err error
		cached, err = instanceRepo.GetAll(gctx)
		return err
	})

	var cachedTrades models.Trades
	var cachedRelated models.Instances
	g.Go(func() error {
		var err error
		if cachedTrades, err = tradeRepo.GetAllTrades(gctx); err != nil {
			return err
		}
		cachedRelated, err = tradeRepo.GetAllRelated(gctx)
		return err
	})

	g.Go(func() error {
		variants, err := a.Reader.FetchCatalog(gctx)
		if err != nil {
			// Stale catalog is usable; a refresh happens next run.
			logger.LogError("Catalog refresh failed", err)
			return nil
		}
		a.Catalog.Replace(variants)
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to hydrate from cache: %w", err)
	}

	a.Instances.Hydrate(cached)
	a.Trades.Hydrate(cachedTrades, cachedRelated)

	if a.Session.Valid() {
		a.refreshAuthoritative(ctx)
	}

	empty, err := a.outbox.IsEmpty(ctx)
	if err != nil {
		logger.LogError("Failed to check outbox backlog", err)
	} else if !empty {
		slog.Info("Resuming delivery of queued updates")
		a.Scheduler.Schedule(a.ctx)
	}
	return nil
}

func (a *App) refreshAuthoritative(ctx context.Context) {
	username := a.Session.CurrentUsername()
	data, err := a.Reader.FetchOwnership(ctx, username)
	if err != nil {
		logger.LogError("Authoritative refresh failed; using cached data", err,
			slog.String("username", username))
		return
	}

	if err := a.Instances.ApplyAuthoritative(ctx, data.Instances); err != nil {
		logger.LogError("Failed to apply authoritative instances", err)
	}
	if err := a.Lifecycle.ApplyServerUpdates(ctx, data.Trades, data.Related); err != nil {
		logger.LogError("Failed to apply authoritative trades", err)
	}
}

// ViewProfile loads another user's instances into the foreign side channel
// and returns the canonical spelling of their username.
func (a *App) ViewProfile(ctx context.Context, username string) (string, error) {
	data, err := a.Reader.FetchOwnership(ctx, username)
	if err != nil {
		if errors.Is(err, fetch.ErrUserNotFound) {
			return "", err
		}
		return "", fmt.Errorf("failed to load profile %s: %w", username, err)
	}
	a.Instances.SetForeign(data.Instances)
	return data.Username, nil
}

// Login installs fresh credentials and immediately pulls the authoritative
// snapshot for the new session.
func (a *App) Login(ctx context.Context, creds *models.Credentials) error {
	if err := a.Session.SetCredentials(ctx, creds); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}
	a.refreshAuthoritative(ctx)
	a.Scheduler.Schedule(a.ctx)
	return nil
}

// Logout stops delivery, clears both stores and the cached session. Queued
// outbox entries are dropped with the rest of the user's local state.
func (a *App) Logout(ctx context.Context) error {
	a.Scheduler.Stop()

	a.Instances.Reset(ctx)
	if err := a.Trades.Reset(ctx); err != nil {
		logger.LogError("Failed to reset trade cache", err)
	}
	if err := a.outbox.ClearInstanceUpdates(ctx); err != nil {
		logger.LogError("Failed to clear instance outbox", err)
	}
	if err := a.outbox.ClearTradeUpdates(ctx); err != nil {
		logger.LogError("Failed to clear trade outbox", err)
	}
	if err := a.Session.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	slog.Info("Logged out; local state cleared")
	return nil
}

func (a *App) Close() error {
	a.Scheduler.Stop()
	return a.db.Close()
}
