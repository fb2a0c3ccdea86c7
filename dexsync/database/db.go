package database

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	defaultGCInterval     = 5 * time.Minute
	defaultGCDiscardRatio = 0.5
)

type DBConfig struct {
	Path       string `toml:"path"`
	InMemory   bool   `toml:"in_memory"`
	SyncWrites bool   `toml:"sync_writes"`
}

// DB wraps the embedded Badger store holding the durable caches and the
// outbox queues. A single DB instance is shared by all repositories.
type DB struct {
	badger *badger.DB
	cancel context.CancelFunc
}

func New(ctx context.Context, cfg DBConfig) (*DB, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(cfg.SyncWrites)
	}
	opts = opts.WithLogger(&badgerLogger{logger: slog.Default()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	gcCtx, cancel := context.WithCancel(ctx)
	d := &DB{badger: db, cancel: cancel}
	if !cfg.InMemory {
		go d.runGC(gcCtx)
	}
	return d, nil
}

// NewInMemory returns a DB backed by memory only. Used by tests.
func NewInMemory() (*DB, error) {
	return New(context.Background(), DBConfig{InMemory: true})
}

func (d *DB) Badger() *badger.DB {
	return d.badger
}

func (d *DB) Close() error {
	d.cancel()
	return d.badger.Close()
}

// runGC reclaims value-log space in the background. Badger requires
// callers to drive GC themselves.
func (d *DB) runGC(ctx context.Context) {
	ticker := time.NewTicker(defaultGCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				if err := d.badger.RunValueLogGC(defaultGCDiscardRatio); err != nil {
					break
				}
			}
		}
	}
}

// badgerLogger adapts slog to Badger's logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...), slog.String("type", "db"))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...), slog.String("type", "db"))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...), slog.String("type", "db"))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...), slog.String("type", "db"))
}
