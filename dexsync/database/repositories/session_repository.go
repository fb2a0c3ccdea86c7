package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/pogodex/dexsync/dexsync/database"
	"github.com/pogodex/dexsync/dexsync/database/models"
)

const metaCredentialsKey = prefixMeta + "credentials"

// ErrNoSession is returned when no credential record is cached. A malformed
// record is treated the same way: not logged in.
var ErrNoSession = errors.New("no cached session")

// SessionRepository stores the locally cached credential record the delivery
// scheduler derives session validity from.
type SessionRepository interface {
	Get(ctx context.Context) (*models.Credentials, error)
	Save(ctx context.Context, creds *models.Credentials) error
	Clear(ctx context.Context) error
}

type sessionRepository struct {
	*BaseRepository
}

func NewSessionRepository(db *database.DB) SessionRepository {
	return &sessionRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *sessionRepository) Get(ctx context.Context) (*models.Credentials, error) {
	var creds models.Credentials
	if err := r.getJSON(metaCredentialsKey, &creds); err != nil {
		if isNotFound(err) {
			return nil, ErrNoSession
		}
		// Malformed records mean "not logged in", not a hard failure.
		return nil, ErrNoSession
	}
	return &creds, nil
}

func (r *sessionRepository) Save(ctx context.Context, creds *models.Credentials) error {
	err := r.db.Badger().Update(func(txn *badger.Txn) error {
		return r.putJSON(txn, metaCredentialsKey, creds)
	})
	if err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

func (r *sessionRepository) Clear(ctx context.Context) error {
	err := r.db.Badger().Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(metaCredentialsKey))
	})
	if err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}
