package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/tokengate/internal/db"
	"github.com/kailas-cloud/tokengate/internal/domain"
)

// store is the consumer interface for credential persistence (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, key string) error
}

// Repo persists personal credential records as JSON documents in the local
// key-value store. Failures here are storage errors and propagate.
type Repo struct {
	store     store
	keyPrefix string
}

// New creates a credential repository.
func New(s store, keyPrefix string) *Repo {
	return &Repo{store: s, keyPrefix: keyPrefix}
}

// Save creates or overwrites the record for (userID, provider).
func (r *Repo) Save(ctx context.Context, userID string, rec domain.CredentialRecord) error {
	data, err := marshalRecord(rec)
	if err != nil {
		return fmt.Errorf("marshal credential %s/%s: %w", userID, rec.Provider, err)
	}
	if err := r.store.Set(ctx, r.key(userID, rec.Provider), data); err != nil {
		return fmt.Errorf("set credential %s/%s: %w: %w", userID, rec.Provider, domain.ErrStorage, err)
	}
	return nil
}

// Get retrieves the record for (userID, provider). Returns domain.ErrNotFound
// when absent. Expiry is the caller's concern: expired records are returned.
func (r *Repo) Get(ctx context.Context, userID string, p domain.Provider) (domain.CredentialRecord, error) {
	data, err := r.store.Get(ctx, r.key(userID, p))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domain.CredentialRecord{}, domain.ErrNotFound
		}
		return domain.CredentialRecord{}, fmt.Errorf("get credential %s/%s: %w: %w", userID, p, domain.ErrStorage, err)
	}
	rec, err := unmarshalRecord(data)
	if err != nil {
		return domain.CredentialRecord{}, fmt.Errorf("decode credential %s/%s: %w: %w", userID, p, domain.ErrStorage, err)
	}
	return rec, nil
}

// Delete removes the record. Deleting a missing record is a no-op.
func (r *Repo) Delete(ctx context.Context, userID string, p domain.Provider) error {
	if err := r.store.Del(ctx, r.key(userID, p)); err != nil {
		return fmt.Errorf("del credential %s/%s: %w: %w", userID, p, domain.ErrStorage, err)
	}
	return nil
}

func (r *Repo) key(userID string, p domain.Provider) string {
	return fmt.Sprintf("%scred:%s:%s", r.keyPrefix, userID, p)
}
