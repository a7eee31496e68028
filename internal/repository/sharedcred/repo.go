package sharedcred

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/tokengate/internal/db"
	"github.com/kailas-cloud/tokengate/internal/domain"
)

// store is the consumer interface for the shared-credential cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// DefaultCacheTTL bounds how stale an offline fallback copy can get. A cache
// entry is refreshed on every successful remote fetch, so the TTL only bites
// during a prolonged registry outage.
const DefaultCacheTTL = 30 * 24 * time.Hour

// Repo is the local cache of remotely distributed shared credentials. It
// holds the last copy fetched from the remote registry so resolution
// degrades gracefully offline.
type Repo struct {
	store     store
	keyPrefix string
	ttl       time.Duration
}

// New creates a shared-credential cache repository.
func New(s store, keyPrefix string, ttl time.Duration) *Repo {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Repo{store: s, keyPrefix: keyPrefix, ttl: ttl}
}

// Save caches the shared record for its provider.
func (r *Repo) Save(ctx context.Context, rec domain.SharedCredentialRecord) error {
	data, err := marshalRecord(rec)
	if err != nil {
		return fmt.Errorf("marshal shared credential %s: %w", rec.Provider, err)
	}
	if err := r.store.SetWithTTL(ctx, r.key(rec.Provider), data, r.ttl); err != nil {
		return fmt.Errorf("set shared credential %s: %w: %w", rec.Provider, domain.ErrStorage, err)
	}
	return nil
}

// Get retrieves the cached record. Returns domain.ErrNotFound when absent.
// Usability (active flag, expiry) is the caller's concern.
func (r *Repo) Get(ctx context.Context, p domain.Provider) (domain.SharedCredentialRecord, error) {
	data, err := r.store.Get(ctx, r.key(p))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domain.SharedCredentialRecord{}, domain.ErrNotFound
		}
		return domain.SharedCredentialRecord{}, fmt.Errorf("get shared credential %s: %w: %w", p, domain.ErrStorage, err)
	}
	rec, err := unmarshalRecord(data)
	if err != nil {
		return domain.SharedCredentialRecord{}, fmt.Errorf("decode shared credential %s: %w: %w", p, domain.ErrStorage, err)
	}
	return rec, nil
}

// Delete evicts the cached record. Deleting a missing record is a no-op.
func (r *Repo) Delete(ctx context.Context, p domain.Provider) error {
	if err := r.store.Del(ctx, r.key(p)); err != nil {
		return fmt.Errorf("del shared credential %s: %w: %w", p, domain.ErrStorage, err)
	}
	return nil
}

func (r *Repo) key(p domain.Provider) string {
	return fmt.Sprintf("%ssharedcred:%s", r.keyPrefix, p)
}
