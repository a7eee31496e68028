package quota

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/tokengate/internal/db"
	"github.com/kailas-cloud/tokengate/internal/domain"
)

// store is the consumer interface for quota persistence (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	IncrBy(ctx context.Context, key string, val int64) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// Store persists day-scoped quota counters as plain integer keys
// (INCRBY + GET). Keys carry the period day, so a rollover simply starts
// writing fresh keys; stale days age out via TTL.
type Store struct {
	store     store
	keyPrefix string
	ttl       time.Duration
}

// DefaultTTL keeps the previous day readable for diagnostics before Redis
// evicts it.
const DefaultTTL = 48 * time.Hour

// New creates a quota store.
func New(s store, keyPrefix string, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{store: s, keyPrefix: keyPrefix, ttl: ttl}
}

// Load returns the persisted counters for (scope, day). Missing keys read as
// zero.
func (s *Store) Load(ctx context.Context, scope domain.Provider, day string) (requests, tokens int64, err error) {
	requests, err = s.get(ctx, s.key(scope, day, "requests"))
	if err != nil {
		return 0, 0, err
	}
	tokens, err = s.get(ctx, s.key(scope, day, "tokens"))
	if err != nil {
		return 0, 0, err
	}
	return requests, tokens, nil
}

// Add atomically increments the counters for (scope, day) and arms their TTL.
func (s *Store) Add(ctx context.Context, scope domain.Provider, day string, requests, tokens int64) error {
	if requests != 0 {
		if err := s.incr(ctx, s.key(scope, day, "requests"), requests); err != nil {
			return err
		}
	}
	if tokens != 0 {
		if err := s.incr(ctx, s.key(scope, day, "tokens"), tokens); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string) (int64, error) {
	data, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("quota GET %s: %w", key, err)
	}
	val, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("quota GET %s parse: %w", key, err)
	}
	return val, nil
}

func (s *Store) incr(ctx context.Context, key string, val int64) error {
	if err := s.store.IncrBy(ctx, key, val); err != nil {
		return fmt.Errorf("quota INCRBY %s: %w", key, err)
	}
	// Arm TTL only if the key has no expiry yet (NX, not reset on repeat).
	if err := s.store.Expire(ctx, key, s.ttl, true); err != nil {
		return fmt.Errorf("quota EXPIRE %s: %w", key, err)
	}
	return nil
}

func (s *Store) key(scope domain.Provider, day, counter string) string {
	return fmt.Sprintf("%squota:%s:%s:%s", s.keyPrefix, scope, day, counter)
}
