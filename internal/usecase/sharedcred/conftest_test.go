package sharedcred

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tokengate/internal/domain"
	"github.com/kailas-cloud/tokengate/internal/registry"
)

type mockCache struct {
	mu   sync.Mutex
	recs map[domain.Provider]domain.SharedCredentialRecord

	failSave bool
	failGet  bool
}

func newMockCache() *mockCache {
	return &mockCache{recs: make(map[domain.Provider]domain.SharedCredentialRecord)}
}

func (m *mockCache) Save(_ context.Context, rec domain.SharedCredentialRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return errors.New("cache save failed")
	}
	m.recs[rec.Provider] = rec
	return nil
}

func (m *mockCache) Get(_ context.Context, p domain.Provider) (domain.SharedCredentialRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return domain.SharedCredentialRecord{}, errors.New("cache get failed")
	}
	rec, ok := m.recs[p]
	if !ok {
		return domain.SharedCredentialRecord{}, fmt.Errorf("cached shared credential for %s: %w", p, domain.ErrNotFound)
	}
	return rec, nil
}

func (m *mockCache) Delete(_ context.Context, p domain.Provider) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recs, p)
	return nil
}

type mockRegistry struct {
	mu   sync.Mutex
	docs map[string][]byte

	offline    bool
	failPut    bool
	failRemove bool
}

func newMockRegistry() *mockRegistry {
	return &mockRegistry{docs: make(map[string][]byte)}
}

func (m *mockRegistry) Fetch(_ context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offline {
		return nil, errors.New("registry unreachable")
	}
	doc, ok := m.docs[path]
	if !ok {
		return nil, registry.ErrNotFound
	}
	return doc, nil
}

func (m *mockRegistry) Put(_ context.Context, path string, doc []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offline || m.failPut {
		return errors.New("registry unreachable")
	}
	m.docs[path] = doc
	return nil
}

func (m *mockRegistry) Remove(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offline || m.failRemove {
		return errors.New("registry unreachable")
	}
	delete(m.docs, path)
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func allowAll(domain.Principal) bool { return true }

func adminsOnly(ids ...string) AuthorizerFunc {
	allowed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		allowed[id] = struct{}{}
	}
	return func(p domain.Principal) bool {
		_, ok := allowed[p.ID]
		return ok
	}
}

func newTestService(auth Authorizer) (*Service, *mockCache, *mockRegistry, *fakeClock) {
	cache := newMockCache()
	reg := newMockRegistry()
	clock := &fakeClock{now: time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)}
	svc := New(cache, reg, auth, domain.DefaultPolicies(), clock, zap.NewNop())
	return svc, cache, reg, clock
}
