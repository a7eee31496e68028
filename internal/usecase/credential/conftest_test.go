package credential

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tokengate/internal/domain"
)

// --- Mocks ---

type mockRepo struct {
	records map[string]domain.CredentialRecord
	saveErr error
	getErr  error
	delErr  error
}

func newMockRepo() *mockRepo {
	return &mockRepo{records: make(map[string]domain.CredentialRecord)}
}

func (m *mockRepo) key(userID string, p domain.Provider) string {
	return userID + "/" + string(p)
}

func (m *mockRepo) Save(_ context.Context, userID string, rec domain.CredentialRecord) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.records[m.key(userID, rec.Provider)] = rec
	return nil
}

func (m *mockRepo) Get(_ context.Context, userID string, p domain.Provider) (domain.CredentialRecord, error) {
	if m.getErr != nil {
		return domain.CredentialRecord{}, m.getErr
	}
	rec, ok := m.records[m.key(userID, p)]
	if !ok {
		return domain.CredentialRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (m *mockRepo) Delete(_ context.Context, userID string, p domain.Provider) error {
	if m.delErr != nil {
		return m.delErr
	}
	delete(m.records, m.key(userID, p))
	return nil
}

type mockRegistry struct {
	puts    map[string][]byte
	removes []string
	putErr  error
	remErr  error
}

func newMockRegistry() *mockRegistry {
	return &mockRegistry{puts: make(map[string][]byte)}
}

func (m *mockRegistry) Put(_ context.Context, path string, doc []byte) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.puts[path] = doc
	return nil
}

func (m *mockRegistry) Remove(_ context.Context, path string) error {
	if m.remErr != nil {
		return m.remErr
	}
	m.removes = append(m.removes, path)
	return nil
}

// fakeClock is an adjustable clock for expiry simulation.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestService(t *testing.T) (*Service, *mockRepo, *mockRegistry, *fakeClock) {
	t.Helper()
	repo := newMockRepo()
	reg := newMockRegistry()
	clock := &fakeClock{now: time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)}
	svc := New(repo, reg, domain.DefaultPolicies(), clock, zap.NewNop())
	return svc, repo, reg, clock
}
