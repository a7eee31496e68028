package completion

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tokengate/internal/domain"
)

type mockPersonal struct {
	secrets map[string]string // userID:provider -> secret
	err     error
}

func (m *mockPersonal) Get(_ context.Context, userID string, p domain.Provider) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	secret, ok := m.secrets[userID+":"+string(p)]
	if !ok {
		return "", fmt.Errorf("credential for %s: %w", p, domain.ErrNotFound)
	}
	return secret, nil
}

type mockShared struct {
	recs map[domain.Provider]domain.SharedCredentialRecord
	err  error
}

func (m *mockShared) Resolve(_ context.Context, p domain.Provider) (domain.SharedCredentialRecord, error) {
	if m.err != nil {
		return domain.SharedCredentialRecord{}, m.err
	}
	rec, ok := m.recs[p]
	if !ok {
		return domain.SharedCredentialRecord{}, fmt.Errorf("shared credential for %s: %w", p, domain.ErrNotFound)
	}
	return rec, nil
}

type mockLedger struct {
	mu        sync.Mutex
	admission domain.Admission
	requests  int64
	tokens    int64
	remaining domain.Remaining

	checkCalls  int
	commitCalls int
}

func (m *mockLedger) CheckAndReserve(_ context.Context, _ domain.Provider, _ int64) (domain.Admission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkCalls++
	return m.admission, nil
}

func (m *mockLedger) Commit(_ context.Context, _ domain.Provider, requests, tokens int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commitCalls++
	m.requests += requests
	m.tokens += tokens
	return nil
}

func (m *mockLedger) Remaining(_ context.Context, _ domain.Provider) (domain.Remaining, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remaining, nil
}

type providerCall struct {
	provider domain.Provider
	secret   string
	prompt   string
}

type mockProvider struct {
	mu         sync.Mutex
	completion domain.Completion
	err        error
	calls      []providerCall
}

func (m *mockProvider) Complete(_ context.Context, p domain.Provider, secret, prompt string) (domain.Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, providerCall{provider: p, secret: secret, prompt: prompt})
	if m.err != nil {
		return domain.Completion{}, m.err
	}
	return m.completion, nil
}

type fixture struct {
	svc      *Service
	personal *mockPersonal
	shared   *mockShared
	ledger   *mockLedger
	provider *mockProvider
}

func newFixture() *fixture {
	personal := &mockPersonal{secrets: make(map[string]string)}
	shared := &mockShared{recs: make(map[domain.Provider]domain.SharedCredentialRecord)}
	ledger := &mockLedger{
		admission: domain.AdmissionAllowed,
		remaining: domain.Remaining{Requests: 99, Tokens: 99_999},
	}
	provider := &mockProvider{completion: domain.Completion{Text: "hello", TokensUsed: 42, TokensKnown: true}}
	svc := New(personal, shared, ledger, provider, zap.NewNop())
	return &fixture{svc: svc, personal: personal, shared: shared, ledger: ledger, provider: provider}
}
