package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tokengate/internal/domain"
	completionuc "github.com/kailas-cloud/tokengate/internal/usecase/completion"
	credentialuc "github.com/kailas-cloud/tokengate/internal/usecase/credential"
	healthuc "github.com/kailas-cloud/tokengate/internal/usecase/health"
	quotauc "github.com/kailas-cloud/tokengate/internal/usecase/quota"
	sharedcreduc "github.com/kailas-cloud/tokengate/internal/usecase/sharedcred"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

// fakeCredRepo is an in-memory personal credential store.
type fakeCredRepo struct {
	recs map[string]domain.CredentialRecord
}

func (f *fakeCredRepo) Save(_ context.Context, userID string, rec domain.CredentialRecord) error {
	f.recs[userID+":"+string(rec.Provider)] = rec
	return nil
}

func (f *fakeCredRepo) Get(_ context.Context, userID string, p domain.Provider) (domain.CredentialRecord, error) {
	rec, ok := f.recs[userID+":"+string(p)]
	if !ok {
		return domain.CredentialRecord{}, fmt.Errorf("credential for %s: %w", p, domain.ErrNotFound)
	}
	return rec, nil
}

func (f *fakeCredRepo) Delete(_ context.Context, userID string, p domain.Provider) error {
	delete(f.recs, userID+":"+string(p))
	return nil
}

// fakeRegistry is an in-memory path-addressed document store.
type fakeRegistry struct {
	docs map[string][]byte
}

func (f *fakeRegistry) Fetch(_ context.Context, path string) ([]byte, error) {
	doc, ok := f.docs[path]
	if !ok {
		return nil, fmt.Errorf("registry path %s: %w", path, domain.ErrNotFound)
	}
	return doc, nil
}

func (f *fakeRegistry) Put(_ context.Context, path string, doc []byte) error {
	f.docs[path] = doc
	return nil
}

func (f *fakeRegistry) Remove(_ context.Context, path string) error {
	delete(f.docs, path)
	return nil
}

// fakeSharedCache is an in-memory shared-credential cache.
type fakeSharedCache struct {
	recs map[domain.Provider]domain.SharedCredentialRecord
}

func (f *fakeSharedCache) Save(_ context.Context, rec domain.SharedCredentialRecord) error {
	f.recs[rec.Provider] = rec
	return nil
}

func (f *fakeSharedCache) Get(_ context.Context, p domain.Provider) (domain.SharedCredentialRecord, error) {
	rec, ok := f.recs[p]
	if !ok {
		return domain.SharedCredentialRecord{}, fmt.Errorf("cached shared credential for %s: %w", p, domain.ErrNotFound)
	}
	return rec, nil
}

func (f *fakeSharedCache) Delete(_ context.Context, p domain.Provider) error {
	delete(f.recs, p)
	return nil
}

type fakeQuotaStore struct{}

func (fakeQuotaStore) Load(context.Context, domain.Provider, string) (int64, int64, error) {
	return 0, 0, nil
}

func (fakeQuotaStore) Add(context.Context, domain.Provider, string, int64, int64) error {
	return nil
}

type fakeCompleter struct{}

func (fakeCompleter) Complete(context.Context, domain.Provider, string, string) (domain.Completion, error) {
	return domain.Completion{Text: "ok", TokensUsed: 10, TokensKnown: true}, nil
}

type fakePinger struct{}

func (fakePinger) Ping(context.Context) error { return nil }

// newTestRouter assembles the full service stack over in-memory fakes and a
// fixed clock, mounted on a bare router without auth.
func newTestRouter(t *testing.T, clock domain.Clock) chi.Router {
	t.Helper()
	logger := zap.NewNop()
	policies := domain.DefaultPolicies()

	credSvc := credentialuc.New(&fakeCredRepo{recs: map[string]domain.CredentialRecord{}}, &fakeRegistry{docs: map[string][]byte{}}, policies, clock, logger)
	sharedSvc := sharedcreduc.New(
		&fakeSharedCache{recs: map[domain.Provider]domain.SharedCredentialRecord{}},
		&fakeRegistry{docs: map[string][]byte{}},
		sharedcreduc.AuthorizerFunc(func(domain.Principal) bool { return true }),
		policies, clock, logger,
	)
	ledger := quotauc.NewLedger(policies, fakeQuotaStore{}, clock, time.UTC, logger)
	completionSvc := completionuc.New(credSvc, sharedSvc, ledger, fakeCompleter{}, logger)
	healthSvc := healthuc.New(fakePinger{}, nil)

	server := NewServer(credSvc, sharedSvc, ledger, completionSvc, healthSvc, logger)
	r := chi.NewRouter()
	server.Routes(r)
	return r
}

func putSharedToken(t *testing.T, r chi.Router, provider, secret string, expiresAt time.Time) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(putTokenRequest{Secret: secret, ExpiresAt: &expiresAt})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPut, "/v1/shared-tokens/"+provider, bytes.NewReader(body))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestPutSharedToken_StatusComesFromInjectedClock(t *testing.T) {
	// A clock far from wall time: any handler math falling back to the
	// system clock produces a wildly different day count.
	clock := &fakeClock{now: time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)}
	r := newTestRouter(t, clock)

	rr := putSharedToken(t, r, "openai", "sk-shared-0123456789abcdef", clock.now.AddDate(0, 0, 10))
	if rr.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, body %s", rr.Code, rr.Body.String())
	}

	var status tokenStatusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !status.HasToken || status.IsExpired {
		t.Errorf("response = %+v, want a live token", status)
	}
	if status.DaysUntilExpiry != 10 {
		t.Errorf("DaysUntilExpiry = %d, want 10", status.DaysUntilExpiry)
	}
}

func TestListExpiringSharedTokens_IncludesExpired(t *testing.T) {
	clock := &fakeClock{now: time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)}
	r := newTestRouter(t, clock)

	// openai expires inside the window, gemini is already past expiry,
	// github is comfortably out.
	for _, tc := range []struct {
		provider string
		secret   string
		expires  time.Time
	}{
		{"openai", "sk-shared-0123456789abcdef", clock.now.AddDate(0, 0, 3)},
		{"gemini", "AIzaSyA0123456789abcdef0123456789", clock.now.Add(-24 * time.Hour)},
		{"github", "ghp_0123456789abcdefghij", clock.now.AddDate(0, 0, 60)},
	} {
		if rr := putSharedToken(t, r, tc.provider, tc.secret, tc.expires); rr.Code != http.StatusOK {
			t.Fatalf("PUT %s status = %d, body %s", tc.provider, rr.Code, rr.Body.String())
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/shared-tokens/expiring?days=7", http.NoBody)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("GET status = %d, body %s", rr.Code, rr.Body.String())
	}

	var statuses []tokenStatusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &statuses); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	got := map[string]tokenStatusResponse{}
	for _, s := range statuses {
		got[s.Provider] = s
	}
	if len(got) != 2 {
		t.Fatalf("expiring providers = %v, want openai and gemini", statuses)
	}
	if s, ok := got["openai"]; !ok || s.IsExpired || s.DaysUntilExpiry != 3 {
		t.Errorf("openai status = %+v, want 3 days out", s)
	}
	if s, ok := got["gemini"]; !ok || !s.IsExpired {
		t.Errorf("gemini status = %+v, want already expired", s)
	}
}
