package completion

import (
	"context"

	"github.com/kailas-cloud/tokengate/internal/domain"
)

// PersonalCredentials resolves a user's own credential secret for a provider.
type PersonalCredentials interface {
	Get(ctx context.Context, userID string, p domain.Provider) (string, error)
}

// SharedCredentials resolves the pool-wide credential for a provider.
type SharedCredentials interface {
	Resolve(ctx context.Context, p domain.Provider) (domain.SharedCredentialRecord, error)
}

// QuotaLedger meters shared-credential usage.
type QuotaLedger interface {
	CheckAndReserve(ctx context.Context, scope domain.Provider, estimatedTokens int64) (domain.Admission, error)
	Commit(ctx context.Context, scope domain.Provider, requests, tokens int64) error
	Remaining(ctx context.Context, scope domain.Provider) (domain.Remaining, error)
}

// Provider executes one completion call with an explicit secret.
type Provider interface {
	Complete(ctx context.Context, p domain.Provider, secret, prompt string) (domain.Completion, error)
}
