package credential

import (
	"context"

	"github.com/kailas-cloud/tokengate/internal/domain"
)

// Repository defines the local persistence contract for personal credentials.
type Repository interface {
	Save(ctx context.Context, userID string, rec domain.CredentialRecord) error
	Get(ctx context.Context, userID string, p domain.Provider) (domain.CredentialRecord, error)
	Delete(ctx context.Context, userID string, p domain.Provider) error
}

// RemoteRegistry mirrors sanitized credential metadata for backup and audit.
// Failures are soft: the service logs and continues.
type RemoteRegistry interface {
	Put(ctx context.Context, path string, doc []byte) error
	Remove(ctx context.Context, path string) error
}
