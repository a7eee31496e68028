package sharedcred

import (
	"context"

	"github.com/kailas-cloud/tokengate/internal/domain"
)

// RemoteRegistry is the canonical store for shared credentials, distributed
// to every client. Reads are soft (resolution falls back to the cache);
// writes are canonical and their failures surface.
type RemoteRegistry interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
	Put(ctx context.Context, path string, doc []byte) error
	Remove(ctx context.Context, path string) error
}

// Cache is the local copy of the last remotely fetched record, used when the
// registry is unreachable.
type Cache interface {
	Save(ctx context.Context, rec domain.SharedCredentialRecord) error
	Get(ctx context.Context, p domain.Provider) (domain.SharedCredentialRecord, error)
	Delete(ctx context.Context, p domain.Provider) error
}

// Authorizer decides whether a principal may mutate shared credentials. The
// policy is injected so it can change without touching this core.
type Authorizer interface {
	IsAuthorized(principal domain.Principal) bool
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(principal domain.Principal) bool

// IsAuthorized implements Authorizer.
func (f AuthorizerFunc) IsAuthorized(principal domain.Principal) bool { return f(principal) }
