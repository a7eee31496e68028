package sharedcred

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tokengate/internal/domain"
	"github.com/kailas-cloud/tokengate/internal/registry"
	sharedrepo "github.com/kailas-cloud/tokengate/internal/repository/sharedcred"
)

// sharedPathPrefix is the registry namespace holding the canonical shared
// credential documents, one per provider.
const sharedPathPrefix = "system/shared_ai_tokens/"

// Service manages the pool-wide shared credentials. The remote registry is
// canonical; the local cache only covers reads while the registry is down.
type Service struct {
	cache      Cache
	registry   RemoteRegistry
	authorizer Authorizer
	policies   domain.PolicyTable
	clock      domain.Clock
	logger     *zap.Logger
}

// New wires a shared-credential service.
func New(
	cache Cache,
	reg RemoteRegistry,
	authorizer Authorizer,
	policies domain.PolicyTable,
	clock domain.Clock,
	logger *zap.Logger,
) *Service {
	return &Service{
		cache:      cache,
		registry:   reg,
		authorizer: authorizer,
		policies:   policies,
		clock:      clock,
		logger:     logger,
	}
}

func sharedPath(p domain.Provider) string {
	return sharedPathPrefix + string(p)
}

// Resolve returns the usable shared credential for a provider. The remote
// registry is consulted first; on transport failure the locally cached copy
// is used instead. A record that is present but inactive or expired resolves
// to ErrExpired, a missing one to ErrNotFound.
func (s *Service) Resolve(ctx context.Context, p domain.Provider) (domain.SharedCredentialRecord, error) {
	rec, err := s.fetchRemote(ctx, p)
	switch {
	case err == nil:
		if cerr := s.cache.Save(ctx, rec); cerr != nil {
			s.logger.Warn("cache shared credential",
				zap.String("provider", string(p)), zap.Error(cerr))
		}
	case errors.Is(err, domain.ErrNotFound):
		return domain.SharedCredentialRecord{}, err
	default:
		s.logger.Warn("registry fetch failed, using cached shared credential",
			zap.String("provider", string(p)), zap.Error(err))
		rec, err = s.cache.Get(ctx, p)
		if err != nil {
			return domain.SharedCredentialRecord{}, err
		}
	}

	if !rec.Usable(s.clock.Now()) {
		return domain.SharedCredentialRecord{}, fmt.Errorf("shared credential for %s: %w", p, domain.ErrExpired)
	}
	return rec, nil
}

// Update replaces the shared credential for a provider. Only authorized
// principals may call it; the write goes to the canonical registry and its
// failure aborts the update with no state changed.
func (s *Service) Update(ctx context.Context, principal domain.Principal, p domain.Provider, secret string, expiresAt time.Time) (domain.SharedCredentialRecord, error) {
	if !s.authorizer.IsAuthorized(principal) {
		return domain.SharedCredentialRecord{}, fmt.Errorf("update shared credential for %s: %w", p, domain.ErrUnauthorized)
	}

	policy, ok := s.policies[p]
	if !ok {
		return domain.SharedCredentialRecord{}, fmt.Errorf("provider %s: %w", p, domain.ErrNotFound)
	}

	now := s.clock.Now()
	if expiresAt.IsZero() {
		expiresAt = now.AddDate(0, 0, policy.DefaultExpiryDays)
	}

	rec := domain.SharedCredentialRecord{
		Provider:  p,
		Secret:    secret,
		UpdatedAt: now,
		UpdatedBy: principal.ID,
		ExpiresAt: expiresAt,
		Active:    true,
	}

	doc, err := sharedrepo.Marshal(rec)
	if err != nil {
		return domain.SharedCredentialRecord{}, fmt.Errorf("marshal shared credential: %w", err)
	}
	if err := s.registry.Put(ctx, sharedPath(p), doc); err != nil {
		return domain.SharedCredentialRecord{}, fmt.Errorf("put shared credential for %s: %w: %w", p, domain.ErrStorage, err)
	}

	if err := s.cache.Save(ctx, rec); err != nil {
		s.logger.Warn("refresh shared credential cache",
			zap.String("provider", string(p)), zap.Error(err))
	}

	s.logger.Info("shared credential updated",
		zap.String("provider", string(p)),
		zap.String("updated_by", principal.ID),
		zap.Time("expires_at", expiresAt))
	return rec, nil
}

// Delete removes the shared credential for a provider. The canonical remote
// removal must succeed; the cache is cleared best-effort afterwards.
func (s *Service) Delete(ctx context.Context, principal domain.Principal, p domain.Provider) error {
	if !s.authorizer.IsAuthorized(principal) {
		return fmt.Errorf("delete shared credential for %s: %w", p, domain.ErrUnauthorized)
	}

	if err := s.registry.Remove(ctx, sharedPath(p)); err != nil {
		return fmt.Errorf("remove shared credential for %s: %w: %w", p, domain.ErrStorage, err)
	}

	if err := s.cache.Delete(ctx, p); err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.logger.Warn("clear shared credential cache",
			zap.String("provider", string(p)), zap.Error(err))
	}

	s.logger.Info("shared credential deleted",
		zap.String("provider", string(p)),
		zap.String("deleted_by", principal.ID))
	return nil
}

// Status reports the shared credential state for one provider. A record that
// exists but is unusable (inactive or expired) shows HasToken with IsExpired
// set, so operators can tell "needs rotation" from "never configured".
func (s *Service) Status(ctx context.Context, p domain.Provider) (domain.CredentialStatus, error) {
	rec, err := s.lookup(ctx, p)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.CredentialStatus{Provider: p}, nil
	}
	if err != nil {
		return domain.CredentialStatus{}, err
	}

	status := domain.NewCredentialStatus(p, rec.UpdatedAt, rec.ExpiresAt, s.clock.Now())
	if !rec.Active {
		status.IsExpired = true
		status.DaysUntilExpiry = 0
	}
	return status, nil
}

// AllStatuses reports the shared credential state for every known provider.
func (s *Service) AllStatuses(ctx context.Context) ([]domain.CredentialStatus, error) {
	providers := domain.Providers()
	statuses := make([]domain.CredentialStatus, 0, len(providers))
	for _, p := range providers {
		status, err := s.Status(ctx, p)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// ExpiringSoon lists shared credentials that expire within the given number
// of days, including ones already past expiry or deactivated.
func (s *Service) ExpiringSoon(ctx context.Context, withinDays int) ([]domain.CredentialStatus, error) {
	statuses, err := s.AllStatuses(ctx)
	if err != nil {
		return nil, err
	}

	expiring := make([]domain.CredentialStatus, 0, len(statuses))
	for _, status := range statuses {
		if !status.HasToken {
			continue
		}
		if status.IsExpired || status.DaysUntilExpiry <= withinDays {
			expiring = append(expiring, status)
		}
	}
	return expiring, nil
}

// lookup fetches the record without usability checks, remote first with
// cache fallback.
func (s *Service) lookup(ctx context.Context, p domain.Provider) (domain.SharedCredentialRecord, error) {
	rec, err := s.fetchRemote(ctx, p)
	if err == nil || errors.Is(err, domain.ErrNotFound) {
		return rec, err
	}

	s.logger.Warn("registry fetch failed, using cached shared credential",
		zap.String("provider", string(p)), zap.Error(err))
	return s.cache.Get(ctx, p)
}

func (s *Service) fetchRemote(ctx context.Context, p domain.Provider) (domain.SharedCredentialRecord, error) {
	doc, err := s.registry.Fetch(ctx, sharedPath(p))
	if errors.Is(err, registry.ErrNotFound) {
		return domain.SharedCredentialRecord{}, fmt.Errorf("shared credential for %s: %w", p, domain.ErrNotFound)
	}
	if err != nil {
		return domain.SharedCredentialRecord{}, err
	}

	rec, err := sharedrepo.Unmarshal(doc)
	if err != nil {
		return domain.SharedCredentialRecord{}, fmt.Errorf("decode shared credential for %s: %w", p, err)
	}
	return rec, nil
}
