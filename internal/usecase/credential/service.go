package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tokengate/internal/domain"
)

// DefaultExpiringSoonDays is the threshold used when callers pass no value.
const DefaultExpiringSoonDays = 7

// Service owns per-user personal credential records: the local store is the
// source of truth, the remote registry receives a sanitized backup
// projection on a best-effort basis.
type Service struct {
	repo     Repository
	registry RemoteRegistry
	policies domain.PolicyTable
	clock    domain.Clock
	logger   *zap.Logger
}

// New creates a credential service.
func New(repo Repository, registry RemoteRegistry, policies domain.PolicyTable, clock domain.Clock, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		registry: registry,
		policies: policies,
		clock:    clock,
		logger:   logger,
	}
}

// Save creates or overwrites the credential for (userID, provider). When
// expiresAt is nil the provider policy's default expiry applies, so a stored
// record always carries a concrete expiry. The remote backup write is
// non-fatal: a local save alone is success.
func (s *Service) Save(ctx context.Context, userID string, p domain.Provider, secret string, expiresAt *time.Time) error {
	now := s.clock.Now()

	rec := domain.CredentialRecord{
		Provider:  p,
		Secret:    secret,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if expiresAt != nil {
		rec.ExpiresAt = *expiresAt
	} else {
		rec.ExpiresAt = now.AddDate(0, 0, s.policies[p].DefaultExpiryDays)
	}

	// Overwrites preserve the original creation time.
	if prev, err := s.repo.Get(ctx, userID, p); err == nil {
		rec.CreatedAt = prev.CreatedAt
	}

	if err := s.repo.Save(ctx, userID, rec); err != nil {
		return err
	}

	if err := s.registry.Put(ctx, backupPath(userID, p), sanitizedProjection(rec)); err != nil {
		s.logger.Warn("credential backup write failed, local save stands",
			zap.String("user_id", userID),
			zap.String("provider", string(p)),
			zap.Error(err),
		)
	}
	return nil
}

// Get returns the secret for (userID, provider). Expired records are never
// returned: they read as domain.ErrExpired while the record itself is
// retained for status queries.
func (s *Service) Get(ctx context.Context, userID string, p domain.Provider) (string, error) {
	rec, err := s.repo.Get(ctx, userID, p)
	if err != nil {
		return "", err
	}
	if rec.Expired(s.clock.Now()) {
		return "", domain.ErrExpired
	}
	return rec.Secret, nil
}

// Delete removes the credential locally and attempts the remote removal.
// Idempotent: deleting a missing credential succeeds.
func (s *Service) Delete(ctx context.Context, userID string, p domain.Provider) error {
	if err := s.repo.Delete(ctx, userID, p); err != nil {
		return err
	}
	if err := s.registry.Remove(ctx, backupPath(userID, p)); err != nil {
		s.logger.Warn("credential backup removal failed",
			zap.String("user_id", userID),
			zap.String("provider", string(p)),
			zap.Error(err),
		)
	}
	return nil
}

// Status reports the credential state for one provider. A missing record is
// a zero status with HasToken=false, not an error.
func (s *Service) Status(ctx context.Context, userID string, p domain.Provider) (domain.CredentialStatus, error) {
	rec, err := s.repo.Get(ctx, userID, p)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.CredentialStatus{Provider: p}, nil
		}
		return domain.CredentialStatus{}, err
	}
	return domain.NewCredentialStatus(p, rec.UpdatedAt, rec.ExpiresAt, s.clock.Now()), nil
}

// AllStatuses reports the credential state for every known provider.
func (s *Service) AllStatuses(ctx context.Context, userID string) ([]domain.CredentialStatus, error) {
	statuses := make([]domain.CredentialStatus, 0, len(domain.Providers()))
	for _, p := range domain.Providers() {
		st, err := s.Status(ctx, userID, p)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

// ValidateFormat is a syntactic, offline plausibility check from the policy
// table. It never calls the provider.
func (s *Service) ValidateFormat(p domain.Provider, secret string) bool {
	pol, ok := s.policies[p]
	if !ok || pol.ValidateSecret == nil {
		return false
	}
	return pol.ValidateSecret(secret)
}

// ExpiringSoon lists non-expired tokens within thresholdDays of expiry.
// thresholdDays <= 0 falls back to DefaultExpiringSoonDays.
func (s *Service) ExpiringSoon(ctx context.Context, userID string, thresholdDays int) ([]domain.CredentialStatus, error) {
	if thresholdDays <= 0 {
		thresholdDays = DefaultExpiringSoonDays
	}
	all, err := s.AllStatuses(ctx, userID)
	if err != nil {
		return nil, err
	}
	var soon []domain.CredentialStatus
	for _, st := range all {
		if st.HasToken && !st.IsExpired && st.DaysUntilExpiry <= thresholdDays {
			soon = append(soon, st)
		}
	}
	return soon, nil
}

// backupProjection is the sanitized document mirrored to the remote
// registry. It carries a redacted hint, never the full secret.
type backupProjection struct {
	Provider   string `json:"provider"`
	HasToken   bool   `json:"has_token"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
	ExpiresAt  string `json:"expires_at"`
	SecretHint string `json:"secret_hint"`
}

func sanitizedProjection(rec domain.CredentialRecord) []byte {
	doc, err := json.Marshal(backupProjection{
		Provider:   string(rec.Provider),
		HasToken:   true,
		CreatedAt:  rec.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:  rec.UpdatedAt.UTC().Format(time.RFC3339),
		ExpiresAt:  rec.ExpiresAt.UTC().Format(time.RFC3339),
		SecretHint: redactSecret(rec.Secret),
	})
	if err != nil {
		// Statically marshalable struct; unreachable.
		return []byte("{}")
	}
	return doc
}

// redactSecret keeps only the first and last four characters.
func redactSecret(secret string) string {
	if len(secret) < 12 {
		return "****"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}

func backupPath(userID string, p domain.Provider) string {
	return fmt.Sprintf("system/ai_tokens/%s/%s", userID, p)
}
