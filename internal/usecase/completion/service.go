package completion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tokengate/internal/domain"
	"github.com/kailas-cloud/tokengate/internal/metrics"
)

// Near-limit thresholds for the metered result flag.
const (
	nearLimitRequests = 5
	nearLimitTokens   = 10_000
)

// Service is the per-request completion policy: personal credential first and
// unmetered, shared pool second behind the quota ledger.
type Service struct {
	personal PersonalCredentials
	shared   SharedCredentials
	ledger   QuotaLedger
	provider Provider
	logger   *zap.Logger
}

// New wires a completion orchestrator.
func New(
	personal PersonalCredentials,
	shared SharedCredentials,
	ledger QuotaLedger,
	provider Provider,
	logger *zap.Logger,
) *Service {
	return &Service{
		personal: personal,
		shared:   shared,
		ledger:   ledger,
		provider: provider,
		logger:   logger,
	}
}

// Complete resolves a credential for the request and executes it.
//
// A usable personal credential short-circuits the quota machinery entirely.
// Any personal-path failure falls through to the shared path silently; when
// the shared path then fails too, its error is what the caller sees.
func (s *Service) Complete(ctx context.Context, userID string, req domain.CompletionRequest) (domain.CompletionResult, error) {
	prompt := BuildPrompt(req)

	if result, ok := s.tryPersonal(ctx, userID, req.Provider, prompt); ok {
		return result, nil
	}
	return s.completeShared(ctx, req.Provider, prompt)
}

// tryPersonal attempts the unmetered personal path. ok=false means the
// caller should fall through to the shared pool; the reason is logged, not
// surfaced.
func (s *Service) tryPersonal(ctx context.Context, userID string, p domain.Provider, prompt string) (domain.CompletionResult, bool) {
	secret, err := s.personal.Get(ctx, userID, p)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, domain.ErrExpired) {
			s.logger.Warn("personal credential lookup failed, falling back to shared pool",
				zap.String("provider", string(p)), zap.Error(err))
		}
		return domain.CompletionResult{}, false
	}

	start := time.Now()
	completion, err := s.provider.Complete(ctx, p, secret, prompt)
	if err != nil {
		s.observe(p, domain.PathPersonal, "error", start)
		s.logger.Warn("personal completion failed, falling back to shared pool",
			zap.String("provider", string(p)), zap.Error(err))
		return domain.CompletionResult{}, false
	}
	s.observe(p, domain.PathPersonal, "success", start)

	tokens := completion.TokensUsed
	if !completion.TokensKnown {
		tokens = domain.EstimateTokens(prompt + completion.Text)
	}
	metrics.CompletionTokensTotal.WithLabelValues(string(p), string(domain.PathPersonal)).Add(float64(tokens))

	return domain.CompletionResult{
		Text:       completion.Text,
		Path:       domain.PathPersonal,
		Metered:    false,
		TokensUsed: tokens,
	}, true
}

// completeShared runs the metered shared-pool path: admission check, resolve,
// call, commit.
func (s *Service) completeShared(ctx context.Context, p domain.Provider, prompt string) (domain.CompletionResult, error) {
	estimate := domain.EstimateTokens(prompt)

	admission, err := s.ledger.CheckAndReserve(ctx, p, estimate)
	if err != nil {
		return domain.CompletionResult{}, fmt.Errorf("quota admission for %s: %w", p, err)
	}
	switch admission {
	case domain.AdmissionRequestsExceeded:
		return domain.CompletionResult{}, &domain.QuotaExceededError{Kind: domain.QuotaKindRequests}
	case domain.AdmissionTokensExceeded:
		return domain.CompletionResult{}, &domain.QuotaExceededError{Kind: domain.QuotaKindTokens}
	}

	shared, err := s.shared.Resolve(ctx, p)
	if err != nil {
		return domain.CompletionResult{}, fmt.Errorf("resolve shared credential for %s: %w: %w", p, domain.ErrNoUsableCredential, err)
	}

	start := time.Now()
	completion, err := s.provider.Complete(ctx, p, shared.Secret, prompt)
	if err != nil {
		var perr *domain.ProviderError
		if errors.As(err, &perr) && perr.QuotaExhausted() {
			// The provider itself rejected on quota: surface as quota
			// exhaustion, commit nothing.
			s.observe(p, domain.PathShared, "quota_exceeded", start)
			metrics.QuotaRejectionsTotal.WithLabelValues(string(p), string(domain.QuotaKindProviderReported)).Inc()
			return domain.CompletionResult{}, &domain.QuotaExceededError{Kind: domain.QuotaKindProviderReported}
		}
		s.observe(p, domain.PathShared, "error", start)
		return domain.CompletionResult{}, fmt.Errorf("shared completion for %s: %w", p, err)
	}
	s.observe(p, domain.PathShared, "success", start)

	tokens := completion.TokensUsed
	if !completion.TokensKnown {
		tokens = domain.EstimateTokens(prompt + completion.Text)
	}
	metrics.CompletionTokensTotal.WithLabelValues(string(p), string(domain.PathShared)).Add(float64(tokens))

	if err := s.ledger.Commit(ctx, p, 1, tokens); err != nil {
		s.logger.Warn("quota commit failed",
			zap.String("provider", string(p)), zap.Error(err))
	}

	remaining, err := s.ledger.Remaining(ctx, p)
	if err != nil {
		s.logger.Warn("quota remaining lookup failed",
			zap.String("provider", string(p)), zap.Error(err))
		remaining = domain.Remaining{}
	}

	return domain.CompletionResult{
		Text:       completion.Text,
		Path:       domain.PathShared,
		Metered:    true,
		TokensUsed: tokens,
		Remaining:  remaining,
		NearLimit:  remaining.Requests <= nearLimitRequests || remaining.Tokens <= nearLimitTokens,
	}, nil
}

func (s *Service) observe(p domain.Provider, path domain.CompletionPath, status string, start time.Time) {
	metrics.CompletionRequestsTotal.WithLabelValues(string(p), string(path), status).Inc()
	metrics.CompletionRequestDuration.WithLabelValues(string(p)).Observe(time.Since(start).Seconds())
}
