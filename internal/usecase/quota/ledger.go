package quota

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tokengate/internal/domain"
	"github.com/kailas-cloud/tokengate/internal/metrics"
)

// Store persists day-scoped usage counters. Missing days load as zero.
type Store interface {
	Load(ctx context.Context, scope domain.Provider, day string) (requests, tokens int64, err error)
	Add(ctx context.Context, scope domain.Provider, day string, requests, tokens int64) error
}

// persistTimeout bounds the write-behind flush that follows a commit.
const persistTimeout = 2 * time.Second

// Ledger tracks per-provider daily usage against the shared-pool limits.
//
// Admission is a soft limit: CheckAndReserve compares the counters as they
// stand and does not reserve the estimate, so concurrent requests admitted
// under the same headroom may together overshoot the day's limit by their
// in-flight usage. The pool absorbs that overshoot; the alternative of
// reserving estimates would reject work on guesses.
type Ledger struct {
	policies domain.PolicyTable
	store    Store
	clock    domain.Clock
	loc      *time.Location
	logger   *zap.Logger

	scopes map[domain.Provider]*scopeState
}

// scopeState serializes rollover and counter mutation for one provider
// scope. The day check and the mutation happen under one lock, so a request
// landing on a new calendar day can never mix old and new counters.
type scopeState struct {
	mu       sync.Mutex
	loaded   bool
	counters domain.QuotaCounters
}

// NewLedger creates a quota ledger for every provider in the policy table.
// loc determines when the day rolls over; nil means UTC.
func NewLedger(policies domain.PolicyTable, store Store, clock domain.Clock, loc *time.Location, logger *zap.Logger) *Ledger {
	if loc == nil {
		loc = time.UTC
	}
	scopes := make(map[domain.Provider]*scopeState, len(policies))
	for p := range policies {
		scopes[p] = &scopeState{}
	}
	return &Ledger{
		policies: policies,
		store:    store,
		clock:    clock,
		loc:      loc,
		logger:   logger,
		scopes:   scopes,
	}
}

func (l *Ledger) periodKey() string {
	return l.clock.Now().In(l.loc).Format("2006-01-02")
}

// state returns the scope holder, locked. The caller must unlock it.
func (l *Ledger) state(ctx context.Context, scope domain.Provider) (*scopeState, error) {
	st, ok := l.scopes[scope]
	if !ok {
		return nil, fmt.Errorf("quota scope %s: %w", scope, domain.ErrNotFound)
	}
	st.mu.Lock()

	day := l.periodKey()
	if !st.loaded {
		requests, tokens, err := l.store.Load(ctx, scope, day)
		if err != nil {
			l.logger.Warn("quota counters load failed, starting from zero",
				zap.String("scope", string(scope)), zap.Error(err))
			requests, tokens = 0, 0
		}
		st.counters = domain.QuotaCounters{PeriodKey: day, RequestsUsed: requests, TokensUsed: tokens}
		st.loaded = true
	} else if st.counters.PeriodKey != day {
		// New calendar day: replace, never decrement. Stale persisted keys
		// age out on their own TTL.
		st.counters = domain.QuotaCounters{PeriodKey: day}
	}
	return st, nil
}

// CheckAndReserve admits or rejects a request against the scope's current
// counters. estimatedTokens informs logging only; admission compares used
// counters against the limits, so a request that fits today's remaining
// headroom is admitted even if its own usage will push past the limit.
func (l *Ledger) CheckAndReserve(ctx context.Context, scope domain.Provider, estimatedTokens int64) (domain.Admission, error) {
	policy, ok := l.policies[scope]
	if !ok {
		return "", fmt.Errorf("quota scope %s: %w", scope, domain.ErrNotFound)
	}

	st, err := l.state(ctx, scope)
	if err != nil {
		return "", err
	}
	defer st.mu.Unlock()

	c := st.counters
	if c.RequestsUsed >= policy.DailyRequestLimit {
		metrics.QuotaRejectionsTotal.WithLabelValues(string(scope), string(domain.QuotaKindRequests)).Inc()
		return domain.AdmissionRequestsExceeded, nil
	}
	if c.TokensUsed >= policy.DailyTokenLimit {
		metrics.QuotaRejectionsTotal.WithLabelValues(string(scope), string(domain.QuotaKindTokens)).Inc()
		return domain.AdmissionTokensExceeded, nil
	}

	l.logger.Debug("quota admission",
		zap.String("scope", string(scope)),
		zap.String("day", c.PeriodKey),
		zap.Int64("requests_used", c.RequestsUsed),
		zap.Int64("tokens_used", c.TokensUsed),
		zap.Int64("estimated_tokens", estimatedTokens))
	return domain.AdmissionAllowed, nil
}

// Commit records completed usage in the in-memory counters and flushes the
// delta to the store in the background. Commits are never rejected: usage
// that already happened must be counted even past the limit.
func (l *Ledger) Commit(ctx context.Context, scope domain.Provider, requests, tokens int64) error {
	policy, ok := l.policies[scope]
	if !ok {
		return fmt.Errorf("quota scope %s: %w", scope, domain.ErrNotFound)
	}

	st, err := l.state(ctx, scope)
	if err != nil {
		return err
	}
	st.counters.RequestsUsed += requests
	st.counters.TokensUsed += tokens
	c := st.counters
	st.mu.Unlock()

	l.updateGauges(scope, policy, c)

	// Write-behind: uses a background context so a flush outlives the
	// caller's request, and a failed flush only costs durability, not the
	// commit itself.
	flushCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := l.store.Add(flushCtx, scope, c.PeriodKey, requests, tokens); err != nil {
		l.logger.Warn("quota counters flush failed",
			zap.String("scope", string(scope)),
			zap.String("day", c.PeriodKey),
			zap.Error(err))
	}
	return nil
}

// CurrentUsage returns the scope's counters for the current day, rolling
// them over first when the stored period key is stale.
func (l *Ledger) CurrentUsage(ctx context.Context, scope domain.Provider) (domain.QuotaCounters, error) {
	st, err := l.state(ctx, scope)
	if err != nil {
		return domain.QuotaCounters{}, err
	}
	c := st.counters
	st.mu.Unlock()
	return c, nil
}

// Remaining returns the scope's current headroom, floored at zero.
func (l *Ledger) Remaining(ctx context.Context, scope domain.Provider) (domain.Remaining, error) {
	policy, ok := l.policies[scope]
	if !ok {
		return domain.Remaining{}, fmt.Errorf("quota scope %s: %w", scope, domain.ErrNotFound)
	}

	st, err := l.state(ctx, scope)
	if err != nil {
		return domain.Remaining{}, err
	}
	c := st.counters
	st.mu.Unlock()

	return domain.Remaining{
		Requests: floorZero(policy.DailyRequestLimit - c.RequestsUsed),
		Tokens:   floorZero(policy.DailyTokenLimit - c.TokensUsed),
	}, nil
}

// Status returns the scope's usage read-model for the current day.
func (l *Ledger) Status(ctx context.Context, scope domain.Provider) (domain.QuotaStatus, error) {
	policy, ok := l.policies[scope]
	if !ok {
		return domain.QuotaStatus{}, fmt.Errorf("quota scope %s: %w", scope, domain.ErrNotFound)
	}

	st, err := l.state(ctx, scope)
	if err != nil {
		return domain.QuotaStatus{}, err
	}
	c := st.counters
	st.mu.Unlock()

	return domain.NewQuotaStatus(scope, c, policy.DailyRequestLimit, policy.DailyTokenLimit), nil
}

func (l *Ledger) updateGauges(scope domain.Provider, policy domain.ProviderPolicy, c domain.QuotaCounters) {
	metrics.QuotaRequestsRemaining.WithLabelValues(string(scope)).
		Set(float64(floorZero(policy.DailyRequestLimit - c.RequestsUsed)))
	metrics.QuotaTokensRemaining.WithLabelValues(string(scope)).
		Set(float64(floorZero(policy.DailyTokenLimit - c.TokensUsed)))
}

func floorZero(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
