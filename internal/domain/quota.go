package domain

import "unicode/utf8"

// QuotaCounters is the day's usage for one shared-pool scope. PeriodKey is
// the calendar day (YYYY-MM-DD) in the ledger's time zone; a stored counter
// for a prior day is stale and gets replaced with zeros, never decremented.
type QuotaCounters struct {
	PeriodKey    string
	RequestsUsed int64
	TokensUsed   int64
}

// Admission is the outcome of a pre-call quota check.
type Admission string

// Admission outcomes.
const (
	AdmissionAllowed          Admission = "allowed"
	AdmissionRequestsExceeded Admission = "requests_exceeded"
	AdmissionTokensExceeded   Admission = "tokens_exceeded"
)

// Remaining is a post-commit snapshot of quota headroom.
type Remaining struct {
	Requests int64
	Tokens   int64
}

// NearLimitThresholdPct is the usage percentage above which a quota status
// reports IsNearLimit.
const NearLimitThresholdPct = 80

// QuotaStatus is the read-model for quota status queries.
type QuotaStatus struct {
	Scope        Provider
	PeriodKey    string
	UsedRequests int64
	UsedTokens   int64
	RequestLimit int64
	TokenLimit   int64
	IsNearLimit  bool
	IsExceeded   bool
}

// NewQuotaStatus computes the status flags from counters and limits.
func NewQuotaStatus(scope Provider, c QuotaCounters, requestLimit, tokenLimit int64) QuotaStatus {
	return QuotaStatus{
		Scope:        scope,
		PeriodKey:    c.PeriodKey,
		UsedRequests: c.RequestsUsed,
		UsedTokens:   c.TokensUsed,
		RequestLimit: requestLimit,
		TokenLimit:   tokenLimit,
		IsNearLimit: nearLimit(c.RequestsUsed, requestLimit) ||
			nearLimit(c.TokensUsed, tokenLimit),
		IsExceeded: c.RequestsUsed >= requestLimit || c.TokensUsed >= tokenLimit,
	}
}

func nearLimit(used, limit int64) bool {
	if limit <= 0 {
		return false
	}
	return used*100 >= limit*NearLimitThresholdPct
}

// EstimateTokens approximates token usage as ceil(characters/4), roughly
// four characters per token for common natural-language text. Ledger totals
// built from it are approximate, not a tokenizer.
func EstimateTokens(text string) int64 {
	n := int64(utf8.RuneCountInString(text))
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}
