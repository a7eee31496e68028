package domain

import "strings"

// ProviderPolicy is the static per-provider configuration. Immutable after
// process start; every field resolves to a concrete value before any quota
// or expiry check.
type ProviderPolicy struct {
	DefaultExpiryDays int
	DailyRequestLimit int64
	DailyTokenLimit   int64
	// ValidateSecret is a syntactic, offline check (length and known
	// prefixes). A heuristic gate, never a network validation.
	ValidateSecret func(secret string) bool
}

// PolicyTable maps each supported provider to its policy.
type PolicyTable map[Provider]ProviderPolicy

// DefaultPolicies returns the out-of-the-box policy table. It covers exactly
// the providers returned by Providers().
func DefaultPolicies() PolicyTable {
	return PolicyTable{
		ProviderGitHub: {
			DefaultExpiryDays: 90,
			DailyRequestLimit: 150,
			DailyTokenLimit:   300_000,
			ValidateSecret:    validateGitHubSecret,
		},
		ProviderOpenAI: {
			DefaultExpiryDays: 180,
			DailyRequestLimit: 100,
			DailyTokenLimit:   200_000,
			ValidateSecret:    validateOpenAISecret,
		},
		ProviderGemini: {
			DefaultExpiryDays: 180,
			DailyRequestLimit: 250,
			DailyTokenLimit:   500_000,
			ValidateSecret:    validateGeminiSecret,
		},
	}
}

func validateGitHubSecret(s string) bool {
	if len(s) < 20 {
		return false
	}
	return strings.HasPrefix(s, "ghp_") ||
		strings.HasPrefix(s, "gho_") ||
		strings.HasPrefix(s, "github_pat_")
}

func validateOpenAISecret(s string) bool {
	return len(s) >= 20 && strings.HasPrefix(s, "sk-")
}

func validateGeminiSecret(s string) bool {
	return len(s) >= 30 && strings.HasPrefix(s, "AIza")
}
