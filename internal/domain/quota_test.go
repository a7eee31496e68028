package domain

import "testing"

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		text string
		want int64
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"12345678", 2},
		{"ありがとう", 2}, // 5 runes, not bytes
	}
	for _, tc := range cases {
		if got := EstimateTokens(tc.text); got != tc.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}

func TestNewQuotaStatus_Flags(t *testing.T) {
	c := QuotaCounters{PeriodKey: "2026-08-29", RequestsUsed: 79, TokensUsed: 0}
	st := NewQuotaStatus(ProviderOpenAI, c, 100, 1000)
	if st.IsNearLimit || st.IsExceeded {
		t.Fatalf("79/100 should be neither near-limit nor exceeded: %+v", st)
	}

	c.RequestsUsed = 80
	st = NewQuotaStatus(ProviderOpenAI, c, 100, 1000)
	if !st.IsNearLimit {
		t.Error("80/100 requests should be near limit")
	}
	if st.IsExceeded {
		t.Error("80/100 requests should not be exceeded")
	}

	c.RequestsUsed = 100
	st = NewQuotaStatus(ProviderOpenAI, c, 100, 1000)
	if !st.IsExceeded {
		t.Error("100/100 requests should be exceeded")
	}

	c = QuotaCounters{RequestsUsed: 1, TokensUsed: 999}
	st = NewQuotaStatus(ProviderOpenAI, c, 100, 1000)
	if !st.IsNearLimit {
		t.Error("999/1000 tokens should be near limit")
	}
}

func TestIsQuotaExhaustedMessage(t *testing.T) {
	positives := []string{
		"You exceeded your current quota, please check your plan",
		"Rate limit reached for gpt-4o-mini",
		"RESOURCE_EXHAUSTED: Quota exceeded",
		`{"error":{"code":"insufficient_quota"}}`,
	}
	for _, s := range positives {
		if !IsQuotaExhaustedMessage(s) {
			t.Errorf("expected quota indicator in %q", s)
		}
	}

	negatives := []string{"", "invalid api key", "model not found"}
	for _, s := range negatives {
		if IsQuotaExhaustedMessage(s) {
			t.Errorf("unexpected quota indicator in %q", s)
		}
	}
}

func TestProviderError_QuotaExhausted(t *testing.T) {
	if !(&ProviderError{StatusCode: 429, Body: "slow down"}).QuotaExhausted() {
		t.Error("429 should report quota exhaustion")
	}
	if !(&ProviderError{StatusCode: 403, Body: "daily quota exceeded"}).QuotaExhausted() {
		t.Error("quota body should report quota exhaustion")
	}
	if (&ProviderError{StatusCode: 500, Body: "internal"}).QuotaExhausted() {
		t.Error("generic 500 should not report quota exhaustion")
	}
}
