package config

import (
	"testing"

	"github.com/kailas-cloud/tokengate/internal/domain"
)

func validConfig() Config {
	return Config{
		HTTP:     HTTPConfig{Port: 8080},
		Database: DatabaseConfig{Addrs: []string{"localhost:6379"}},
		Registry: RegistryConfig{BaseURL: "https://registry.example.com"},
	}
}

func TestApplyDefaults_CoversAllProviders(t *testing.T) {
	cfg := validConfig()
	cfg.ApplyDefaults()

	for _, p := range domain.Providers() {
		pc, ok := cfg.Providers[string(p)]
		if !ok {
			t.Fatalf("no provider config for %q after defaults", p)
		}
		if pc.Model == "" {
			t.Errorf("%s: model not defaulted", p)
		}
		if pc.DefaultExpiryDays <= 0 || pc.DailyRequestLimit <= 0 || pc.DailyTokenLimit <= 0 {
			t.Errorf("%s: policy fields not defaulted: %+v", p, pc)
		}
	}
	if cfg.Quota.Timezone != "UTC" {
		t.Errorf("timezone = %q, want UTC", cfg.Quota.Timezone)
	}
	if cfg.Storage.KeyPrefix != "tokengate:" {
		t.Errorf("key prefix = %q, want tokengate:", cfg.Storage.KeyPrefix)
	}
}

func TestApplyDefaults_KeepsOverrides(t *testing.T) {
	cfg := validConfig()
	cfg.Providers = map[string]ProviderConfig{
		"openai": {Model: "gpt-4.1", DailyRequestLimit: 7},
	}
	cfg.ApplyDefaults()

	pc := cfg.Providers["openai"]
	if pc.Model != "gpt-4.1" {
		t.Errorf("model override lost: %q", pc.Model)
	}
	if pc.DailyRequestLimit != 7 {
		t.Errorf("request limit override lost: %d", pc.DailyRequestLimit)
	}
	if pc.DailyTokenLimit <= 0 {
		t.Errorf("token limit not defaulted: %d", pc.DailyTokenLimit)
	}
}

func TestValidate_UnknownProvider(t *testing.T) {
	cfg := validConfig()
	cfg.Providers = map[string]ProviderConfig{"anthropic": {}}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown provider name")
	}
}

func TestValidate_MissingRegistry(t *testing.T) {
	cfg := validConfig()
	cfg.Registry.BaseURL = ""

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing registry.base_url")
	}
}

func TestValidate_APIKeyRequiresUserID(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.APIKeys = []APIKeyConfig{{Key: "k-123"}}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for api key without user_id")
	}
}

func TestPolicies_OverridesLimits(t *testing.T) {
	cfg := validConfig()
	cfg.Providers = map[string]ProviderConfig{
		"gemini": {DailyRequestLimit: 3, DailyTokenLimit: 1000, DefaultExpiryDays: 30},
	}
	cfg.ApplyDefaults()

	table := cfg.Policies()
	pol := table[domain.ProviderGemini]
	if pol.DailyRequestLimit != 3 || pol.DailyTokenLimit != 1000 || pol.DefaultExpiryDays != 30 {
		t.Errorf("overrides not applied: %+v", pol)
	}
	if pol.ValidateSecret == nil {
		t.Error("format validator must come from the built-in table")
	}
	if table[domain.ProviderGitHub].DailyRequestLimit != 150 {
		t.Errorf("untouched provider changed: %d", table[domain.ProviderGitHub].DailyRequestLimit)
	}
}
