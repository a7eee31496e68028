package domain

import "fmt"

// Provider identifies an external AI completion service.
type Provider string

// Supported providers. The default policy table covers exactly these.
const (
	ProviderGitHub Provider = "github"
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
)

// Providers returns the canonical ordered list of supported providers.
func Providers() []Provider {
	return []Provider{ProviderGitHub, ProviderOpenAI, ProviderGemini}
}

// ParseProvider validates a provider key.
func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case ProviderGitHub, ProviderOpenAI, ProviderGemini:
		return Provider(s), nil
	}
	return "", fmt.Errorf("unknown provider %q", s)
}

func (p Provider) String() string { return string(p) }
