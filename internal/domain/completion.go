package domain

// Turn is one prior exchange in a conversation history.
type Turn struct {
	Role    string
	Content string
}

// CompletionRequest is a single completion call as seen by the orchestrator.
type CompletionRequest struct {
	Provider     Provider
	Message      string
	SystemPrompt string
	History      []Turn
}

// Completion is the provider's answer to one prompt. TokensKnown is false
// when the provider does not report usage; callers fall back to the
// EstimateTokens heuristic.
type Completion struct {
	Text        string
	TokensUsed  int64
	TokensKnown bool
}

// CompletionPath records which credential tier served a request.
type CompletionPath string

// Credential tiers.
const (
	PathPersonal CompletionPath = "personal"
	PathShared   CompletionPath = "shared"
)

// CompletionResult is the orchestrator's terminal success outcome. Remaining
// and NearLimit are only meaningful on the metered (shared) path.
type CompletionResult struct {
	Text       string
	Path       CompletionPath
	Metered    bool
	TokensUsed int64
	Remaining  Remaining
	NearLimit  bool
}
