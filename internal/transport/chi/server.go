package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tokengate/internal/domain"
	completionuc "github.com/kailas-cloud/tokengate/internal/usecase/completion"
	credentialuc "github.com/kailas-cloud/tokengate/internal/usecase/credential"
	healthuc "github.com/kailas-cloud/tokengate/internal/usecase/health"
	quotauc "github.com/kailas-cloud/tokengate/internal/usecase/quota"
	sharedcreduc "github.com/kailas-cloud/tokengate/internal/usecase/sharedcred"
)

// Error response codes.
const (
	CodeBadRequest         = "bad_request"
	CodeValidationFailed   = "validation_failed"
	CodeUnauthorized       = "unauthorized"
	CodeForbidden          = "forbidden"
	CodeNotFound           = "not_found"
	CodeTokenExpired       = "token_expired"
	CodeQuotaExceeded      = "quota_exceeded"
	CodeNoUsableCredential = "no_usable_credential"
	CodeProviderError      = "provider_error"
	CodeInternalError      = "internal_error"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the credential and completion services over HTTP.
type Server struct {
	credentials   *credentialuc.Service
	shared        *sharedcreduc.Service
	quota         *quotauc.Ledger
	completions   *completionuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	credentials *credentialuc.Service,
	shared *sharedcreduc.Service,
	quota *quotauc.Ledger,
	completions *completionuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		credentials: credentials,
		shared:      shared,
		quota:       quota,
		completions: completions,
		health:      health,
		logger:      logger,
	}
	s.errorHandlers = []errorHandler{
		quotaExceededHandler,
		sentinelHandler(domain.ErrUnauthorized, http.StatusForbidden, CodeForbidden),
		sentinelHandler(domain.ErrExpired, http.StatusNotFound, CodeTokenExpired),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrNoUsableCredential, http.StatusServiceUnavailable, CodeNoUsableCredential),
		sentinelHandler(domain.ErrProvider, http.StatusBadGateway, CodeProviderError),
		sentinelHandler(domain.ErrStorage, http.StatusInternalServerError, CodeInternalError),
	}
	return s
}

// Routes registers all API routes on the router.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/completions", s.CreateCompletion)

		r.Route("/tokens", func(r chi.Router) {
			r.Get("/", s.ListTokens)
			r.Get("/expiring", s.ListExpiringTokens)
			r.Get("/{provider}", s.GetToken)
			r.Put("/{provider}", s.PutToken)
			r.Delete("/{provider}", s.DeleteToken)
		})

		r.Route("/shared-tokens", func(r chi.Router) {
			r.Get("/", s.ListSharedTokens)
			r.Get("/expiring", s.ListExpiringSharedTokens)
			r.Get("/{provider}", s.GetSharedToken)
			r.Put("/{provider}", s.PutSharedToken)
			r.Delete("/{provider}", s.DeleteSharedToken)
		})

		r.Get("/quota/{provider}", s.GetQuota)
	})
}

// --- DTOs ---

type completionRequest struct {
	Provider     string `json:"provider"`
	Message      string `json:"message"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	History      []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"history,omitempty"`
}

type remainingQuota struct {
	Requests int64 `json:"requests"`
	Tokens   int64 `json:"tokens"`
}

type completionResponse struct {
	Text       string          `json:"text"`
	Path       string          `json:"path"`
	Metered    bool            `json:"metered"`
	TokensUsed int64           `json:"tokens_used"`
	Remaining  *remainingQuota `json:"remaining,omitempty"`
	NearLimit  bool            `json:"near_limit"`
}

type putTokenRequest struct {
	Secret    string     `json:"secret"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type tokenStatusResponse struct {
	Provider        string     `json:"provider"`
	HasToken        bool       `json:"has_token"`
	IsExpired       bool       `json:"is_expired"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	DaysUntilExpiry int        `json:"days_until_expiry"`
	LastUpdated     *time.Time `json:"last_updated,omitempty"`
}

type quotaStatusResponse struct {
	Provider     string `json:"provider"`
	Day          string `json:"day"`
	UsedRequests int64  `json:"used_requests"`
	UsedTokens   int64  `json:"used_tokens"`
	RequestLimit int64  `json:"request_limit"`
	TokenLimit   int64  `json:"token_limit"`
	NearLimit    bool   `json:"near_limit"`
	Exceeded     bool   `json:"exceeded"`
}

// --- Completions ---

// CreateCompletion handles POST /v1/completions.
func (s *Server) CreateCompletion(w http.ResponseWriter, r *http.Request) {
	var req completionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	provider, err := domain.ParseProvider(req.Provider)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "message is required")
		return
	}

	history := make([]domain.Turn, len(req.History))
	for i, turn := range req.History {
		history[i] = domain.Turn{Role: turn.Role, Content: turn.Content}
	}

	principal := PrincipalFromContext(r.Context())
	result, err := s.completions.Complete(r.Context(), principal.ID, domain.CompletionRequest{
		Provider:     provider,
		Message:      req.Message,
		SystemPrompt: req.SystemPrompt,
		History:      history,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp := completionResponse{
		Text:       result.Text,
		Path:       string(result.Path),
		Metered:    result.Metered,
		TokensUsed: result.TokensUsed,
		NearLimit:  result.NearLimit,
	}
	if result.Metered {
		resp.Remaining = &remainingQuota{
			Requests: result.Remaining.Requests,
			Tokens:   result.Remaining.Tokens,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Personal tokens ---

// ListTokens handles GET /v1/tokens.
func (s *Server) ListTokens(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())
	statuses, err := s.credentials.AllStatuses(r.Context(), principal.ID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusesToResponse(statuses))
}

// expiringDaysParam parses the optional ?days= query, defaulting to the
// credential service's threshold.
func expiringDaysParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	days := credentialuc.DefaultExpiringSoonDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, CodeValidationFailed, "days must be a positive integer")
			return 0, false
		}
		days = n
	}
	return days, true
}

// ListExpiringTokens handles GET /v1/tokens/expiring.
func (s *Server) ListExpiringTokens(w http.ResponseWriter, r *http.Request) {
	days, ok := expiringDaysParam(w, r)
	if !ok {
		return
	}
	principal := PrincipalFromContext(r.Context())

	statuses, err := s.credentials.ExpiringSoon(r.Context(), principal.ID, days)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusesToResponse(statuses))
}

// GetToken handles GET /v1/tokens/{provider}.
func (s *Server) GetToken(w http.ResponseWriter, r *http.Request) {
	provider, ok := providerParam(w, r)
	if !ok {
		return
	}

	principal := PrincipalFromContext(r.Context())
	status, err := s.credentials.Status(r.Context(), principal.ID, provider)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusToResponse(status))
}

// PutToken handles PUT /v1/tokens/{provider}.
func (s *Server) PutToken(w http.ResponseWriter, r *http.Request) {
	provider, ok := providerParam(w, r)
	if !ok {
		return
	}

	var req putTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if !s.credentials.ValidateFormat(provider, req.Secret) {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "secret does not match the provider's token format")
		return
	}

	principal := PrincipalFromContext(r.Context())
	if err := s.credentials.Save(r.Context(), principal.ID, provider, req.Secret, req.ExpiresAt); err != nil {
		s.handleDomainError(w, err)
		return
	}

	status, err := s.credentials.Status(r.Context(), principal.ID, provider)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusToResponse(status))
}

// DeleteToken handles DELETE /v1/tokens/{provider}.
func (s *Server) DeleteToken(w http.ResponseWriter, r *http.Request) {
	provider, ok := providerParam(w, r)
	if !ok {
		return
	}

	principal := PrincipalFromContext(r.Context())
	if err := s.credentials.Delete(r.Context(), principal.ID, provider); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Shared tokens ---

// ListSharedTokens handles GET /v1/shared-tokens.
func (s *Server) ListSharedTokens(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.shared.AllStatuses(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusesToResponse(statuses))
}

// ListExpiringSharedTokens handles GET /v1/shared-tokens/expiring. Unlike
// the personal variant this includes already-expired and deactivated
// records: an admin replacing pool credentials needs to see them.
func (s *Server) ListExpiringSharedTokens(w http.ResponseWriter, r *http.Request) {
	days, ok := expiringDaysParam(w, r)
	if !ok {
		return
	}

	statuses, err := s.shared.ExpiringSoon(r.Context(), days)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusesToResponse(statuses))
}

// GetSharedToken handles GET /v1/shared-tokens/{provider}.
func (s *Server) GetSharedToken(w http.ResponseWriter, r *http.Request) {
	provider, ok := providerParam(w, r)
	if !ok {
		return
	}

	status, err := s.shared.Status(r.Context(), provider)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusToResponse(status))
}

// PutSharedToken handles PUT /v1/shared-tokens/{provider}.
func (s *Server) PutSharedToken(w http.ResponseWriter, r *http.Request) {
	provider, ok := providerParam(w, r)
	if !ok {
		return
	}

	var req putTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Secret == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "secret is required")
		return
	}

	var expiresAt time.Time
	if req.ExpiresAt != nil {
		expiresAt = *req.ExpiresAt
	}

	principal := PrincipalFromContext(r.Context())
	if _, err := s.shared.Update(r.Context(), principal, provider, req.Secret, expiresAt); err != nil {
		s.handleDomainError(w, err)
		return
	}

	status, err := s.shared.Status(r.Context(), provider)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusToResponse(status))
}

// DeleteSharedToken handles DELETE /v1/shared-tokens/{provider}.
func (s *Server) DeleteSharedToken(w http.ResponseWriter, r *http.Request) {
	provider, ok := providerParam(w, r)
	if !ok {
		return
	}

	principal := PrincipalFromContext(r.Context())
	if err := s.shared.Delete(r.Context(), principal, provider); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Quota ---

// GetQuota handles GET /v1/quota/{provider}.
func (s *Server) GetQuota(w http.ResponseWriter, r *http.Request) {
	provider, ok := providerParam(w, r)
	if !ok {
		return
	}

	status, err := s.quota.Status(r.Context(), provider)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, quotaStatusResponse{
		Provider:     string(status.Scope),
		Day:          status.PeriodKey,
		UsedRequests: status.UsedRequests,
		UsedTokens:   status.UsedTokens,
		RequestLimit: status.RequestLimit,
		TokenLimit:   status.TokenLimit,
		NearLimit:    status.IsNearLimit,
		Exceeded:     status.IsExceeded,
	})
}

// --- Health & metrics ---

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// --- Helpers ---

func providerParam(w http.ResponseWriter, r *http.Request) (domain.Provider, bool) {
	provider, err := domain.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return "", false
	}
	return provider, true
}

func statusToResponse(status domain.CredentialStatus) tokenStatusResponse {
	resp := tokenStatusResponse{
		Provider:        string(status.Provider),
		HasToken:        status.HasToken,
		IsExpired:       status.IsExpired,
		DaysUntilExpiry: status.DaysUntilExpiry,
	}
	if !status.ExpiresAt.IsZero() {
		resp.ExpiresAt = &status.ExpiresAt
	}
	if !status.LastUpdated.IsZero() {
		resp.LastUpdated = &status.LastUpdated
	}
	return resp
}

func statusesToResponse(statuses []domain.CredentialStatus) []tokenStatusResponse {
	items := make([]tokenStatusResponse, len(statuses))
	for i, status := range statuses {
		items[i] = statusToResponse(status)
	}
	return items
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrQuotaExceeded,
		domain.ErrUnauthorized,
		domain.ErrExpired,
		domain.ErrNotFound,
		domain.ErrNoUsableCredential,
		domain.ErrProvider,
		domain.ErrStorage,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// quotaExceededHandler handles QuotaExceededError carrying the exhausted kind.
func quotaExceededHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		return false
	}
	var qerr *domain.QuotaExceededError
	if errors.As(err, &qerr) {
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"code":    CodeQuotaExceeded,
			"message": msg,
			"kind":    string(qerr.Kind),
		})
		return true
	}
	writeError(w, http.StatusTooManyRequests, CodeQuotaExceeded, msg)
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
