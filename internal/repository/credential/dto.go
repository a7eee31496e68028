package credential

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kailas-cloud/tokengate/internal/domain"
)

// recordDTO is the stored JSON shape of a personal credential record.
type recordDTO struct {
	Provider        string `json:"provider"`
	Secret          string `json:"secret"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
	ExpiresAt       string `json:"expires_at"`
	LastValidatedAt string `json:"last_validated_at,omitempty"`
}

func marshalRecord(rec domain.CredentialRecord) ([]byte, error) {
	dto := recordDTO{
		Provider:  string(rec.Provider),
		Secret:    rec.Secret,
		CreatedAt: rec.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: rec.UpdatedAt.UTC().Format(time.RFC3339),
		ExpiresAt: rec.ExpiresAt.UTC().Format(time.RFC3339),
	}
	if !rec.LastValidatedAt.IsZero() {
		dto.LastValidatedAt = rec.LastValidatedAt.UTC().Format(time.RFC3339)
	}
	return json.Marshal(dto)
}

func unmarshalRecord(data []byte) (domain.CredentialRecord, error) {
	var dto recordDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return domain.CredentialRecord{}, err
	}

	provider, err := domain.ParseProvider(dto.Provider)
	if err != nil {
		return domain.CredentialRecord{}, err
	}

	rec := domain.CredentialRecord{Provider: provider, Secret: dto.Secret}
	if rec.CreatedAt, err = parseTime("created_at", dto.CreatedAt); err != nil {
		return domain.CredentialRecord{}, err
	}
	if rec.UpdatedAt, err = parseTime("updated_at", dto.UpdatedAt); err != nil {
		return domain.CredentialRecord{}, err
	}
	if rec.ExpiresAt, err = parseTime("expires_at", dto.ExpiresAt); err != nil {
		return domain.CredentialRecord{}, err
	}
	if dto.LastValidatedAt != "" {
		if rec.LastValidatedAt, err = parseTime("last_validated_at", dto.LastValidatedAt); err != nil {
			return domain.CredentialRecord{}, err
		}
	}
	return rec, nil
}

func parseTime(field, v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s: %w", field, err)
	}
	return t, nil
}
