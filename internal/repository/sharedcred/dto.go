package sharedcred

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kailas-cloud/tokengate/internal/domain"
)

// recordDTO is the stored JSON shape of a shared credential record. The same
// document shape is written to the remote registry, which is canonical for
// shared credentials, so the secret is stored as-is.
type recordDTO struct {
	Provider  string `json:"provider"`
	Secret    string `json:"secret"`
	UpdatedAt string `json:"updated_at"`
	UpdatedBy string `json:"updated_by"`
	ExpiresAt string `json:"expires_at"`
	Active    bool   `json:"active"`
}

func marshalRecord(rec domain.SharedCredentialRecord) ([]byte, error) {
	return json.Marshal(recordDTO{
		Provider:  string(rec.Provider),
		Secret:    rec.Secret,
		UpdatedAt: rec.UpdatedAt.UTC().Format(time.RFC3339),
		UpdatedBy: rec.UpdatedBy,
		ExpiresAt: rec.ExpiresAt.UTC().Format(time.RFC3339),
		Active:    rec.Active,
	})
}

func unmarshalRecord(data []byte) (domain.SharedCredentialRecord, error) {
	var dto recordDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return domain.SharedCredentialRecord{}, err
	}

	provider, err := domain.ParseProvider(dto.Provider)
	if err != nil {
		return domain.SharedCredentialRecord{}, err
	}

	updatedAt, err := time.Parse(time.RFC3339, dto.UpdatedAt)
	if err != nil {
		return domain.SharedCredentialRecord{}, fmt.Errorf("parse updated_at: %w", err)
	}
	expiresAt, err := time.Parse(time.RFC3339, dto.ExpiresAt)
	if err != nil {
		return domain.SharedCredentialRecord{}, fmt.Errorf("parse expires_at: %w", err)
	}

	return domain.SharedCredentialRecord{
		Provider:  provider,
		Secret:    dto.Secret,
		UpdatedAt: updatedAt,
		UpdatedBy: dto.UpdatedBy,
		ExpiresAt: expiresAt,
		Active:    dto.Active,
	}, nil
}

// Marshal encodes a shared record in the registry document shape. The
// shared-credential service uses it for canonical remote writes.
func Marshal(rec domain.SharedCredentialRecord) ([]byte, error) {
	return marshalRecord(rec)
}

// Unmarshal decodes a registry document into a shared record.
func Unmarshal(data []byte) (domain.SharedCredentialRecord, error) {
	return unmarshalRecord(data)
}
