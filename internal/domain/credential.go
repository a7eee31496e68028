package domain

import "time"

// CredentialRecord is a personal credential owned by a single user.
// ExpiresAt is always set: Save defaults it from the provider policy, so a
// record is never stored without a resolvable expiry.
type CredentialRecord struct {
	Provider        Provider
	Secret          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ExpiresAt       time.Time
	LastValidatedAt time.Time
}

// Expired reports whether the record is past its expiry.
func (r CredentialRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// SharedCredentialRecord is the admin-managed credential shared by all users
// of a provider. Active=false or a past expiry makes it unusable even when
// present.
type SharedCredentialRecord struct {
	Provider  Provider
	Secret    string
	UpdatedAt time.Time
	UpdatedBy string
	ExpiresAt time.Time
	Active    bool
}

// Expired reports whether the record is past its expiry.
func (r SharedCredentialRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Usable reports whether the record may authenticate a request.
func (r SharedCredentialRecord) Usable(now time.Time) bool {
	return r.Active && !r.Expired(now)
}

// CredentialStatus is the read-model for token status queries. It is the one
// place an expired-but-retained record remains visible.
type CredentialStatus struct {
	Provider        Provider
	HasToken        bool
	IsExpired       bool
	ExpiresAt       time.Time
	DaysUntilExpiry int
	LastUpdated     time.Time
}

// NewCredentialStatus computes the status of a present record.
// DaysUntilExpiry counts whole 24h periods left, floored; 0 for records
// expiring within a day and for already-expired ones.
func NewCredentialStatus(p Provider, updatedAt, expiresAt time.Time, now time.Time) CredentialStatus {
	expired := now.After(expiresAt)
	days := 0
	if !expired {
		days = int(expiresAt.Sub(now).Hours() / 24)
	}
	return CredentialStatus{
		Provider:        p,
		HasToken:        true,
		IsExpired:       expired,
		ExpiresAt:       expiresAt,
		DaysUntilExpiry: days,
		LastUpdated:     updatedAt,
	}
}

// Principal is an authenticated caller identity.
type Principal struct {
	ID    string
	Email string
}
