package models

import (
	"time"

	"github.com/google/uuid"
)

// APIKey is an issued API key as stored by the issuing system. Only the
// digest of the raw key is ever persisted.
type APIKey struct {
	ID                 uuid.UUID  `json:"id" db:"id"`
	TenantID           uuid.UUID  `json:"tenant_id" db:"tenant_id"`
	Name               string     `json:"name" db:"name"`
	KeyHash            string     `json:"-" db:"key_hash"`
	Permissions        []string   `json:"permissions" db:"permissions"`
	Scopes             []string   `json:"scopes" db:"scopes"`
	RateLimitPerMinute int        `json:"rate_limit_per_minute" db:"rate_limit_per_minute"`
	IsActive           bool       `json:"is_active" db:"is_active"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	RevokedAt          *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
	LastUsedAt         *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
	RequestCount       int64      `json:"request_count" db:"request_count"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
}

// Usable reports whether the key may authenticate a request at now.
func (k *APIKey) Usable(now time.Time) bool {
	if !k.IsActive || k.RevokedAt != nil {
		return false
	}
	return k.ExpiresAt == nil || k.ExpiresAt.After(now)
}
