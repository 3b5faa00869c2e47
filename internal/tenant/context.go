package tenant

import (
	"github.com/google/uuid"

	"github.com/nikhilbhutani/crmgateway/internal/models"
)

// AuthContext is derived once per request from a validated API key and
// travels with the request as gateway.Request.Auth.
type AuthContext struct {
	CredentialID       uuid.UUID
	TenantID           uuid.UUID
	Permissions        []string
	Scopes             []string
	RateLimitPerMinute int
}

// NewAuthContext copies the authorization-relevant fields out of key.
func NewAuthContext(key *models.APIKey) *AuthContext {
	return &AuthContext{
		CredentialID:       key.ID,
		TenantID:           key.TenantID,
		Permissions:        append([]string(nil), key.Permissions...),
		Scopes:             append([]string(nil), key.Scopes...),
		RateLimitPerMinute: key.RateLimitPerMinute,
	}
}
