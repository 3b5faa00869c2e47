package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditLogEntry is one row per gateway request.
type AuditLogEntry struct {
	ID           uuid.UUID           `json:"id" db:"id"`
	APIKeyID     *uuid.UUID          `json:"api_key_id,omitempty" db:"api_key_id"`
	TenantID     *uuid.UUID          `json:"tenant_id,omitempty" db:"tenant_id"`
	Method       string              `json:"method" db:"method"`
	Path         string              `json:"path" db:"path"`
	QueryParams  map[string][]string `json:"query_params,omitempty" db:"query_params"`
	StatusCode   int                 `json:"status_code" db:"status_code"`
	ErrorMessage *string             `json:"error_message,omitempty" db:"error_message"`
	DurationMs   int64               `json:"duration_ms" db:"duration_ms"`
	IPAddress    string              `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent    string              `json:"user_agent,omitempty" db:"user_agent"`
	CreatedAt    time.Time           `json:"created_at" db:"created_at"`
}
