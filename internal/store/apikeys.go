package store

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/nikhilbhutani/crmgateway/internal/models"
)

const (
	findAPIKeyByHashSQL = `SELECT id, tenant_id, name, key_hash, permissions, scopes, rate_limit_per_minute,
		is_active, expires_at, revoked_at, last_used_at, request_count, created_at
		FROM api_keys WHERE key_hash = $1`

	recordAPIKeyUsageSQL = `UPDATE api_keys
		SET last_used_at = GREATEST(COALESCE(last_used_at, $1), $1), request_count = request_count + 1
		WHERE id = $2`
)

// APIKeys reads issued keys and maintains their usage counters. Keys are
// created and revoked by the issuing system, never here.
type APIKeys struct {
	db DBTX
}

func NewAPIKeys(db DBTX) *APIKeys {
	return &APIKeys{db: db}
}

func (r *APIKeys) FindByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	var k models.APIKey
	err := r.db.QueryRow(ctx, findAPIKeyByHashSQL, hash).Scan(
		&k.ID, &k.TenantID, &k.Name, &k.KeyHash, &k.Permissions, &k.Scopes, &k.RateLimitPerMinute,
		&k.IsActive, &k.ExpiresAt, &k.RevokedAt, &k.LastUsedAt, &k.RequestCount, &k.CreatedAt,
	)
	if err != nil {
		return nil, classify(err)
	}
	return &k, nil
}

// RecordUsage increments the counter in a single statement so concurrent
// requests on the same key never lose an update.
func (r *APIKeys) RecordUsage(ctx context.Context, keyID uuid.UUID, at time.Time) error {
	if _, err := r.db.Exec(ctx, recordAPIKeyUsageSQL, at, keyID); err != nil {
		return errors.Wrap(err, "record api key usage")
	}
	return nil
}
