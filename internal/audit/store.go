package audit

import (
	"context"
	"encoding/json"
	"net/netip"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nikhilbhutani/crmgateway/internal/models"
)

const insertAuditSQL = `INSERT INTO audit_logs
	(api_key_id, tenant_id, method, path, query_params, status_code, error_message, duration_ms, ip_address, user_agent, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is the Postgres audit sink.
type Store struct {
	db execer
}

var _ Sink = (*Store)(nil)

func NewStore(db execer) *Store {
	return &Store{db: db}
}

func (s *Store) Record(ctx context.Context, e *models.AuditLogEntry) error {
	var query []byte
	if len(e.QueryParams) > 0 {
		var err error
		if query, err = json.Marshal(e.QueryParams); err != nil {
			return errors.Wrap(err, "marshal query params")
		}
	}

	var ip *netip.Addr
	if e.IPAddress != "" {
		if parsed, err := netip.ParseAddr(e.IPAddress); err == nil {
			ip = &parsed
		}
	}

	_, err := s.db.Exec(ctx, insertAuditSQL,
		e.APIKeyID, e.TenantID, e.Method, e.Path, query, e.StatusCode,
		e.ErrorMessage, e.DurationMs, ip, e.UserAgent, e.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "insert audit log")
	}
	return nil
}
