package store

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/sync/errgroup"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository is the gateway's view of the CRM data store. Every method takes
// a Scope, so no statement can be issued without a tenant.
type Repository interface {
	List(ctx context.Context, s Scope, t Table, p ListParams) ([]Row, int64, error)
	Get(ctx context.Context, s Scope, t Table, id string) (Row, error)
	FindOne(ctx context.Context, s Scope, t Table, eq map[string]any) (Row, error)
	Create(ctx context.Context, s Scope, t Table, fields Row) (Row, error)
	Update(ctx context.Context, s Scope, t Table, id string, fields Row) (Row, error)
	Delete(ctx context.Context, s Scope, t Table, id string) error
	History(ctx context.Context, s Scope, t Table, conversationID string, before *time.Time, limit int) ([]Row, error)
}

var _ Repository = (*Postgres)(nil)

type Postgres struct {
	db DBTX
}

func NewPostgres(db DBTX) *Postgres {
	return &Postgres{db: db}
}

// List runs the page and count queries concurrently.
func (p *Postgres) List(ctx context.Context, s Scope, t Table, params ListParams) ([]Row, int64, error) {
	pageQ, countQ, err := s.ListQuery(t, params)
	if err != nil {
		return nil, 0, err
	}

	var (
		rows  []Row
		total int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = p.queryRows(gctx, pageQ)
		return err
	})
	g.Go(func() error {
		if err := p.db.QueryRow(gctx, countQ.SQL, countQ.Args...).Scan(&total); err != nil {
			return errors.Wrapf(classify(err), "count %s", t.Name)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (p *Postgres) Get(ctx context.Context, s Scope, t Table, id string) (Row, error) {
	q, err := s.GetQuery(t, id)
	if err != nil {
		return nil, err
	}
	return p.queryOne(ctx, q)
}

func (p *Postgres) FindOne(ctx context.Context, s Scope, t Table, eq map[string]any) (Row, error) {
	q, err := s.FindQuery(t, eq)
	if err != nil {
		return nil, err
	}
	return p.queryOne(ctx, q)
}

func (p *Postgres) Create(ctx context.Context, s Scope, t Table, fields Row) (Row, error) {
	q, err := s.InsertQuery(t, fields)
	if err != nil {
		return nil, err
	}
	return p.queryOne(ctx, q)
}

func (p *Postgres) Update(ctx context.Context, s Scope, t Table, id string, fields Row) (Row, error) {
	q, err := s.UpdateQuery(t, id, fields)
	if err != nil {
		return nil, err
	}
	return p.queryOne(ctx, q)
}

func (p *Postgres) Delete(ctx context.Context, s Scope, t Table, id string) error {
	q, err := s.DeleteQuery(t, id)
	if err != nil {
		return err
	}
	tag, err := p.db.Exec(ctx, q.SQL, q.Args...)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) History(ctx context.Context, s Scope, t Table, conversationID string, before *time.Time, limit int) ([]Row, error) {
	q, err := s.HistoryQuery(t, conversationID, before, limit)
	if err != nil {
		return nil, err
	}
	return p.queryRows(ctx, q)
}

func (p *Postgres) queryRows(ctx context.Context, q Query) ([]Row, error) {
	rows, err := p.db.Query(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, classify(err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, classify(err)
	}
	for _, r := range out {
		normalize(r)
	}
	return out, nil
}

func (p *Postgres) queryOne(ctx context.Context, q Query) (Row, error) {
	rows, err := p.db.Query(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, classify(err)
	}
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToMap)
	if err != nil {
		return nil, classify(err)
	}
	normalize(row)
	return row, nil
}

// normalize rewrites driver values that do not serialize as clients expect.
// pgx returns uuid columns as [16]byte.
func normalize(r Row) {
	for k, v := range r {
		if b, ok := v.([16]byte); ok {
			r[k] = uuid.UUID(b).String()
		}
	}
}
