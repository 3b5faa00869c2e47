package store

import (
	"slices"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Query is a finished SQL statement with its positional arguments.
type Query struct {
	SQL  string
	Args []any
}

// Scope builds SQL bound to one tenant. Every statement it produces carries a
// tenant_id predicate (or, for inserts, a tenant_id value); a zero Scope
// refuses to build anything.
type Scope struct {
	tenantID uuid.UUID
}

func NewScope(tenantID uuid.UUID) (Scope, error) {
	if tenantID == uuid.Nil {
		return Scope{}, ErrNoTenant
	}
	return Scope{tenantID: tenantID}, nil
}

func (s Scope) TenantID() uuid.UUID { return s.tenantID }

func (s Scope) tenant() (sq.Eq, error) {
	if s.tenantID == uuid.Nil {
		return nil, ErrNoTenant
	}
	return sq.Eq{"tenant_id": s.tenantID}, nil
}

// ListParams are the already-validated list options of one request.
type ListParams struct {
	Limit   int
	Offset  int
	Search  string
	Tag     string
	Filters map[string]string
}

// ListQuery returns the page query and the matching count query.
func (s Scope) ListQuery(t Table, p ListParams) (page, count Query, err error) {
	tenant, err := s.tenant()
	if err != nil {
		return Query{}, Query{}, err
	}

	preds := sq.And{tenant}
	if p.Search != "" && len(t.Search) > 0 {
		pattern := "%" + escapeLike(p.Search) + "%"
		anyOf := sq.Or{}
		for _, col := range t.Search {
			anyOf = append(anyOf, sq.ILike{col: pattern})
		}
		preds = append(preds, anyOf)
	}
	if p.Tag != "" && t.TagColumn != "" {
		preds = append(preds, sq.Expr(t.TagColumn+" @> ?", []string{p.Tag}))
	}
	for _, col := range sortedKeys(p.Filters) {
		if slices.Contains(t.Filters, col) {
			preds = append(preds, sq.Eq{col: p.Filters[col]})
		}
	}

	pageSQL, pageArgs, err := psql.Select(t.Columns...).
		From(t.Name).
		Where(preds).
		OrderBy(t.OrderBy).
		Limit(uint64(p.Limit)).
		Offset(uint64(p.Offset)).
		ToSql()
	if err != nil {
		return Query{}, Query{}, errors.Wrap(err, "build list query")
	}

	countSQL, countArgs, err := psql.Select("COUNT(*)").From(t.Name).Where(preds).ToSql()
	if err != nil {
		return Query{}, Query{}, errors.Wrap(err, "build count query")
	}

	return Query{SQL: pageSQL, Args: pageArgs}, Query{SQL: countSQL, Args: countArgs}, nil
}

// GetQuery selects one row by id. A malformed id yields ErrNotFound, the same
// as an id that exists only in another tenant.
func (s Scope) GetQuery(t Table, id string) (Query, error) {
	tenant, err := s.tenant()
	if err != nil {
		return Query{}, err
	}
	uid, err := uuid.Parse(id)
	if err != nil {
		return Query{}, ErrNotFound
	}
	return build(psql.Select(t.Columns...).From(t.Name).Where(tenant).Where(sq.Eq{"id": uid}))
}

// FindQuery selects the first row matching every column in eq.
func (s Scope) FindQuery(t Table, eq map[string]any) (Query, error) {
	tenant, err := s.tenant()
	if err != nil {
		return Query{}, err
	}
	return build(psql.Select(t.Columns...).
		From(t.Name).
		Where(tenant).
		Where(sq.Eq(eq)).
		OrderBy("created_at ASC").
		Limit(1))
}

// SelectQuery selects columns with extra predicates; used where a caller needs
// columns the table definition hides (webhook secrets).
func (s Scope) SelectQuery(t Table, columns []string, preds ...sq.Sqlizer) (Query, error) {
	tenant, err := s.tenant()
	if err != nil {
		return Query{}, err
	}
	b := psql.Select(columns...).From(t.Name).Where(tenant)
	for _, p := range preds {
		b = b.Where(p)
	}
	return build(b.OrderBy(t.OrderBy))
}

// InsertQuery inserts fields; tenant_id is always the scope's tenant.
func (s Scope) InsertQuery(t Table, fields Row) (Query, error) {
	if _, err := s.tenant(); err != nil {
		return Query{}, err
	}
	values := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		values[k] = v
	}
	values["tenant_id"] = s.tenantID

	return build(psql.Insert(t.Name).SetMap(values).Suffix("RETURNING " + strings.Join(t.Columns, ", ")))
}

func (s Scope) UpdateQuery(t Table, id string, fields Row) (Query, error) {
	tenant, err := s.tenant()
	if err != nil {
		return Query{}, err
	}
	uid, err := uuid.Parse(id)
	if err != nil {
		return Query{}, ErrNotFound
	}
	if len(fields) == 0 {
		return Query{}, errors.New("update without fields")
	}

	b := psql.Update(t.Name)
	for _, k := range sortedKeys(fields) {
		if k == "tenant_id" || k == "id" {
			continue
		}
		b = b.Set(k, fields[k])
	}
	if t.Touch {
		b = b.Set("updated_at", sq.Expr("now()"))
	}
	return build(b.Where(tenant).Where(sq.Eq{"id": uid}).Suffix("RETURNING " + strings.Join(t.Columns, ", ")))
}

func (s Scope) DeleteQuery(t Table, id string) (Query, error) {
	tenant, err := s.tenant()
	if err != nil {
		return Query{}, err
	}
	uid, err := uuid.Parse(id)
	if err != nil {
		return Query{}, ErrNotFound
	}
	return build(psql.Delete(t.Name).Where(tenant).Where(sq.Eq{"id": uid}))
}

// HistoryQuery selects up to limit messages of a conversation created strictly
// before the cursor, newest first.
func (s Scope) HistoryQuery(t Table, conversationID string, before *time.Time, limit int) (Query, error) {
	tenant, err := s.tenant()
	if err != nil {
		return Query{}, err
	}
	cid, err := uuid.Parse(conversationID)
	if err != nil {
		return Query{}, ErrNotFound
	}

	b := psql.Select(t.Columns...).
		From(t.Name).
		Where(tenant).
		Where(sq.Eq{"conversation_id": cid})
	if before != nil {
		b = b.Where(sq.Lt{"created_at": *before})
	}
	return build(b.OrderBy("created_at DESC").Limit(uint64(limit)))
}

type sqlizer interface {
	ToSql() (string, []any, error)
}

func build(b sqlizer) (Query, error) {
	q, args, err := b.ToSql()
	if err != nil {
		return Query{}, errors.Wrap(err, "build query")
	}
	return Query{SQL: q, Args: args}, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
