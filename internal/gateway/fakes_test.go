package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/crmgateway/internal/auth"
	"github.com/nikhilbhutani/crmgateway/internal/messaging"
	"github.com/nikhilbhutani/crmgateway/internal/models"
	"github.com/nikhilbhutani/crmgateway/internal/ratelimit"
	"github.com/nikhilbhutani/crmgateway/internal/store"
)

// memRepo is an in-memory store.Repository that honours tenant scoping the
// same way the Postgres implementation does.
type memRepo struct {
	mu        sync.Mutex
	tables    map[string][]store.Row
	calls     map[string]int
	clock     time.Time
	updateErr error
}

var _ store.Repository = (*memRepo)(nil)

func newMemRepo() *memRepo {
	return &memRepo{
		tables: make(map[string][]store.Row),
		calls:  make(map[string]int),
		clock:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (m *memRepo) callCount(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[table]
}

func (m *memRepo) count(table string, tenantID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.tables[table] {
		if r["tenant_id"] == tenantID.String() {
			n++
		}
	}
	return n
}

// seed inserts a row directly, bypassing call accounting.
func (m *memRepo) seed(t store.Table, tenantID uuid.UUID, fields store.Row) store.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insert(t, tenantID, fields)
}

func (m *memRepo) insert(t store.Table, tenantID uuid.UUID, fields store.Row) store.Row {
	row := store.Row{}
	for k, v := range fields {
		row[k] = v
	}
	if _, ok := row["id"]; !ok {
		row["id"] = uuid.NewString()
	}
	row["tenant_id"] = tenantID.String()
	if _, ok := row["created_at"]; !ok {
		m.clock = m.clock.Add(time.Second)
		row["created_at"] = m.clock
	}
	m.tables[t.Name] = append(m.tables[t.Name], row)
	return project(t, row)
}

func project(t store.Table, r store.Row) store.Row {
	out := store.Row{}
	for _, c := range t.Columns {
		if v, ok := r[c]; ok {
			out[c] = v
		}
	}
	return out
}

func visible(s store.Scope, r store.Row) bool {
	return s.TenantID() != uuid.Nil && r["tenant_id"] == s.TenantID().String()
}

func matches(r store.Row, eq map[string]any) bool {
	for k, v := range eq {
		if fmt.Sprint(r[k]) != fmt.Sprint(v) {
			return false
		}
	}
	return true
}

func (m *memRepo) List(_ context.Context, s store.Scope, t store.Table, p store.ListParams) ([]store.Row, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[t.Name]++

	var matched []store.Row
	for _, r := range m.tables[t.Name] {
		if !visible(s, r) {
			continue
		}
		if p.Search != "" && len(t.Search) > 0 {
			hit := false
			for _, col := range t.Search {
				if strings.Contains(strings.ToLower(fmt.Sprint(r[col])), strings.ToLower(p.Search)) {
					hit = true
				}
			}
			if !hit {
				continue
			}
		}
		if p.Tag != "" && t.TagColumn != "" {
			tags, _ := r[t.TagColumn].([]string)
			if !slices.Contains(tags, p.Tag) {
				continue
			}
		}
		keep := true
		for k, v := range p.Filters {
			if slices.Contains(t.Filters, k) && fmt.Sprint(r[k]) != v {
				keep = false
			}
		}
		if keep {
			matched = append(matched, project(t, r))
		}
	}

	total := int64(len(matched))
	lo := min(p.Offset, len(matched))
	hi := min(lo+p.Limit, len(matched))
	return matched[lo:hi], total, nil
}

func (m *memRepo) find(s store.Scope, t store.Table, id string) (int, error) {
	if _, err := uuid.Parse(id); err != nil {
		return -1, store.ErrNotFound
	}
	for i, r := range m.tables[t.Name] {
		if visible(s, r) && r["id"] == id {
			return i, nil
		}
	}
	return -1, store.ErrNotFound
}

func (m *memRepo) Get(_ context.Context, s store.Scope, t store.Table, id string) (store.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[t.Name]++

	i, err := m.find(s, t, id)
	if err != nil {
		return nil, err
	}
	return project(t, m.tables[t.Name][i]), nil
}

func (m *memRepo) FindOne(_ context.Context, s store.Scope, t store.Table, eq map[string]any) (store.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[t.Name]++

	for _, r := range m.tables[t.Name] {
		if visible(s, r) && matches(r, eq) {
			return project(t, r), nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memRepo) Create(_ context.Context, s store.Scope, t store.Table, fields store.Row) (store.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[t.Name]++

	// conversations and contacts are both unique on (tenant_id, phone).
	if t.Name == store.Conversations.Name || t.Name == store.Contacts.Name {
		for _, r := range m.tables[t.Name] {
			if visible(s, r) && r["phone"] == fields["phone"] {
				return nil, &store.RejectedError{Message: "duplicate key value violates unique constraint", Err: store.ErrConflict}
			}
		}
	}
	return m.insert(t, s.TenantID(), fields), nil
}

func (m *memRepo) Update(_ context.Context, s store.Scope, t store.Table, id string, fields store.Row) (store.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[t.Name]++

	i, err := m.find(s, t, id)
	if err != nil {
		return nil, err
	}
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	for k, v := range fields {
		m.tables[t.Name][i][k] = v
	}
	return project(t, m.tables[t.Name][i]), nil
}

func (m *memRepo) Delete(_ context.Context, s store.Scope, t store.Table, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[t.Name]++

	i, err := m.find(s, t, id)
	if err != nil {
		return err
	}
	m.tables[t.Name] = slices.Delete(m.tables[t.Name], i, i+1)
	return nil
}

func (m *memRepo) History(_ context.Context, s store.Scope, t store.Table, conversationID string, before *time.Time, limit int) ([]store.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[t.Name]++

	var out []store.Row
	for _, r := range m.tables[t.Name] {
		if !visible(s, r) || r["conversation_id"] != conversationID {
			continue
		}
		if before != nil && !r["created_at"].(time.Time).Before(*before) {
			continue
		}
		out = append(out, project(t, r))
	}
	slices.SortFunc(out, func(a, b store.Row) int {
		return b["created_at"].(time.Time).Compare(a["created_at"].(time.Time))
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []messaging.SendRequest
	err  error
}

func (f *fakeSender) Send(_ context.Context, req messaging.SendRequest) (messaging.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
	if f.err != nil {
		return messaging.SendResult{}, f.err
	}
	return messaging.SendResult{MessageID: fmt.Sprintf("msg-%d", len(f.sent))}, nil
}

type fakeKeys struct {
	mu     sync.Mutex
	byHash map[string]*models.APIKey
	err    error
}

func (f *fakeKeys) FindByHash(_ context.Context, hash string) (*models.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	k, ok := f.byHash[hash]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *k
	return &cp, nil
}

type captureAudit struct {
	mu      sync.Mutex
	entries []models.AuditLogEntry
}

func (c *captureAudit) Log(e models.AuditLogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
}

func (c *captureAudit) last(t *testing.T) models.AuditLogEntry {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.entries)
	return c.entries[len(c.entries)-1]
}

type published struct {
	tenantID uuid.UUID
	event    string
	data     any
}

type capturePub struct {
	mu     sync.Mutex
	events []published
}

func (c *capturePub) Publish(tenantID uuid.UUID, event string, data any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, published{tenantID, event, data})
}

func (c *capturePub) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, e := range c.events {
		out = append(out, e.event)
	}
	return out
}

type harness struct {
	gw     *Gateway
	repo   *memRepo
	sender *fakeSender
	keys   *fakeKeys
	audit  *captureAudit
	pub    *capturePub
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, nil)
}

// newHarnessWith lets a test wrap the in-memory repository the handlers use.
func newHarnessWith(t *testing.T, wrap func(*memRepo) store.Repository) *harness {
	t.Helper()
	h := &harness{
		repo:   newMemRepo(),
		sender: &fakeSender{},
		keys:   &fakeKeys{byHash: make(map[string]*models.APIKey)},
		audit:  &captureAudit{},
		pub:    &capturePub{},
	}
	var repo store.Repository = h.repo
	if wrap != nil {
		repo = wrap(h.repo)
	}
	validator := auth.NewValidator(h.keys, nil, time.Second)
	h.gw = New(
		Options{PathPrefix: "/v1", RequestTimeout: 5 * time.Second},
		validator,
		ratelimit.NewMemory(),
		Routes(repo, h.sender, h.pub),
		h.audit,
	)
	return h
}

// key issues a raw API key for tenantID.
func (h *harness) key(tenantID uuid.UUID, perms, scopes []string, opts ...func(*models.APIKey)) string {
	raw := "crm_" + uuid.NewString()
	k := &models.APIKey{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Name:        "test",
		KeyHash:     auth.HashAPIKey(raw),
		Permissions: perms,
		Scopes:      scopes,
		IsActive:    true,
	}
	for _, o := range opts {
		o(k)
	}
	h.keys.mu.Lock()
	h.keys.byHash[k.KeyHash] = k
	h.keys.mu.Unlock()
	return raw
}

func (h *harness) do(method, path, rawKey, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if rawKey != "" {
		req.Header.Set("X-API-Key", rawKey)
	}
	rec := httptest.NewRecorder()
	h.gw.ServeHTTP(rec, req)
	return rec
}

var (
	allPerms  = []string{auth.PermRead, auth.PermWrite, auth.PermDelete}
	allScopes = []string{auth.ScopeWildcard}
)

func (h *harness) fullKey(tenantID uuid.UUID) string {
	return h.key(tenantID, allPerms, allScopes)
}
