package auth

import (
	"context"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/crmgateway/internal/models"
	"github.com/nikhilbhutani/crmgateway/internal/store"
)

// --- Fakes ---

type fakeKeyStore struct {
	byHash map[string]*models.APIKey
	err    error
}

func (f *fakeKeyStore) FindByHash(_ context.Context, hash string) (*models.APIKey, error) {
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

type countingRecorder struct {
	count    atomic.Int64
	lastUsed atomic.Pointer[time.Time]
	err      error
}

func (c *countingRecorder) RecordUsage(_ context.Context, _ uuid.UUID, at time.Time) error {
	if c.err != nil {
		return c.err
	}
	c.count.Add(1)
	c.lastUsed.Store(&at)
	return nil
}

// --- Helpers ---

func newKey(raw string, mutate ...func(*models.APIKey)) *models.APIKey {
	k := &models.APIKey{
		ID:          uuid.New(),
		TenantID:    uuid.New(),
		KeyHash:     HashAPIKey(raw),
		Permissions: []string{PermRead},
		Scopes:      []string{ScopeContacts},
		IsActive:    true,
	}
	for _, m := range mutate {
		m(k)
	}
	return k
}

func newValidator(keys ...*models.APIKey) (*Validator, *countingRecorder) {
	ks := &fakeKeyStore{byHash: map[string]*models.APIKey{}}
	for _, k := range keys {
		ks.byHash[k.KeyHash] = k
	}
	rec := &countingRecorder{}
	return NewValidator(ks, rec, time.Second), rec
}

func TestHashAPIKey(t *testing.T) {
	// sha256("crm_test")
	h := HashAPIKey("crm_test")
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashAPIKey("crm_test"))
	assert.NotEqual(t, h, HashAPIKey("crm_test2"))
}

func TestValidate_Success(t *testing.T) {
	key := newKey("crm_live_abc")
	v, rec := newValidator(key)

	got, err := v.Validate(context.Background(), "crm_live_abc")
	require.NoError(t, err)
	v.Close()

	assert.Equal(t, key.ID, got.ID)
	assert.Equal(t, key.TenantID, got.TenantID)
	assert.Equal(t, int64(1), rec.count.Load())
	assert.NotNil(t, rec.lastUsed.Load())
}

func TestValidate_Rejections(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name string
		key  *models.APIKey
		raw  string
	}{
		{name: "empty key", key: newKey("k1"), raw: ""},
		{name: "unknown key", key: newKey("k1"), raw: "other"},
		{name: "inactive", key: newKey("k1", func(k *models.APIKey) { k.IsActive = false }), raw: "k1"},
		{name: "revoked", key: newKey("k1", func(k *models.APIKey) { k.RevokedAt = &past }), raw: "k1"},
		{name: "revoked in future still revoked", key: newKey("k1", func(k *models.APIKey) { k.RevokedAt = &future }), raw: "k1"},
		{name: "expired", key: newKey("k1", func(k *models.APIKey) { k.ExpiresAt = &past }), raw: "k1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, rec := newValidator(tt.key)

			got, err := v.Validate(context.Background(), tt.raw)
			v.Close()

			assert.Nil(t, got)
			assert.ErrorIs(t, err, ErrUnauthenticated)
			assert.Zero(t, rec.count.Load(), "usage must not be recorded")
		})
	}
}

func TestValidate_NotYetExpired(t *testing.T) {
	future := time.Now().Add(time.Hour)
	v, _ := newValidator(newKey("k1", func(k *models.APIKey) { k.ExpiresAt = &future }))

	_, err := v.Validate(context.Background(), "k1")
	v.Close()
	require.NoError(t, err)
}

func TestValidate_StoreError(t *testing.T) {
	v := NewValidator(&fakeKeyStore{err: errors.New("connection refused")}, nil, time.Second)

	_, err := v.Validate(context.Background(), "k1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthenticated)
}

func TestValidate_UsageFailureDoesNotFailRequest(t *testing.T) {
	key := newKey("k1")
	ks := &fakeKeyStore{byHash: map[string]*models.APIKey{key.KeyHash: key}}
	v := NewValidator(ks, &countingRecorder{err: errors.New("db down")}, time.Second)

	got, err := v.Validate(context.Background(), "k1")
	v.Close()

	require.NoError(t, err)
	assert.Equal(t, key.ID, got.ID)
}

type panicRecorder struct{}

func (panicRecorder) RecordUsage(context.Context, uuid.UUID, time.Time) error {
	panic("recorder exploded")
}

func TestValidate_UsagePanicDoesNotCrash(t *testing.T) {
	key := newKey("k1")
	ks := &fakeKeyStore{byHash: map[string]*models.APIKey{key.KeyHash: key}}
	v := NewValidator(ks, panicRecorder{}, time.Second)

	got, err := v.Validate(context.Background(), "k1")
	v.Close()

	require.NoError(t, err)
	assert.Equal(t, key.ID, got.ID)
}

func TestValidate_ConcurrentUsageCount(t *testing.T) {
	key := newKey("k1")
	v, rec := newValidator(key)

	const n = 200
	var wg sync.WaitGroup
	var ok atomic.Int64
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := v.Validate(context.Background(), "k1"); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()
	v.Close()

	assert.Equal(t, int64(n), ok.Load())
	assert.Equal(t, ok.Load(), rec.count.Load())
}

func TestExtractKey(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{name: "x-api-key", headers: map[string]string{"X-API-Key": "abc"}, want: "abc"},
		{name: "bearer", headers: map[string]string{"Authorization": "Bearer abc"}, want: "abc"},
		{name: "bearer lowercase", headers: map[string]string{"Authorization": "bearer abc"}, want: "abc"},
		{name: "header wins", headers: map[string]string{"X-API-Key": "one", "Authorization": "Bearer two"}, want: "one"},
		{name: "basic auth ignored", headers: map[string]string{"Authorization": "Basic Zm9vOmJhcg=="}, want: ""},
		{name: "empty bearer", headers: map[string]string{"Authorization": "Bearer "}, want: ""},
		{name: "none", headers: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/v1/contacts", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ExtractKey(r, "X-API-Key"))
		})
	}
}
