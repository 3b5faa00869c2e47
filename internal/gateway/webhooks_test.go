package gateway

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/crmgateway/internal/auth"
	"github.com/nikhilbhutani/crmgateway/internal/store"
)

func seedWebhook(h *harness, tenantID uuid.UUID, name string) string {
	row := h.repo.seed(store.Webhooks, tenantID, store.Row{
		"name":    name,
		"url":     "https://hooks.example.com/" + name,
		"events":  []string{"contact.created"},
		"secret":  "whsec_do_not_leak",
		"enabled": true,
	})
	return row["id"].(string)
}

func TestWebhooks_ListHidesSecret(t *testing.T) {
	h := newHarness(t)
	tenantID := uuid.New()
	seedWebhook(h, tenantID, "crm-sync")
	seedWebhook(h, uuid.New(), "other-tenant")
	raw := h.key(tenantID, []string{auth.PermRead}, []string{auth.ScopeWebhooks})

	rec := h.do(http.MethodGet, "/v1/webhooks", raw, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "whsec_do_not_leak")

	body := decodeBody(t, rec)
	data := body["data"].([]any)
	require.Len(t, data, 1)
	hook := data[0].(map[string]any)
	assert.ElementsMatch(t, []string{"id", "name", "url", "events", "enabled", "created_at"}, keys(hook))
	assert.Equal(t, 1.0, body["meta"].(map[string]any)["total"])
}

func TestWebhooks_Delete(t *testing.T) {
	h := newHarness(t)
	tenantID := uuid.New()
	first := seedWebhook(h, tenantID, "a")
	second := seedWebhook(h, tenantID, "b")

	noDelete := h.key(tenantID, []string{auth.PermRead, auth.PermWrite}, []string{auth.ScopeWebhooks})
	rec := h.do(http.MethodDelete, "/v1/webhooks?id="+first, noDelete, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = h.do(http.MethodDelete, "/v1/webhooks/"+first, noDelete, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 2, h.repo.count("webhooks", tenantID))

	raw := h.key(tenantID, []string{auth.PermDelete}, []string{auth.ScopeWebhooks})
	rec = h.do(http.MethodDelete, "/v1/webhooks?id="+first, raw, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"success":true,"id":%q}`, first), rec.Body.String())

	rec = h.do(http.MethodDelete, "/v1/webhooks/"+second, raw, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, h.repo.count("webhooks", tenantID))

	rec = h.do(http.MethodDelete, "/v1/webhooks/"+second, raw, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"webhook not found"}`, rec.Body.String())

	rec = h.do(http.MethodDelete, "/v1/webhooks", raw, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
