package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTenantHandler() *TenantHandler {
	return NewTenantHandler(testConfig(), &fakeTenantRepo{})
}

func TestTenantCreate_RequiresAPIKey(t *testing.T) {
	h := newTenantHandler()

	r := httptest.NewRequest(http.MethodPost, "/admin/tenants",
		strings.NewReader(`{"owner_id":"owner-1","repo":"acme/widget"}`))
	w := httptest.NewRecorder()
	h.HandleCreate(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTenantCreate_ReturnsWebhookURL(t *testing.T) {
	h := newTenantHandler()

	r := httptest.NewRequest(http.MethodPost, "/admin/tenants",
		strings.NewReader(`{"owner_id":"owner-1","repo":"https://github.com/acme/widget"}`))
	r.Header.Set("X-Api-Key", "admin-key")
	w := httptest.NewRecorder()
	h.HandleCreate(w, r)

	require.Equal(t, http.StatusCreated, w.Code)

	var resp tenantResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "acme/widget", resp.Repo)
	assert.True(t, resp.Active)
	assert.Equal(t, "https://hooks.example.com/webhook/secret-new", resp.WebhookURL)
}

func TestTenantCreate_MissingFieldsIs400(t *testing.T) {
	h := newTenantHandler()

	r := httptest.NewRequest(http.MethodPost, "/admin/tenants",
		strings.NewReader(`{"owner_id":"owner-1"}`))
	r.Header.Set("X-Api-Key", "admin-key")
	w := httptest.NewRecorder()
	h.HandleCreate(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTenantDeactivate(t *testing.T) {
	h := newTenantHandler()

	r := httptest.NewRequest(http.MethodDelete, "/admin/tenants/t-1?owner_id=owner-1", nil)
	r.SetPathValue("id", "t-1")
	r.Header.Set("X-Api-Key", "admin-key")
	w := httptest.NewRecorder()
	h.HandleDeactivate(w, r)

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestTenantAdmin_NoKeyConfiguredRejectsAll(t *testing.T) {
	cfg := testConfig()
	cfg.AdminAPIKey = ""
	h := NewTenantHandler(cfg, &fakeTenantRepo{})

	r := httptest.NewRequest(http.MethodGet, "/admin/tenants?owner_id=owner-1", nil)
	w := httptest.NewRecorder()
	h.HandleList(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
