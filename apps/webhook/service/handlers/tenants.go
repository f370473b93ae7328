package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/pitabwire/util"

	appconfig "github.com/Atharva309/CodeSense/apps/webhook/config"
	"github.com/Atharva309/CodeSense/internal/review"
	"github.com/Atharva309/CodeSense/internal/store"
)

// TenantHandler serves the admin endpoints that register repositories and
// manage their webhook secrets.
type TenantHandler struct {
	cfg     *appconfig.WebhookConfig
	tenants store.TenantRepository
}

// NewTenantHandler creates a new tenant admin handler.
func NewTenantHandler(cfg *appconfig.WebhookConfig, tenants store.TenantRepository) *TenantHandler {
	return &TenantHandler{
		cfg:     cfg,
		tenants: tenants,
	}
}

func (h *TenantHandler) authorized(r *http.Request) bool {
	if h.cfg.AdminAPIKey == "" {
		return false
	}
	key := r.Header.Get("X-Api-Key")
	return subtle.ConstantTimeCompare([]byte(key), []byte(h.cfg.AdminAPIKey)) == 1
}

type createTenantRequest struct {
	OwnerID string `json:"owner_id"`
	Repo    string `json:"repo"`
}

type tenantResponse struct {
	ID         string `json:"id"`
	OwnerID    string `json:"owner_id"`
	Repo       string `json:"repo"`
	Active     bool   `json:"active"`
	WebhookURL string `json:"webhook_url,omitempty"`
}

func (h *TenantHandler) webhookURL(t *review.Tenant) string {
	if !t.Active {
		return ""
	}
	return strings.TrimSuffix(h.cfg.PublicBaseURL, "/") + "/webhook/" + t.WebhookSecret
}

// HandleCreate serves POST /admin/tenants.
func (h *TenantHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := util.Log(ctx)

	if !h.authorized(r) {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OwnerID == "" || strings.TrimSpace(req.Repo) == "" {
		writeJSONError(w, http.StatusBadRequest, "owner_id and repo are required")
		return
	}

	tenant, err := h.tenants.Create(ctx, req.OwnerID, req.Repo)
	if err != nil {
		log.WithError(err).Error("failed to create tenant")
		writeJSONError(w, http.StatusInternalServerError, "failed to create tenant")
		return
	}

	log.Info("registered repository",
		"tenant_id", tenant.ID,
		"owner_id", tenant.OwnerID,
		"repo", tenant.Repo,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(&tenantResponse{
		ID:         tenant.ID,
		OwnerID:    tenant.OwnerID,
		Repo:       tenant.Repo,
		Active:     tenant.Active,
		WebhookURL: h.webhookURL(tenant),
	})
}

// HandleList serves GET /admin/tenants?owner_id=...
func (h *TenantHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := util.Log(ctx)

	if !h.authorized(r) {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		writeJSONError(w, http.StatusBadRequest, "owner_id is required")
		return
	}

	tenants, err := h.tenants.ListByOwner(ctx, ownerID)
	if err != nil {
		log.WithError(err).Error("failed to list tenants")
		writeJSONError(w, http.StatusInternalServerError, "failed to list tenants")
		return
	}

	out := make([]*tenantResponse, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, &tenantResponse{
			ID:         t.ID,
			OwnerID:    t.OwnerID,
			Repo:       t.Repo,
			Active:     t.Active,
			WebhookURL: h.webhookURL(t),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{"tenants": out})
}

// HandleDeactivate serves DELETE /admin/tenants/{id}?owner_id=...
// Deactivation is soft: the secret stops routing but recorded events keep
// their attribution.
func (h *TenantHandler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := util.Log(ctx)

	if !h.authorized(r) {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	tenantID := r.PathValue("id")
	ownerID := r.URL.Query().Get("owner_id")
	if tenantID == "" || ownerID == "" {
		writeJSONError(w, http.StatusBadRequest, "tenant id and owner_id are required")
		return
	}

	err := h.tenants.Deactivate(ctx, ownerID, tenantID)
	if errors.Is(err, store.ErrTenantNotFound) {
		writeJSONError(w, http.StatusNotFound, "tenant not found")
		return
	}
	if err != nil {
		log.WithError(err).Error("failed to deactivate tenant", "tenant_id", tenantID)
		writeJSONError(w, http.StatusInternalServerError, "failed to deactivate tenant")
		return
	}

	log.Info("deactivated tenant", "tenant_id", tenantID, "owner_id", ownerID)
	w.WriteHeader(http.StatusNoContent)
}
