package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pitabwire/util"
	"github.com/rs/xid"

	appconfig "github.com/Atharva309/CodeSense/apps/webhook/config"
	"github.com/Atharva309/CodeSense/internal/review"
	"github.com/Atharva309/CodeSense/internal/store"
)

// Publisher is the slice of the queue manager the handler needs.
type Publisher interface {
	Publish(ctx context.Context, queueName string, payload any, headers ...map[string]string) error
}

// DeliveryCache is the optional Redis fast path for repeat deliveries.
type DeliveryCache interface {
	Lookup(ctx context.Context, deliveryID string) (string, bool, error)
	Remember(ctx context.Context, deliveryID, eventID string) error
}

// ReviewRequest is the queue message that schedules one pipeline run.
type ReviewRequest struct {
	EventID string `json:"event_id"`
}

// WebhookHandler handles incoming GitHub webhook deliveries.
type WebhookHandler struct {
	cfg       *appconfig.WebhookConfig
	tenants   store.TenantRepository
	events    store.EventRepository
	publisher Publisher
	cache     DeliveryCache
}

// NewWebhookHandler creates a new webhook handler. The cache may be nil;
// intake then always goes through the database.
func NewWebhookHandler(
	cfg *appconfig.WebhookConfig,
	tenants store.TenantRepository,
	events store.EventRepository,
	publisher Publisher,
	cache DeliveryCache,
) *WebhookHandler {
	return &WebhookHandler{
		cfg:       cfg,
		tenants:   tenants,
		events:    events,
		publisher: publisher,
		cache:     cache,
	}
}

// HandleTenantWebhook serves POST /webhook/{secret}. The path secret
// routes the delivery to its tenant; unknown or deactivated secrets get a
// 404 so probes cannot tell a revoked secret from a never-issued one.
func (h *WebhookHandler) HandleTenantWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := util.Log(ctx)

	secret := r.PathValue("secret")
	tenant, err := h.tenants.FindBySecret(ctx, secret)
	if err != nil {
		log.Debug("webhook for unknown tenant secret")
		writeJSONError(w, http.StatusNotFound, "unknown webhook")
		return
	}

	h.process(w, r, tenant, tenant.WebhookSecret)
}

// HandleLegacyWebhook serves POST /webhook without tenant routing, for
// installs that predate per-repository registration.
func (h *WebhookHandler) HandleLegacyWebhook(w http.ResponseWriter, r *http.Request) {
	h.process(w, r, nil, h.cfg.GitHubWebhookSecret)
}

// pushPayload is the subset of the webhook body intake cares about. The
// full body is stored verbatim on the event for the worker.
type pushPayload struct {
	Ref        string `json:"ref"`
	Before     string `json:"before"`
	After      string `json:"after"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

func (h *WebhookHandler) process(
	w http.ResponseWriter,
	r *http.Request,
	tenant *review.Tenant,
	signingSecret string,
) {
	ctx := r.Context()
	log := util.Log(ctx)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.WithError(err).Error("failed to read request body")
		writeJSONError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	defer util.CloseAndLogOnError(ctx, r.Body, "failed to close request body")

	signature := r.Header.Get("X-Hub-Signature-256")
	if !signatureAccepted(body, signature, signingSecret, tenant != nil) {
		log.Warn("invalid webhook signature")
		writeJSONError(w, http.StatusUnauthorized, "bad signature")
		return
	}

	rawJSON, payload, ok := parsePayload(r.Header.Get("Content-Type"), body)
	if !ok {
		log.Warn("unparseable webhook payload")
		writeJSONError(w, http.StatusBadRequest, "unparseable payload")
		return
	}

	repo := review.NormalizeRepoName(payload.Repository.FullName)
	if tenant != nil && repo != "" && repo != tenant.Repo {
		log.Warn("webhook repository does not match tenant",
			"payload_repo", repo,
			"tenant_repo", tenant.Repo,
		)
		writeJSONError(w, http.StatusBadRequest, "repository mismatch")
		return
	}

	eventType := r.Header.Get("X-GitHub-Event")
	if eventType == "" {
		eventType = "unknown"
	}
	deliveryID := r.Header.Get("X-GitHub-Delivery")
	if deliveryID == "" {
		// Without a delivery header there is nothing to dedupe on.
		deliveryID = xid.New().String()
	}

	if h.cache != nil {
		if eventID, hit, cacheErr := h.cache.Lookup(ctx, deliveryID); cacheErr == nil && hit {
			log.Debug("duplicate delivery answered from cache",
				"delivery_id", deliveryID,
				"event_id", eventID,
			)
			writeOK(w, eventID)
			return
		}
	}

	in := &store.RecordEventInput{
		DeliveryID: deliveryID,
		EventType:  eventType,
		Repo:       repo,
		Ref:        payload.Ref,
		AfterSHA:   payload.After,
		RawJSON:    rawJSON,
	}
	if tenant != nil {
		in.OwnerID = tenant.OwnerID
		in.TenantID = tenant.ID
	}

	eventID, created, err := h.events.Record(ctx, in)
	if err != nil {
		log.WithError(err).Error("failed to record event")
		writeJSONError(w, http.StatusInternalServerError, "failed to record event")
		return
	}

	if h.cache != nil {
		if cacheErr := h.cache.Remember(ctx, deliveryID, eventID); cacheErr != nil {
			log.WithError(cacheErr).Warn("failed to cache delivery", "delivery_id", deliveryID)
		}
	}

	log.Info("recorded webhook event",
		"event_type", eventType,
		"delivery_id", deliveryID,
		"event_id", eventID,
		"repo", repo,
		"created", created,
	)

	// Enqueue is best-effort: the event is recorded, so a queue outage
	// must not make GitHub retry the delivery.
	if created && review.EventType(eventType).Triggers() {
		publishErr := h.publisher.Publish(ctx, h.cfg.QueueReviewRequestName, &ReviewRequest{EventID: eventID})
		if publishErr != nil {
			log.WithError(publishErr).Error("failed to enqueue review request", "event_id", eventID)
		}
	}

	writeOK(w, eventID)
}

// signatureAccepted decides whether the delivery passes signature
// verification. Tenant endpoints verify whenever a signature is sent; the
// path secret already authenticates deliveries without one. The legacy
// endpoint requires a valid signature whenever a secret is configured.
func signatureAccepted(body []byte, signature, secret string, tenantRoute bool) bool {
	if secret == "" {
		return true
	}
	if signature == "" {
		return tenantRoute
	}
	if !strings.HasPrefix(signature, "sha256=") {
		return false
	}
	signature = strings.TrimPrefix(signature, "sha256=")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

// parsePayload decodes the webhook body. GitHub sends either raw JSON or
// a form-encoded body whose "payload" field holds the JSON; the returned
// bytes are always the JSON document.
func parsePayload(contentType string, body []byte) ([]byte, *pushPayload, bool) {
	rawJSON := body
	if strings.Contains(contentType, "application/x-www-form-urlencoded") {
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, nil, false
		}
		rawJSON = []byte(values.Get("payload"))
	}

	var payload pushPayload
	if err := json.Unmarshal(rawJSON, &payload); err != nil {
		return nil, nil, false
	}
	return rawJSON, &payload, true
}

func writeOK(w http.ResponseWriter, eventID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok":       true,
		"event_id": eventID,
	})
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok":    false,
		"error": message,
	})
}
