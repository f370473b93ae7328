package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/Atharva309/CodeSense/apps/webhook/config"
	"github.com/Atharva309/CodeSense/internal/review"
	"github.com/Atharva309/CodeSense/internal/store"
)

type fakeTenantRepo struct {
	bySecret map[string]*review.Tenant
}

func (f *fakeTenantRepo) Create(_ context.Context, ownerID, repo string) (*review.Tenant, error) {
	return &review.Tenant{ID: "t-new", OwnerID: ownerID, Repo: review.NormalizeRepoName(repo), WebhookSecret: "secret-new", Active: true}, nil
}

func (f *fakeTenantRepo) FindBySecret(_ context.Context, secret string) (*review.Tenant, error) {
	if t, ok := f.bySecret[secret]; ok {
		return t, nil
	}
	return nil, store.ErrTenantNotFound
}

func (f *fakeTenantRepo) Deactivate(_ context.Context, _, _ string) error { return nil }

func (f *fakeTenantRepo) ListByOwner(_ context.Context, _ string) ([]*review.Tenant, error) {
	return nil, nil
}

type fakeEventRepo struct {
	byDelivery map[string]string
	recorded   []*store.RecordEventInput
	err        error
}

func (f *fakeEventRepo) Record(_ context.Context, in *store.RecordEventInput) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	if id, ok := f.byDelivery[in.DeliveryID]; ok {
		return id, false, nil
	}
	if f.byDelivery == nil {
		f.byDelivery = make(map[string]string)
	}
	id := "evt-" + in.DeliveryID
	f.byDelivery[in.DeliveryID] = id
	f.recorded = append(f.recorded, in)
	return id, true, nil
}

func (f *fakeEventRepo) GetByID(_ context.Context, _ string) (*review.Event, error) {
	return nil, store.ErrEventNotFound
}

type fakePublisher struct {
	published []ReviewRequest
	err       error
}

func (f *fakePublisher) Publish(_ context.Context, _ string, payload any, _ ...map[string]string) error {
	if f.err != nil {
		return f.err
	}
	if req, ok := payload.(*ReviewRequest); ok {
		f.published = append(f.published, *req)
	}
	return nil
}

func testConfig() *appconfig.WebhookConfig {
	return &appconfig.WebhookConfig{
		QueueReviewRequestName: "review.requests",
		AdminAPIKey:            "admin-key",
		PublicBaseURL:          "https://hooks.example.com",
	}
}

func testTenant() *review.Tenant {
	return &review.Tenant{
		ID:            "t-1",
		OwnerID:       "owner-1",
		Repo:          "acme/widget",
		WebhookSecret: "s3cret",
		Active:        true,
	}
}

func pushBody(repo string) []byte {
	body, _ := json.Marshal(map[string]any{
		"ref":        "refs/heads/main",
		"before":     "abc",
		"after":      "def",
		"repository": map[string]any{"full_name": repo},
	})
	return body
}

func newHandler(events *fakeEventRepo, publisher *fakePublisher) *WebhookHandler {
	tenants := &fakeTenantRepo{bySecret: map[string]*review.Tenant{"s3cret": testTenant()}}
	return NewWebhookHandler(testConfig(), tenants, events, publisher, nil)
}

func postTenantWebhook(t *testing.T, h *WebhookHandler, secret string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/webhook/"+secret, bytes.NewReader(body))
	r.SetPathValue("secret", secret)
	r.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.HandleTenantWebhook(w, r)
	return w
}

func TestWebhook_PushRecordedAndEnqueued(t *testing.T) {
	events := &fakeEventRepo{}
	publisher := &fakePublisher{}
	h := newHandler(events, publisher)

	w := postTenantWebhook(t, h, "s3cret", pushBody("acme/widget"), map[string]string{
		"X-GitHub-Event":    "push",
		"X-GitHub-Delivery": "d-1",
	})

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["ok"])
	assert.Equal(t, "evt-d-1", resp["event_id"])

	require.Len(t, events.recorded, 1)
	assert.Equal(t, "acme/widget", events.recorded[0].Repo)
	assert.Equal(t, "def", events.recorded[0].AfterSHA)
	assert.Equal(t, "t-1", events.recorded[0].TenantID)
	assert.Equal(t, "owner-1", events.recorded[0].OwnerID)

	require.Len(t, publisher.published, 1)
	assert.Equal(t, "evt-d-1", publisher.published[0].EventID)
}

func TestWebhook_DuplicateDeliveryNotReenqueued(t *testing.T) {
	events := &fakeEventRepo{}
	publisher := &fakePublisher{}
	h := newHandler(events, publisher)

	headers := map[string]string{"X-GitHub-Event": "push", "X-GitHub-Delivery": "d-1"}

	first := postTenantWebhook(t, h, "s3cret", pushBody("acme/widget"), headers)
	second := postTenantWebhook(t, h, "s3cret", pushBody("acme/widget"), headers)

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)

	var firstResp, secondResp map[string]any
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &firstResp))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &secondResp))
	assert.Equal(t, firstResp["event_id"], secondResp["event_id"])

	assert.Len(t, publisher.published, 1, "a replayed delivery must not schedule another review")
}

func TestWebhook_NonTriggeringEventRecordedButNotEnqueued(t *testing.T) {
	events := &fakeEventRepo{}
	publisher := &fakePublisher{}
	h := newHandler(events, publisher)

	w := postTenantWebhook(t, h, "s3cret", pushBody("acme/widget"), map[string]string{
		"X-GitHub-Event":    "ping",
		"X-GitHub-Delivery": "d-ping",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, events.recorded, 1)
	assert.Empty(t, publisher.published)
}

func TestWebhook_EnqueueFailureStillReturnsOK(t *testing.T) {
	events := &fakeEventRepo{}
	publisher := &fakePublisher{err: assert.AnError}
	h := newHandler(events, publisher)

	w := postTenantWebhook(t, h, "s3cret", pushBody("acme/widget"), map[string]string{
		"X-GitHub-Event":    "push",
		"X-GitHub-Delivery": "d-1",
	})

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["ok"])
	assert.Len(t, events.recorded, 1, "event must be durable even when the queue is down")
}

func TestWebhook_UnknownSecretIs404(t *testing.T) {
	h := newHandler(&fakeEventRepo{}, &fakePublisher{})

	w := postTenantWebhook(t, h, "wrong", pushBody("acme/widget"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebhook_RepoMismatchIs400(t *testing.T) {
	events := &fakeEventRepo{}
	h := newHandler(events, &fakePublisher{})

	w := postTenantWebhook(t, h, "s3cret", pushBody("someone-else/repo"), map[string]string{
		"X-GitHub-Event": "push",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, events.recorded)
}

func TestWebhook_BadSignatureIs401(t *testing.T) {
	h := newHandler(&fakeEventRepo{}, &fakePublisher{})

	w := postTenantWebhook(t, h, "s3cret", pushBody("acme/widget"), map[string]string{
		"X-GitHub-Event":      "push",
		"X-Hub-Signature-256": "sha256=deadbeef",
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhook_ValidSignatureAccepted(t *testing.T) {
	events := &fakeEventRepo{}
	h := newHandler(events, &fakePublisher{})

	body := pushBody("acme/widget")
	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write(body)
	sig := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	w := postTenantWebhook(t, h, "s3cret", body, map[string]string{
		"X-GitHub-Event":      "push",
		"X-GitHub-Delivery":   "d-sig",
		"X-Hub-Signature-256": sig,
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, events.recorded, 1)
}

func TestWebhook_FormEncodedPayload(t *testing.T) {
	events := &fakeEventRepo{}
	h := newHandler(events, &fakePublisher{})

	form := url.Values{"payload": {string(pushBody("acme/widget"))}}
	r := httptest.NewRequest(http.MethodPost, "/webhook/s3cret", strings.NewReader(form.Encode()))
	r.SetPathValue("secret", "s3cret")
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Header.Set("X-GitHub-Event", "push")
	r.Header.Set("X-GitHub-Delivery", "d-form")
	w := httptest.NewRecorder()

	h.HandleTenantWebhook(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, events.recorded, 1)
	assert.Equal(t, "acme/widget", events.recorded[0].Repo)
	assert.JSONEq(t, string(pushBody("acme/widget")), string(events.recorded[0].RawJSON))
}

func TestWebhook_UnparseableBodyIs400(t *testing.T) {
	h := newHandler(&fakeEventRepo{}, &fakePublisher{})

	w := postTenantWebhook(t, h, "s3cret", []byte("not json"), map[string]string{
		"X-GitHub-Event": "push",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhook_LegacyEndpointWithoutSecret(t *testing.T) {
	events := &fakeEventRepo{}
	publisher := &fakePublisher{}
	tenants := &fakeTenantRepo{bySecret: map[string]*review.Tenant{}}
	h := NewWebhookHandler(testConfig(), tenants, events, publisher, nil)

	r := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(pushBody("acme/widget")))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("X-GitHub-Event", "pull_request")
	r.Header.Set("X-GitHub-Delivery", "d-legacy")
	w := httptest.NewRecorder()

	h.HandleLegacyWebhook(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, events.recorded, 1)
	assert.Empty(t, events.recorded[0].TenantID)
	assert.Len(t, publisher.published, 1)
}

type fakeCache struct {
	entries map[string]string
}

func (f *fakeCache) Lookup(_ context.Context, deliveryID string) (string, bool, error) {
	id, ok := f.entries[deliveryID]
	return id, ok, nil
}

func (f *fakeCache) Remember(_ context.Context, deliveryID, eventID string) error {
	f.entries[deliveryID] = eventID
	return nil
}

func TestWebhook_CacheShortCircuitsRepeatDelivery(t *testing.T) {
	events := &fakeEventRepo{}
	publisher := &fakePublisher{}
	cache := &fakeCache{entries: map[string]string{"d-cached": "evt-old"}}
	tenants := &fakeTenantRepo{bySecret: map[string]*review.Tenant{"s3cret": testTenant()}}
	h := NewWebhookHandler(testConfig(), tenants, events, publisher, cache)

	w := postTenantWebhook(t, h, "s3cret", pushBody("acme/widget"), map[string]string{
		"X-GitHub-Event":    "push",
		"X-GitHub-Delivery": "d-cached",
	})

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "evt-old", resp["event_id"])

	assert.Empty(t, events.recorded, "cache hit must not touch the database")
	assert.Empty(t, publisher.published)
}
