package config

import (
	"github.com/pitabwire/frame/config"
)

// WebhookConfig defines configuration for the webhook intake service. The
// service records inbound GitHub events and publishes review requests to
// the queue for the worker.
type WebhookConfig struct {
	config.ConfigurationDefault

	// ==========================================================================
	// GitHub Configuration
	// ==========================================================================

	// GitHubWebhookSecret verifies payload signatures on the legacy
	// /webhook endpoint. Empty disables verification there; tenant
	// endpoints verify against the tenant's own secret.
	GitHubWebhookSecret string `env:"GITHUB_WEBHOOK_SECRET"`

	// ==========================================================================
	// Review Request Queue (outgoing to workers)
	// ==========================================================================

	// QueueReviewRequestName is the name of the review request queue.
	QueueReviewRequestName string `envDefault:"review.requests" env:"QUEUE_REVIEW_REQUEST_NAME"`

	// QueueReviewRequestURI is the URI of the review request queue.
	QueueReviewRequestURI string `envDefault:"mem://review.requests" env:"QUEUE_REVIEW_REQUEST_URI"`

	// ==========================================================================
	// Delivery Cache
	// ==========================================================================

	// CacheURI is the Redis address for the delivery fast-path cache.
	// Empty disables the cache; intake then always hits the database.
	CacheURI string `env:"CACHE_URI"`

	// DeliveryCacheTTLHours is how long delivery IDs stay cached.
	DeliveryCacheTTLHours int `envDefault:"24" env:"DELIVERY_CACHE_TTL_HOURS"`

	// ==========================================================================
	// Admin API
	// ==========================================================================

	// AdminAPIKey guards the tenant management endpoints.
	AdminAPIKey string `env:"ADMIN_API_KEY"`

	// PublicBaseURL is the externally reachable base URL, used to build
	// the webhook URL handed back on tenant registration.
	PublicBaseURL string `envDefault:"http://localhost:8080" env:"PUBLIC_BASE_URL"`

	// ==========================================================================
	// Rate Limiting
	// ==========================================================================

	// RateLimitPerMinute caps inbound requests per client per minute.
	RateLimitPerMinute int `envDefault:"120" env:"RATE_LIMIT_PER_MINUTE"`

	// RateLimitBurst is the burst allowance on top of the rate.
	RateLimitBurst int `envDefault:"30" env:"RATE_LIMIT_BURST"`
}
