package main

import (
	"context"
	"net/http"
	"time"

	"github.com/pitabwire/frame"
	"github.com/pitabwire/frame/config"
	"github.com/pitabwire/frame/datastore"
	"github.com/pitabwire/util"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/Atharva309/CodeSense/apps/webhook/config"
	"github.com/Atharva309/CodeSense/apps/webhook/middleware"
	"github.com/Atharva309/CodeSense/apps/webhook/service/handlers"
	"github.com/Atharva309/CodeSense/internal/dedup"
	"github.com/Atharva309/CodeSense/internal/store"
)

func main() {
	ctx := context.Background()

	// Initialize configuration
	cfg, err := config.LoadWithOIDC[appconfig.WebhookConfig](ctx)
	if err != nil {
		util.Log(ctx).With("err", err).Error("could not process configs")
		return
	}

	if cfg.Name() == "" {
		cfg.ServiceName = "review_webhook"
	}

	// Create service with Frame
	ctx, svc := frame.NewServiceWithContext(
		ctx,
		frame.WithConfig(&cfg),
		frame.WithDatastore(),
	)
	defer svc.Stop(ctx)
	log := svc.Log(ctx)

	dbManager := svc.DatastoreManager()
	if handleDatabaseMigration(ctx, dbManager, cfg) {
		return
	}

	dbPool := dbManager.GetPool(ctx, datastore.DefaultPoolName)

	// ==========================================================================
	// Setup Repositories
	// ==========================================================================

	tenantRepo := store.NewTenantRepository(dbPool)
	eventRepo := store.NewEventRepository(dbPool)

	// ==========================================================================
	// Register Publishers
	// ==========================================================================

	reviewRequestPublisher := frame.WithRegisterPublisher(
		cfg.QueueReviewRequestName,
		cfg.QueueReviewRequestURI,
	)

	// ==========================================================================
	// Setup HTTP Server
	// ==========================================================================

	deliveryCache := setupDeliveryCache(&cfg)
	webhookHandler := handlers.NewWebhookHandler(&cfg, tenantRepo, eventRepo, svc.QueueManager(), deliveryCache)
	tenantHandler := handlers.NewTenantHandler(&cfg, tenantRepo)

	mux := http.NewServeMux()

	// Health check endpoints
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy","service":"webhook"}`))
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready","service":"webhook"}`))
	})

	// Webhook intake
	mux.HandleFunc("POST /webhook", webhookHandler.HandleLegacyWebhook)
	mux.HandleFunc("POST /webhook/{secret}", webhookHandler.HandleTenantWebhook)

	// Tenant administration
	mux.HandleFunc("POST /admin/tenants", tenantHandler.HandleCreate)
	mux.HandleFunc("GET /admin/tenants", tenantHandler.HandleList)
	mux.HandleFunc("DELETE /admin/tenants/{id}", tenantHandler.HandleDeactivate)

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst)
	defer rateLimiter.Stop()

	// ==========================================================================
	// Initialize Service
	// ==========================================================================

	serviceOptions := []frame.Option{
		frame.WithHTTPHandler(rateLimiter.Middleware(mux)),
		reviewRequestPublisher,
	}

	svc.Init(ctx, serviceOptions...)

	// ==========================================================================
	// Start the Service
	// ==========================================================================

	log.Info("Starting webhook service...")
	err = svc.Run(ctx, "")
	if err != nil {
		log.WithError(err).Fatal("could not run server")
	}
}

func handleDatabaseMigration(
	ctx context.Context,
	dbManager datastore.Manager,
	cfg appconfig.WebhookConfig,
) bool {
	if cfg.DoDatabaseMigrate() {
		pool := dbManager.GetPool(ctx, datastore.DefaultPoolName)
		if err := store.Migrate(ctx, pool); err != nil {
			util.Log(ctx).WithError(err).Fatal("could not migrate")
		}
		return true
	}
	return false
}

func setupDeliveryCache(cfg *appconfig.WebhookConfig) handlers.DeliveryCache {
	if cfg.CacheURI == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.CacheURI})
	ttl := time.Duration(cfg.DeliveryCacheTTLHours) * time.Hour
	return dedup.NewDeliveryCache(client, ttl)
}
