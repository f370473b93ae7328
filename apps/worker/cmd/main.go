package main

import (
	"context"
	"net/http"
	"time"

	"github.com/pitabwire/frame"
	"github.com/pitabwire/frame/config"
	"github.com/pitabwire/frame/datastore"
	"github.com/pitabwire/util"

	appconfig "github.com/Atharva309/CodeSense/apps/worker/config"
	"github.com/Atharva309/CodeSense/apps/worker/service/pipeline"
	"github.com/Atharva309/CodeSense/apps/worker/service/queue"
	"github.com/Atharva309/CodeSense/internal/analyzers"
	"github.com/Atharva309/CodeSense/internal/githost"
	"github.com/Atharva309/CodeSense/internal/store"
)

func main() {
	ctx := context.Background()

	// Initialize configuration
	cfg, err := config.LoadWithOIDC[appconfig.WorkerConfig](ctx)
	if err != nil {
		util.Log(ctx).With("err", err).Error("could not process configs")
		return
	}

	if cfg.Name() == "" {
		cfg.ServiceName = "review_worker"
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

	eventRepo := store.NewEventRepository(dbPool)
	reviewRepo := store.NewReviewRepository(dbPool)

	// ==========================================================================
	// Setup Pipeline
	// ==========================================================================

	host := githost.NewClient(
		githost.WithBaseURL(cfg.GitHubAPIBaseURL),
		githost.WithToken(cfg.GitHubToken),
	)

	runner, cleanup := setupToolRunner(ctx, &cfg)
	if cleanup != nil {
		defer cleanup()
	}

	static := analyzers.NewStaticAnalyzer(runner)
	ai := analyzers.NewAIAnalyzer(cfg.OpenAIAPIKey, cfg.OpenAIModel)

	orchestrator := pipeline.NewOrchestrator(
		&cfg,
		eventRepo,
		reviewRepo,
		host,
		static,
		ai,
		svc.QueueManager(),
	)

	// ==========================================================================
	// Register Publishers
	// ==========================================================================

	reviewResultPublisher := frame.WithRegisterPublisher(
		cfg.QueueReviewResultName,
		cfg.QueueReviewResultURI,
	)

	// ==========================================================================
	// Register Subscribers
	// ==========================================================================

	reviewRequestSubscriber := frame.WithRegisterSubscriber(
		cfg.QueueReviewRequestName,
		cfg.QueueReviewRequestURI,
		queue.NewReviewRequestHandler(orchestrator),
	)

	// ==========================================================================
	// Setup Health Endpoint
	// ==========================================================================

	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy","service":"worker"}`))
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready","service":"worker"}`))
	})

	// ==========================================================================
	// Initialize Service
	// ==========================================================================

	serviceOptions := []frame.Option{
		frame.WithHTTPHandler(mux),
		reviewResultPublisher,
		reviewRequestSubscriber,
	}

	svc.Init(ctx, serviceOptions...)

	// ==========================================================================
	// Start the Service
	// ==========================================================================

	log.Info("Starting review worker service...")
	err = svc.Run(ctx, "")
	if err != nil {
		log.WithError(err).Fatal("could not run server")
	}
}

func handleDatabaseMigration(
	ctx context.Context,
	dbManager datastore.Manager,
	cfg appconfig.WorkerConfig,
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

// setupToolRunner picks where lint tools execute. The docker sandbox
// falls back to local execution when the docker daemon is unreachable.
func setupToolRunner(ctx context.Context, cfg *appconfig.WorkerConfig) (analyzers.ToolRunner, func()) {
	timeout := time.Duration(cfg.LintToolTimeoutSeconds) * time.Second

	if cfg.LintSandbox == "docker" {
		runner, err := analyzers.NewDockerRunner(analyzers.DockerRunnerConfig{
			Image:   cfg.LintSandboxImage,
			Timeout: timeout,
		})
		if err == nil {
			return runner, func() { _ = runner.Close() }
		}
		util.Log(ctx).WithError(err).Warn("docker sandbox unavailable, using local execution")
	}

	return &analyzers.ExecRunner{Timeout: timeout}, nil
}
