package config

import (
	"github.com/pitabwire/frame/config"
)

// WorkerConfig defines configuration for the review worker service. The
// worker consumes review requests from the queue, resolves the diff,
// runs the analyzers and persists the outcome.
type WorkerConfig struct {
	config.ConfigurationDefault

	// ==========================================================================
	// GitHub Configuration
	// ==========================================================================

	// GitHubToken authenticates diff and content fetches. Empty works
	// for public repositories at a lower rate limit.
	GitHubToken string `env:"GITHUB_TOKEN"`

	// GitHubAPIBaseURL points at the GitHub API host.
	GitHubAPIBaseURL string `envDefault:"https://api.github.com" env:"GITHUB_API_BASE_URL"`

	// ==========================================================================
	// AI Review Configuration
	// ==========================================================================

	// OpenAIAPIKey enables the AI reviewer. Empty disables it; reviews
	// then carry static findings only.
	OpenAIAPIKey string `env:"OPENAI_API_KEY"`

	// OpenAIModel is the chat completion model used for review.
	OpenAIModel string `envDefault:"gpt-4o" env:"OPENAI_MODEL"`

	// ==========================================================================
	// Pipeline Limits
	// ==========================================================================

	// MaxFilesPerReview caps how many changed files one review analyzes.
	MaxFilesPerReview int `envDefault:"20" env:"MAX_FILES_PER_REVIEW"`

	// MaxConcurrentFiles bounds how many files are analyzed in parallel.
	MaxConcurrentFiles int `envDefault:"4" env:"MAX_CONCURRENT_FILES"`

	// LintToolTimeoutSeconds bounds one lint tool invocation.
	LintToolTimeoutSeconds int `envDefault:"30" env:"LINT_TOOL_TIMEOUT_SECONDS"`

	// ==========================================================================
	// Lint Sandbox
	// ==========================================================================

	// LintSandbox selects where lint tools run: "exec" for local
	// subprocesses, "docker" for disposable containers.
	LintSandbox string `envDefault:"exec" env:"LINT_SANDBOX"`

	// LintSandboxImage is the container image for the docker sandbox.
	// It must have ruff, black and bandit installed.
	LintSandboxImage string `envDefault:"codesense-lint:latest" env:"LINT_SANDBOX_IMAGE"`

	// ==========================================================================
	// Review Request Queue (incoming from webhook)
	// ==========================================================================

	// QueueReviewRequestName is the name of the review request queue.
	QueueReviewRequestName string `envDefault:"review.requests" env:"QUEUE_REVIEW_REQUEST_NAME"`

	// QueueReviewRequestURI is the URI of the review request queue.
	QueueReviewRequestURI string `envDefault:"mem://review.requests" env:"QUEUE_REVIEW_REQUEST_URI"`

	// ==========================================================================
	// Review Result Queue (outgoing notifications)
	// ==========================================================================

	// QueueReviewResultName is the name of the review result queue.
	QueueReviewResultName string `envDefault:"review.results" env:"QUEUE_REVIEW_RESULT_NAME"`

	// QueueReviewResultURI is the URI of the review result queue.
	QueueReviewResultURI string `envDefault:"mem://review.results" env:"QUEUE_REVIEW_RESULT_URI"`
}
