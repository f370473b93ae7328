// Package pipeline runs one review end to end: resolve the diff, analyze
// each changed file, reconcile the findings and persist the outcome.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/pitabwire/util"

	appconfig "github.com/Atharva309/CodeSense/apps/worker/config"
	"github.com/Atharva309/CodeSense/internal/analyzers"
	"github.com/Atharva309/CodeSense/internal/githost"
	"github.com/Atharva309/CodeSense/internal/review"
	"github.com/Atharva309/CodeSense/internal/store"
)

// GitHost is the slice of the GitHub client the orchestrator needs.
type GitHost interface {
	Compare(ctx context.Context, repo, base, head string) ([]githost.ChangedFile, error)
	FileContent(ctx context.Context, repo, path, ref string) (string, bool)
}

// Publisher is the slice of the queue manager the orchestrator needs.
type Publisher interface {
	Publish(ctx context.Context, queueName string, payload any, headers ...map[string]string) error
}

// ReviewResult is the queue message announcing a finished review.
type ReviewResult struct {
	EventID  string `json:"event_id"`
	ReviewID string `json:"review_id"`
	Count    int    `json:"count"`
}

// Orchestrator drives the review pipeline for one event at a time.
type Orchestrator struct {
	cfg       *appconfig.WorkerConfig
	events    store.EventRepository
	reviews   store.ReviewRepository
	host      GitHost
	static    analyzers.Analyzer
	ai        analyzers.Analyzer
	publisher Publisher

	// Semaphore for limiting concurrent file analysis
	fileSem chan struct{}
}

// NewOrchestrator creates a pipeline orchestrator.
func NewOrchestrator(
	cfg *appconfig.WorkerConfig,
	events store.EventRepository,
	reviews store.ReviewRepository,
	host GitHost,
	static analyzers.Analyzer,
	ai analyzers.Analyzer,
	publisher Publisher,
) *Orchestrator {
	concurrency := cfg.MaxConcurrentFiles
	if concurrency < 1 {
		concurrency = 1
	}
	return &Orchestrator{
		cfg:       cfg,
		events:    events,
		reviews:   reviews,
		host:      host,
		static:    static,
		ai:        ai,
		publisher: publisher,
		fileSem:   make(chan struct{}, concurrency),
	}
}

// beforePayload extracts the base commit from the stored webhook body;
// it is present on push events.
type beforePayload struct {
	Before string `json:"before"`
}

// Run executes the pipeline for one recorded event. Analyzer trouble is
// absorbed into the review outcome; an error return means the review
// itself could not be persisted and the message should be retried.
func (o *Orchestrator) Run(ctx context.Context, eventID string) error {
	log := util.Log(ctx)

	event, err := o.events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, store.ErrEventNotFound) {
			log.Warn("review requested for unknown event", "event_id", eventID)
			return nil
		}
		return fmt.Errorf("load event: %w", err)
	}

	var payload beforePayload
	if len(event.RawPayload) > 0 {
		_ = json.Unmarshal(event.RawPayload, &payload)
	}

	rv, err := o.reviews.Begin(ctx, event.ID)
	if err != nil {
		return fmt.Errorf("begin review: %w", err)
	}

	// Without both ends of the diff there is nothing to analyze; the
	// review still finishes so the event shows an outcome.
	if event.Repo == "" || event.AfterSHA == "" || payload.Before == "" {
		log.Info("event has no comparable refs, finishing empty review",
			"event_id", event.ID,
			"review_id", rv.ID,
		)
		return o.finish(ctx, event, rv.ID, nil, review.Summary{Count: 0})
	}

	files, err := o.host.Compare(ctx, event.Repo, payload.Before, event.AfterSHA)
	if err != nil {
		log.WithError(err).Warn("commit comparison failed",
			"event_id", event.ID,
			"repo", event.Repo,
		)
		return o.finish(ctx, event, rv.ID, nil, review.Summary{Count: 0, Error: "diff_unavailable"})
	}

	if max := o.cfg.MaxFilesPerReview; max > 0 && len(files) > max {
		log.Info("capping changed files for review",
			"event_id", event.ID,
			"changed", len(files),
			"cap", max,
		)
		files = files[:max]
	}

	// Fan out per file; each slot keeps its slice so merged output stays
	// in changed-file order regardless of completion order.
	results := make([][]review.Finding, len(files))
	var wg sync.WaitGroup
	for i := range files {
		if files[i].Path == "" {
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			select {
			case o.fileSem <- struct{}{}:
				defer func() { <-o.fileSem }()
			case <-ctx.Done():
				return
			}

			results[i] = o.reviewFile(ctx, event, &files[i])
		}(i)
	}
	wg.Wait()

	var all []review.Finding
	for i := range results {
		all = append(all, results[i]...)
	}

	findings := Reconcile(all)
	summary := review.Summary{Count: len(findings), Files: len(files)}

	return o.finish(ctx, event, rv.ID, findings, summary)
}

func (o *Orchestrator) reviewFile(
	ctx context.Context,
	event *review.Event,
	file *githost.ChangedFile,
) []review.Finding {
	log := util.Log(ctx)

	content, ok := o.host.FileContent(ctx, event.Repo, file.Path, event.AfterSHA)
	if !ok || content == "" || len(content) > analyzers.MaxFileChars {
		return nil
	}

	in := &analyzers.Input{
		Repo:    event.Repo,
		Path:    file.Path,
		Content: content,
	}

	lints, err := o.static.Analyze(ctx, in)
	if err != nil {
		log.WithError(err).Warn("static analysis failed", "file", file.Path)
		lints = nil
	}

	in.Prior = lints
	aiFindings, err := o.ai.Analyze(ctx, in)
	if err != nil {
		log.WithError(err).Warn("ai analysis failed", "file", file.Path)
		aiFindings = nil
	}

	return append(lints, aiFindings...)
}

// finish persists the terminal state and announces it. A review that was
// already finished by a competing worker is left untouched.
func (o *Orchestrator) finish(
	ctx context.Context,
	event *review.Event,
	reviewID string,
	findings []review.Finding,
	summary review.Summary,
) error {
	log := util.Log(ctx)

	err := o.reviews.Finish(ctx, reviewID, findings, summary)
	if err != nil {
		if errors.Is(err, store.ErrReviewFinished) {
			log.Warn("review already finished", "review_id", reviewID)
			return nil
		}
		return fmt.Errorf("finish review: %w", err)
	}

	log.Info("review finished",
		"event_id", event.ID,
		"review_id", reviewID,
		"findings", summary.Count,
	)

	if o.publisher != nil {
		result := &ReviewResult{
			EventID:  event.ID,
			ReviewID: reviewID,
			Count:    summary.Count,
		}
		if pubErr := o.publisher.Publish(ctx, o.cfg.QueueReviewResultName, result); pubErr != nil {
			log.WithError(pubErr).Warn("failed to publish review result", "review_id", reviewID)
		}
	}
	return nil
}
