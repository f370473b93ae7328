// Package queue holds the subscriber handlers for the worker's inbound
// queues.
package queue

import (
	"context"
	"encoding/json"

	"github.com/pitabwire/util"
)

// Runner executes the review pipeline for one event.
type Runner interface {
	Run(ctx context.Context, eventID string) error
}

// ReviewRequest mirrors the message published by webhook intake.
type ReviewRequest struct {
	EventID string `json:"event_id"`
}

// ReviewRequestHandler consumes review requests from the queue.
type ReviewRequestHandler struct {
	runner Runner
}

// NewReviewRequestHandler creates a new review request handler.
func NewReviewRequestHandler(runner Runner) *ReviewRequestHandler {
	return &ReviewRequestHandler{runner: runner}
}

// Handle processes one queue message. Malformed messages are dropped
// rather than returned as errors; redelivery cannot fix them.
func (h *ReviewRequestHandler) Handle(ctx context.Context, _ map[string]string, payload []byte) error {
	log := util.Log(ctx)

	var req ReviewRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		log.WithError(err).Error("dropping malformed review request")
		return nil
	}
	if req.EventID == "" {
		log.Error("dropping review request without event_id")
		return nil
	}

	log.Info("processing review request", "event_id", req.EventID)
	return h.runner.Run(ctx, req.EventID)
}
