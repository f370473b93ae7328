// Package review defines the domain types shared between webhook intake,
// the pipeline worker and the persistence layer: events, reviews, findings
// and the severity scale used to rank them.
package review

import (
	"sort"
	"strings"
	"time"
)

// Severity is the four-level scale attached to every finding.
type Severity string

const (
	SeverityInfo   Severity = "info"
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank returns the numeric rank of a severity (higher = more severe).
// Unknown values rank below info so they never win a reconciliation
// tie against a well-formed finding.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 4
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 2
	case SeverityInfo:
		return 1
	}
	return 0
}

// NormalizeSeverity maps arbitrary tool output ("LOW", "Medium", "") onto
// the severity enumeration, defaulting to info.
func NormalizeSeverity(raw string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(raw))) {
	case SeverityHigh:
		return SeverityHigh
	case SeverityMedium:
		return SeverityMedium
	case SeverityLow:
		return SeverityLow
	case SeverityInfo:
		return SeverityInfo
	}
	return SeverityInfo
}

// Status is the lifecycle state of a review. Transitions only move
// forward: running -> done.
type Status string

const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
)

// EventType tags the kind of inbound notification an event records.
type EventType string

const (
	EventTypePush        EventType = "push"
	EventTypePullRequest EventType = "pull_request"
)

// Triggers returns true when events of this type schedule a pipeline run.
func (t EventType) Triggers() bool {
	return t == EventTypePush || t == EventTypePullRequest
}

// Event is one recorded inbound push/PR notification. Events are created
// exactly once per delivery ID, never mutated and never deleted.
type Event struct {
	ID         string
	DeliveryID string
	Type       EventType
	Repo       string
	Ref        string
	AfterSHA   string
	CreatedAt  time.Time
	RawPayload []byte
	OwnerID    string
	TenantID   string
}

// Review is one pipeline execution against an event. A review is
// immutable once its status reaches done.
type Review struct {
	ID         string
	EventID    string
	Status     Status
	StartedAt  time.Time
	FinishedAt *time.Time
	Summary    Summary
}

// Summary is the terminal digest written alongside the done transition.
type Summary struct {
	Count int    `json:"count"`
	Files int    `json:"files,omitempty"`
	Error string `json:"error,omitempty"`
}

// Finding is one issue surfaced by one analyzer for one file within one
// review. Findings are write-once and owned by their review.
type Finding struct {
	FilePath  string   `json:"file"`
	Severity  Severity `json:"severity"`
	Title     string   `json:"title"`
	Rationale string   `json:"rationale,omitempty"`
	StartLine *int     `json:"start_line,omitempty"`
	EndLine   *int     `json:"end_line,omitempty"`
	Patch     string   `json:"patch,omitempty"`
	Tool      string   `json:"tool"`
}

// Tenant is the per-repository credential used to authenticate and route
// inbound webhook deliveries. Deactivation is a soft delete: historical
// events stay attributed to the tenant.
type Tenant struct {
	ID            string
	OwnerID       string
	Repo          string
	WebhookSecret string
	Active        bool
	CreatedAt     time.Time
}

// SortForDisplay orders findings by file path, then severity (most severe
// first), preserving input order within equal groups.
func SortForDisplay(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].FilePath != findings[j].FilePath {
			return findings[i].FilePath < findings[j].FilePath
		}
		return findings[i].Severity.Rank() > findings[j].Severity.Rank()
	})
}
