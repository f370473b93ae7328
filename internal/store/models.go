package store

import (
	"time"

	"github.com/Atharva309/CodeSense/internal/review"
)

// Tenant is the persisted per-repository webhook credential.
type Tenant struct {
	ID            string     `gorm:"primaryKey"`
	OwnerID       string     `gorm:"index"`
	Repo          string     `gorm:"index"`
	WebhookSecret string     `gorm:"uniqueIndex"`
	Active        bool       `gorm:"default:true"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeactivatedAt *time.Time
}

// TableName returns the table name for the Tenant model.
func (Tenant) TableName() string {
	return "tenants"
}

func (t *Tenant) toDomain() *review.Tenant {
	return &review.Tenant{
		ID:            t.ID,
		OwnerID:       t.OwnerID,
		Repo:          t.Repo,
		WebhookSecret: t.WebhookSecret,
		Active:        t.Active,
		CreatedAt:     t.CreatedAt,
	}
}

// Event is the persisted inbound notification. The delivery ID carries a
// unique index; intake idempotency hangs off it.
type Event struct {
	ID         string    `gorm:"primaryKey"`
	DeliveryID string    `gorm:"uniqueIndex"`
	EventType  string
	Repo       string
	Ref        string
	AfterSHA   string
	CreatedAt  time.Time
	RawJSON    []byte
	OwnerID    string `gorm:"index"`
	TenantID   string `gorm:"index"`
}

// TableName returns the table name for the Event model.
func (Event) TableName() string {
	return "events"
}

func (e *Event) toDomain() *review.Event {
	return &review.Event{
		ID:         e.ID,
		DeliveryID: e.DeliveryID,
		Type:       review.EventType(e.EventType),
		Repo:       e.Repo,
		Ref:        e.Ref,
		AfterSHA:   e.AfterSHA,
		CreatedAt:  e.CreatedAt,
		RawPayload: e.RawJSON,
		OwnerID:    e.OwnerID,
		TenantID:   e.TenantID,
	}
}

// Review is one pipeline execution bound to an event.
type Review struct {
	ID          string     `gorm:"primaryKey"`
	EventID     string     `gorm:"index"`
	Status      string
	StartedAt   time.Time
	FinishedAt  *time.Time
	SummaryJSON []byte
}

// TableName returns the table name for the Review model.
func (Review) TableName() string {
	return "reviews"
}

// Finding is one persisted analyzer result row, owned by its review.
type Finding struct {
	ID        string `gorm:"primaryKey"`
	ReviewID  string `gorm:"index"`
	FilePath  string
	Severity  string
	Title     string
	Rationale string
	StartLine *int
	EndLine   *int
	Patch     string
	Tool      string
}

// TableName returns the table name for the Finding model.
func (Finding) TableName() string {
	return "findings"
}

func (f *Finding) toDomain() review.Finding {
	return review.Finding{
		FilePath:  f.FilePath,
		Severity:  review.Severity(f.Severity),
		Title:     f.Title,
		Rationale: f.Rationale,
		StartLine: f.StartLine,
		EndLine:   f.EndLine,
		Patch:     f.Patch,
		Tool:      f.Tool,
	}
}
