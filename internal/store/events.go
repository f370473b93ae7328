package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Atharva309/CodeSense/internal/review"
)

// RecordEventInput carries everything webhook intake knows about a delivery.
type RecordEventInput struct {
	DeliveryID string
	EventType  string
	Repo       string
	Ref        string
	AfterSHA   string
	RawJSON    []byte
	OwnerID    string
	TenantID   string
}

// EventRepository persists inbound events.
type EventRepository interface {
	// Record stores the event idempotently by delivery ID. When the
	// delivery was seen before, the existing event ID is returned and
	// created is false.
	Record(ctx context.Context, in *RecordEventInput) (eventID string, created bool, err error)

	// GetByID loads an event; ErrEventNotFound when absent.
	GetByID(ctx context.Context, id string) (*review.Event, error)
}

// PGEventRepository is the gorm implementation of EventRepository.
type PGEventRepository struct {
	pool Pool
}

// NewEventRepository creates a new event repository.
func NewEventRepository(pool Pool) *PGEventRepository {
	return &PGEventRepository{pool: pool}
}

// Record implements EventRepository. Concurrent duplicate deliveries race
// on the delivery_id unique index; the loser re-reads the winner's row so
// both callers observe the same event ID.
func (r *PGEventRepository) Record(
	ctx context.Context,
	in *RecordEventInput,
) (string, bool, error) {
	db := r.pool.DB(ctx, false)

	event := &Event{
		ID:         xid.New().String(),
		DeliveryID: in.DeliveryID,
		EventType:  in.EventType,
		Repo:       in.Repo,
		Ref:        in.Ref,
		AfterSHA:   in.AfterSHA,
		CreatedAt:  time.Now(),
		RawJSON:    in.RawJSON,
		OwnerID:    in.OwnerID,
		TenantID:   in.TenantID,
	}

	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "delivery_id"}},
		DoNothing: true,
	}).Create(event)
	if result.Error != nil {
		return "", false, fmt.Errorf("record event: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		return event.ID, true, nil
	}

	var existing Event
	if err := db.First(&existing, "delivery_id = ?", in.DeliveryID).Error; err != nil {
		return "", false, fmt.Errorf("load duplicate event: %w", err)
	}
	return existing.ID, false, nil
}

// GetByID implements EventRepository.
func (r *PGEventRepository) GetByID(ctx context.Context, id string) (*review.Event, error) {
	db := r.pool.DB(ctx, true)

	var event Event
	if err := db.First(&event, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("load event %s: %w", id, err)
	}
	return event.toDomain(), nil
}
