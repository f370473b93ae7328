// Package store persists tenants, events, reviews and findings. It is the
// only component that touches the database; everything above it speaks the
// domain types from internal/review.
package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Common errors.
var (
	ErrEventNotFound  = errors.New("event not found")
	ErrReviewNotFound = errors.New("review not found")
	ErrTenantNotFound = errors.New("tenant not found")
	ErrReviewFinished = errors.New("review already finished")
)

// Pool is the slice of frame's datastore pool the repositories need.
// frame's pool.Pool satisfies it; tests provide a single-connection fake.
type Pool interface {
	DB(ctx context.Context, readOnly bool) *gorm.DB
}

// Migrate creates or updates the schema for all models.
func Migrate(ctx context.Context, p Pool) error {
	db := p.DB(ctx, false)
	if db == nil {
		return errors.New("database connection is not available")
	}
	return db.AutoMigrate(&Tenant{}, &Event{}, &Review{}, &Finding{})
}
