package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"gorm.io/gorm"

	"github.com/Atharva309/CodeSense/internal/review"
)

// ReviewRepository persists pipeline executions and their findings.
type ReviewRepository interface {
	// Begin creates a running review bound to the event.
	Begin(ctx context.Context, eventID string) (*review.Review, error)

	// Finish writes the findings and flips the review to done in one
	// transaction. A review that already reached done is immutable;
	// finishing it again returns ErrReviewFinished.
	Finish(ctx context.Context, reviewID string, findings []review.Finding, summary review.Summary) error

	// GetByID loads a review; ErrReviewNotFound when absent.
	GetByID(ctx context.Context, id string) (*review.Review, error)

	// FindingsForReview returns the persisted findings in display order.
	FindingsForReview(ctx context.Context, reviewID string) ([]review.Finding, error)
}

// PGReviewRepository is the gorm implementation of ReviewRepository.
type PGReviewRepository struct {
	pool Pool
}

// NewReviewRepository creates a new review repository.
func NewReviewRepository(pool Pool) *PGReviewRepository {
	return &PGReviewRepository{pool: pool}
}

// Begin implements ReviewRepository.
func (r *PGReviewRepository) Begin(ctx context.Context, eventID string) (*review.Review, error) {
	db := r.pool.DB(ctx, false)

	row := &Review{
		ID:        xid.New().String(),
		EventID:   eventID,
		Status:    string(review.StatusRunning),
		StartedAt: time.Now(),
	}
	if err := db.Create(row).Error; err != nil {
		return nil, fmt.Errorf("begin review: %w", err)
	}

	return &review.Review{
		ID:        row.ID,
		EventID:   row.EventID,
		Status:    review.StatusRunning,
		StartedAt: row.StartedAt,
	}, nil
}

// Finish implements ReviewRepository. The status update is guarded on the
// review still being in the running state, so concurrent finishers cannot
// double-write findings.
func (r *PGReviewRepository) Finish(
	ctx context.Context,
	reviewID string,
	findings []review.Finding,
	summary review.Summary,
) error {
	db := r.pool.DB(ctx, false)

	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	return db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		result := tx.Model(&Review{}).
			Where("id = ? AND status = ?", reviewID, string(review.StatusRunning)).
			Updates(map[string]any{
				"status":       string(review.StatusDone),
				"finished_at":  &now,
				"summary_json": summaryJSON,
			})
		if result.Error != nil {
			return fmt.Errorf("finish review: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			var existing Review
			if err := tx.First(&existing, "id = ?", reviewID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrReviewNotFound
				}
				return fmt.Errorf("finish review: %w", err)
			}
			return ErrReviewFinished
		}

		if len(findings) == 0 {
			return nil
		}

		rows := make([]Finding, 0, len(findings))
		for _, f := range findings {
			rows = append(rows, Finding{
				ID:        xid.New().String(),
				ReviewID:  reviewID,
				FilePath:  f.FilePath,
				Severity:  string(f.Severity),
				Title:     f.Title,
				Rationale: f.Rationale,
				StartLine: f.StartLine,
				EndLine:   f.EndLine,
				Patch:     f.Patch,
				Tool:      f.Tool,
			})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("persist findings: %w", err)
		}
		return nil
	})
}

// GetByID implements ReviewRepository.
func (r *PGReviewRepository) GetByID(ctx context.Context, id string) (*review.Review, error) {
	db := r.pool.DB(ctx, true)

	var row Review
	if err := db.First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReviewNotFound
		}
		return nil, fmt.Errorf("load review %s: %w", id, err)
	}

	out := &review.Review{
		ID:         row.ID,
		EventID:    row.EventID,
		Status:     review.Status(row.Status),
		StartedAt:  row.StartedAt,
		FinishedAt: row.FinishedAt,
	}
	if len(row.SummaryJSON) > 0 {
		if err := json.Unmarshal(row.SummaryJSON, &out.Summary); err != nil {
			return nil, fmt.Errorf("decode review summary: %w", err)
		}
	}
	return out, nil
}

// FindingsForReview implements ReviewRepository.
func (r *PGReviewRepository) FindingsForReview(ctx context.Context, reviewID string) ([]review.Finding, error) {
	db := r.pool.DB(ctx, true)

	var rows []Finding
	if err := db.Where("review_id = ?", reviewID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load findings: %w", err)
	}

	findings := make([]review.Finding, 0, len(rows))
	for i := range rows {
		findings = append(findings, rows[i].toDomain())
	}
	review.SortForDisplay(findings)
	return findings, nil
}
