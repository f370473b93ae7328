package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/xid"
	"gorm.io/gorm"

	"github.com/Atharva309/CodeSense/internal/review"
)

// TenantRepository manages per-repository webhook credentials.
type TenantRepository interface {
	// Create registers a repository for an owner and mints its webhook
	// secret.
	Create(ctx context.Context, ownerID, repo string) (*review.Tenant, error)

	// FindBySecret resolves an active tenant from the secret embedded in
	// the webhook path. Deactivated or unknown secrets return
	// ErrTenantNotFound.
	FindBySecret(ctx context.Context, secret string) (*review.Tenant, error)

	// Deactivate soft-deletes a tenant so its secret stops routing.
	// Historical events keep their tenant attribution.
	Deactivate(ctx context.Context, ownerID, tenantID string) error

	// ListByOwner returns all tenants for an owner, active ones first.
	ListByOwner(ctx context.Context, ownerID string) ([]*review.Tenant, error)
}

// PGTenantRepository is the gorm implementation of TenantRepository.
type PGTenantRepository struct {
	pool Pool
}

// NewTenantRepository creates a new tenant repository.
func NewTenantRepository(pool Pool) *PGTenantRepository {
	return &PGTenantRepository{pool: pool}
}

// Create implements TenantRepository.
func (r *PGTenantRepository) Create(ctx context.Context, ownerID, repo string) (*review.Tenant, error) {
	db := r.pool.DB(ctx, false)

	row := &Tenant{
		ID:            xid.New().String(),
		OwnerID:       ownerID,
		Repo:          review.NormalizeRepoName(repo),
		WebhookSecret: uuid.NewString(),
		Active:        true,
		CreatedAt:     time.Now(),
	}
	if err := db.Create(row).Error; err != nil {
		return nil, fmt.Errorf("create tenant: %w", err)
	}
	return row.toDomain(), nil
}

// FindBySecret implements TenantRepository.
func (r *PGTenantRepository) FindBySecret(ctx context.Context, secret string) (*review.Tenant, error) {
	db := r.pool.DB(ctx, true)

	var row Tenant
	err := db.First(&row, "webhook_secret = ? AND active = ?", secret, true).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("resolve tenant: %w", err)
	}
	return row.toDomain(), nil
}

// Deactivate implements TenantRepository. The owner scope stops one owner
// deactivating another owner's tenant.
func (r *PGTenantRepository) Deactivate(ctx context.Context, ownerID, tenantID string) error {
	db := r.pool.DB(ctx, false)

	now := time.Now()
	result := db.Model(&Tenant{}).
		Where("id = ? AND owner_id = ? AND active = ?", tenantID, ownerID, true).
		Updates(map[string]any{
			"active":         false,
			"deactivated_at": &now,
		})
	if result.Error != nil {
		return fmt.Errorf("deactivate tenant: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrTenantNotFound
	}
	return nil
}

// ListByOwner implements TenantRepository.
func (r *PGTenantRepository) ListByOwner(ctx context.Context, ownerID string) ([]*review.Tenant, error) {
	db := r.pool.DB(ctx, true)

	var rows []Tenant
	err := db.Where("owner_id = ?", ownerID).
		Order("active DESC, created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}

	tenants := make([]*review.Tenant, 0, len(rows))
	for i := range rows {
		tenants = append(tenants, rows[i].toDomain())
	}
	return tenants, nil
}
