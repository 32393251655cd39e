package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront-payments/internal/model"
)

var ErrMembershipNotFound = errors.New("membership not found")

type MembershipRepository interface {
	// Upsert stores the latest known state of a Stripe subscription.
	Upsert(ctx context.Context, tx *gorm.DB, m *model.Membership) error
	GetBySubscriptionID(ctx context.Context, subscriptionID string) (*model.Membership, error)
	List(ctx context.Context, status string, limit int) ([]*model.Membership, error)
}

type membershipRepoImpl struct {
	db *gorm.DB
}

func NewMembershipRepository(db *gorm.DB) MembershipRepository {
	return &membershipRepoImpl{
		db: db,
	}
}

func (r *membershipRepoImpl) Upsert(ctx context.Context, tx *gorm.DB, m *model.Membership) error {
	db := r.db
	if tx != nil {
		db = tx
	}
	m.UpdatedAt = time.Now()

	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "subscription_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"customer_id", "customer_email", "status", "current_period_end", "canceled_at", "updated_at",
			}),
		}).
		Create(m).Error
	if err != nil {
		return fmt.Errorf("upsert membership %s: %w", m.SubscriptionID, err)
	}
	return nil
}

func (r *membershipRepoImpl) GetBySubscriptionID(ctx context.Context, subscriptionID string) (*model.Membership, error) {
	var m model.Membership
	err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		First(&m).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMembershipNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *membershipRepoImpl) List(ctx context.Context, status string, limit int) ([]*model.Membership, error) {
	var out []*model.Membership
	q := r.db.WithContext(ctx).Order("updated_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	return out, nil
}
