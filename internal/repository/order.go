package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront-payments/internal/model"
)

var ErrOrderNotFound = errors.New("order not found")

type OrderRepository interface {
	// FindOrCreateByPaymentIntent inserts order unless one already exists for
	// its payment intent, and returns the stored row. created reports whether
	// this call inserted it.
	FindOrCreateByPaymentIntent(ctx context.Context, tx *gorm.DB, order *model.Order) (stored *model.Order, created bool, err error)
	FindByPaymentIntentID(ctx context.Context, tx *gorm.DB, paymentIntentID string) (*model.Order, error)
	FindByID(ctx context.Context, tx *gorm.DB, id string) (*model.Order, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, id string, status model.OrderStatus) error
	// MarkShipped moves a paid order to shipped. It reports false when the
	// order was not paid anymore.
	MarkShipped(ctx context.Context, tx *gorm.DB, id, trackingNumber string) (bool, error)
	List(ctx context.Context, status model.OrderStatus, limit, offset int) ([]*model.Order, error)
	Count(ctx context.Context, status model.OrderStatus) (int64, error)
}

type orderRepoImpl struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepoImpl{
		db: db,
	}
}

func (r *orderRepoImpl) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *orderRepoImpl) FindOrCreateByPaymentIntent(ctx context.Context, tx *gorm.DB, order *model.Order) (*model.Order, bool, error) {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.Metadata == nil {
		order.Metadata = map[string]string{}
	}
	if order.Items == nil {
		order.Items = []model.OrderItem{}
	}

	result := r.conn(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "payment_intent_id"}},
			DoNothing: true,
		}).
		Create(order)
	if result.Error != nil {
		return nil, false, fmt.Errorf("insert order: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return order, true, nil
	}

	existing, err := r.FindByPaymentIntentID(ctx, tx, order.PaymentIntentID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *orderRepoImpl) FindByPaymentIntentID(ctx context.Context, tx *gorm.DB, paymentIntentID string) (*model.Order, error) {
	var order model.Order
	err := r.conn(tx).WithContext(ctx).
		Where("payment_intent_id = ?", paymentIntentID).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find order by payment intent: %w", err)
	}
	return &order, nil
}

func (r *orderRepoImpl) FindByID(ctx context.Context, tx *gorm.DB, id string) (*model.Order, error) {
	var order model.Order
	err := r.conn(tx).WithContext(ctx).
		Where("id = ?", id).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	return &order, nil
}

func (r *orderRepoImpl) UpdateStatus(ctx context.Context, tx *gorm.DB, id string, status model.OrderStatus) error {
	result := r.conn(tx).WithContext(ctx).Model(&model.Order{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("update order status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *orderRepoImpl) MarkShipped(ctx context.Context, tx *gorm.DB, id, trackingNumber string) (bool, error) {
	result := r.conn(tx).WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND status = ?", id, model.OrderPaid).
		Updates(map[string]interface{}{
			"status":          model.OrderShipped,
			"tracking_number": trackingNumber,
			"updated_at":      time.Now(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("mark order shipped: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *orderRepoImpl) List(ctx context.Context, status model.OrderStatus, limit, offset int) ([]*model.Order, error) {
	var orders []*model.Order

	q := withStatus(r.db.WithContext(ctx), status).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}

	if err := q.Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

func (r *orderRepoImpl) Count(ctx context.Context, status model.OrderStatus) (int64, error) {
	var count int64
	if err := withStatus(r.db.WithContext(ctx).Model(&model.Order{}), status).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return count, nil
}

// withStatus narrows q to one status; empty means all.
func withStatus(q *gorm.DB, status model.OrderStatus) *gorm.DB {
	if status == "" {
		return q
	}
	return q.Where("status = ?", status)
}
