package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"storefront-payments/internal/config"
	"storefront-payments/internal/model"
	"storefront-payments/internal/notification"
	"storefront-payments/internal/repository"
	"storefront-payments/internal/worker"
)

type FulfillmentService interface {
	// FulfillOrder ships a paid order. Orders that are no longer paid are
	// left alone and no error is returned.
	FulfillOrder(ctx context.Context, orderID string) (*model.Order, error)
	Handle(ctx context.Context, task *model.OutboxTask) error
}

type fulfillmentServiceImpl struct {
	db         *gorm.DB
	orderRepo  repository.OrderRepository
	outboxRepo repository.OutboxRepository
	cfg        config.Fulfillment
	logger     *slog.Logger
	now        func() time.Time
}

func NewFulfillmentService(db *gorm.DB, orderRepo repository.OrderRepository, outboxRepo repository.OutboxRepository, cfg config.Fulfillment, logger *slog.Logger) FulfillmentService {
	return &fulfillmentServiceImpl{
		db:         db,
		orderRepo:  orderRepo,
		outboxRepo: outboxRepo,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *fulfillmentServiceImpl) Handle(ctx context.Context, task *model.OutboxTask) error {
	var p FulfillmentTask
	if err := json.Unmarshal(task.Payload, &p); err != nil {
		return worker.Permanent(fmt.Errorf("decode fulfillment task: %w", err))
	}
	_, err := s.FulfillOrder(ctx, p.OrderID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return worker.Permanent(err)
	}
	return err
}

func (s *fulfillmentServiceImpl) FulfillOrder(ctx context.Context, orderID string) (*model.Order, error) {
	var shipped *model.Order

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tracking := newTrackingNumber()
		ok, err := s.orderRepo.MarkShipped(ctx, tx, orderID, tracking)
		if err != nil {
			return err
		}
		order, err := s.orderRepo.FindByID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !ok {
			s.logger.InfoContext(ctx, "skipping fulfillment, order is not paid", "order_id", orderID, "status", order.Status)
			return nil
		}
		shipped = order

		if order.CustomerEmail == "" {
			s.logger.WarnContext(ctx, "order shipped without customer email", "order_id", orderID)
			return nil
		}

		_, err = s.outboxRepo.Enqueue(ctx, tx, model.TaskEmail, EmailTask{
			Template: notification.ShippingNotification,
			Data: notification.Data{
				To:                order.CustomerEmail,
				CustomerName:      shippingName(order),
				OrderID:           order.ID,
				PaymentIntentID:   order.PaymentIntentID,
				Amount:            order.Amount,
				Currency:          order.Currency,
				TrackingNumber:    tracking,
				EstimatedDelivery: s.now().AddDate(0, 0, s.cfg.DeliveryDays),
			},
		}, s.now())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fulfill order: %w", err)
	}

	if shipped != nil {
		s.logger.InfoContext(ctx, "order shipped", "order_id", shipped.ID, "tracking_number", shipped.TrackingNumber)
	}
	return shipped, nil
}

// newTrackingNumber returns a synthetic carrier reference such as WIG3F9A1C20B7.
func newTrackingNumber() string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "WIG" + id[:10]
}

func shippingName(o *model.Order) string {
	if o.ShippingAddress != nil {
		return o.ShippingAddress.Name
	}
	return ""
}
