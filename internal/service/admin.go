package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-payments/internal/apperr"
	"storefront-payments/internal/model"
	"storefront-payments/internal/repository"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type OrderPage struct {
	Orders []*model.Order `json:"orders"`
	Total  int64          `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

type AdminService interface {
	ListOrders(ctx context.Context, status string, limit, offset int) (*OrderPage, error)
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	ListDeadTasks(ctx context.Context, limit int) ([]*model.OutboxTask, error)
	RetryTask(ctx context.Context, id string) error
	ListMemberships(ctx context.Context, status string, limit int) ([]*model.Membership, error)
}

type adminServiceImpl struct {
	orderRepo  repository.OrderRepository
	outboxRepo repository.OutboxRepository
	memberRepo repository.MembershipRepository
}

func NewAdminService(orderRepo repository.OrderRepository, outboxRepo repository.OutboxRepository, memberRepo repository.MembershipRepository) AdminService {
	return &adminServiceImpl{
		orderRepo:  orderRepo,
		outboxRepo: outboxRepo,
		memberRepo: memberRepo,
	}
}

func (s *adminServiceImpl) ListOrders(ctx context.Context, status string, limit, offset int) (*OrderPage, error) {
	st := model.OrderStatus(status)
	if status != "" && !st.Valid() {
		return nil, apperr.InvalidErr(fmt.Sprintf("Unknown order status %q", status))
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	orders, err := s.orderRepo.List(ctx, st, limit, offset)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	total, err := s.orderRepo.Count(ctx, st)
	if err != nil {
		return nil, apperr.Wrap(err)
	}

	return &OrderPage{Orders: orders, Total: total, Limit: limit, Offset: offset}, nil
}

func (s *adminServiceImpl) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, nil, id)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return nil, apperr.NotFoundErr("Order not found")
	}
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return order, nil
}

func (s *adminServiceImpl) ListDeadTasks(ctx context.Context, limit int) ([]*model.OutboxTask, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	tasks, err := s.outboxRepo.ListByStatus(ctx, model.TaskDead, limit)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return tasks, nil
}

func (s *adminServiceImpl) RetryTask(ctx context.Context, id string) error {
	ok, err := s.outboxRepo.Requeue(ctx, id, time.Now())
	if err != nil {
		return apperr.Wrap(err)
	}
	if !ok {
		return apperr.NotFoundErr("Dead task not found")
	}
	return nil
}

func (s *adminServiceImpl) ListMemberships(ctx context.Context, status string, limit int) ([]*model.Membership, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	members, err := s.memberRepo.List(ctx, status, limit)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return members, nil
}
