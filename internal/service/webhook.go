package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stripe/stripe-go/v81"
	"gorm.io/gorm"

	"storefront-payments/internal/apperr"
	"storefront-payments/internal/client"
	"storefront-payments/internal/config"
	"storefront-payments/internal/dto"
	"storefront-payments/internal/model"
	"storefront-payments/internal/notification"
	"storefront-payments/internal/repository"
)

const processingWarning = "Event received but processing encountered an error"

// criticalError marks a handler failure that must surface as a 500 so the
// provider redelivers the event. Everything else is acknowledged with 200.
type criticalError struct {
	err error
}

func (e *criticalError) Error() string { return e.err.Error() }
func (e *criticalError) Unwrap() error { return e.err }

func critical(err error) error {
	return &criticalError{err: err}
}

func isCritical(err error) bool {
	var ce *criticalError
	return errors.As(err, &ce)
}

type WebhookService interface {
	HandleEvent(ctx context.Context, payload []byte, signature string) (*dto.WebhookResponse, error)
	SubscribedEvents() []string
}

type eventHandler func(ctx context.Context, tx *gorm.DB, event *inbound) (*dto.WebhookResponse, error)

// inbound is a verified event plus whatever had to be fetched from Stripe
// before the ledger transaction opens. Handlers only touch the database.
type inbound struct {
	*stripe.Event
	contact    contact
	contactErr error
}

type contact struct {
	email string
	name  string
}

type webhookServiceImpl struct {
	db           *gorm.DB
	verifier     client.WebhookVerifier
	stripeClient client.StripeClient
	orderRepo    repository.OrderRepository
	eventRepo    repository.WebhookEventRepository
	outboxRepo   repository.OutboxRepository
	memberRepo   repository.MembershipRepository
	stripeCfg    config.Stripe
	fulfillCfg   config.Fulfillment
	adminEmail   string
	logger       *slog.Logger
	now          func() time.Time

	handlers map[stripe.EventType]eventHandler
}

func NewWebhookService(
	db *gorm.DB,
	verifier client.WebhookVerifier,
	stripeClient client.StripeClient,
	orderRepo repository.OrderRepository,
	eventRepo repository.WebhookEventRepository,
	outboxRepo repository.OutboxRepository,
	memberRepo repository.MembershipRepository,
	cfg *config.Config,
	logger *slog.Logger,
) WebhookService {
	s := &webhookServiceImpl{
		db:           db,
		verifier:     verifier,
		stripeClient: stripeClient,
		orderRepo:    orderRepo,
		eventRepo:    eventRepo,
		outboxRepo:   outboxRepo,
		memberRepo:   memberRepo,
		stripeCfg:    cfg.Stripe,
		fulfillCfg:   cfg.Fulfillment,
		adminEmail:   cfg.Email.AdminAddress,
		logger:       logger,
		now:          time.Now,
	}

	s.handlers = map[stripe.EventType]eventHandler{
		stripe.EventTypePaymentIntentSucceeded:      s.handlePaymentSucceeded,
		stripe.EventTypePaymentIntentPaymentFailed:  s.handlePaymentFailed,
		stripe.EventTypeChargeDisputeCreated:        s.handleDisputeCreated,
		stripe.EventTypeChargeRefunded:              s.handleChargeRefunded,
		stripe.EventTypeCustomerSubscriptionCreated: s.subscriptionHandler(notification.SubscriptionWelcome, "subscription_created"),
		stripe.EventTypeCustomerSubscriptionUpdated: s.subscriptionHandler(notification.SubscriptionUpdated, "subscription_updated"),
		stripe.EventTypeCustomerSubscriptionDeleted: s.subscriptionHandler(notification.SubscriptionCancelled, "subscription_deleted"),
		stripe.EventTypeInvoicePaymentSucceeded:     s.invoiceHandler(notification.InvoicePaid, "invoice_paid"),
		stripe.EventTypeInvoicePaymentFailed:        s.invoiceHandler(notification.InvoicePaymentFailed, "invoice_payment_failed"),
	}
	return s
}

func (s *webhookServiceImpl) SubscribedEvents() []string {
	return append([]string(nil), s.stripeCfg.WebhookEvents...)
}

func (s *webhookServiceImpl) HandleEvent(ctx context.Context, payload []byte, signature string) (*dto.WebhookResponse, error) {
	if signature == "" {
		return nil, apperr.InvalidErr("Missing stripe-signature header")
	}

	event, err := s.verifier.ConstructEvent(payload, signature)
	if err != nil {
		if errors.Is(err, client.ErrWebhookSecretMissing) {
			s.logger.ErrorContext(ctx, "webhook secret is not configured")
			return nil, apperr.WrapMsg("Webhook secret not configured", err)
		}
		s.logger.WarnContext(ctx, "webhook signature verification failed", "err", err)
		return nil, apperr.InvalidErr("Invalid signature")
	}

	log := s.logger.With("event_id", event.ID, "event_type", event.Type)

	if seen, err := s.eventRepo.Exists(ctx, event.ID); err != nil {
		log.WarnContext(ctx, "webhook dedupe lookup failed", "err", err)
	} else if seen {
		log.InfoContext(ctx, "duplicate webhook event ignored")
		return &dto.WebhookResponse{Success: true, Status: "duplicate", EventType: string(event.Type)}, nil
	}

	in := s.prepare(ctx, &event)

	var resp *dto.WebhookResponse
	var handlerErr error

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claimed, err := s.eventRepo.Claim(ctx, tx, event.ID, string(event.Type))
		if err != nil {
			return critical(fmt.Errorf("claim event: %w", err))
		}
		if !claimed {
			resp = &dto.WebhookResponse{Success: true, Status: "duplicate", EventType: string(event.Type)}
			return nil
		}

		resp, handlerErr = s.dispatch(ctx, tx, in)
		if handlerErr != nil && isCritical(handlerErr) {
			return handlerErr
		}
		return nil
	})
	if err != nil {
		log.ErrorContext(ctx, "webhook processing failed", "err", err)
		return nil, apperr.WrapMsg("Webhook processing failed", err)
	}

	if handlerErr != nil {
		log.WarnContext(ctx, "webhook handler error acknowledged", "err", handlerErr)
		if resp == nil {
			resp = &dto.WebhookResponse{Success: true, EventType: string(event.Type)}
		}
		resp.Warning = processingWarning
	}

	log.InfoContext(ctx, "webhook processed", "status", resp.Status)
	return resp, nil
}

// prepare performs the provider lookups a handler needs, outside any
// transaction.
func (s *webhookServiceImpl) prepare(ctx context.Context, event *stripe.Event) *inbound {
	in := &inbound{Event: event}
	if event.Data == nil {
		return in
	}

	switch event.Type {
	case stripe.EventTypeCustomerSubscriptionCreated,
		stripe.EventTypeCustomerSubscriptionUpdated,
		stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return in
		}
		in.contact, in.contactErr = s.customerContact(ctx, sub.Customer)
	}
	return in
}

func (s *webhookServiceImpl) dispatch(ctx context.Context, tx *gorm.DB, event *inbound) (*dto.WebhookResponse, error) {
	if event.Data == nil {
		return nil, fmt.Errorf("event %s carries no data", event.ID)
	}

	handler, ok := s.handlers[event.Type]
	if !ok {
		s.logger.InfoContext(ctx, "unhandled webhook event type", "event_type", event.Type)
		return &dto.WebhookResponse{Success: true, Status: "ignored", EventType: string(event.Type)}, nil
	}
	return handler(ctx, tx, event)
}

func (s *webhookServiceImpl) handlePaymentSucceeded(ctx context.Context, tx *gorm.DB, event *inbound) (*dto.WebhookResponse, error) {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("decode payment intent: %w", err)
	}
	if pi.ID == "" {
		return nil, errors.New("payment intent id missing")
	}

	order, created, err := s.orderRepo.FindOrCreateByPaymentIntent(ctx, tx, orderFromIntent(&pi, s.logger))
	if err != nil {
		return nil, critical(fmt.Errorf("record order for %s: %w", pi.ID, err))
	}

	resp := &dto.WebhookResponse{Success: true, Status: "paid", EventType: string(event.Type), OrderID: order.ID}

	if !created {
		switch order.Status {
		case model.OrderPending, model.OrderCancelled:
			if err := s.orderRepo.UpdateStatus(ctx, tx, order.ID, model.OrderPaid); err != nil {
				return nil, critical(fmt.Errorf("mark order %s paid: %w", order.ID, err))
			}
			order.Status = model.OrderPaid
		default:
			// already past payment; confirmation and shipping were scheduled then
			resp.Status = string(order.Status)
			return resp, nil
		}
	}

	if order.CustomerEmail != "" {
		s.enqueueEmail(ctx, tx, notification.OrderConfirmation, notification.Data{
			To:              order.CustomerEmail,
			CustomerName:    shippingName(order),
			OrderID:         order.ID,
			PaymentIntentID: order.PaymentIntentID,
			Amount:          order.Amount,
			Currency:        order.Currency,
		})
	}

	if _, err := s.outboxRepo.Enqueue(ctx, tx, model.TaskFulfillment, FulfillmentTask{OrderID: order.ID}, s.now().Add(s.fulfillCfg.Delay)); err != nil {
		s.logger.ErrorContext(ctx, "schedule fulfillment failed", "order_id", order.ID, "err", err)
	}

	return resp, nil
}

func (s *webhookServiceImpl) handlePaymentFailed(ctx context.Context, tx *gorm.DB, event *inbound) (*dto.WebhookResponse, error) {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("decode payment intent: %w", err)
	}

	resp := &dto.WebhookResponse{Success: true, Status: "payment_failed", EventType: string(event.Type)}
	email := intentEmail(&pi)

	order, err := s.orderRepo.FindByPaymentIntentID(ctx, tx, pi.ID)
	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		s.logger.InfoContext(ctx, "payment failed for intent without order", "payment_intent_id", pi.ID)
	case err != nil:
		return resp, fmt.Errorf("find order for %s: %w", pi.ID, err)
	default:
		resp.OrderID = order.ID
		if order.Status == model.OrderPending || order.Status == model.OrderPaid {
			if err := s.orderRepo.UpdateStatus(ctx, tx, order.ID, model.OrderCancelled); err != nil {
				return resp, fmt.Errorf("cancel order %s: %w", order.ID, err)
			}
		}
		if order.CustomerEmail != "" {
			email = order.CustomerEmail
		}
	}

	if email != "" {
		var reason string
		if pi.LastPaymentError != nil {
			reason = pi.LastPaymentError.Msg
		}
		s.enqueueEmail(ctx, tx, notification.PaymentFailed, notification.Data{
			To:              email,
			OrderID:         resp.OrderID,
			PaymentIntentID: pi.ID,
			Amount:          pi.Amount,
			Currency:        string(pi.Currency),
			Reason:          reason,
		})
	}

	return resp, nil
}

func (s *webhookServiceImpl) handleDisputeCreated(ctx context.Context, tx *gorm.DB, event *inbound) (*dto.WebhookResponse, error) {
	var dispute stripe.Dispute
	if err := json.Unmarshal(event.Data.Raw, &dispute); err != nil {
		return nil, fmt.Errorf("decode dispute: %w", err)
	}

	resp := &dto.WebhookResponse{Success: true, Status: "dispute_created", EventType: string(event.Type), DisputeID: dispute.ID}

	data := notification.Data{
		To:        s.adminEmail,
		DisputeID: dispute.ID,
		Amount:    dispute.Amount,
		Currency:  string(dispute.Currency),
		Reason:    string(dispute.Reason),
		Status:    string(dispute.Status),
		Extra:     map[string]string{},
	}
	if dispute.Evidence != nil && dispute.Evidence.CustomerEmailAddress != "" {
		data.Extra["payerEmail"] = dispute.Evidence.CustomerEmailAddress
	}

	if dispute.PaymentIntent != nil && dispute.PaymentIntent.ID != "" {
		data.PaymentIntentID = dispute.PaymentIntent.ID
		order, err := s.orderRepo.FindByPaymentIntentID(ctx, tx, dispute.PaymentIntent.ID)
		switch {
		case err == nil:
			data.OrderID = order.ID
			resp.OrderID = order.ID
			if _, ok := data.Extra["payerEmail"]; !ok && order.CustomerEmail != "" {
				data.Extra["payerEmail"] = order.CustomerEmail
			}
		case !errors.Is(err, repository.ErrOrderNotFound):
			s.logger.WarnContext(ctx, "dispute order lookup failed", "dispute_id", dispute.ID, "err", err)
		}
	}

	s.logger.WarnContext(ctx, "dispute opened",
		"dispute_id", dispute.ID,
		"amount", dispute.Amount,
		"reason", dispute.Reason,
		"order_id", data.OrderID,
	)
	s.enqueueEmail(ctx, tx, notification.AdminDisputeAlert, data)

	return resp, nil
}

func (s *webhookServiceImpl) handleChargeRefunded(ctx context.Context, tx *gorm.DB, event *inbound) (*dto.WebhookResponse, error) {
	var charge stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
		return nil, fmt.Errorf("decode charge: %w", err)
	}

	resp := &dto.WebhookResponse{Success: true, Status: "refunded", EventType: string(event.Type)}
	if !charge.Refunded || charge.PaymentIntent == nil {
		resp.Status = "partially_refunded"
		return resp, nil
	}

	order, err := s.orderRepo.FindByPaymentIntentID(ctx, tx, charge.PaymentIntent.ID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return resp, nil
	}
	if err != nil {
		return resp, fmt.Errorf("find order for refund: %w", err)
	}

	resp.OrderID = order.ID
	if err := s.orderRepo.UpdateStatus(ctx, tx, order.ID, model.OrderRefunded); err != nil {
		return resp, fmt.Errorf("mark order %s refunded: %w", order.ID, err)
	}
	return resp, nil
}

func (s *webhookServiceImpl) subscriptionHandler(template notification.TemplateType, status string) eventHandler {
	return func(ctx context.Context, tx *gorm.DB, event *inbound) (*dto.WebhookResponse, error) {
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}

		resp := &dto.WebhookResponse{Success: true, Status: status, EventType: string(event.Type)}

		if event.contactErr != nil {
			return resp, event.contactErr
		}
		email, name := event.contact.email, event.contact.name

		if err := s.memberRepo.Upsert(ctx, tx, membershipFromSubscription(&sub, email)); err != nil {
			return resp, err
		}
		if email == "" {
			s.logger.InfoContext(ctx, "subscription customer has no email", "subscription_id", sub.ID)
			return resp, nil
		}

		s.enqueueEmail(ctx, tx, template, notification.Data{
			To:             email,
			CustomerName:   name,
			SubscriptionID: sub.ID,
			Status:         string(sub.Status),
		})
		return resp, nil
	}
}

func (s *webhookServiceImpl) invoiceHandler(template notification.TemplateType, status string) eventHandler {
	return func(ctx context.Context, tx *gorm.DB, event *inbound) (*dto.WebhookResponse, error) {
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("decode invoice: %w", err)
		}

		resp := &dto.WebhookResponse{Success: true, Status: status, EventType: string(event.Type)}
		if inv.CustomerEmail == "" {
			s.logger.InfoContext(ctx, "invoice has no customer email", "invoice_id", inv.ID)
			return resp, nil
		}

		data := notification.Data{
			To:           inv.CustomerEmail,
			CustomerName: inv.CustomerName,
			InvoiceID:    inv.ID,
			InvoiceURL:   inv.HostedInvoiceURL,
			Currency:     string(inv.Currency),
			Amount:       inv.AmountPaid,
		}
		if template == notification.InvoicePaymentFailed {
			data.Amount = inv.AmountDue
		}
		if inv.DueDate > 0 {
			data.DueDate = time.Unix(inv.DueDate, 0).UTC()
		}

		s.enqueueEmail(ctx, tx, template, data)
		return resp, nil
	}
}

// customerContact returns the email and name of an event's customer,
// fetching it when the event only carries the id.
func (s *webhookServiceImpl) customerContact(ctx context.Context, c *stripe.Customer) (contact, error) {
	if c == nil || c.ID == "" {
		return contact{}, nil
	}
	if c.Email != "" {
		return contact{email: c.Email, name: c.Name}, nil
	}

	full, err := s.stripeClient.GetCustomer(ctx, c.ID)
	if err != nil {
		return contact{}, fmt.Errorf("load customer %s: %w", c.ID, err)
	}
	return contact{email: full.Email, name: full.Name}, nil
}

// enqueueEmail schedules a notification. A failure to schedule is logged and
// never fails the webhook.
func (s *webhookServiceImpl) enqueueEmail(ctx context.Context, tx *gorm.DB, template notification.TemplateType, data notification.Data) {
	if _, err := s.outboxRepo.Enqueue(ctx, tx, model.TaskEmail, EmailTask{Template: template, Data: data}, s.now()); err != nil {
		s.logger.ErrorContext(ctx, "schedule email failed", "template", template, "err", err)
	}
}

func membershipFromSubscription(sub *stripe.Subscription, email string) *model.Membership {
	m := &model.Membership{
		SubscriptionID: sub.ID,
		CustomerEmail:  email,
		Status:         string(sub.Status),
	}
	if sub.Customer != nil {
		m.CustomerID = sub.Customer.ID
	}
	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		m.CurrentPeriodEnd = &t
	}
	if sub.CanceledAt > 0 {
		t := time.Unix(sub.CanceledAt, 0).UTC()
		m.CanceledAt = &t
	}
	return m
}

func orderFromIntent(pi *stripe.PaymentIntent, logger *slog.Logger) *model.Order {
	order := &model.Order{
		PaymentIntentID: pi.ID,
		CustomerEmail:   intentEmail(pi),
		Amount:          pi.Amount,
		Currency:        string(pi.Currency),
		Status:          model.OrderPaid,
		Metadata:        map[string]string{},
		Items:           []model.OrderItem{},
	}
	for k, v := range pi.Metadata {
		order.Metadata[k] = v
	}

	if raw, ok := pi.Metadata[MetadataItems]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &order.Items); err != nil {
			logger.Warn("ignoring malformed items metadata", "payment_intent_id", pi.ID, "err", err)
			order.Items = []model.OrderItem{}
		}
	}

	if sh := pi.Shipping; sh != nil {
		addr := &model.Address{Name: sh.Name, Phone: sh.Phone}
		if a := sh.Address; a != nil {
			addr.Line1 = a.Line1
			addr.Line2 = a.Line2
			addr.City = a.City
			addr.State = a.State
			addr.PostalCode = a.PostalCode
			addr.Country = a.Country
		}
		order.ShippingAddress = addr
	}
	return order
}

func intentEmail(pi *stripe.PaymentIntent) string {
	switch {
	case pi.ReceiptEmail != "":
		return pi.ReceiptEmail
	case pi.Metadata[MetadataCustomerEmail] != "":
		return pi.Metadata[MetadataCustomerEmail]
	case pi.Customer != nil:
		return pi.Customer.Email
	}
	return ""
}
