package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"storefront-payments/internal/model"
	"storefront-payments/internal/notification"
	"storefront-payments/internal/worker"
)

// EmailTask is the outbox payload of a deferred notification.
type EmailTask struct {
	Template notification.TemplateType `json:"template"`
	Data     notification.Data         `json:"data"`
}

// FulfillmentTask is the outbox payload of a deferred shipment.
type FulfillmentTask struct {
	OrderID string `json:"orderId"`
}

type EmailDispatcher struct {
	sender notification.Sender
	logger *slog.Logger
}

func NewEmailDispatcher(sender notification.Sender, logger *slog.Logger) *EmailDispatcher {
	return &EmailDispatcher{sender: sender, logger: logger}
}

// Handle delivers an EmailTask. Undecodable payloads and empty recipients
// can never succeed and are reported as permanent.
func (d *EmailDispatcher) Handle(ctx context.Context, task *model.OutboxTask) error {
	var p EmailTask
	if err := json.Unmarshal(task.Payload, &p); err != nil {
		return worker.Permanent(fmt.Errorf("decode email task: %w", err))
	}
	if p.Data.To == "" {
		return worker.Permanent(fmt.Errorf("%s email has no recipient", p.Template))
	}

	res, err := d.sender.Send(ctx, p.Template, p.Data)
	if err != nil {
		return fmt.Errorf("send %s email: %w", p.Template, err)
	}

	d.logger.InfoContext(ctx, "email delivered", "template", p.Template, "message_id", res.MessageID)
	return nil
}
