package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"storefront-payments/internal/dto"
	"storefront-payments/internal/service"
)

const (
	signatureHeader = "Stripe-Signature"
	// MaxWebhookBody matches the payload ceiling Stripe documents for events.
	MaxWebhookBody = "64K"
)

type WebhookHandler struct {
	webhookService service.WebhookService
}

func NewWebhookHandler(webhookService service.WebhookService) *WebhookHandler {
	return &WebhookHandler{
		webhookService: webhookService,
	}
}

// Receive verifies and processes one Stripe event. The body is read raw
// because the signature covers the exact bytes.
func (h *WebhookHandler) Receive(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return echo.NewHTTPError(http.StatusBadRequest, "Unable to read request body")
	}

	resp, err := h.webhookService.HandleEvent(ctx, body, c.Request().Header.Get(signatureHeader))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}

func (h *WebhookHandler) Info(c echo.Context) error {
	return c.JSON(http.StatusOK, dto.WebhookInfoResponse{
		Message:   "Stripe webhook endpoint",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Events:    h.webhookService.SubscribedEvents(),
	})
}
