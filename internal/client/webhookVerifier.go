package client

import (
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
)

var ErrWebhookSecretMissing = errors.New("webhook signing secret not configured")

type WebhookVerifier interface {
	// ConstructEvent checks the Stripe-Signature header against the raw body
	// and decodes the event.
	ConstructEvent(payload []byte, signatureHeader string) (stripe.Event, error)
}

type webhookVerifierImpl struct {
	secret string
}

func NewWebhookVerifier(secret string) WebhookVerifier {
	return &webhookVerifierImpl{secret: secret}
}

func (v *webhookVerifierImpl) ConstructEvent(payload []byte, signatureHeader string) (stripe.Event, error) {
	if v.secret == "" {
		return stripe.Event{}, ErrWebhookSecretMissing
	}

	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret, webhook.ConstructEventOptions{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("verify stripe signature: %w", err)
	}
	return event, nil
}
