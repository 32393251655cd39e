package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"

	"storefront-payments/internal/testutil"
)

const testSecret = "whsec_test_secret"

func TestConstructEvent(t *testing.T) {
	body := testutil.EventJSON("evt_1", "payment_intent.succeeded", `{"id":"pi_1","object":"payment_intent","amount":15000,"currency":"gbp"}`)
	v := NewWebhookVerifier(testSecret)

	event, err := v.ConstructEvent(body, testutil.SignPayload(testSecret, body, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, stripe.EventTypePaymentIntentSucceeded, event.Type)
	assert.NotEmpty(t, event.Data.Raw)
}

func TestConstructEventRejects(t *testing.T) {
	body := testutil.EventJSON("evt_1", "payment_intent.succeeded", `{"id":"pi_1"}`)

	t.Run("wrong secret", func(t *testing.T) {
		_, err := NewWebhookVerifier(testSecret).ConstructEvent(body, testutil.SignPayload("whsec_other", body, time.Now()))
		assert.Error(t, err)
	})

	t.Run("tampered body", func(t *testing.T) {
		header := testutil.SignPayload(testSecret, body, time.Now())
		tampered := append([]byte{}, body...)
		tampered[len(tampered)-3] = 'X'
		_, err := NewWebhookVerifier(testSecret).ConstructEvent(tampered, header)
		assert.Error(t, err)
	})

	t.Run("stale timestamp", func(t *testing.T) {
		_, err := NewWebhookVerifier(testSecret).ConstructEvent(body, testutil.SignPayload(testSecret, body, time.Now().Add(-time.Hour)))
		assert.Error(t, err)
	})

	t.Run("secret missing", func(t *testing.T) {
		_, err := NewWebhookVerifier("").ConstructEvent(body, testutil.SignPayload(testSecret, body, time.Now()))
		assert.ErrorIs(t, err, ErrWebhookSecretMissing)
	})
}
