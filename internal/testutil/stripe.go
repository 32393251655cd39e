package testutil

import (
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v81/webhook"
)

// SignPayload builds a Stripe-Signature header for body at ts.
func SignPayload(secret string, body []byte, ts time.Time) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   body,
		Secret:    secret,
		Timestamp: ts,
	})
	return signed.Header
}

// EventJSON wraps object in a minimal Stripe event envelope.
func EventJSON(id, eventType, object string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"object":"event","type":%q,"data":{"object":%s}}`, id, eventType, object))
}
