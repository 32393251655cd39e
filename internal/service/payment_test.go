package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"

	"storefront-payments/internal/apperr"
	"storefront-payments/internal/client"
	"storefront-payments/internal/config"
	"storefront-payments/internal/dto"
	"storefront-payments/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testStripeConfig() config.Stripe {
	return config.Stripe{
		SecretKey:             "sk_test_123",
		WebhookSecret:         "whsec_test",
		Currency:              "gbp",
		ThreeDSecureThreshold: 5000,
		EnableFraudDetection:  true,
		CaptureMethod:         "automatic",
	}
}

func amount(v float64) *float64 { return &v }

func TestToMinorUnits(t *testing.T) {
	assert.Equal(t, int64(15000), ToMinorUnits(150))
	assert.Equal(t, int64(14999), ToMinorUnits(149.99))
	assert.Equal(t, int64(1), ToMinorUnits(0.005))
	assert.Equal(t, int64(1999), ToMinorUnits(19.99))
}

func TestCreatePaymentIntentValidation(t *testing.T) {
	tests := []struct {
		name string
		req  dto.CreatePaymentIntentRequest
		msg  string
	}{
		{"missing amount", dto.CreatePaymentIntentRequest{Description: "Wig"}, "Invalid amount"},
		{"zero amount", dto.CreatePaymentIntentRequest{Amount: amount(0), Description: "Wig"}, "Invalid amount"},
		{"negative amount", dto.CreatePaymentIntentRequest{Amount: amount(-5), Description: "Wig"}, "Invalid amount"},
		{"over limit", dto.CreatePaymentIntentRequest{Amount: amount(100000.01), Description: "Wig"}, "Amount exceeds maximum limit"},
		{"missing description", dto.CreatePaymentIntentRequest{Amount: amount(20)}, "Description is required"},
		{"bad email", dto.CreatePaymentIntentRequest{Amount: amount(20), Description: "Wig", CustomerEmail: "nope"}, "Invalid customerEmail"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &testutil.FakeStripe{}
			svc := NewPaymentService(fake, testStripeConfig(), discardLogger())

			_, err := svc.CreatePaymentIntent(context.Background(), &tt.req)
			require.Error(t, err)
			assert.Equal(t, http.StatusBadRequest, apperr.HTTPStatus(err))
			assert.Equal(t, tt.msg, apperr.PublicMessage(err))
			assert.Zero(t, fake.IntentCount())
		})
	}
}

func TestCreatePaymentIntentAtLimit(t *testing.T) {
	fake := &testutil.FakeStripe{}
	svc := NewPaymentService(fake, testStripeConfig(), discardLogger())

	resp, err := svc.CreatePaymentIntent(context.Background(), &dto.CreatePaymentIntentRequest{
		Amount:      amount(MaxAmount),
		Description: "Full lace unit",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10000000), resp.Amount)
}

func TestCreatePaymentIntentBuildsParams(t *testing.T) {
	fake := &testutil.FakeStripe{}
	svc := NewPaymentService(fake, testStripeConfig(), discardLogger())

	meta := map[string]any{
		"cart":     "c_1",
		"quantity": float64(2),
		"gift":     true,
		"note":     nil,
		"items":    []any{map[string]any{"sku": "WIG-01", "quantity": float64(1)}},
	}
	resp, err := svc.CreatePaymentIntent(context.Background(), &dto.CreatePaymentIntentRequest{
		Amount:           amount(25.5),
		Currency:         "GBP",
		Description:      "Curly bob",
		Metadata:         meta,
		CustomerEmail:    "a@b.com",
		ReceiptEmail:     "receipt@b.com",
		SetupFutureUsage: "off_session",
		FraudSessionID:   "rs_123",
		ShippingAddress: &dto.ShippingAddress{
			Name: "Ada", Line1: "1 High St", City: "London", PostalCode: "N1 1AA", Country: "GB",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "pi_test_123_secret_abc", resp.ClientSecret)
	assert.Equal(t, "pi_test_123", resp.PaymentIntentID)
	assert.Equal(t, int64(2550), resp.Amount)
	assert.Equal(t, "gbp", resp.Currency)
	assert.False(t, resp.Requires3DS)

	require.Len(t, fake.Intents, 1)
	p := fake.Intents[0]
	assert.Equal(t, int64(2550), *p.Amount)
	assert.Equal(t, "gbp", *p.Currency)
	assert.True(t, *p.AutomaticPaymentMethods.Enabled)
	assert.Equal(t, "never", *p.AutomaticPaymentMethods.AllowRedirects)
	assert.Equal(t, "automatic", *p.CaptureMethod)
	assert.Equal(t, "cus_new", *p.Customer)
	assert.Equal(t, "receipt@b.com", *p.ReceiptEmail)
	assert.Equal(t, "off_session", *p.SetupFutureUsage)
	assert.Equal(t, "rs_123", *p.RadarOptions.Session)
	assert.Equal(t, "Ada", *p.Shipping.Name)
	assert.Equal(t, "London", *p.Shipping.Address.City)
	assert.Equal(t, "c_1", p.Metadata["cart"])
	assert.Equal(t, "2", p.Metadata["quantity"])
	assert.Equal(t, "true", p.Metadata["gift"])
	assert.Equal(t, `[{"quantity":1,"sku":"WIG-01"}]`, p.Metadata[MetadataItems])
	assert.NotContains(t, p.Metadata, "note")
	assert.Equal(t, "a@b.com", p.Metadata[MetadataCustomerEmail])
	assert.Nil(t, p.ConfirmationMethod)
	assert.Nil(t, p.Confirm)
}

// 150 major units is 15000 minor units, which is over the 5000 threshold.
func TestCreatePaymentIntentRequires3DS(t *testing.T) {
	fake := &testutil.FakeStripe{}
	svc := NewPaymentService(fake, testStripeConfig(), discardLogger())

	resp, err := svc.CreatePaymentIntent(context.Background(), &dto.CreatePaymentIntentRequest{
		Amount:        amount(150),
		Description:   "Bespoke Wig Consultation",
		CustomerEmail: "a@b.com",
	})
	require.NoError(t, err)
	assert.True(t, resp.Requires3DS)
	assert.NotEmpty(t, resp.ClientSecret)

	p := fake.Intents[0]
	assert.Equal(t, string(stripe.PaymentIntentConfirmationMethodManual), *p.ConfirmationMethod)
	assert.False(t, *p.Confirm)
}

func TestCreatePaymentIntentThresholdBoundary(t *testing.T) {
	fake := &testutil.FakeStripe{}
	svc := NewPaymentService(fake, testStripeConfig(), discardLogger())

	resp, err := svc.CreatePaymentIntent(context.Background(), &dto.CreatePaymentIntentRequest{Amount: amount(50), Description: "Clip-ins"})
	require.NoError(t, err)
	assert.True(t, resp.Requires3DS)

	resp, err = svc.CreatePaymentIntent(context.Background(), &dto.CreatePaymentIntentRequest{Amount: amount(49.99), Description: "Clip-ins"})
	require.NoError(t, err)
	assert.False(t, resp.Requires3DS)
}

func TestCreatePaymentIntentCustomerResolution(t *testing.T) {
	t.Run("reuses existing customer", func(t *testing.T) {
		created := false
		fake := &testutil.FakeStripe{
			FindCustomerByEmailFunc: func(ctx context.Context, email string) (*stripe.Customer, error) {
				return &stripe.Customer{ID: "cus_existing", Email: email}, nil
			},
			CreateCustomerFunc: func(ctx context.Context, email string, metadata map[string]string) (*stripe.Customer, error) {
				created = true
				return nil, nil
			},
		}
		svc := NewPaymentService(fake, testStripeConfig(), discardLogger())

		_, err := svc.CreatePaymentIntent(context.Background(), &dto.CreatePaymentIntentRequest{Amount: amount(10), Description: "Wig", CustomerEmail: "a@b.com"})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, "cus_existing", *fake.Intents[0].Customer)
	})

	t.Run("tags new customers with source", func(t *testing.T) {
		var gotMeta map[string]string
		fake := &testutil.FakeStripe{
			CreateCustomerFunc: func(ctx context.Context, email string, metadata map[string]string) (*stripe.Customer, error) {
				gotMeta = metadata
				return &stripe.Customer{ID: "cus_fresh"}, nil
			},
		}
		svc := NewPaymentService(fake, testStripeConfig(), discardLogger())

		_, err := svc.CreatePaymentIntent(context.Background(), &dto.CreatePaymentIntentRequest{Amount: amount(10), Description: "Wig", CustomerEmail: "a@b.com"})
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"source": "website"}, gotMeta)
	})

	t.Run("lookup failure is not fatal", func(t *testing.T) {
		fake := &testutil.FakeStripe{
			FindCustomerByEmailFunc: func(ctx context.Context, email string) (*stripe.Customer, error) {
				return nil, errors.New("boom")
			},
		}
		svc := NewPaymentService(fake, testStripeConfig(), discardLogger())

		resp, err := svc.CreatePaymentIntent(context.Background(), &dto.CreatePaymentIntentRequest{Amount: amount(10), Description: "Wig", CustomerEmail: "a@b.com"})
		require.NoError(t, err)
		assert.NotEmpty(t, resp.ClientSecret)
		assert.Nil(t, fake.Intents[0].Customer)
	})
}

func TestCreatePaymentIntentFraudDisabled(t *testing.T) {
	cfg := testStripeConfig()
	cfg.EnableFraudDetection = false
	fake := &testutil.FakeStripe{}
	svc := NewPaymentService(fake, cfg, discardLogger())

	_, err := svc.CreatePaymentIntent(context.Background(), &dto.CreatePaymentIntentRequest{Amount: amount(10), Description: "Wig", FraudSessionID: "rs_1"})
	require.NoError(t, err)
	assert.Nil(t, fake.Intents[0].RadarOptions)
}

func TestCreatePaymentIntentProviderErrors(t *testing.T) {
	tests := []struct {
		kind   client.ProviderErrorKind
		status int
	}{
		{client.ProviderErrCard, http.StatusBadRequest},
		{client.ProviderErrRateLimit, http.StatusTooManyRequests},
		{client.ProviderErrInvalidRequest, http.StatusBadRequest},
		{client.ProviderErrAPI, http.StatusServiceUnavailable},
		{client.ProviderErrConnection, http.StatusServiceUnavailable},
		{client.ProviderErrAuthentication, http.StatusInternalServerError},
		{client.ProviderErrUnknown, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			fake := &testutil.FakeStripe{
				CreatePaymentIntentFunc: func(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
					return nil, &client.ProviderError{Kind: tt.kind, Message: "provider said no"}
				},
			}
			svc := NewPaymentService(fake, testStripeConfig(), discardLogger())

			_, err := svc.CreatePaymentIntent(context.Background(), &dto.CreatePaymentIntentRequest{Amount: amount(10), Description: "Wig"})
			require.Error(t, err)
			assert.Equal(t, tt.status, apperr.HTTPStatus(err))
		})
	}
}

func TestCreatePaymentIntentCardMessage(t *testing.T) {
	fake := &testutil.FakeStripe{
		CreatePaymentIntentFunc: func(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			return nil, &client.ProviderError{Kind: client.ProviderErrCard, Code: "card_declined", Message: "Your card has insufficient funds."}
		},
	}
	svc := NewPaymentService(fake, testStripeConfig(), discardLogger())

	_, err := svc.CreatePaymentIntent(context.Background(), &dto.CreatePaymentIntentRequest{Amount: amount(10), Description: "Wig"})
	assert.Equal(t, "Your card has insufficient funds.", apperr.PublicMessage(err))
}
