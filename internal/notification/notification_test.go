package notification

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-payments/internal/config"
)

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "£150.00", FormatAmount(15000, "gbp"))
	assert.Equal(t, "$0.99", FormatAmount(99, "usd"))
	assert.Equal(t, "12.05 chf", FormatAmount(1205, "chf"))
}

func TestRenderAllTemplates(t *testing.T) {
	data := Data{
		To:                "a@b.com",
		OrderID:           "ord_1",
		Amount:            15000,
		Currency:          "gbp",
		TrackingNumber:    "WIG-123",
		EstimatedDelivery: time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC),
		DisputeID:         "dp_1",
		InvoiceID:         "in_1",
		DueDate:           time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
	}
	for name := range templates {
		t.Run(string(name), func(t *testing.T) {
			msg, err := Render(name, data)
			require.NoError(t, err)
			assert.Equal(t, "a@b.com", msg.To)
			assert.NotEmpty(t, msg.Subject)
			assert.NotContains(t, msg.Text, "<no value>")
		})
	}
}

func TestRenderContent(t *testing.T) {
	msg, err := Render(ShippingNotification, Data{
		To:                "a@b.com",
		OrderID:           "ord_1",
		TrackingNumber:    "WIG-123",
		EstimatedDelivery: time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Contains(t, msg.Text, "WIG-123")
	assert.Contains(t, msg.Text, "4 March 2026")

	msg, err = Render(AdminDisputeAlert, Data{To: "admin@shop", DisputeID: "dp_9", Amount: 2500, Currency: "gbp", Extra: map[string]string{"payerEmail": "p@x.com"}})
	require.NoError(t, err)
	assert.Equal(t, "Dispute opened: dp_9", msg.Subject)
	assert.Contains(t, msg.Text, "£25.00")
	assert.Contains(t, msg.Text, "p@x.com")
	assert.Contains(t, msg.Text, "Order: not found")
}

func TestRenderErrors(t *testing.T) {
	_, err := Render("nope", Data{To: "a@b.com"})
	assert.Error(t, err)

	_, err = Render(OrderConfirmation, Data{})
	assert.Error(t, err)
}

func TestLogSender(t *testing.T) {
	s := NewLogSender(slog.New(slog.NewTextHandler(io.Discard, nil)))

	res, err := s.Send(context.Background(), OrderConfirmation, Data{To: "a@b.com", Amount: 100, Currency: "gbp"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.MessageID)

	res, err = s.Send(context.Background(), OrderConfirmation, Data{})
	assert.Error(t, err)
	assert.False(t, res.Success)
}

func TestMailtrapSender(t *testing.T) {
	var got mailtrapPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"success":true,"message_ids":["mt_1"]}`))
	}))
	defer srv.Close()

	s := NewMailtrapSender(srv.URL, "token", "orders@shop", "Shop")
	res, err := s.Send(context.Background(), PaymentFailed, Data{To: "a@b.com", Amount: 500, Currency: "gbp"})
	require.NoError(t, err)
	assert.Equal(t, "mt_1", res.MessageID)
	assert.Equal(t, "orders@shop", got.From.Email)
	assert.Equal(t, "a@b.com", got.To[0].Email)
	assert.Equal(t, string(PaymentFailed), got.Category)
}

func TestMailtrapSenderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	res, err := NewMailtrapSender(srv.URL, "bad", "orders@shop", "Shop").Send(context.Background(), PaymentFailed, Data{To: "a@b.com"})
	assert.Error(t, err)
	assert.False(t, res.Success)
}

func TestNewSender(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := NewSender(config.Email{Provider: "log"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &LogSender{}, s)

	s, err = NewSender(config.Email{Provider: "mailtrap", MailtrapURL: "http://x", MailtrapToken: "t"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &MailtrapSender{}, s)

	_, err = NewSender(config.Email{Provider: "pigeon"}, logger)
	assert.Error(t, err)
}
