package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type TemplateType string

const (
	OrderConfirmation     TemplateType = "order_confirmation"
	PaymentFailed         TemplateType = "payment_failed"
	ShippingNotification  TemplateType = "shipping_notification"
	AdminDisputeAlert     TemplateType = "admin_dispute_alert"
	SubscriptionWelcome   TemplateType = "subscription_welcome"
	SubscriptionUpdated   TemplateType = "subscription_updated"
	SubscriptionCancelled TemplateType = "subscription_cancelled"
	InvoicePaid           TemplateType = "invoice_paid"
	InvoicePaymentFailed  TemplateType = "invoice_payment_failed"
)

// Data carries every field any template may reference. Amounts are minor units.
type Data struct {
	To                string            `json:"to"`
	CustomerName      string            `json:"customerName,omitempty"`
	OrderID           string            `json:"orderId,omitempty"`
	PaymentIntentID   string            `json:"paymentIntentId,omitempty"`
	Amount            int64             `json:"amount,omitempty"`
	Currency          string            `json:"currency,omitempty"`
	TrackingNumber    string            `json:"trackingNumber,omitempty"`
	EstimatedDelivery time.Time         `json:"estimatedDelivery,omitempty"`
	DisputeID         string            `json:"disputeId,omitempty"`
	Reason            string            `json:"reason,omitempty"`
	Status            string            `json:"status,omitempty"`
	SubscriptionID    string            `json:"subscriptionId,omitempty"`
	InvoiceID         string            `json:"invoiceId,omitempty"`
	InvoiceURL        string            `json:"invoiceUrl,omitempty"`
	DueDate           time.Time         `json:"dueDate,omitempty"`
	Extra             map[string]string `json:"extra,omitempty"`
}

type Result struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Sender delivers a rendered template. Implementations must be safe for
// concurrent use.
type Sender interface {
	Send(ctx context.Context, template TemplateType, data Data) (Result, error)
}

var currencySymbols = map[string]string{
	"gbp": "£",
	"usd": "$",
	"eur": "€",
}

// FormatAmount renders minor units as a display price, e.g. 15000 gbp -> £150.00.
func FormatAmount(minor int64, currency string) string {
	value := decimal.New(minor, -2).StringFixed(2)
	if sym, ok := currencySymbols[currency]; ok {
		return sym + value
	}
	return fmt.Sprintf("%s %s", value, currency)
}

func FormatDate(t time.Time) string {
	if t.IsZero() {
		return "n/a"
	}
	return t.Format("2 January 2006")
}
