package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"

	"storefront-payments/internal/apperr"
	"storefront-payments/internal/client"
	"storefront-payments/internal/config"
	"storefront-payments/internal/dto"
)

// MaxAmount caps the request amount. It is compared with the amount as sent
// by the browser (major units), while the 3-D Secure threshold is compared
// after conversion to minor units. The two limits therefore use different
// units; both are kept as observed in the storefront.
const MaxAmount = 100000

const (
	MetadataCustomerEmail = "customer_email"
	MetadataItems         = "items"
)

type PaymentService interface {
	CreatePaymentIntent(ctx context.Context, req *dto.CreatePaymentIntentRequest) (*dto.CreatePaymentIntentResponse, error)
}

type paymentServiceImpl struct {
	stripeClient client.StripeClient
	cfg          config.Stripe
	validate     *validator.Validate
	logger       *slog.Logger
}

func NewPaymentService(stripeClient client.StripeClient, cfg config.Stripe, logger *slog.Logger) PaymentService {
	return &paymentServiceImpl{
		stripeClient: stripeClient,
		cfg:          cfg,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		logger:       logger,
	}
}

// ToMinorUnits converts a major-unit amount (149.99) to minor units (14999).
func ToMinorUnits(amount float64) int64 {
	return decimal.NewFromFloat(amount).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func (s *paymentServiceImpl) CreatePaymentIntent(ctx context.Context, req *dto.CreatePaymentIntentRequest) (*dto.CreatePaymentIntentResponse, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	minor := ToMinorUnits(*req.Amount)
	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = s.cfg.Currency
	}
	requires3DS := minor >= s.cfg.ThreeDSecureThreshold

	var customerID string
	if req.CustomerEmail != "" {
		customerID = s.resolveCustomer(ctx, req.CustomerEmail)
	}

	params := s.buildParams(req, minor, currency, customerID, requires3DS)

	pi, err := s.stripeClient.CreatePaymentIntent(ctx, params)
	if err != nil {
		s.logger.ErrorContext(ctx, "create payment intent failed", "amount", minor, "currency", currency, "err", err)
		return nil, mapProviderError(err)
	}

	s.logger.InfoContext(ctx, "payment intent created",
		"payment_intent_id", pi.ID,
		"amount", pi.Amount,
		"currency", pi.Currency,
		"requires_3ds", requires3DS,
	)

	return &dto.CreatePaymentIntentResponse{
		ClientSecret:    pi.ClientSecret,
		PaymentIntentID: pi.ID,
		Amount:          pi.Amount,
		Currency:        string(pi.Currency),
		Status:          string(pi.Status),
		Requires3DS:     requires3DS,
	}, nil
}

func (s *paymentServiceImpl) validateRequest(req *dto.CreatePaymentIntentRequest) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.InvalidErr("Invalid request")
	}

	fe := verrs[0]
	switch fe.StructField() {
	case "Amount":
		if fe.Tag() == "lte" {
			return apperr.InvalidErr("Amount exceeds maximum limit")
		}
		return apperr.InvalidErr("Invalid amount")
	case "Description":
		return apperr.InvalidErr("Description is required")
	default:
		return apperr.InvalidErr(fmt.Sprintf("Invalid %s", lowerFirst(fe.StructField())))
	}
}

// resolveCustomer reuses or creates a Stripe customer. Failures only cost
// the customer link, so they are logged and swallowed.
func (s *paymentServiceImpl) resolveCustomer(ctx context.Context, email string) string {
	existing, err := s.stripeClient.FindCustomerByEmail(ctx, email)
	if err != nil {
		s.logger.WarnContext(ctx, "customer lookup failed, continuing without customer", "err", err)
		return ""
	}
	if existing != nil {
		return existing.ID
	}

	created, err := s.stripeClient.CreateCustomer(ctx, email, map[string]string{"source": "website"})
	if err != nil {
		s.logger.WarnContext(ctx, "customer creation failed, continuing without customer", "err", err)
		return ""
	}
	return created.ID
}

func (s *paymentServiceImpl) buildParams(req *dto.CreatePaymentIntentRequest, minor int64, currency, customerID string, requires3DS bool) *stripe.PaymentIntentParams {
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(minor),
		Currency:    stripe.String(currency),
		Description: stripe.String(req.Description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
		CaptureMethod: stripe.String(s.cfg.CaptureMethod),
	}

	for k, v := range req.Metadata {
		if str, ok := metadataValue(v); ok {
			params.AddMetadata(k, str)
		}
	}
	if req.CustomerEmail != "" {
		params.AddMetadata(MetadataCustomerEmail, req.CustomerEmail)
	}

	if s.cfg.EnableFraudDetection && req.FraudSessionID != "" {
		params.RadarOptions = &stripe.PaymentIntentRadarOptionsParams{
			Session: stripe.String(req.FraudSessionID),
		}
	}
	if customerID != "" {
		params.Customer = stripe.String(customerID)
	}
	if req.ReceiptEmail != "" {
		params.ReceiptEmail = stripe.String(req.ReceiptEmail)
	}
	if req.SetupFutureUsage != "" {
		params.SetupFutureUsage = stripe.String(req.SetupFutureUsage)
	}
	if a := req.ShippingAddress; a != nil {
		params.Shipping = &stripe.ShippingDetailsParams{
			Name: stripe.String(a.Name),
			Address: &stripe.AddressParams{
				Line1:      stripe.String(a.Line1),
				Line2:      stripe.String(a.Line2),
				City:       stripe.String(a.City),
				State:      stripe.String(a.State),
				PostalCode: stripe.String(a.PostalCode),
				Country:    stripe.String(a.Country),
			},
		}
		if a.Phone != "" {
			params.Shipping.Phone = stripe.String(a.Phone)
		}
	}

	// the browser has to confirm explicitly so 3-D Secure can run
	if requires3DS {
		params.ConfirmationMethod = stripe.String(string(stripe.PaymentIntentConfirmationMethodManual))
		params.Confirm = stripe.Bool(false)
	}

	return params
}

func mapProviderError(err error) error {
	pe, ok := client.AsProviderError(err)
	if !ok {
		return apperr.Wrap(err)
	}

	switch pe.Kind {
	case client.ProviderErrCard:
		msg := pe.Message
		if msg == "" {
			msg = "Your card was declined."
		}
		return &apperr.AppError{Kind: apperr.Invalid, PublicMsg: msg, Err: err}
	case client.ProviderErrRateLimit:
		return &apperr.AppError{Kind: apperr.RateLimited, PublicMsg: "Too many requests to the payment provider. Please try again shortly.", Err: err}
	case client.ProviderErrInvalidRequest:
		return &apperr.AppError{Kind: apperr.Invalid, PublicMsg: "Invalid payment request.", Err: err}
	case client.ProviderErrAPI:
		return apperr.UnavailableErr("Payment service is temporarily unavailable.", err)
	case client.ProviderErrConnection:
		return apperr.UnavailableErr("Unable to reach the payment service. Please try again.", err)
	case client.ProviderErrAuthentication:
		return apperr.WrapMsg("Payment service configuration error.", err)
	case client.ProviderErrUnknown:
		return apperr.Wrap(err)
	default:
		return apperr.Wrap(err)
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// metadataValue renders a free-form JSON value as the string Stripe stores.
// Nested objects and arrays are kept as JSON text; null is dropped.
func metadataValue(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(val), true
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return "", false
		}
		return string(raw), true
	}
}
