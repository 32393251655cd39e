package dto

type ShippingAddress struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// Amount is in major units (pounds); see service.ToMinorUnits.
type CreatePaymentIntentRequest struct {
	Amount           *float64         `json:"amount" validate:"required,gt=0,lte=100000"`
	Currency         string           `json:"currency" validate:"omitempty,len=3,alpha"`
	Description      string           `json:"description" validate:"required"`
	Metadata         map[string]any   `json:"metadata"`
	CustomerEmail    string           `json:"customerEmail" validate:"omitempty,email"`
	ShippingAddress  *ShippingAddress `json:"shippingAddress"`
	ReceiptEmail     string           `json:"receiptEmail" validate:"omitempty,email"`
	SetupFutureUsage string           `json:"setupFutureUsage" validate:"omitempty,oneof=on_session off_session"`
	FraudSessionID   string           `json:"fraudSessionId"`
}

type CreatePaymentIntentResponse struct {
	ClientSecret    string `json:"client_secret"`
	PaymentIntentID string `json:"payment_intent_id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Status          string `json:"status"`
	Requires3DS     bool   `json:"requires_3ds"`
}

type WebhookResponse struct {
	Success   bool   `json:"success"`
	Status    string `json:"status,omitempty"`
	EventType string `json:"type,omitempty"`
	OrderID   string `json:"orderId,omitempty"`
	DisputeID string `json:"disputeId,omitempty"`
	Warning   string `json:"warning,omitempty"`
}

type WebhookInfoResponse struct {
	Message   string   `json:"message"`
	Timestamp string   `json:"timestamp"`
	Events    []string `json:"events"`
}

type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"` // never set in production
}

type HealthResponse struct {
	Status string `json:"status"`
}
