package model

import (
	"encoding/json"
	"time"
)

type Order struct {
	ID              string            `gorm:"primaryKey;size:64;not null" json:"id"`
	PaymentIntentID string            `gorm:"size:128;uniqueIndex;not null" json:"paymentIntentId"` // stripe pi_...
	CustomerEmail   string            `gorm:"size:255;index" json:"customerEmail"`
	Amount          int64             `gorm:"not null" json:"amount"` // minor units
	Currency        string            `gorm:"size:8;not null" json:"currency"`
	Status          OrderStatus       `gorm:"size:32;index;not null" json:"status"`
	Items           []OrderItem       `gorm:"serializer:json" json:"items"`
	ShippingAddress *Address          `gorm:"serializer:json" json:"shippingAddress,omitempty"`
	Metadata        map[string]string `gorm:"serializer:json" json:"metadata"`
	TrackingNumber  string            `gorm:"size:64" json:"trackingNumber,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

type WebhookEvent struct {
	EventID     string `gorm:"primaryKey;size:128;not null"`
	EventType   string `gorm:"size:64;index"`
	ProcessedAt time.Time
	CreatedAt   time.Time
}

type OutboxTask struct {
	ID          string          `gorm:"primaryKey;size:64;not null" json:"id"`
	Kind        TaskKind        `gorm:"size:32;index;not null" json:"kind"`
	Payload     json.RawMessage `gorm:"type:text;not null" json:"payload"`
	Status      TaskStatus      `gorm:"size:16;index:ix_outbox_due,priority:1;not null" json:"status"`
	Attempts    int             `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts int             `gorm:"not null" json:"maxAttempts"`
	NextRunAt   time.Time       `gorm:"index:ix_outbox_due,priority:2;not null" json:"nextRunAt"`
	LastError   string          `gorm:"type:text" json:"lastError,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Membership mirrors a Stripe subscription. Billing itself stays with Stripe.
type Membership struct {
	SubscriptionID   string     `gorm:"primaryKey;size:128;not null" json:"subscriptionId"`
	CustomerID       string     `gorm:"size:128;index" json:"customerId"`
	CustomerEmail    string     `gorm:"size:255" json:"customerEmail,omitempty"`
	Status           string     `gorm:"size:32;index;not null" json:"status"`
	CurrentPeriodEnd *time.Time `json:"currentPeriodEnd,omitempty"`
	CanceledAt       *time.Time `json:"canceledAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// AllModels lists every table migrated at startup.
func AllModels() []any {
	return []any{
		&Order{},
		&WebhookEvent{},
		&OutboxTask{},
		&Membership{},
	}
}
