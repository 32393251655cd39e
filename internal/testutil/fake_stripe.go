package testutil

import (
	"context"
	"sync"

	"github.com/stripe/stripe-go/v81"
)

// FakeStripe satisfies client.StripeClient. Unset functions fall back to
// canned successes; every PaymentIntent request is recorded.
type FakeStripe struct {
	FindCustomerByEmailFunc func(ctx context.Context, email string) (*stripe.Customer, error)
	CreateCustomerFunc      func(ctx context.Context, email string, metadata map[string]string) (*stripe.Customer, error)
	GetCustomerFunc         func(ctx context.Context, customerID string) (*stripe.Customer, error)
	CreatePaymentIntentFunc func(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)

	mu      sync.Mutex
	Intents []*stripe.PaymentIntentParams
}

func (f *FakeStripe) FindCustomerByEmail(ctx context.Context, email string) (*stripe.Customer, error) {
	if f.FindCustomerByEmailFunc != nil {
		return f.FindCustomerByEmailFunc(ctx, email)
	}
	return nil, nil
}

func (f *FakeStripe) CreateCustomer(ctx context.Context, email string, metadata map[string]string) (*stripe.Customer, error) {
	if f.CreateCustomerFunc != nil {
		return f.CreateCustomerFunc(ctx, email, metadata)
	}
	return &stripe.Customer{ID: "cus_new", Email: email, Metadata: metadata}, nil
}

func (f *FakeStripe) GetCustomer(ctx context.Context, customerID string) (*stripe.Customer, error) {
	if f.GetCustomerFunc != nil {
		return f.GetCustomerFunc(ctx, customerID)
	}
	return &stripe.Customer{ID: customerID}, nil
}

func (f *FakeStripe) CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.mu.Lock()
	f.Intents = append(f.Intents, params)
	f.mu.Unlock()

	if f.CreatePaymentIntentFunc != nil {
		return f.CreatePaymentIntentFunc(ctx, params)
	}

	pi := &stripe.PaymentIntent{
		ID:           "pi_test_123",
		ClientSecret: "pi_test_123_secret_abc",
		Status:       stripe.PaymentIntentStatusRequiresPaymentMethod,
	}
	if params.Amount != nil {
		pi.Amount = *params.Amount
	}
	if params.Currency != nil {
		pi.Currency = stripe.Currency(*params.Currency)
	}
	return pi, nil
}

func (f *FakeStripe) IntentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Intents)
}
