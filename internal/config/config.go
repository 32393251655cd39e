package config

import (
	"errors"
	"time"
)

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer

	Database    Database    `envPrefix:"DATABASE_"`
	Stripe      Stripe      `envPrefix:"STRIPE_"`
	RateLimit   RateLimit   `envPrefix:"RATE_LIMIT_"`
	Fulfillment Fulfillment `envPrefix:"FULFILLMENT_"`
	Outbox      Outbox      `envPrefix:"OUTBOX_"`
	Email       Email       `envPrefix:"EMAIL_"`
	Admin       Admin       `envPrefix:"ADMIN_"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

func (e Environment) IsProduction() bool {
	return e.Name == "production"
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host           string   `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port           string   `env:"HTTP_PORT" envDefault:"8080"`
	AllowedOrigins []string `env:"HTTP_ALLOWED_ORIGINS" envDefault:"http://localhost:3000"`
}

type Database struct {
	Driver string `env:"DRIVER" envDefault:"sqlite"` // sqlite | mysql
	URL    string `env:"URL" envDefault:"storefront.db"`
}

type Stripe struct {
	SecretKey      string `env:"SECRET_KEY"`
	PublishableKey string `env:"PUBLISHABLE_KEY"`
	WebhookSecret  string `env:"WEBHOOK_SECRET"`
	Currency       string `env:"CURRENCY" envDefault:"gbp"`

	// minor units
	ThreeDSecureThreshold int64  `env:"THREE_D_SECURE_THRESHOLD" envDefault:"5000"`
	EnableFraudDetection  bool   `env:"ENABLE_FRAUD_DETECTION" envDefault:"true"`
	CaptureMethod         string `env:"CAPTURE_METHOD" envDefault:"automatic"`

	WebhookEvents []string `env:"WEBHOOK_EVENTS" envDefault:"payment_intent.succeeded,payment_intent.payment_failed,charge.dispute.created,charge.refunded,customer.subscription.created,customer.subscription.updated,customer.subscription.deleted,invoice.payment_succeeded,invoice.payment_failed"`
}

type RateLimit struct {
	Window      time.Duration `env:"WINDOW" envDefault:"60s"`
	MaxRequests int           `env:"MAX_REQUESTS" envDefault:"10"`
}

type Fulfillment struct {
	Delay        time.Duration `env:"DELAY" envDefault:"5s"`
	DeliveryDays int           `env:"DELIVERY_DAYS" envDefault:"3"`
}

type Outbox struct {
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`
	BatchSize    int           `env:"BATCH_SIZE" envDefault:"20"`
	MaxAttempts  int           `env:"MAX_ATTEMPTS" envDefault:"5"`
	BaseBackoff  time.Duration `env:"BASE_BACKOFF" envDefault:"2s"`
}

type Email struct {
	Provider      string `env:"PROVIDER" envDefault:"log"` // log | mailtrap
	From          string `env:"FROM" envDefault:"orders@localhost"`
	FromName      string `env:"FROM_NAME" envDefault:"Storefront"`
	AdminAddress  string `env:"ADMIN_ADDRESS" envDefault:"admin@localhost"`
	MailtrapURL   string `env:"MAILTRAP_URL"`
	MailtrapToken string `env:"MAILTRAP_TOKEN"`
}

type Admin struct {
	JWTSecret string `env:"JWT_SECRET"`
}

var (
	ErrMissingStripeKey    = errors.New("STRIPE_SECRET_KEY is required")
	ErrMissingAdminSecret  = errors.New("ADMIN_JWT_SECRET is required in production")
	ErrUnsupportedDriver   = errors.New("DATABASE_DRIVER must be sqlite or mysql")
	ErrMissingMailtrapCred = errors.New("EMAIL_MAILTRAP_URL and EMAIL_MAILTRAP_TOKEN are required for the mailtrap provider")
)

// Validate checks values that have no usable default. An empty webhook
// secret is allowed; the webhook endpoint reports the misconfiguration.
func (c *Config) Validate() error {
	var errs []error
	if c.Stripe.SecretKey == "" {
		errs = append(errs, ErrMissingStripeKey)
	}
	if c.Environment.IsProduction() && c.Admin.JWTSecret == "" {
		errs = append(errs, ErrMissingAdminSecret)
	}
	if c.Database.Driver != "sqlite" && c.Database.Driver != "mysql" {
		errs = append(errs, ErrUnsupportedDriver)
	}
	if c.Email.Provider == "mailtrap" && (c.Email.MailtrapURL == "" || c.Email.MailtrapToken == "") {
		errs = append(errs, ErrMissingMailtrapCred)
	}
	return errors.Join(errs...)
}
