package notification

import (
	"fmt"
	"log/slog"

	"storefront-payments/internal/config"
)

// NewSender picks the delivery backend named by cfg.Provider.
func NewSender(cfg config.Email, logger *slog.Logger) (Sender, error) {
	switch cfg.Provider {
	case "", "log":
		return NewLogSender(logger), nil
	case "mailtrap":
		return NewMailtrapSender(cfg.MailtrapURL, cfg.MailtrapToken, cfg.From, cfg.FromName), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}
