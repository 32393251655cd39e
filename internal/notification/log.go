package notification

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// LogSender renders messages and logs them instead of delivering them.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, template TemplateType, data Data) (Result, error) {
	msg, err := Render(template, data)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, err
	}

	id := "log_" + uuid.NewString()
	s.logger.InfoContext(ctx, "email sent (log only)",
		"message_id", id,
		"template", template,
		"to", msg.To,
		"subject", msg.Subject,
	)
	s.logger.DebugContext(ctx, "email body", "message_id", id, "text", msg.Text)

	return Result{Success: true, MessageID: id}, nil
}
