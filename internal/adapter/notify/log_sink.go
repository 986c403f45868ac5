package notify

import (
	"context"

	"delivery-settlement/internal/core/domain"

	"github.com/rs/zerolog"
)

// LogSink writes notifications to the log. Used when no push provider is
// configured.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Send(_ context.Context, deviceToken string, n domain.Notification) error {
	title, body := render(n)
	s.log.Info().
		Str("recipient_id", n.RecipientID.String()).
		Str("template", n.Template).
		Str("title", title).
		Str("body", body).
		Msg("notification")
	return nil
}
