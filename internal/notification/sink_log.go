package notification

import (
	"context"
	"log/slog"
)

// LogSink writes notifications to the structured log. Default wiring when no
// Kafka brokers are configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Deliver(ctx context.Context, n Notification) error {
	recipients := make([]string, len(n.Recipients))
	for i, r := range n.Recipients {
		recipients[i] = r.String()
	}
	s.logger.InfoContext(ctx, "notification",
		"event", string(n.Event),
		"coi_id", n.COIID.String(),
		"status", n.Status,
		"actor", n.ActorParty.String(),
		"recipients", recipients,
	)
	return nil
}
