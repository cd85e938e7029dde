package alerts

import (
	"context"

	"github.com/dmitrijs2005/zkvault/internal/logging"
)

// LogSender writes alerts to the log instead of delivering them.
// Used in development and when no queue is configured.
type LogSender struct {
	log logging.Logger
}

func NewLogSender(log logging.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, a Alert) error {
	args := []any{"kind", a.Kind, "account_id", a.AccountID, "recipient", a.Recipient, "subject", a.Subject}
	for k, v := range a.Fields {
		args = append(args, k, v)
	}
	s.log.Info(ctx, "alert", args...)
	return nil
}
