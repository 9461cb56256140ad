package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier writes messages to the log instead of a real channel. Used for
// local development without messaging credentials.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(_ context.Context, owner, message string) error {
	n.log.Info("notification", zap.String("owner", owner), zap.String("message", message))
	return nil
}
