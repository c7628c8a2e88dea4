package transport

import (
	"context"

	"go.uber.org/zap"
)

// Log prints outbound traffic instead of delivering it. Used when no
// bridge endpoint is configured, mostly during local development.
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log {
	if log == nil {
		log = zap.NewNop()
	}
	return &Log{log: log.Named("outbound")}
}

func (l *Log) SendMessage(_ context.Context, userID int64, text string, keyboard [][]string) error {
	l.log.Info("message",
		zap.Int64("user_id", userID),
		zap.String("text", text),
		zap.Int("keyboard_rows", len(keyboard)),
	)
	return nil
}

func (l *Log) SendTyping(_ context.Context, userID int64) error {
	l.log.Debug("typing", zap.Int64("user_id", userID))
	return nil
}
