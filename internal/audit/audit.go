// Package audit records the operational events the service mirrors to
// its monitoring channel: user activity, dialog lifecycle, API failures.
package audit

import "go.uber.org/zap"

// Logger is a thin, nil-safe facade over zap.
type Logger struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{log: log.Named("audit")}
}

func (l *Logger) Startup(userID int64) {
	l.log.Info("user startup", zap.Int64("user_id", userID))
}

func (l *Logger) DialogStarted(userID int64, sessionID string) {
	l.log.Info("dialog started",
		zap.Int64("user_id", userID),
		zap.String("session_id", sessionID),
	)
}

func (l *Logger) DialogFinished(userID int64, sessionID string, messages int) {
	l.log.Info("dialog finished",
		zap.Int64("user_id", userID),
		zap.String("session_id", sessionID),
		zap.Int("messages", messages),
	)
}

func (l *Logger) APIError(userID int64, err error) {
	l.log.Warn("inference api error",
		zap.Int64("user_id", userID),
		zap.Error(err),
	)
}

func (l *Logger) Broadcast(delivered, failed int) {
	l.log.Info("broadcast finished",
		zap.Int("delivered", delivered),
		zap.Int("failed", failed),
	)
}
