package audit

import (
	"context"

	"go.uber.org/zap"
)

// LogWriter writes audit records as log entries.
type LogWriter struct {
	logger *zap.Logger
}

func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger.Named("audit")}
}

var _ Writer = &LogWriter{}

func (w *LogWriter) Write(_ context.Context, rec Record) error {
	w.logger.Info(
		"audit",
		zap.String("id", rec.ID.String()),
		zap.String("actor", rec.Actor),
		zap.String("entity", rec.EntityName),
		zap.String("type", rec.EntityType.String()),
		zap.String("action", string(rec.Action)),
		zap.Time("at", rec.At),
	)
	return nil
}
