// logger.go - Audit trail for relay submissions
package main

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"privacycash/internal/log"
)

// AuditLogger records submissions to the relayer as JSON lines in their own
// file, separate from the process log.
type AuditLogger struct {
	l *zap.Logger
}

// NewAuditLogger opens path for appending. An empty path disables auditing.
func NewAuditLogger(path string) (*AuditLogger, error) {
	if path == "" {
		return &AuditLogger{l: zap.NewNop()}, nil
	}
	ws, _, err := zap.Open(path)
	if err != nil {
		return nil, err
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(log.EncoderConfig()), ws, zap.InfoLevel)
	return &AuditLogger{l: zap.New(core)}, nil
}

// Audit logs an audit event
func (a *AuditLogger) Audit(event string, fields ...zap.Field) {
	a.l.Info(event, fields...)
}

// Close flushes buffered entries.
func (a *AuditLogger) Close() error {
	return a.l.Sync()
}
