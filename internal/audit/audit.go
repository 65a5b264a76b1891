// Package audit records every engine operation as a JSON line for security
// review and debugging.
//
// The audit stream is where full failure detail lives: operation errors are
// recorded here with their underlying cause even though the error returned
// to the caller only carries the kind and operation name. Audit failures
// never fail the audited operation.
package audit

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger writes audit events.
type Logger struct {
	z *zap.Logger
}

// New creates a Logger appending to <dir>/audit.log.
func New(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{filepath.Join(dir, "audit.log")}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	cfg.EncoderConfig.MessageKey = "action"
	z, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building audit logger: %w", err)
	}
	return &Logger{z: z}, nil
}

// NewNop returns a Logger that discards everything.
func NewNop() *Logger {
	return &Logger{z: zap.NewNop()}
}

// Record logs one operation with its parameters. err may be nil for
// successful operations.
func (l *Logger) Record(action, sessionID string, params any, err error) {
	fields := []zap.Field{
		zap.String("session_id", sessionID),
		zap.Any("params", params),
	}
	if err != nil {
		fields = append(fields,
			zap.String("result", "error"),
			zap.String("error", err.Error()),
		)
		l.z.Warn(action, fields...)
		return
	}
	fields = append(fields, zap.String("result", "success"))
	l.z.Info(action, fields...)
}

// Close flushes buffered events.
func (l *Logger) Close() {
	_ = l.z.Sync()
}
