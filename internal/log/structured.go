package log

import (
	"context"
)

// StructuredLogger provides domain-level logging methods on top of Logger.
// Each method names its own component, so wrap a component-less root
// logger.
type StructuredLogger struct {
	logger *Logger
}

// NewStructuredLogger creates a new structured logger
func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{
		logger: logger,
	}
}

// LogLedgerUpdated logs a successful ledger mutation
func (sl *StructuredLogger) LogLedgerUpdated(ctx context.Context, carID string, year int, operation string, version int64) {
	fields := NewFields().
		WithLedger(carID, year).
		WithOperation(operation).
		WithComponent(ComponentLedger).
		ToSlice()

	fields = append(fields, FieldVersion, version)

	sl.logger.InfoContext(ctx, "Ledger updated successfully", fields...)
}

// LogCellStored logs one stored cell at debug level
func (sl *StructuredLogger) LogCellStored(ctx context.Context, carID string, year int, category, field string, month int, value float64) {
	fields := NewFields().
		WithLedger(carID, year).
		WithCell(category, field, month).
		WithComponent(ComponentLedger).
		ToSlice()

	fields = append(fields, FieldValue, value)

	sl.logger.DebugContext(ctx, "Cell stored", fields...)
}

// LogError logs an error with structured context
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component string, operation string, fields LogFields) {
	allFields := fields.
		WithError(err).
		WithOperation(operation).
		WithComponent(component)

	sl.logger.ErrorContext(ctx, msg, allFields.ToSlice()...)
}
