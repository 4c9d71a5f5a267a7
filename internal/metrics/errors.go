package metrics

import "codeberg.org/mutker/templogger/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDBPath = errors.ErrorCode("metrics_invalid_db_path")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("metrics_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("metrics_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("metrics_schema_migration_failed")
	ErrTransactionFailed      = errors.ErrorCode("metrics_transaction_failed")

	// Storage Errors
	ErrStorageInit  = errors.ErrInitFailed
	ErrStorageClose = errors.ErrShutdownFailed

	// Service Errors
	ErrServiceShutdown = errors.ErrShutdownFailed
	ErrClosed          = errors.ErrorCode("metrics_closed")

	// Collection Errors
	ErrSampleWrite = errors.ErrorCode("metrics_sample_write_failed")

	// Operation Errors
	ErrOperationTimeout = errors.ErrTimeout
)

func init() {
	errors.RegisterMessage(ErrInvalidDBPath, "Metrics database path is not set")
	errors.RegisterMessage(ErrSchemaInitFailed, "Failed to create metrics schema")
	errors.RegisterMessage(ErrSchemaValidationFailed, "Failed to validate metrics schema")
	errors.RegisterMessage(ErrSchemaMigrationFailed, "Failed to migrate metrics schema")
	errors.RegisterMessage(ErrTransactionFailed, "Metrics transaction failed")
	errors.RegisterMessage(ErrClosed, "Metrics repository is closed")
	errors.RegisterMessage(ErrSampleWrite, "Failed to store sample in metrics database")
}
