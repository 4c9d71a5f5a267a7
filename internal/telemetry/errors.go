package telemetry

import "codeberg.org/mutker/templogger/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrorCode("telemetry_invalid_config")

	// Export Errors
	ErrExport = errors.ErrorCode("telemetry_export_failed")

	// Operation Errors
	ErrOperationTimeout = errors.ErrTimeout
	ErrServiceShutdown  = errors.ErrShutdownFailed
)

func init() {
	errors.RegisterMessage(ErrInvalidConfig, "Invalid InfluxDB export configuration")
	errors.RegisterMessage(ErrExport, "Failed to export sample to InfluxDB")
}
