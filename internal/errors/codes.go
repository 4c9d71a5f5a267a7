package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrAlreadyRunning  ErrorCode = "already_running"

	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrMissingEndpoint ErrorCode = "config_missing_endpoint"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrInvalidInterval ErrorCode = "invalid_interval"
	ErrInvalidTimeout  ErrorCode = "invalid_timeout"
	ErrInvalidPolicy   ErrorCode = "invalid_error_policy"

	// Logging errors
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"
	ErrInitLogger      ErrorCode = "init_logger_failed"

	// Lifecycle errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"

	// Operation errors
	ErrTimeout          ErrorCode = "operation_timeout"
	ErrInvalidOperation ErrorCode = "invalid_operation"
)

var errorMessages = map[ErrorCode]string{
	ErrInternal:         "Internal error occurred",
	ErrInvalidArgument:  "Invalid argument provided",
	ErrAlreadyRunning:   "Another instance is already running",
	ErrInvalidConfig:    "Invalid configuration",
	ErrMissingEndpoint:  "No instrument endpoint selected",
	ErrReadConfig:       "Failed to read config file",
	ErrInvalidInterval:  "Invalid interval value",
	ErrInvalidTimeout:   "Invalid timeout value",
	ErrInvalidPolicy:    "Invalid error policy",
	ErrInvalidLogLevel:  "Invalid log level",
	ErrInitLogger:       "Failed to initialize logger",
	ErrInitFailed:       "Initialization failed",
	ErrShutdownFailed:   "Shutdown failed",
	ErrTimeout:          "Operation timed out",
	ErrInvalidOperation: "Invalid operation",
}

// RegisterMessage sets the default message for a package-specific code.
// It is meant to be called from package init functions.
func RegisterMessage(code ErrorCode, msg string) {
	errorMessages[code] = msg
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
