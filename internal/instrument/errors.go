package instrument

import "codeberg.org/mutker/templogger/internal/errors"

const (
	// Connection Errors
	ErrTransport        = errors.ErrorCode("instrument_transport_failed")
	ErrIdentityMismatch = errors.ErrorCode("instrument_identity_mismatch")
	ErrInvalidEndpoint  = errors.ErrorCode("instrument_invalid_endpoint")

	// Read Errors
	ErrParse = errors.ErrorCode("instrument_parse_failed")

	// Lifecycle Errors
	ErrClosed = errors.ErrorCode("instrument_session_closed")
)

func init() {
	errors.RegisterMessage(ErrTransport, "Failed to communicate with the instrument")
	errors.RegisterMessage(ErrIdentityMismatch, "Unexpected instrument ID")
	errors.RegisterMessage(ErrInvalidEndpoint, "Invalid instrument endpoint")
	errors.RegisterMessage(ErrParse, "Unexpected instrument response")
	errors.RegisterMessage(ErrClosed, "Instrument session is closed")
}

// IsConnectionError reports whether err means a session could not be
// established: the endpoint was unusable, the transport failed, or the
// instrument answered with the wrong identity.
func IsConnectionError(err error) bool {
	return errors.HasCode(err, ErrTransport, ErrIdentityMismatch, ErrInvalidEndpoint)
}

// IsReadError reports whether err came from a failed temperature read.
func IsReadError(err error) bool {
	return errors.HasCode(err, ErrTransport, ErrParse, ErrClosed)
}

// IsTransportError reports whether the instrument could not be reached.
// These failures are worth another attempt on the next tick.
func IsTransportError(err error) bool {
	return errors.HasCode(err, ErrTransport, ErrClosed)
}

// IsParseError reports whether the instrument answered with a response of
// the wrong shape.
func IsParseError(err error) bool {
	return errors.HasCode(err, ErrParse)
}

// IdentityMismatch returns the identity the instrument actually reported.
func IdentityMismatch(err error) (string, bool) {
	data, ok := errors.DataOf(err, ErrIdentityMismatch)
	if !ok {
		return "", false
	}
	actual, ok := data.(string)

	return actual, ok
}
