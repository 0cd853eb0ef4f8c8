package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode represents a specific error condition
type ErrorCode string

const (
	// Configuration errors
	ErrCodeConfigNotFound   ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid    ErrorCode = "CONFIG_INVALID"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"

	// Server target errors
	ErrCodeTargetInvalid            ErrorCode = "TARGET_INVALID"
	ErrCodeTargetMissingCredentials ErrorCode = "TARGET_MISSING_CREDENTIALS"

	// Collection and rebuild errors
	ErrCodeUnknownCollection ErrorCode = "UNKNOWN_COLLECTION"
	ErrCodeInvalidUpdateType ErrorCode = "INVALID_UPDATE_TYPE"
	ErrCodeRebuildFailed     ErrorCode = "REBUILD_FAILED"

	// Command execution errors
	ErrCodeCommandNotFound ErrorCode = "COMMAND_NOT_FOUND"
	ErrCodeCommandFailed   ErrorCode = "COMMAND_FAILED"

	// Authentication errors
	ErrCodeSignatureMalformed ErrorCode = "SIGNATURE_MALFORMED"
	ErrCodeSignatureInvalid   ErrorCode = "SIGNATURE_INVALID"
	ErrCodeSecretKey          ErrorCode = "SECRET_KEY"

	// Daemon errors
	ErrCodeDaemonNotRunning ErrorCode = "DAEMON_NOT_RUNNING"
	ErrCodeDaemonRunning    ErrorCode = "DAEMON_RUNNING"

	// General errors
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"
)

// TdmError represents a structured error with context
type TdmError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *TdmError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *TdmError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *TdmError) WithDetail(key string, value interface{}) *TdmError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ToJSON converts the error to JSON
func (e *TdmError) ToJSON() string {
	data, _ := json.MarshalIndent(e, "", "  ")
	return string(data)
}

// New creates a new TdmError
func New(code ErrorCode, message string) *TdmError {
	return &TdmError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a TdmError
func Wrap(err error, code ErrorCode, message string) *TdmError {
	return &TdmError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Is checks if an error is a specific TdmError code
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}

	tdmErr, ok := err.(*TdmError)
	if !ok {
		// Try to unwrap
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return Is(unwrapper.Unwrap(), code)
		}
		return false
	}

	if tdmErr.Code == code {
		return true
	}
	if tdmErr.Cause != nil {
		return Is(tdmErr.Cause, code)
	}
	return false
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if err == nil {
		return ""
	}

	tdmErr, ok := err.(*TdmError)
	if !ok {
		// Try to unwrap
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return GetCode(unwrapper.Unwrap())
		}
		return ""
	}

	return tdmErr.Code
}

// AsTdmError returns the first TdmError in err's chain.
func AsTdmError(err error) (*TdmError, bool) {
	for err != nil {
		if tdmErr, ok := err.(*TdmError); ok {
			return tdmErr, true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = unwrapper.Unwrap()
	}
	return nil, false
}
