package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/Unidata/tds-sub001/errors"
)

// ErrorHandler provides user-friendly error messages
type ErrorHandler struct {
	Verbose bool
	Out     io.Writer
}

// NewErrorHandler creates a new error handler writing to stderr
func NewErrorHandler(verbose bool) *ErrorHandler {
	return &ErrorHandler{
		Verbose: verbose,
		Out:     os.Stderr,
	}
}

// Handle prints a hint for well-known error codes and returns err.
func (h *ErrorHandler) Handle(err error) error {
	if err == nil {
		return nil
	}

	tdmErr, _ := errors.AsTdmError(err)

	detail := func(key string) interface{} {
		if tdmErr == nil {
			return ""
		}
		return tdmErr.Details[key]
	}

	switch errors.GetCode(err) {
	case errors.ErrCodeConfigNotFound:
		fmt.Fprintf(h.Out, "Configuration not found. Create tdm.yml or pass --config.\n")

	case errors.ErrCodeConfigValidation, errors.ErrCodeConfigInvalid:
		fmt.Fprintf(h.Out, "Invalid configuration: %v\n", err)
		fmt.Fprintf(h.Out, "Run 'tdm config validate' for details.\n")

	case errors.ErrCodeTargetMissingCredentials:
		fmt.Fprintf(h.Out, "Server %v is remote and needs 'user' and 'password' in the configuration.\n", detail("server"))

	case errors.ErrCodeTargetInvalid:
		fmt.Fprintf(h.Out, "Server entry %v is not a usable URL: %v\n", detail("server"), detail("reason"))

	case errors.ErrCodeUnknownCollection:
		fmt.Fprintf(h.Out, "Collection '%v' is not configured.\n", detail("collection"))
		fmt.Fprintf(h.Out, "Run 'tdm status' to see configured collections.\n")

	case errors.ErrCodeDaemonNotRunning:
		fmt.Fprintf(h.Out, "The tdm daemon is not running. Start it with 'tdm daemon start'.\n")

	case errors.ErrCodeSecretKey:
		fmt.Fprintf(h.Out, "Cannot use the signing key %v: %v\n", detail("path"), err)
		fmt.Fprintf(h.Out, "The daemon writes a new key each time it starts.\n")

	case errors.ErrCodeCommandNotFound:
		fmt.Fprintf(h.Out, "Rebuild command not found: %v\n", detail("command"))

	default:
		fmt.Fprintf(h.Out, "Error: %v\n", err)
	}

	if h.Verbose && tdmErr != nil {
		fmt.Fprintf(h.Out, "\nError details:\n%s\n", tdmErr.ToJSON())
	}
	return err
}
