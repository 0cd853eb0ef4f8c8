package errors

import (
	"fmt"
	"os/exec"
)

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *TdmError {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *TdmError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// InvalidTarget creates an error for a server entry that cannot be used as a trigger target
func InvalidTarget(server string, reason string) *TdmError {
	return New(ErrCodeTargetInvalid, fmt.Sprintf("invalid server '%s': %s", server, reason)).
		WithDetail("server", server).
		WithDetail("reason", reason)
}

// MissingCredentials creates an error for a remote target configured without user/password
func MissingCredentials(server string) *TdmError {
	return New(ErrCodeTargetMissingCredentials,
		fmt.Sprintf("remote server '%s' requires user and password", server)).
		WithDetail("server", server)
}

// UnknownCollection creates an error for a collection name that is not configured
func UnknownCollection(name string) *TdmError {
	return New(ErrCodeUnknownCollection, fmt.Sprintf("collection '%s' is not configured", name)).
		WithDetail("collection", name)
}

// InvalidUpdateType creates an error for an unrecognised update type
func InvalidUpdateType(value string) *TdmError {
	return New(ErrCodeInvalidUpdateType, fmt.Sprintf("unknown update type '%s'", value)).
		WithDetail("updateType", value)
}

// CommandFailed creates a command execution failure error
func CommandFailed(cmd string, err error) *TdmError {
	tdmErr := Wrap(err, ErrCodeCommandFailed, fmt.Sprintf("command failed: %s", cmd)).
		WithDetail("command", cmd)

	// Extract exit code if available
	if exitErr, ok := err.(*exec.ExitError); ok {
		tdmErr = tdmErr.WithDetail("exitCode", exitErr.ExitCode())
	}

	return tdmErr
}

// DaemonNotRunning creates an error for CLI calls made while the daemon is down
func DaemonNotRunning(socket string) *TdmError {
	return New(ErrCodeDaemonNotRunning, "tdm daemon is not running").
		WithDetail("socket", socket)
}
