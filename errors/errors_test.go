package errors

import (
	"fmt"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTdmError(t *testing.T) {
	// Test basic error creation
	err := New(ErrCodeUnknownCollection, "collection not found")
	if err.Code != ErrCodeUnknownCollection {
		t.Errorf("expected code %s, got %s", ErrCodeUnknownCollection, err.Code)
	}

	// Test error wrapping
	cause := fmt.Errorf("underlying error")
	wrapped := Wrap(cause, ErrCodeCommandFailed, "command failed")

	if wrapped.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}

	// Test Is function
	if !Is(wrapped, ErrCodeCommandFailed) {
		t.Error("Is should return true for matching code")
	}

	if Is(wrapped, ErrCodeUnknownCollection) {
		t.Error("Is should return false for non-matching code")
	}

	// Test WithDetail
	detailed := err.WithDetail("collection", "gfs").WithDetail("runs", 3)
	if detailed.Details["collection"] != "gfs" {
		t.Error("WithDetail should add details")
	}
}

func TestIsFollowsNestedCauses(t *testing.T) {
	inner := MissingCredentials("https://remote.example.edu/")
	outer := Wrap(inner, ErrCodeConfigInvalid, "failed to build server registry")
	stdWrapped := fmt.Errorf("startup: %w", outer)

	assert.True(t, Is(stdWrapped, ErrCodeConfigInvalid))
	assert.True(t, Is(stdWrapped, ErrCodeTargetMissingCredentials))
	assert.Equal(t, ErrCodeConfigInvalid, GetCode(stdWrapped))
	assert.Equal(t, ErrorCode(""), GetCode(nil))
	assert.False(t, Is(nil, ErrCodeInternal))
}

func TestErrorConstructors(t *testing.T) {
	err := UnknownCollection("gfs")
	assert.Equal(t, ErrCodeUnknownCollection, err.Code)
	assert.Equal(t, "gfs", err.Details["collection"])

	err = MissingCredentials("https://remote.example.edu/")
	assert.Equal(t, ErrCodeTargetMissingCredentials, err.Code)
	assert.Equal(t, "https://remote.example.edu/", err.Details["server"])

	err = InvalidTarget("::bad", "missing host")
	assert.Equal(t, ErrCodeTargetInvalid, err.Code)
	assert.Contains(t, err.Error(), "missing host")
}

func TestCommandFailedCarriesExitCode(t *testing.T) {
	runErr := exec.Command("sh", "-c", "exit 7").Run()
	require.Error(t, runErr)

	err := CommandFailed("sh -c exit 7", runErr)
	assert.Equal(t, ErrCodeCommandFailed, err.Code)
	assert.Equal(t, 7, err.Details["exitCode"])
	assert.Contains(t, err.ToJSON(), "COMMAND_FAILED")
}

func TestAsTdmError(t *testing.T) {
	base := DaemonNotRunning("/tmp/tdm.sock")
	wrapped := fmt.Errorf("connect: %w", base)

	got, ok := AsTdmError(wrapped)
	require.True(t, ok)
	assert.Same(t, base, got)
	assert.Equal(t, "/tmp/tdm.sock", got.Details["socket"])

	_, ok = AsTdmError(fmt.Errorf("plain"))
	assert.False(t, ok)
	_, ok = AsTdmError(nil)
	assert.False(t, ok)
}
