// Package rebuild adapts the external collection rebuild to the daemon.
package rebuild

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/Unidata/tds-sub001/errors"
	"github.com/Unidata/tds-sub001/pkg/models"
	"github.com/sirupsen/logrus"
)

// DefaultUnchangedExitCode is the exit status meaning "nothing to do".
const DefaultUnchangedExitCode = 2

// maxOutput bounds how much command output is kept on an error.
const maxOutput = 4096

// Rebuilder brings a collection's index up to date and reports whether
// anything changed.
type Rebuilder interface {
	Rebuild(ctx context.Context, coll models.Collection, ut models.UpdateType) (bool, error)
}

// RebuilderFunc adapts a function to the Rebuilder interface.
type RebuilderFunc func(ctx context.Context, coll models.Collection, ut models.UpdateType) (bool, error)

// Rebuild calls f.
func (f RebuilderFunc) Rebuild(ctx context.Context, coll models.Collection, ut models.UpdateType) (bool, error) {
	return f(ctx, coll, ut)
}

// TriggerOnly reports every collection as changed without doing any work.
// It is used when no rebuild command is configured and something else
// maintains the indexes.
var TriggerOnly = RebuilderFunc(func(context.Context, models.Collection, models.UpdateType) (bool, error) {
	return true, nil
})

// CommandRebuilder runs an external command per rebuild.
type CommandRebuilder struct {
	command       []string
	dir           string
	unchangedCode int
	logger        *logrus.Entry
}

// NewCommandRebuilder checks that the command exists and returns a rebuilder
// for it. Arguments may contain {collection}, {update} and {dir}.
func NewCommandRebuilder(command []string, dir string, unchangedExitCode int, logger *logrus.Entry) (*CommandRebuilder, error) {
	if len(command) == 0 || command[0] == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "rebuild command is empty")
	}
	if _, err := exec.LookPath(command[0]); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCommandNotFound, fmt.Sprintf("rebuild command not found: %s", command[0])).
			WithDetail("command", command[0])
	}
	if unchangedExitCode == 0 {
		unchangedExitCode = DefaultUnchangedExitCode
	}

	return &CommandRebuilder{
		command:       command,
		dir:           dir,
		unchangedCode: unchangedExitCode,
		logger:        logger,
	}, nil
}

// Args returns the argv for a rebuild of coll.
func (r *CommandRebuilder) Args(coll models.Collection, ut models.UpdateType) []string {
	replacer := strings.NewReplacer(
		"{collection}", coll.Name,
		"{update}", string(ut),
		"{dir}", coll.Dir,
	)
	args := make([]string, len(r.command))
	for i, a := range r.command {
		args[i] = replacer.Replace(a)
	}
	return args
}

// Rebuild runs the command. Exit 0 means changed, the unchanged exit code
// means unchanged, anything else is an error.
func (r *CommandRebuilder) Rebuild(ctx context.Context, coll models.Collection, ut models.UpdateType) (bool, error) {
	args := r.Args(coll, ut)

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = r.dir
	cmd.Env = append(os.Environ(),
		"TDM_COLLECTION="+coll.Name,
		"TDM_UPDATE_TYPE="+string(ut),
		"TDM_COLLECTION_DIR="+coll.Dir,
	)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()

	log := r.logger.WithFields(logrus.Fields{
		"collection": coll.Name,
		"command":    strings.Join(args, " "),
		"elapsed_ms": time.Since(start).Milliseconds(),
	})

	if err == nil {
		log.Debug("Rebuild command reported changes")
		return true, nil
	}

	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) && exitErr.ExitCode() == r.unchangedCode {
		log.Debug("Rebuild command reported no changes")
		return false, nil
	}

	return false, errors.CommandFailed(strings.Join(args, " "), err).
		WithDetail("output", tail(out.String(), maxOutput))
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
