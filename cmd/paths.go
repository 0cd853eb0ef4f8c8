package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Unidata/tds-sub001/logging"
	"github.com/Unidata/tds-sub001/pkg/paths"
	"github.com/spf13/cobra"
)

// PathsOutput lists the files and directories tdm uses.
type PathsOutput struct {
	ConfigDir string `json:"config_dir"`
	StateDir  string `json:"state_dir"`
	LogFile   string `json:"log_file"`
	Socket    string `json:"socket"`
	PidFile   string `json:"pid_file"`
	SecretKey string `json:"secret_key"`
}

// NewPathsCmd creates the `paths` command.
func NewPathsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print the paths used by tdm",
		Long: `Prints, as JSON, the XDG-based locations of the configuration directory,
state and log files, the control socket, the PID file and the default
signing key file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := PathsOutput{
				ConfigDir: paths.ConfigDir(),
				StateDir:  paths.StateDir(),
				LogFile:   logging.FilePath(time.Now()),
				Socket:    paths.SocketPath(),
				PidFile:   paths.PidFilePath(),
				SecretKey: paths.SecretKeyPath(),
			}

			jsonData, err := json.MarshalIndent(output, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal paths to JSON: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(jsonData))
			return nil
		},
	}
}
