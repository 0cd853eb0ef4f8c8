package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Unidata/tds-sub001/cli"
	"github.com/Unidata/tds-sub001/logging"
	"github.com/Unidata/tds-sub001/pkg/daemon"
	"github.com/Unidata/tds-sub001/pkg/models"
	"github.com/spf13/cobra"
)

// NewTriggerCmd creates the `trigger` command.
func NewTriggerCmd() *cobra.Command {
	var updateType string

	cmd := &cobra.Command{
		Use:   "trigger <collection>",
		Short: "Ask the daemon to update a collection",
		Long: `Sends a signed trigger request to the local daemon. The request goes
through the same gate as file events: if the collection is already being
rebuilt, the request is dropped.

Examples:
  # Update with the collection's configured update type
  tdm trigger radar

  # Force a full rebuild
  tdm trigger radar --type always`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ut models.UpdateType
			if updateType != "" {
				parsed, err := models.ParseUpdateType(updateType)
				if err != nil {
					return err
				}
				ut = parsed
			}

			client, err := daemon.Connect()
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			resp, err := client.Trigger(ctx, args[0], ut)
			if err != nil {
				return err
			}

			if cli.GetOptions(cmd).JSONOutput {
				data, _ := json.MarshalIndent(resp, "", "  ")
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}

			pretty := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
			if resp.Accepted {
				pretty.Success(fmt.Sprintf("Update started for %s", resp.Collection))
			} else {
				pretty.WarnPretty(fmt.Sprintf("%s is already updating; request dropped", resp.Collection))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&updateType, "type", "t", "", "Update type: nocheck, test, always, never")
	return cmd
}
