package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/Unidata/tds-sub001/cli"
	"github.com/Unidata/tds-sub001/pkg/daemon"
	"github.com/Unidata/tds-sub001/pkg/models"
	"github.com/spf13/cobra"
)

// NewWatchCmd creates the `watch` command.
func NewWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream daemon activity",
		Long: `Prints events, rebuilds and trigger results as the daemon handles them.
Press Ctrl-C to stop.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := daemon.Connect()
			if err != nil {
				return err
			}
			defer client.Close()

			updates, err := client.Stream(cmd.Context())
			if err != nil {
				return err
			}

			jsonOutput := cli.GetOptions(cmd).JSONOutput
			for u := range updates {
				if jsonOutput {
					data, _ := json.Marshal(u)
					fmt.Fprintln(cmd.OutOrStdout(), string(data))
					continue
				}
				printUpdate(cmd.OutOrStdout(), u)
			}
			return nil
		},
	}
}

func printUpdate(w io.Writer, u models.StateUpdate) {
	ts := mutedStyle.Render(u.Time.Local().Format("15:04:05"))

	switch u.Type {
	case models.StateUpdateEvent:
		verdict := okStyle.Render("accepted")
		if !u.Accepted {
			verdict = mutedStyle.Render("dropped")
		}
		fmt.Fprintf(w, "%s %s event from %s %s\n", ts, u.Collection, u.Source, verdict)

	case models.StateUpdateRunStarted:
		fmt.Fprintf(w, "%s %s %s\n", ts, u.Collection, warnStyle.Render("rebuilding"))

	case models.StateUpdateRunFinished:
		if u.Run == nil {
			return
		}
		if u.Run.Failed() {
			fmt.Fprintf(w, "%s %s %s %s\n", ts, u.Collection, errStyle.Render("failed"), u.Run.Error)
			return
		}
		fmt.Fprintf(w, "%s %s done in %s (changed=%t)\n", ts, u.Collection, u.Run.Elapsed, u.Run.Changed)
		for _, tr := range u.Run.Triggers {
			outcome := okStyle.Render(string(tr.Outcome))
			if !tr.OK() {
				outcome = errStyle.Render(string(tr.Outcome))
			}
			fmt.Fprintf(w, "           -> %s %s\n", tr.Target, outcome)
		}

	case models.StateUpdateConfigReload:
		fmt.Fprintf(w, "%s config file %s changed; restart the daemon to apply\n", ts, u.Source)
	}
}
