package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/Unidata/tds-sub001/cli"
	"github.com/Unidata/tds-sub001/pkg/daemon"
	"github.com/Unidata/tds-sub001/pkg/models"
	"github.com/spf13/cobra"
)

// NewStatusCmd creates the `status` command.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show per-collection update status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := daemon.Connect()
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			state, err := client.State(ctx)
			if err != nil {
				return err
			}

			if cli.GetOptions(cmd).JSONOutput {
				data, err := json.MarshalIndent(state, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderState(state, time.Now()))
			return nil
		},
	}
}

func renderState(state *models.DaemonState, now time.Time) string {
	t := newTable("COLLECTION", "STATE", "ACCEPTED", "DROPPED", "RUNS", "FAILED", "LAST RUN")
	for _, c := range state.Collections {
		t.Row(
			c.Name,
			collectionState(c),
			strconv.FormatUint(c.Accepted, 10),
			strconv.FormatUint(c.Dropped, 10),
			strconv.FormatUint(c.Runs, 10),
			strconv.FormatUint(c.Failures, 10),
			lastRun(c.LastRun, now),
		)
	}

	header := fmt.Sprintf("PID %d  up %s  workers %d  in flight %d  queued %d",
		state.PID, now.Sub(state.StartedAt).Round(time.Second), state.Workers, state.InFlight, state.Queued)
	return mutedStyle.Render(header) + "\n" + t.Render()
}

func collectionState(c models.CollectionStatus) string {
	switch {
	case c.Running:
		return warnStyle.Render("running")
	case c.LastRun != nil && c.LastRun.Failed():
		return errStyle.Render("failed")
	default:
		return okStyle.Render("idle")
	}
}

func lastRun(run *models.RunResult, now time.Time) string {
	if run == nil {
		return mutedStyle.Render("never")
	}

	desc := "unchanged"
	switch {
	case run.Failed():
		desc = "error"
	case run.Changed:
		accepted := 0
		for _, tr := range run.Triggers {
			if tr.OK() {
				accepted++
			}
		}
		desc = fmt.Sprintf("changed, %d/%d triggers", accepted, len(run.Triggers))
	}
	return fmt.Sprintf("%s ago (%s, %s)", now.Sub(run.StartedAt).Round(time.Second), run.Elapsed.Round(time.Millisecond), desc)
}
