package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Unidata/tds-sub001/cli"
	"github.com/Unidata/tds-sub001/config"
	"github.com/Unidata/tds-sub001/internal/daemon/target"
	"github.com/Unidata/tds-sub001/logging"
	"github.com/Unidata/tds-sub001/pkg/daemon"
	"github.com/Unidata/tds-sub001/pkg/models"
	"github.com/spf13/cobra"
)

// NewTargetsCmd creates the `targets` command.
func NewTargetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "List the servers that receive triggers",
		Long: `Lists the trigger targets of the running daemon. When the daemon is not
running, the targets are built from the configuration file instead, which
also checks that every server entry is usable.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := loadTargets(cmd)
			if err != nil {
				return err
			}

			if cli.GetOptions(cmd).JSONOutput {
				data, err := json.MarshalIndent(infos, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}

			if len(infos) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("No servers configured"))
				return nil
			}

			t := newTable("TARGET", "AUTH", "TRIGGER URL")
			for _, info := range infos {
				auth := "basic"
				if info.Local {
					auth = "signature"
				}
				t.Row(info.Name, auth, info.BaseURL+" -> /"+info.TriggerPath)
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return nil
		},
	}
}

func loadTargets(cmd *cobra.Command) ([]models.TargetInfo, error) {
	if client, err := daemon.Connect(); err == nil {
		defer client.Close()
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		return client.Targets(ctx)
	}

	cfg, _, err := cli.LoadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return targetsFromConfig(cfg)
}

func targetsFromConfig(cfg *config.Config) ([]models.TargetInfo, error) {
	registry, err := target.New(target.Config{
		Servers:     cfg.Servers,
		User:        cfg.User,
		Password:    cfg.Password,
		AdminPath:   cfg.AdminPath,
		LocalPath:   cfg.LocalPath,
		TriggerFlag: models.UpdateType(cfg.TriggerFlag),
		Timeout:     cfg.RequestTimeout.Std(),
	}, logging.NewLogger("targets"))
	if err != nil {
		return nil, err
	}
	return registry.Infos(), nil
}
