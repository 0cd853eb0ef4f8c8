package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/Unidata/tds-sub001/cli"
	"github.com/Unidata/tds-sub001/errors"
	"github.com/Unidata/tds-sub001/internal/daemon/source"
	"github.com/Unidata/tds-sub001/pkg/models"
	"github.com/spf13/cobra"
)

// NewPublishCmd creates the `publish` command.
func NewPublishCmd() *cobra.Command {
	var updateType string

	cmd := &cobra.Command{
		Use:   "publish <collection>",
		Short: "Publish an update event on the configured Redis channel",
		Long: `Publishes an update event for the collection on the Redis channel from
the configuration. Every daemon subscribed to that channel treats it like a
local file event. Useful from hosts that ingest data but do not run tdm.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Redis == nil {
				return errors.ConfigInvalid("no redis section configured")
			}

			var ut models.UpdateType
			if updateType != "" {
				if ut, err = models.ParseUpdateType(updateType); err != nil {
					return err
				}
			}

			src := source.NewRedisSource(source.RedisOptions{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
				Channel:  cfg.Redis.Channel,
			}, cli.GetLogger(cmd, "publish"))
			defer src.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			if err := src.Publish(ctx, args[0], ut); err != nil {
				return fmt.Errorf("failed to publish to %s: %w", cfg.Redis.Addr, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Published %s on %s\n", args[0], src.Channel())
			return nil
		},
	}

	cmd.Flags().StringVarP(&updateType, "type", "t", "", "Update type: nocheck, test, always, never")
	return cmd
}
