package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Unidata/tds-sub001/cli"
	"github.com/Unidata/tds-sub001/config"
	"github.com/Unidata/tds-sub001/logging"
	"github.com/Unidata/tds-sub001/schema"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewConfigCmd creates the `config` command group.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate the configuration",
	}
	cmd.AddCommand(newConfigSchemaCmd())
	cmd.AddCommand(newConfigValidateCmd())
	cmd.AddCommand(newConfigShowCmd())
	return cmd
}

// FullSchema returns the configuration schema including extension sections.
func FullSchema() ([]byte, error) {
	base, err := config.GenerateSchema()
	if err != nil {
		return nil, err
	}
	loggingSchema, err := logging.GenerateSchema()
	if err != nil {
		return nil, err
	}
	return schema.Compose(base, map[string][]byte{"logging": loggingSchema})
}

func newConfigSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of tdm.yml",
		Long: `Prints the JSON Schema for tdm.yml, including the logging section.
Point your editor's YAML language server at it for completion.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := FullSchema()
			if err != nil {
				return err
			}
			output, _ := cmd.Flags().GetString("output")
			if output == "" {
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			if err := os.WriteFile(output, append(data, '\n'), 0o644); err != nil {
				return fmt.Errorf("failed to write schema: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema written to %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "Write the schema to a file")
	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a configuration file",
		Long: `Loads the file the daemon would use (or the one given), merges any
tdm.override file next to it and checks the result against the schema and
the server and collection rules.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if err := cmd.Flags().Set("config", args[0]); err != nil {
					return err
				}
			}
			cfg, path, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			if _, err := targetsFromConfig(cfg); err != nil {
				return err
			}

			if cli.GetOptions(cmd).JSONOutput {
				data, _ := json.MarshalIndent(map[string]interface{}{
					"path":        path,
					"valid":       true,
					"servers":     len(cfg.Servers),
					"collections": len(cfg.Collections),
				}, "", "  ")
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d servers, %d collections)\n",
				okStyle.Render("valid"), path, len(cfg.Servers), len(cfg.Collections))
			return nil
		},
	}
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration with defaults applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			redacted := cfg.Redacted()

			if cli.GetOptions(cmd).JSONOutput {
				data, err := json.MarshalIndent(redacted, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}

			data, err := yaml.Marshal(redacted)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# Source: %s\n%s", path, data)
			return nil
		},
	}
}
