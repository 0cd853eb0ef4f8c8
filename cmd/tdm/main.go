package main

import (
	"os"

	"github.com/Unidata/tds-sub001/cli"
	"github.com/Unidata/tds-sub001/cmd"
	"github.com/Unidata/tds-sub001/version"
)

func main() {
	cli.InitColor()

	rootCmd := cli.NewStandardCommand(
		"tdm",
		"Keeps data server collections up to date and triggers servers to reload them",
	)
	cli.SetVersionTemplate(rootCmd, version.GetInfo())

	rootCmd.AddCommand(cmd.NewDaemonCmd())
	rootCmd.AddCommand(cmd.NewStatusCmd())
	rootCmd.AddCommand(cmd.NewTriggerCmd())
	rootCmd.AddCommand(cmd.NewPublishCmd())
	rootCmd.AddCommand(cmd.NewWatchCmd())
	rootCmd.AddCommand(cmd.NewTargetsCmd())
	rootCmd.AddCommand(cmd.NewSignCmd())
	rootCmd.AddCommand(cmd.NewVerifyCmd())
	rootCmd.AddCommand(cmd.NewConfigCmd())
	rootCmd.AddCommand(cmd.NewLogsCmd())
	rootCmd.AddCommand(cmd.NewPathsCmd())
	rootCmd.AddCommand(cli.NewVersionCommand("tdm"))

	if err := rootCmd.Execute(); err != nil {
		verbose, _ := rootCmd.PersistentFlags().GetBool("verbose")
		cli.NewErrorHandler(verbose).Handle(err)
		os.Exit(1)
	}
}
