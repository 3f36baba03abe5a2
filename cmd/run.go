package cmd

import (
	"log"

	"github.com/Bullish-Design/discordia/discordia"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [flags]",
	Short: "Starts the Discordia bot and (optionally) the status API",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		bot, err := discordia.New(cfg)
		if err != nil {
			log.Fatalf("error creating discordia: %s", err.Error())
		}

		if err = bot.Run(ctx); err != nil {
			log.Fatalf("error running discordia: %s", err.Error())
		}
	},
}

//goland:noinspection GoLinter
func init() {
	rootCmd.AddCommand(runCmd)
}
