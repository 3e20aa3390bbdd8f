package cmd

import (
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func Run() {
	var command = &cobra.Command{
		Use:   "pdfcache",
		Short: "Fault-tolerant result cache and task tracker for PDF generation",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	_ = godotenv.Load()

	command.AddCommand(apiCmd())
	command.AddCommand(workerCmd())
	command.AddCommand(warmCmd())

	if err := command.Execute(); err != nil {
		log.Fatal().Msgf("failed to execute command, err: %v", err.Error())
	}
}
