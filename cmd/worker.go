package cmd

import (
	"github.com/spf13/cobra"

	"pdfcache/internal/worker"
)

func workerCmd() *cobra.Command {
	var command = &cobra.Command{
		Use:   "worker",
		Short: "Start worker server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return worker.Run()
		},
	}
	return command
}
