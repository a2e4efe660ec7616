package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/devlearn/playground/internal/config"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "devlearn %s\n", config.GetVersion())
			return err
		},
	}
}
